package config

import "time"

type Config struct {
	ConfigVersion int            `yaml:"configVersion"`
	Patterns      PatternsConfig `yaml:"patterns"`
	Logging       LoggingConfig  `yaml:"logging"`
	Findings      FindingsConfig `yaml:"findings"`
	Metrics       MetricsConfig  `yaml:"metrics"`
	Proxy         ProxyConfig    `yaml:"proxy"`

	baseDir string `yaml:"-"`
}

// PatternsConfig locates the pack storage. Packs are read from
// <baseDir>/patterns and its projects/ and community/ subdirectories.
type PatternsConfig struct {
	BaseDir   string `yaml:"baseDir"`
	ProjectID string `yaml:"projectID"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	// Dir enables a rotated log file next to stderr output.
	Dir          string        `yaml:"dir"`
	Filename     string        `yaml:"filename"`
	MaxAge       time.Duration `yaml:"maxAge"`
	RotationTime time.Duration `yaml:"rotationTime"`
}

type FindingsConfig struct {
	Log string `yaml:"log"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

type ProxyConfig struct {
	Listen       string        `yaml:"listen"`
	Routes       []Route       `yaml:"routes"`
	MaxBodyBytes int64         `yaml:"maxBodyBytes"`
	Timeout      time.Duration `yaml:"timeout"`
}

type Route struct {
	Match    RouteMatch `yaml:"match"`
	Upstream string     `yaml:"upstream"`
	Project  string     `yaml:"project"`
}

type RouteMatch struct {
	Host       string `yaml:"host"`
	PathPrefix string `yaml:"pathPrefix"`
}

const (
	FormatText = "text"
	FormatJSON = "json"

	DefaultMaxBodyBytes = 1 << 20
	DefaultTimeout      = 30 * time.Second
	DefaultLogFile      = "rulescan.log"
	DefaultMaxAge       = 7 * 24 * time.Hour
	DefaultRotation     = 24 * time.Hour
)

// Default returns the configuration used when no config file is given.
func Default() *Config {
	cfg := &Config{ConfigVersion: 1}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Patterns.BaseDir == "" {
		c.Patterns.BaseDir = "."
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = FormatText
	}
	if c.Logging.Filename == "" {
		c.Logging.Filename = DefaultLogFile
	}
	if c.Logging.MaxAge == 0 {
		c.Logging.MaxAge = DefaultMaxAge
	}
	if c.Logging.RotationTime == 0 {
		c.Logging.RotationTime = DefaultRotation
	}
	if c.Proxy.MaxBodyBytes == 0 {
		c.Proxy.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.Proxy.Timeout == 0 {
		c.Proxy.Timeout = DefaultTimeout
	}
}

func (c *Config) BaseDir() string {
	return c.baseDir
}

func (c *Config) ResolvePath(path string) string {
	return c.resolvePath(path)
}

// PatternsBase is the resolved pack storage root.
func (c *Config) PatternsBase() string {
	return c.resolvePath(c.Patterns.BaseDir)
}

// Projects lists the distinct project ids the proxy routes to, in route order.
func (c *Config) Projects() []string {
	seen := map[string]struct{}{}
	var out []string
	for _, route := range c.Proxy.Routes {
		if _, ok := seen[route.Project]; ok {
			continue
		}
		seen[route.Project] = struct{}{}
		out = append(out, route.Project)
	}
	return out
}
