package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

type ValidationError struct {
	Problems []string
}

func (v *ValidationError) Add(format string, args ...any) {
	v.Problems = append(v.Problems, fmt.Sprintf(format, args...))
}

func (v *ValidationError) Error() string {
	return fmt.Sprintf("%d validation error(s)", len(v.Problems))
}

var logLevels = map[string]struct{}{"debug": {}, "info": {}, "warn": {}, "warning": {}, "error": {}}

func (c *Config) Validate() error {
	v := &ValidationError{}

	if c.ConfigVersion != 1 {
		v.Add("configVersion must be 1")
	}

	if err := requireDir(c.PatternsBase()); err != nil {
		v.Add("patterns.baseDir invalid: %v", err)
	}
	if err := validateProjectID(c.Patterns.ProjectID); err != nil {
		v.Add("patterns.projectID invalid: %v", err)
	}

	if _, ok := logLevels[strings.ToLower(c.Logging.Level)]; !ok {
		v.Add("logging.level must be debug|info|warn|error")
	}
	switch c.Logging.Format {
	case FormatText, FormatJSON:
	default:
		v.Add("logging.format must be text|json")
	}
	if c.Logging.Dir != "" {
		if err := ensureWritableDir(c.resolvePath(c.Logging.Dir)); err != nil {
			v.Add("logging.dir invalid: %v", err)
		}
		if c.Logging.MaxAge < 0 || c.Logging.RotationTime < 0 {
			v.Add("logging.maxAge and logging.rotationTime must be >= 0")
		}
	}

	if c.Findings.Log != "" {
		if err := ensureWritableDir(filepath.Dir(c.resolvePath(c.Findings.Log))); err != nil {
			v.Add("findings.log invalid: %v", err)
		}
	}

	if c.Metrics.Enabled {
		if err := validateListen(c.Metrics.Listen); err != nil {
			v.Add("metrics.listen invalid: %v", err)
		}
	}

	if len(c.Proxy.Routes) > 0 {
		if err := validateListen(c.Proxy.Listen); err != nil {
			v.Add("proxy.listen invalid: %v", err)
		}
	}
	if c.Proxy.MaxBodyBytes <= 0 {
		v.Add("proxy.maxBodyBytes must be > 0")
	}
	if c.Proxy.Timeout <= 0 {
		v.Add("proxy.timeout must be > 0")
	}
	for i, route := range c.Proxy.Routes {
		if route.Match.PathPrefix == "" {
			v.Add("proxy.routes[%d].match.pathPrefix is required", i)
		} else if !strings.HasPrefix(route.Match.PathPrefix, "/") {
			v.Add("proxy.routes[%d].match.pathPrefix must start with /", i)
		}
		if route.Upstream == "" {
			v.Add("proxy.routes[%d].upstream is required", i)
		} else if err := validateURL(route.Upstream); err != nil {
			v.Add("proxy.routes[%d].upstream invalid: %v", i, err)
		}
		if err := validateProjectID(route.Project); err != nil {
			v.Add("proxy.routes[%d].project invalid: %v", i, err)
		}
	}

	if len(v.Problems) > 0 {
		sort.Strings(v.Problems)
		return v
	}
	return nil
}

func validateListen(addr string) error {
	if strings.TrimSpace(addr) == "" {
		return errors.New("address is required")
	}
	if _, err := net.ResolveTCPAddr("tcp", addr); err != nil {
		return err
	}
	return nil
}

func validateURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return errors.New("must include scheme and host")
	}
	return nil
}

// validateProjectID rejects ids that would leave the projects directory.
func validateProjectID(id string) error {
	if id == "" {
		return nil
	}
	if !filepath.IsLocal(id) || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("%q must be a single path element", id)
	}
	return nil
}

func requireDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", path)
	}
	return nil
}

func ensureWritableDir(dir string) error {
	if err := requireDir(dir); err != nil {
		return err
	}

	file, err := os.CreateTemp(dir, "rulescan-validate-*")
	if err != nil {
		return err
	}
	name := file.Name()
	if err := file.Close(); err != nil {
		return err
	}
	return os.Remove(name)
}
