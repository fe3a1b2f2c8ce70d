package main

import (
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rulescan/rulescan/internal/composer"
	"github.com/rulescan/rulescan/internal/config"
	"github.com/rulescan/rulescan/internal/logging"
	"github.com/rulescan/rulescan/internal/rules"
)

type globalOptions struct {
	configPath string
	baseDir    string
	projectID  string
	logLevel   string
}

func (o *globalOptions) bind(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringVarP(&o.configPath, "config", "c", "", "Path to config file")
	flags.StringVar(&o.baseDir, "base", "", "Pack storage root (overrides patterns.baseDir)")
	flags.StringVar(&o.projectID, "project", "", "Project id (overrides patterns.projectID)")
	flags.StringVar(&o.logLevel, "log-level", "", "Log level: debug|info|warn|error")
}

// load reads the config file, or the defaults when none is given, applies
// flag overrides and validates the result.
func (o *globalOptions) load() (*config.Config, error) {
	cfg := config.Default()
	if o.configPath != "" {
		loaded, err := config.Load(o.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if o.baseDir != "" {
		abs, err := filepath.Abs(o.baseDir)
		if err != nil {
			return nil, err
		}
		cfg.Patterns.BaseDir = abs
	}
	if o.projectID != "" {
		cfg.Patterns.ProjectID = o.projectID
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type env struct {
	cfg *config.Config
	log *logrus.Logger
}

func (o *globalOptions) env() (*env, error) {
	cfg, err := o.load()
	if err != nil {
		return nil, err
	}
	logger, err := logging.Setup(cfg.Logging)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, log: logger}, nil
}

func (e *env) composer(project string, opts ...rules.Option) (*composer.Composer, error) {
	opts = append([]rules.Option{rules.WithLogger(e.log)}, opts...)
	return composer.New(e.cfg.PatternsBase(), project, opts...)
}
