package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	rotates "github.com/lestrrat-go/file-rotatelogs"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"

	"github.com/rulescan/rulescan/internal/config"
)

// Setup builds the process logger. Output goes to stderr and, when cfg.Dir is
// set, also to a time-rotated file.
func Setup(cfg config.LoggingConfig) (*logrus.Logger, error) {
	return SetupWithOutput(cfg, os.Stderr)
}

func SetupWithOutput(cfg config.LoggingConfig, w io.Writer) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(w)

	level, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(orDefault(cfg.Level, "info"))))
	if err != nil {
		return nil, fmt.Errorf("logging level: %w", err)
	}
	logger.SetLevel(level)

	switch cfg.Format {
	case config.FormatJSON:
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "", config.FormatText:
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	default:
		return nil, fmt.Errorf("logging format %q must be text|json", cfg.Format)
	}

	if cfg.Dir == "" {
		return logger, nil
	}

	hook, err := fileHook(cfg)
	if err != nil {
		return nil, err
	}
	logger.AddHook(hook)
	return logger, nil
}

func fileHook(cfg config.LoggingConfig) (logrus.Hook, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	name := filepath.Join(cfg.Dir, orDefault(cfg.Filename, config.DefaultLogFile))

	opts := []rotates.Option{
		rotates.WithMaxAge(orDuration(cfg.MaxAge, config.DefaultMaxAge)),
		rotates.WithRotationTime(orDuration(cfg.RotationTime, config.DefaultRotation)),
	}
	if runtime.GOOS != "windows" {
		opts = append(opts, rotates.WithLinkName(name))
	}
	writer, err := rotates.New(name+".%Y%m%d%H%M", opts...)
	if err != nil {
		return nil, fmt.Errorf("open rotated log: %w", err)
	}

	return lfshook.NewHook(lfshook.WriterMap{
		logrus.TraceLevel: writer,
		logrus.DebugLevel: writer,
		logrus.InfoLevel:  writer,
		logrus.WarnLevel:  writer,
		logrus.ErrorLevel: writer,
		logrus.FatalLevel: writer,
		logrus.PanicLevel: writer,
	}, &logrus.JSONFormatter{}), nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func orDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}
