package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/rulescan/rulescan/internal/logging"
	"github.com/rulescan/rulescan/internal/observability"
	"github.com/rulescan/rulescan/internal/proxy"
	"github.com/rulescan/rulescan/internal/rules"
)

func newProxyCmd(opts *globalOptions) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "proxy",
		Short: "Run the capturing reverse proxy and scan every exchange",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.configPath == "" {
				return errors.New("config path is required")
			}
			env, err := opts.env()
			if err != nil {
				return err
			}
			if listen != "" {
				env.cfg.Proxy.Listen = listen
			}
			if len(env.cfg.Proxy.Routes) == 0 {
				return errors.New("proxy.routes is empty")
			}
			return runProxy(cmd.Context(), env)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Override proxy.listen")

	return cmd
}

func runProxy(ctx context.Context, env *env) error {
	cfg := env.cfg

	var metrics *observability.Metrics
	var reg *prometheus.Registry
	if cfg.Metrics.Enabled {
		reg = prometheus.NewRegistry()
		metrics = observability.NewMetrics(reg)
	}

	scanners := make(map[string]proxy.Scanner)
	for _, project := range cfg.Projects() {
		var extra []rules.Option
		if metrics != nil {
			extra = append(extra, rules.WithObserver(metrics.Project(project)))
		}
		c, err := env.composer(project, extra...)
		if err != nil {
			return err
		}
		env.log.WithField("project", project).WithField("rules", len(c.Rules())).Info("rules loaded")
		scanners[project] = c
	}

	px, err := proxy.New(cfg.Proxy, scanners)
	if err != nil {
		return err
	}
	px.SetLogger(env.log)
	px.SetMetrics(metrics)

	if cfg.Findings.Log != "" {
		logger, closer, err := logging.OpenFindingLog(cfg.ResolvePath(cfg.Findings.Log))
		if err != nil {
			return err
		}
		defer func() { _ = closer() }()
		px.SetFindingLogger(logger)
	}

	metricsSrv := startMetricsServer(cfg.Metrics.Listen, metrics, reg)
	defer func() {
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(context.Background())
		}
	}()

	srv := &http.Server{
		Addr:              cfg.Proxy.Listen,
		Handler:           px,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.ListenAndServe()
	}()
	env.log.WithField("listen", cfg.Proxy.Listen).Info("proxy started")

	signalCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-signalCtx.Done():
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func startMetricsServer(listen string, metrics *observability.Metrics, reg *prometheus.Registry) *http.Server {
	if metrics == nil {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))

	srv := &http.Server{Addr: listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		_ = srv.ListenAndServe()
	}()
	return srv
}
