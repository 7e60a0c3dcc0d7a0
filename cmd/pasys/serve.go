package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/loykin/pasys/internal/logger"
	"github.com/loykin/pasys/internal/metrics"
	"github.com/loykin/pasys/internal/server"
	"github.com/loykin/pasys/internal/supervisor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// ServeFlags holds flags for the serve command.
type ServeFlags struct {
	Listen        string
	MetricsListen string
	LogFile       string
	NoAutostart   bool
}

func createServeCommand(c *command) *cobra.Command {
	flags := &ServeFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the resident supervisor daemon",
		Long: `Run pasys as a daemon: start the autostart units, keep their JACK
connections alive in-process, and serve the HTTP control API and /metrics.
On SIGINT or SIGTERM every unit is stopped.

Examples:
  pasys serve
  pasys serve --listen :9911 --log-file ~/.config/pasys/pasys.log`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Serve(cmd, *flags)
		},
	}
	cmd.Flags().StringVar(&flags.Listen, "listen", "", "API listen address (overrides api.listen)")
	cmd.Flags().StringVar(&flags.MetricsListen, "metrics-listen", "", "separate listen address for /metrics (overrides metrics.listen)")
	cmd.Flags().StringVar(&flags.LogFile, "log-file", "", "rotated daemon log file (overrides log.file)")
	cmd.Flags().BoolVar(&flags.NoAutostart, "no-autostart", false, "do not start autostart units")
	return cmd
}

func (c *command) Serve(cmd *cobra.Command, flags ServeFlags) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	lopts := cfg.LoggerOptions()
	if flags.LogFile != "" {
		lopts.File = flags.LogFile
	}
	if c.flags.LogLevel != "" {
		lopts.Level = c.flags.LogLevel
	}
	if c.flags.LogFormat != "" {
		lopts.Format = c.flags.LogFormat
	}
	closer, err := logger.Setup(lopts)
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	units, err := cfg.Units()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	sinks := c.openHistory(ctx, cfg)
	defer func() { _ = sinks.Close() }()

	opts := append(c.supervisorOptions(cfg, sinks), supervisor.Resident())
	g, err := supervisor.NewGroup(units, opts...)
	if err != nil {
		return err
	}

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return err
	}
	if err := prometheus.DefaultRegisterer.Register(metrics.NewResourceCollector(g.PIDs)); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return err
		}
	}

	if !flags.NoAutostart {
		if err := g.StartAutostart(ctx); err != nil {
			slog.Error("autostart", "err", err)
		}
	}

	listen := cfg.File.API.Listen
	if flags.Listen != "" {
		listen = flags.Listen
	}
	metricsListen := cfg.File.Metrics.Listen
	if flags.MetricsListen != "" {
		metricsListen = flags.MetricsListen
	}

	router := server.NewRouter(g, "")
	if r := sinks.Reader(); r != nil {
		router.WithHistory(r)
	}
	if metricsListen == "" {
		router.WithMetrics(metrics.Handler())
	} else {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		go func() {
			if err := server.Serve(ctx, server.NewServer(metricsListen, mux)); err != nil {
				slog.Error("metrics server", "listen", metricsListen, "err", err)
			}
		}()
	}

	slog.Info("pasys serving", "listen", listen, "units", len(units))
	serveErr := server.Serve(ctx, server.NewServer(listen, router.Handler()))

	// ctx is cancelled by now; stopping uses a fresh one
	if err := g.StopAll(context.Background()); err != nil {
		slog.Error("stop units", "err", err)
	}
	return serveErr
}
