package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/loykin/pasys/internal/config"
	"github.com/loykin/pasys/internal/history"
	"github.com/loykin/pasys/internal/history/factory"
	"github.com/loykin/pasys/internal/logger"
	"github.com/loykin/pasys/internal/supervisor"
)

// command carries what every subcommand needs.
type command struct {
	flags  *GlobalFlags
	stdout io.Writer
	stderr io.Writer

	logCloser io.Closer
}

// setupLogging installs the CLI logger on stderr. serve replaces it with the
// configured daemon logger.
func (c *command) setupLogging() error {
	opts := logger.Options{Level: c.flags.LogLevel, Format: c.flags.LogFormat}
	if opts.Level == "" {
		opts.Level = "warn"
	}
	closer, err := logger.Setup(opts)
	if err != nil {
		return err
	}
	c.logCloser = closer
	return nil
}

func (c *command) loadConfig() (*config.Config, error) {
	return config.Load(c.flags.ConfigPath)
}

// openHistory opens the configured history sinks. Failures are logged and
// history is disabled; they never block unit control.
func (c *command) openHistory(ctx context.Context, cfg *config.Config) history.Multi {
	if len(cfg.File.History) == 0 {
		return nil
	}
	sinks, err := factory.NewSinks(ctx, cfg.File.History)
	if err != nil {
		slog.Warn("history disabled", "err", err)
		return nil
	}
	return sinks
}

// supervisorOptions wires a unit to the configured environment, graph and
// history.
func (c *command) supervisorOptions(cfg *config.Config, sinks history.Multi) []supervisor.Option {
	opts := []supervisor.Option{
		supervisor.WithEnv(cfg.Env()),
		supervisor.WithGraph(cfg.Graph()),
		supervisor.WithLogger(slog.Default()),
	}
	if len(sinks) > 0 {
		opts = append(opts, supervisor.WithHistory(sinks))
	}
	return opts
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
