package main

import (
	"fmt"
	"time"

	"github.com/loykin/pasys/internal/supervisor"
	"github.com/spf13/cobra"
)

// WatchdogFlags holds flags for the watchdog command.
type WatchdogFlags struct {
	Verbose  bool
	Interval time.Duration
}

func createWatchdogCommand(c *command) *cobra.Command {
	flags := &WatchdogFlags{}
	cmd := &cobra.Command{
		Use:   "watchdog <name>",
		Short: "Keep a unit's JACK connections in place until interrupted",
		Long: `Run the port reconciler of a unit in the foreground. Every interval it
checks each desired connection and connects or disconnects it when needed.
Stops on SIGINT or SIGTERM.

Examples:
  pasys watchdog librespot -v`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Watchdog(cmd, args[0], *flags)
		},
	}
	cmd.Flags().BoolVarP(&flags.Verbose, "verbose", "v", false, "log connections that are already in place")
	cmd.Flags().DurationVar(&flags.Interval, "interval", 0, "override the configured interval")
	return cmd
}

func (c *command) Watchdog(cmd *cobra.Command, name string, flags WatchdogFlags) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	u, err := cfg.Unit(name)
	if err != nil {
		return err
	}
	if u.Watchdog == nil {
		return fmt.Errorf("unit %q has no watchdog", name)
	}
	if flags.Verbose {
		u.Watchdog.Verbose = true
	}
	if flags.Interval > 0 {
		u.Watchdog.Interval = flags.Interval
	}
	if flags.Verbose && c.flags.LogLevel == "" {
		c.flags.LogLevel = "info"
		if err := c.setupLogging(); err != nil {
			return err
		}
	}
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()
	s, err := supervisor.New(u, append(c.supervisorOptions(cfg, nil), supervisor.Resident())...)
	if err != nil {
		return err
	}
	return s.RunWatchdog(ctx)
}
