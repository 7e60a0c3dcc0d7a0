package main

import (
	"fmt"
	"time"

	"github.com/loykin/pasys/internal/probe"
	"github.com/spf13/cobra"
)

func createProbeCommand(c *command) *cobra.Command {
	spec := &probe.Spec{}
	cmd := &cobra.Command{
		Use:   "probe <tcp|file|pidfile|process|command|mpd>",
		Short: "Wait for one readiness condition",
		Long: `Poll one readiness condition and exit 0 once it holds, 1 when the
attempts run out.

Examples:
  pasys probe tcp --address localhost:9990 --attempts 60
  pasys probe file --path ~/.config/pe.audio.sys/.state --value on --mode contains
  pasys probe mpd --address localhost:6600`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec.Type = args[0]
			return c.Probe(cmd, *spec)
		},
	}
	f := cmd.Flags()
	f.StringVar(&spec.Address, "address", "", "host:port (tcp, mpd) or unix socket path (mpd)")
	f.StringVar(&spec.Path, "path", "", "file path (file, pidfile)")
	f.StringVar(&spec.Value, "value", "", "expected file content (file)")
	f.StringVar(&spec.Mode, "mode", "", "equals or contains (file)")
	f.StringVar(&spec.Pattern, "pattern", "", "command line substring (process)")
	f.StringVar(&spec.User, "user", "", "process owner (process)")
	f.StringVar(&spec.Command, "command", "", "command that must exit 0 (command)")
	f.StringVar(&spec.Password, "password", "", "password (mpd)")
	f.IntVar(&spec.Attempts, "attempts", probe.DefaultAttempts, "number of attempts")
	f.DurationVar(&spec.Interval, "interval", probe.DefaultInterval, "pause between attempts")
	return cmd
}

func (c *command) Probe(cmd *cobra.Command, spec probe.Spec) error {
	g, err := spec.Gate()
	if err != nil {
		return usageError{cmd: cmd, err: err}
	}
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()
	res := g.Wait(ctx)
	if !res.Satisfied {
		if res.LastErr != nil {
			return fmt.Errorf("%s not ready after %d attempts: %w", g.Name, res.Attempts, res.LastErr)
		}
		return fmt.Errorf("%s not ready after %d attempts", g.Name, res.Attempts)
	}
	_, _ = fmt.Fprintf(c.stdout, "%s ready after %d attempt(s) in %s\n", g.Name, res.Attempts, res.Elapsed.Round(time.Millisecond))
	return nil
}
