package main

import (
	"fmt"

	"github.com/loykin/pasys/internal/supervisor"
	"github.com/loykin/pasys/pkg/client"
	"github.com/spf13/cobra"
)

// UnitFlags holds flags for the unit command.
type UnitFlags struct {
	Remote string
}

func createUnitCommand(c *command) *cobra.Command {
	flags := &UnitFlags{}
	cmd := &cobra.Command{
		Use:   "unit <name> <start|stop>",
		Short: "Start or stop one unit",
		Long: `Start or stop one configured unit.

Verbs: start, on, load (start) and stop, off, unload (stop).
Start stops any running instance first, waits for the unit's dependencies
and exits 1 when the unit does not come up.

Examples:
  pasys unit librespot start
  pasys unit amp off
  pasys unit librespot on --remote http://127.0.0.1:9911`,
		Args: exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := supervisor.ParseVerb(args[1])
			if err != nil {
				return usageError{cmd: cmd, err: err}
			}
			if flags.Remote != "" {
				return c.RemoteUnit(cmd, flags.Remote, args[0], v)
			}
			return c.Unit(cmd, args[0], v)
		},
	}
	cmd.Flags().StringVar(&flags.Remote, "remote", "", "send the verb to a resident daemon at this URL instead")
	return cmd
}

// RemoteUnit forwards v to the control API of a running `pasys serve`.
func (c *command) RemoteUnit(cmd *cobra.Command, base, name string, v supervisor.Verb) error {
	cl, err := client.New(client.Config{BaseURL: base})
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()
	resp, err := cl.Do(ctx, name, v.String())
	if err != nil {
		return err
	}
	if v == supervisor.VerbStart {
		_, _ = fmt.Fprintf(c.stdout, "%s started (pid %d)\n", name, resp.Status.PID)
	} else {
		_, _ = fmt.Fprintf(c.stdout, "%s stopped\n", name)
	}
	return nil
}

// Unit applies v to the named unit and reports the outcome on stdout.
func (c *command) Unit(cmd *cobra.Command, name string, v supervisor.Verb) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	u, err := cfg.Unit(name)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()
	sinks := c.openHistory(ctx, cfg)
	defer func() { _ = sinks.Close() }()

	s, err := supervisor.New(u, c.supervisorOptions(cfg, sinks)...)
	if err != nil {
		return err
	}
	switch v {
	case supervisor.VerbStart:
		h, err := s.Start(ctx)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(c.stdout, "%s started (pid %d)\n", name, h.PID())
	case supervisor.VerbStop:
		if err := s.Stop(ctx); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(c.stdout, "%s stopped\n", name)
	default:
		return s.Do(ctx, v)
	}
	return nil
}
