package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/loykin/pasys/internal/process"
	"github.com/loykin/pasys/internal/supervisor"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// StatusFlags holds flags for the status command.
type StatusFlags struct {
	Output string
}

func createStatusCommand(c *command) *cobra.Command {
	flags := &StatusFlags{}
	cmd := &cobra.Command{
		Use:   "status [name]",
		Short: "Show unit status",
		Long: `Show whether units are running, found through the PID file written at
start or, failing that, through the unit's stop pattern.

Examples:
  pasys status
  pasys status librespot -o json`,
		Args: maxArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			switch flags.Output {
			case "table", "json", "yaml":
			default:
				return usageError{cmd: cmd, err: fmt.Errorf("unknown output format %q", flags.Output)}
			}
			return c.Status(name, *flags)
		},
	}
	cmd.Flags().StringVarP(&flags.Output, "output", "o", "table", "output format: table, json, yaml")
	return cmd
}

func (c *command) Status(name string, flags StatusFlags) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	units, err := cfg.Units()
	if err != nil {
		return err
	}
	g, err := supervisor.NewGroup(units, c.supervisorOptions(cfg, nil)...)
	if err != nil {
		return err
	}
	var sts []process.Status
	if name != "" {
		st, err := g.Status(name)
		if err != nil {
			return err
		}
		sts = []process.Status{st}
	} else {
		sts = g.StatusAll()
	}
	return writeStatuses(c.stdout, flags.Output, sts)
}

func writeStatuses(w io.Writer, format string, sts []process.Status) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(sts)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer func() { _ = enc.Close() }()
		return enc.Encode(sts)
	}
	now := time.Now()
	table := tablewriter.NewWriter(w)
	table.Header("UNIT", "STATE", "PID", "UPTIME", "DETECTED BY", "LOG")
	for _, st := range sts {
		state, pid, uptime := "stopped", "-", "-"
		if st.Running {
			state = "running"
			pid = strconv.Itoa(st.PID)
			if !st.StartedAt.IsZero() {
				uptime = st.Uptime(now).Truncate(time.Second).String()
			}
		}
		if err := table.Append(st.Name, state, pid, uptime, st.DetectedBy, st.LogPath); err != nil {
			return err
		}
	}
	return table.Render()
}
