package main

import (
	"errors"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func createHistoryCommand(c *command) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <name>",
		Short: "Show recent lifecycle events of a unit",
		Long: `Read recent start, stop and failed-start events of a unit back from the
first readable history sink (sqlite or postgres).

Examples:
  pasys history librespot --limit 5`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.History(cmd, args[0], limit)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of events")
	return cmd
}

func (c *command) History(cmd *cobra.Command, name string, limit int) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	if _, err := cfg.Unit(name); err != nil {
		return err
	}
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()
	sinks := c.openHistory(ctx, cfg)
	defer func() { _ = sinks.Close() }()
	r := sinks.Reader()
	if r == nil {
		return errors.New("no readable history sink configured")
	}
	events, err := r.Recent(ctx, name, limit)
	if err != nil {
		return err
	}
	table := tablewriter.NewWriter(c.stdout)
	table.Header("TIME", "EVENT", "PID", "DETAIL")
	for _, e := range events {
		detail := e.Record.Detail
		if detail == "" {
			detail = e.Record.ExitErr
		}
		if err := table.Append(e.OccurredAt.Local().Format(time.DateTime), string(e.Type), e.Record.PID, detail); err != nil {
			return err
		}
	}
	return table.Render()
}
