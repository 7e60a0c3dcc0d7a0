package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// GlobalFlags holds the persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
	LogLevel   string
	LogFormat  string
}

// usageError marks a command line the user got wrong. It exits 2.
type usageError struct {
	cmd *cobra.Command
	err error
}

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

// run executes the CLI and returns the process exit code: 0 on success, 2 on
// usage errors, 1 on every other failure.
func run(args []string, stdout, stderr io.Writer) int {
	root := buildRoot(stdout, stderr)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.Execute()
	if err == nil {
		return 0
	}
	_, _ = fmt.Fprintf(stderr, "error: %v\n", err)
	var ue usageError
	if errors.As(err, &ue) {
		if ue.cmd != nil {
			_, _ = fmt.Fprint(stderr, ue.cmd.UsageString())
		}
		return 2
	}
	if strings.HasPrefix(err.Error(), "unknown command") {
		return 2
	}
	return 1
}

func buildRoot(stdout, stderr io.Writer) *cobra.Command {
	flags := &GlobalFlags{}
	c := &command{flags: flags, stdout: stdout, stderr: stderr}

	root := createRootCommand(c, flags)
	root.AddCommand(
		createUnitCommand(c),
		createWatchdogCommand(c),
		createStatusCommand(c),
		createProbeCommand(c),
		createServeCommand(c),
		createHistoryCommand(c),
	)
	return root
}

func createRootCommand(c *command, flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "pasys",
		Short: "Plugin supervisor for the multi-room audio system",
		Long: `pasys starts and stops the audio plugins declared in one configuration
file, waits for their dependencies, and keeps their JACK connections alive.

Examples:
  pasys unit librespot start
  pasys unit jack_sink unload
  pasys watchdog librespot -v
  pasys status -o yaml
  pasys probe tcp --address localhost:9990 --attempts 60
  pasys serve`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setupLogging()
		},
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to the configuration file (default ~/.config/pasys/pasys.yaml)")
	root.PersistentFlags().StringVar(&flags.LogLevel, "log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&flags.LogFormat, "log-format", "", "log format: color, text, json")
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError{cmd: cmd, err: err}
	})
	return root
}

// exactArgs is cobra.ExactArgs reporting a usage error.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return usageError{cmd: cmd, err: fmt.Errorf("%s expects %d argument(s), got %d", cmd.Name(), n, len(args))}
		}
		return nil
	}
}

func maxArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) > n {
			return usageError{cmd: cmd, err: fmt.Errorf("%s accepts at most %d argument(s), got %d", cmd.Name(), n, len(args))}
		}
		return nil
	}
}
