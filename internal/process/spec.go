package process

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/loykin/pasys/internal/logger"
)

// Spec describes one externally managed OS process.
//
// Either Binary (with Args) or Command must be set. Binary wins when both are
// present; Command is split the shell-aware way (see CommandFromString).
type Spec struct {
	Name        string        `json:"name"`
	Binary      string        `json:"binary,omitempty"`
	Args        []string      `json:"args,omitempty"`
	Command     string        `json:"command,omitempty"`
	WorkDir     string        `json:"work_dir,omitempty"`
	Env         []string      `json:"env,omitempty"`
	Owner       string        `json:"owner,omitempty"`        // user owning the process; empty means the current user
	PIDFile     string        `json:"pid_file,omitempty"`     // written on start, read back by later invocations
	StopPattern string        `json:"stop_pattern,omitempty"` // command line substring for the degraded stop path
	Detached    bool          `json:"detached,omitempty"`     // new session so the child outlives the launcher
	Log         logger.Config `json:"log"`
}

// ErrNoCommand is returned by Validate when neither Binary nor Command is set.
var ErrNoCommand = errors.New("no binary or command")

func (s *Spec) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return errors.New("process name is required")
	}
	if strings.TrimSpace(s.Binary) == "" && strings.TrimSpace(s.Command) == "" {
		return fmt.Errorf("process %s: %w", s.Name, ErrNoCommand)
	}
	return nil
}

// Argv returns the argument vector that BuildCommand will execute.
func (s *Spec) Argv() []string {
	return s.BuildCommand().Args
}

// BuildCommand constructs the *exec.Cmd for this spec without starting it.
func (s *Spec) BuildCommand() *exec.Cmd {
	if b := strings.TrimSpace(s.Binary); b != "" {
		// #nosec G204
		return exec.Command(b, s.Args...)
	}
	return CommandFromString(s.Command)
}

// CommandFromString builds an *exec.Cmd from a command line.
// It avoids invoking a shell unless the string carries shell metacharacters,
// and it honors an explicit "sh -c '...'" prefix without double wrapping.
func CommandFromString(cmdStr string) *exec.Cmd {
	argv := commandArgv(cmdStr)
	// #nosec G204
	return exec.Command(argv[0], argv[1:]...)
}

// CommandFromStringContext is CommandFromString bound to ctx.
func CommandFromStringContext(ctx context.Context, cmdStr string) *exec.Cmd {
	argv := commandArgv(cmdStr)
	// #nosec G204
	return exec.CommandContext(ctx, argv[0], argv[1:]...)
}

func commandArgv(cmdStr string) []string {
	cmdStr = strings.TrimSpace(cmdStr)
	if cmdStr == "" {
		return []string{"/bin/true"}
	}
	if script, ok := parseExplicitShell(cmdStr); ok {
		return []string{"/bin/sh", "-c", script}
	}
	if strings.ContainsAny(cmdStr, "|&;<>*?`$\"'(){}[]~") {
		return []string{"/bin/sh", "-c", cmdStr}
	}
	return strings.Fields(cmdStr)
}

// parseExplicitShell detects "sh -c <ARG>" style prefixes and returns ARG with
// one pair of enclosing quotes removed.
func parseExplicitShell(cmdStr string) (string, bool) {
	trim := strings.TrimLeft(cmdStr, " \t")
	for _, p := range []string{"sh -c ", "/bin/sh -c ", "/usr/bin/sh -c "} {
		if !strings.HasPrefix(trim, p) {
			continue
		}
		after := trim[len(p):]
		if n := len(after); n >= 2 {
			if (after[0] == '\'' && after[n-1] == '\'') || (after[0] == '"' && after[n-1] == '"') {
				after = after[1 : n-1]
			}
		}
		return after, true
	}
	return "", false
}
