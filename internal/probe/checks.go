package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/loykin/pasys/internal/process"
)

const defaultDialTimeout = 500 * time.Millisecond

// TCPPort is ready when Address accepts a TCP connection.
type TCPPort struct {
	Address string
	Timeout time.Duration
}

func (c TCPPort) Ready(ctx context.Context) (bool, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", c.Address)
	if err != nil {
		return false, err
	}
	_ = conn.Close()
	return true, nil
}

func (c TCPPort) Describe() string { return "tcp:" + c.Address }

// Match modes for FileContent.
const (
	ModeEquals   = "equals"
	ModeContains = "contains"
)

// FileContent is ready when the file at Path holds Value. Equals compares the
// trimmed content; contains looks for a substring. A missing file is not an
// error, only "not yet".
type FileContent struct {
	Path  string
	Value string
	Mode  string
}

func (c FileContent) Ready(context.Context) (bool, error) {
	// #nosec G304 -- path comes from the unit configuration
	b, err := os.ReadFile(c.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	switch c.Mode {
	case "", ModeEquals:
		return strings.TrimSpace(string(b)) == strings.TrimSpace(c.Value), nil
	case ModeContains:
		return strings.Contains(string(b), c.Value), nil
	default:
		return false, fmt.Errorf("unknown file match mode %q", c.Mode)
	}
}

func (c FileContent) Describe() string {
	mode := c.Mode
	if mode == "" {
		mode = ModeEquals
	}
	return fmt.Sprintf("file:%s %s %q", c.Path, mode, c.Value)
}

// PIDFile is ready when the process recorded in Path is alive and was not
// replaced by an unrelated process reusing the PID.
type PIDFile struct{ Path string }

func (c PIDFile) Ready(context.Context) (bool, error) {
	alive, _, err := process.PIDFileAlive(c.Path)
	return alive, err
}

func (c PIDFile) Describe() string { return "pidfile:" + c.Path }

// ProcessMatch is ready when a process of User (empty: current user) has a
// command line containing Pattern.
type ProcessMatch struct {
	Pattern string
	User    string
}

func (c ProcessMatch) Ready(ctx context.Context) (bool, error) {
	pids, err := process.FindMatching(ctx, c.Pattern, c.User)
	if err != nil {
		return false, err
	}
	return len(pids) > 0, nil
}

func (c ProcessMatch) Describe() string { return "process:" + c.Pattern }

// Command is ready when the command line exits 0. A non-zero exit is "not
// yet"; failing to run the command at all is an error.
type Command struct{ Command string }

func (c Command) Ready(ctx context.Context) (bool, error) {
	err := process.CommandFromStringContext(ctx, c.Command).Run()
	if err == nil {
		return true, nil
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return false, nil
	}
	return false, err
}

func (c Command) Describe() string { return "cmd:" + c.Command }
