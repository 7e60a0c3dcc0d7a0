package process

import (
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"syscall"
	"time"
)

var (
	// ErrBinaryNotFound means the executable could not be resolved or does not exist.
	ErrBinaryNotFound = errors.New("binary not found")
	// ErrSpawnFailed covers every other failure to create the OS process.
	ErrSpawnFailed = errors.New("spawn failed")
	// ErrPermissionDenied is returned when a signal is refused with EPERM.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrExitedEarly is returned by EnforceStartDuration.
	ErrExitedEarly = errors.New("process exited before start duration")
)

func errBeforeStart(d time.Duration, exitErr error) error {
	if exitErr != nil {
		return fmt.Errorf("%w %s: %v", ErrExitedEarly, d, exitErr)
	}
	return fmt.Errorf("%w %s", ErrExitedEarly, d)
}

// classifyStartError maps an exec.Cmd.Start error onto the package sentinels.
func classifyStartError(name string, err error) error {
	switch {
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%s: %w: %v", name, ErrBinaryNotFound, err)
	default:
		return fmt.Errorf("%s: %w: %v", name, ErrSpawnFailed, err)
	}
}

// signalError maps a kill(2) error. ESRCH is not an error: the process is gone.
func signalError(pid int, err error) error {
	switch {
	case err == nil, errors.Is(err, syscall.ESRCH):
		return nil
	case errors.Is(err, syscall.EPERM):
		return fmt.Errorf("signal pid %d: %w", pid, ErrPermissionDenied)
	default:
		return fmt.Errorf("signal pid %d: %w", pid, err)
	}
}
