//go:build !windows

package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/user"
	"strings"
	"syscall"
	"time"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// FindMatching lists PIDs whose command line contains pattern and that belong
// to owner. An empty owner means the current user; the search is never system
// wide. The calling process and its parent are excluded.
func FindMatching(ctx context.Context, pattern, owner string) ([]int, error) {
	if strings.TrimSpace(pattern) == "" {
		return nil, errors.New("empty match pattern")
	}
	if owner == "" {
		u, err := user.Current()
		if err != nil {
			return nil, fmt.Errorf("current user: %w", err)
		}
		owner = u.Username
	}
	procs, err := gopsproc.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	self, parent := os.Getpid(), os.Getppid()
	var pids []int
	for _, p := range procs {
		pid := int(p.Pid)
		if pid == self || pid == parent {
			continue
		}
		cl, err := p.CmdlineWithContext(ctx)
		if err != nil || !strings.Contains(cl, pattern) {
			continue
		}
		name, err := p.UsernameWithContext(ctx)
		if err != nil || name != owner {
			continue
		}
		pids = append(pids, pid)
	}
	return pids, nil
}

// StopMatching is the degraded stop path for processes this supervisor did
// not start: SIGTERM every match, wait, then SIGKILL the survivors. It returns
// the PIDs that were signalled.
func StopMatching(ctx context.Context, pattern, owner string, wait time.Duration) ([]int, error) {
	pids, err := FindMatching(ctx, pattern, owner)
	if err != nil || len(pids) == 0 {
		return nil, err
	}
	var errs []error
	for _, pid := range pids {
		if err := signalError(pid, syscall.Kill(pid, syscall.SIGTERM)); err != nil {
			errs = append(errs, err)
		}
	}
	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) && anyAlive(pids) {
		select {
		case <-ctx.Done():
			return pids, ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
	for _, pid := range pids {
		if pidAlive(pid) {
			if err := signalError(pid, syscall.Kill(pid, syscall.SIGKILL)); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return pids, errors.Join(errs...)
}

func anyAlive(pids []int) bool {
	for _, pid := range pids {
		if pidAlive(pid) {
			return true
		}
	}
	return false
}
