package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// killGrace bounds the wait after SIGKILL.
const killGrace = 2 * time.Second

// Handle owns one OS process started from a Spec, or one recovered from a PID
// file written by an earlier invocation.
type Handle struct {
	spec Spec

	mu       sync.Mutex
	cmd      *exec.Cmd
	pid      int
	status   Status
	out      io.WriteCloser
	waitDone chan struct{} // closed when cmd.Wait returns; nil for recovered handles
}

func New(spec Spec) *Handle {
	return &Handle{spec: spec, status: Status{Name: spec.Name, LogPath: spec.Log.Path}}
}

// Recover returns a handle for the process recorded in spec.PIDFile, or nil
// when there is no such live process.
func Recover(spec Spec) *Handle {
	if spec.PIDFile == "" {
		return nil
	}
	alive, pid, err := PIDFileAlive(spec.PIDFile)
	if err != nil || !alive {
		return nil
	}
	h := New(spec)
	h.pid = pid
	h.status.Running = true
	h.status.PID = pid
	h.status.DetectedBy = "pidfile:" + spec.PIDFile
	if st := startTimeUnix(pid); st > 0 {
		h.status.StartedAt = time.Unix(st, 0)
	}
	return h
}

func (h *Handle) Spec() Spec { return h.spec }

// Start launches the process with env and the configured output redirection.
// It returns once the OS process exists; use Wait or Alive to observe it.
func (h *Handle) Start(env []string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pid != 0 {
		return fmt.Errorf("%s: %w: already started", h.spec.Name, ErrSpawnFailed)
	}
	cmd := h.spec.BuildCommand()
	if h.spec.WorkDir != "" {
		if fi, err := os.Stat(h.spec.WorkDir); err != nil || !fi.IsDir() {
			return fmt.Errorf("%s: %w: work dir %q unusable", h.spec.Name, ErrSpawnFailed, h.spec.WorkDir)
		}
		cmd.Dir = h.spec.WorkDir
	}
	if len(env) > 0 {
		cmd.Env = env
	}
	attrs, err := sysProcAttr(h.spec)
	if err != nil {
		return fmt.Errorf("%s: %w: %v", h.spec.Name, ErrSpawnFailed, err)
	}
	cmd.SysProcAttr = attrs

	out, err := h.spec.Log.Writer()
	if err != nil {
		return fmt.Errorf("%s: %w: %v", h.spec.Name, ErrSpawnFailed, err)
	}
	if out != nil {
		cmd.Stdout = out
		cmd.Stderr = out
	}
	if err := cmd.Start(); err != nil {
		if out != nil {
			_ = out.Close()
		}
		return classifyStartError(h.spec.Name, err)
	}
	// A plain file was handed to the child as a descriptor; our copy is no
	// longer needed. Other writers are fed by os/exec until Wait returns.
	if f, ok := out.(*os.File); ok {
		_ = f.Close()
		out = nil
	}

	h.cmd = cmd
	h.out = out
	h.pid = cmd.Process.Pid
	h.waitDone = make(chan struct{})
	h.status = Status{
		Name:       h.spec.Name,
		Running:    true,
		PID:        h.pid,
		StartedAt:  time.Now(),
		DetectedBy: "exec:pid",
		LogPath:    h.spec.Log.Path,
	}
	if h.spec.PIDFile != "" {
		if err := WritePIDFile(h.spec.PIDFile, h.pid, h.spec); err != nil {
			h.status.DetectedBy = "exec:pid (pidfile: " + err.Error() + ")"
		}
	}
	go h.wait(cmd, h.waitDone)
	return nil
}

func (h *Handle) wait(cmd *exec.Cmd, done chan struct{}) {
	err := cmd.Wait()
	h.mu.Lock()
	h.status.Running = false
	h.status.StoppedAt = time.Now()
	if err != nil {
		h.status.ExitErr = err.Error()
	}
	if h.out != nil {
		_ = h.out.Close()
		h.out = nil
	}
	h.mu.Unlock()
	close(done)
}

func (h *Handle) PID() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pid
}

// Exited returns a channel closed when an owned process exits. It is nil for
// handles that were recovered from a PID file.
func (h *Handle) Exited() <-chan struct{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.waitDone
}

// Alive probes liveness. Owned processes are observed through their wait
// goroutine; recovered ones through the PID file start-time guard.
func (h *Handle) Alive() bool {
	h.mu.Lock()
	pid, done, pidFile := h.pid, h.waitDone, h.spec.PIDFile
	h.mu.Unlock()
	if pid == 0 {
		return false
	}
	if done != nil {
		select {
		case <-done:
			return false
		default:
			return true
		}
	}
	if pidFile != "" {
		ok, filePID, err := PIDFileAlive(pidFile)
		if err == nil && filePID == pid {
			return ok
		}
	}
	return pidAlive(pid)
}

// Wait blocks until the process exits or ctx is done.
func (h *Handle) Wait(ctx context.Context) error {
	if done := h.Exited(); done != nil {
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	t := time.NewTicker(50 * time.Millisecond)
	defer t.Stop()
	for h.Alive() {
		select {
		case <-t.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// EnforceStartDuration requires the process to stay up for d.
func (h *Handle) EnforceStartDuration(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	wctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	_ = h.Wait(wctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if !h.Alive() {
		var exitErr error
		if msg := h.Snapshot().ExitErr; msg != "" {
			exitErr = errors.New(msg)
		}
		return errBeforeStart(d, exitErr)
	}
	return nil
}

// Stop sends SIGTERM to the process group, waits up to wait, then escalates
// to SIGKILL. Stopping a process that is not running is a no-op.
func (h *Handle) Stop(wait time.Duration) error {
	pid := h.PID()
	if !h.Alive() {
		h.removePIDFile()
		return nil
	}
	if err := signalGroup(pid, syscall.SIGTERM); err != nil {
		return err
	}
	if !h.waitGone(wait) {
		if err := signalGroup(pid, syscall.SIGKILL); err != nil {
			return err
		}
		if !h.waitGone(killGrace) {
			return fmt.Errorf("%s: pid %d survived SIGKILL", h.spec.Name, pid)
		}
	}
	h.mu.Lock()
	if h.waitDone == nil {
		h.status.Running = false
		h.status.StoppedAt = time.Now()
	}
	h.mu.Unlock()
	h.removePIDFile()
	return nil
}

func (h *Handle) waitGone(d time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return h.Wait(ctx) == nil
}

func (h *Handle) removePIDFile() {
	if h.spec.PIDFile != "" {
		_ = os.Remove(h.spec.PIDFile)
	}
}

// Snapshot returns a copy of the current status.
func (h *Handle) Snapshot() Status {
	h.mu.Lock()
	s := h.status
	h.mu.Unlock()
	if s.Running && !h.Alive() {
		s.Running = false
	}
	return s
}
