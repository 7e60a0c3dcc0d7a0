// Package supervisor drives one unit through its lifecycle: dependency
// probes, hooks, launch, post-spawn verification and the port watchdog.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loykin/pasys/internal/env"
	"github.com/loykin/pasys/internal/history"
	"github.com/loykin/pasys/internal/jackgraph"
	"github.com/loykin/pasys/internal/metrics"
	"github.com/loykin/pasys/internal/probe"
	"github.com/loykin/pasys/internal/process"
	"github.com/loykin/pasys/internal/reconciler"
)

const (
	historyTimeout = 5 * time.Second
	statusTimeout  = 2 * time.Second
)

type Option func(*Supervisor)

// WithEnv sets the environment units are launched with.
func WithEnv(e env.Env) Option { return func(s *Supervisor) { s.env = e } }

// WithGraph sets the audio graph used by watchdogs.
func WithGraph(g jackgraph.Graph) Option { return func(s *Supervisor) { s.graph = g } }

// Resident marks the supervisor as living in a long-running daemon: the
// reconciler runs in-process and children stay in the daemon's session.
func Resident() Option { return func(s *Supervisor) { s.resident = true } }

func WithHistory(sink history.Sink) Option { return func(s *Supervisor) { s.sink = sink } }

func WithLogger(l *slog.Logger) Option { return func(s *Supervisor) { s.log = l } }

// Supervisor owns one unit. Start and Stop are serialized; Stop cancels an
// in-flight Start first.
type Supervisor struct {
	unit     Unit
	env      env.Env
	graph    jackgraph.Graph
	resident bool
	sink     history.Sink
	log      *slog.Logger

	companion *Supervisor

	opMu sync.Mutex

	mu          sync.Mutex
	handle      *process.Handle
	startCancel context.CancelFunc
	reconCancel context.CancelFunc
	reconDone   chan struct{}
}

func New(u Unit, opts ...Option) (*Supervisor, error) {
	if err := u.Validate(); err != nil {
		return nil, err
	}
	s := &Supervisor{unit: u, env: env.New()}
	for _, o := range opts {
		o(s)
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	s.log = s.log.With("unit", u.Name())
	if !s.resident {
		// the CLI exits right after launching
		s.unit.Process.Detached = true
		if u.Companion != nil {
			c, err := New(*u.Companion, opts...)
			if err != nil {
				return nil, err
			}
			s.companion = c
		}
	}
	return s, nil
}

func (s *Supervisor) Name() string { return s.unit.Name() }

func (s *Supervisor) Unit() Unit { return s.unit }

// Start launches exactly one new process for the unit, stopping any running
// instance first. On error nothing is left running.
func (s *Supervisor) Start(ctx context.Context) (*process.Handle, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.startCancel = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.startCancel = nil
		s.mu.Unlock()
		cancel()
	}()

	h, err := s.start(ctx)
	if err != nil {
		metrics.IncStartFailure(s.Name(), failureReason(err))
		s.record(history.EventStartFailed, h, err)
		return nil, err
	}
	metrics.IncStart(s.Name())
	metrics.SetRunning(s.Name(), true)
	s.record(history.EventStart, h, nil)
	return h, nil
}

func (s *Supervisor) start(ctx context.Context) (*process.Handle, error) {
	s.stopReconciler()
	if _, err := s.stopProcess(ctx); err != nil {
		return nil, fmt.Errorf("%s: stop previous instance: %w", s.Name(), err)
	}
	for _, g := range s.unit.Requires {
		if err := s.await(ctx, g); err != nil {
			return nil, err
		}
	}
	menv := s.env.Merge(s.unit.Process.Env)
	if err := runHooks(ctx, s.log, "pre_start", s.unit.Hooks.PreStart, menv); err != nil {
		return nil, fmt.Errorf("%s: %w", s.Name(), err)
	}
	if d := s.unit.StartDelay; d > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(d):
		}
	}

	h := process.New(s.unit.Process)
	if err := h.Start(menv); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.handle = h
	s.mu.Unlock()
	s.log.Info("process started", "pid", h.PID(), "log", s.unit.Process.Log.Path)

	if err := s.verify(ctx, h); err != nil {
		if stopErr := h.Stop(s.unit.stopWait()); stopErr != nil {
			s.log.Warn("stop after failed start", "err", stopErr)
		}
		return h, err
	}
	if err := runHooks(ctx, s.log, "post_start", s.unit.Hooks.PostStart, menv); err != nil {
		if stopErr := h.Stop(s.unit.stopWait()); stopErr != nil {
			s.log.Warn("stop after failed hook", "err", stopErr)
		}
		return h, fmt.Errorf("%s: %w", s.Name(), err)
	}

	switch {
	case s.unit.Watchdog != nil && s.resident:
		if err := s.startReconciler(); err != nil {
			s.log.Warn("watchdog not started", "err", err)
		}
	case s.companion != nil:
		if _, err := s.companion.Start(ctx); err != nil {
			s.log.Warn("watchdog companion not started", "err", err)
		}
	}
	return h, nil
}

func (s *Supervisor) verify(ctx context.Context, h *process.Handle) error {
	if err := h.EnforceStartDuration(ctx, s.unit.StartSecs); err != nil {
		return fmt.Errorf("%s: %w", s.Name(), err)
	}
	if s.unit.Ready != nil {
		return s.await(ctx, *s.unit.Ready)
	}
	return nil
}

// await runs a gate. Cancellation wins over exhaustion.
func (s *Supervisor) await(ctx context.Context, g probe.Gate) error {
	label := g.Name
	if label == "" {
		label = g.Check.Describe()
	}
	res := g.Wait(ctx)
	metrics.ObserveProbe(s.Name(), label, res.Attempts, res.Satisfied)
	if err := ctx.Err(); err != nil {
		return err
	}
	if !res.Satisfied {
		s.log.Warn("not ready", "probe", label, "attempts", res.Attempts, "elapsed", res.Elapsed, "err", res.LastErr)
		return fmt.Errorf("%s: %w: %s after %d attempts", s.Name(), ErrReadinessTimeout, label, res.Attempts)
	}
	s.log.Debug("ready", "probe", label, "attempts", res.Attempts)
	return nil
}

// Stop stops the unit. With nothing running it returns nil and does nothing,
// except for units with a stop command, which always run it.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.startCancel != nil {
		s.startCancel()
	}
	s.mu.Unlock()

	s.opMu.Lock()
	defer s.opMu.Unlock()

	var errs []error
	if s.companion != nil {
		if err := s.companion.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	s.stopReconciler()

	h := s.liveHandle()
	var matched []int
	if p := s.unit.Process.StopPattern; p != "" {
		pids, err := process.FindMatching(ctx, p, s.unit.Process.Owner)
		if err != nil {
			errs = append(errs, err)
		}
		matched = pids
	}
	if h == nil && len(matched) == 0 && s.unit.StopCommand == "" {
		return errors.Join(errs...)
	}

	menv := s.env.Merge(s.unit.Process.Env)
	if err := runHooks(ctx, s.log, "pre_stop", s.unit.Hooks.PreStop, menv); err != nil {
		s.log.Warn("pre_stop", "err", err)
	}
	if c := s.unit.StopCommand; c != "" {
		if err := runHook(ctx, Hook{Name: "stop_command", Command: c, WorkDir: s.unit.Process.WorkDir}, menv); err != nil {
			errs = append(errs, fmt.Errorf("%s: stop command: %w", s.Name(), err))
		}
	}
	if _, err := s.stopProcess(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := runHooks(ctx, s.log, "post_stop", s.unit.Hooks.PostStop, menv); err != nil {
		s.log.Warn("post_stop", "err", err)
	}

	metrics.IncStop(s.Name())
	metrics.SetRunning(s.Name(), false)
	s.record(history.EventStop, h, nil)
	s.log.Info("stopped")
	return errors.Join(errs...)
}

// stopProcess signals the owned handle and then anything matching the stop
// pattern. It reports whether anything was running.
func (s *Supervisor) stopProcess(ctx context.Context) (bool, error) {
	var errs []error
	stopped := false
	wait := s.unit.stopWait()
	if h := s.liveHandle(); h != nil {
		stopped = true
		if err := h.Stop(wait); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	if p := s.unit.Process.StopPattern; p != "" {
		pids, err := process.StopMatching(ctx, p, s.unit.Process.Owner, wait)
		if len(pids) > 0 {
			stopped = true
			s.log.Info("stopped by pattern", "pattern", p, "pids", pids)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return stopped, errors.Join(errs...)
}

// liveHandle returns the in-memory handle if it is alive, else one recovered
// from the PID file, else nil.
func (s *Supervisor) liveHandle() *process.Handle {
	s.mu.Lock()
	h := s.handle
	s.mu.Unlock()
	if h != nil && h.Alive() {
		return h
	}
	if r := process.Recover(s.unit.Process); r != nil {
		return r
	}
	return nil
}

// Status reports the unit state: the owned handle first, then the PID file,
// then the stop pattern.
func (s *Supervisor) Status() process.Status {
	s.mu.Lock()
	h := s.handle
	s.mu.Unlock()
	if h != nil {
		if st := h.Snapshot(); st.Running {
			return st
		}
	}
	if r := process.Recover(s.unit.Process); r != nil {
		return r.Snapshot()
	}
	st := process.Status{Name: s.Name(), LogPath: s.unit.Process.Log.Path}
	if h != nil {
		st = h.Snapshot()
	}
	if p := s.unit.Process.StopPattern; p != "" {
		ctx, cancel := context.WithTimeout(context.Background(), statusTimeout)
		defer cancel()
		if pids, err := process.FindMatching(ctx, p, s.unit.Process.Owner); err == nil && len(pids) > 0 {
			st.Running = true
			st.PID = pids[0]
			st.DetectedBy = "pattern:" + p
		}
	}
	return st
}

func (s *Supervisor) newReconciler() (*reconciler.Reconciler, error) {
	w := s.unit.Watchdog
	if w == nil {
		return nil, fmt.Errorf("unit %s has no watchdog", s.Name())
	}
	if s.graph == nil {
		return nil, fmt.Errorf("unit %s: %w: no graph configured", s.Name(), jackgraph.ErrGraphUnavailable)
	}
	return reconciler.New(s.Name(), s.graph, w.Edges, reconciler.Options{
		Interval: w.Interval,
		Verbose:  w.Verbose,
		Logger:   s.log,
	})
}

func (s *Supervisor) startReconciler() error {
	r, err := s.newReconciler()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.mu.Lock()
	s.reconCancel = cancel
	s.reconDone = done
	s.mu.Unlock()
	go func() {
		defer close(done)
		r.Run(ctx)
	}()
	return nil
}

func (s *Supervisor) stopReconciler() {
	s.mu.Lock()
	cancel, done := s.reconCancel, s.reconDone
	s.reconCancel, s.reconDone = nil, nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

// RunWatchdog runs the unit's reconciler in the foreground until ctx is done.
func (s *Supervisor) RunWatchdog(ctx context.Context) error {
	r, err := s.newReconciler()
	if err != nil {
		return err
	}
	s.log.Info("watchdog running", "edges", len(r.Edges()), "interval", r.Interval())
	r.Run(ctx)
	return nil
}

// PID returns the PID of the running process, or 0.
func (s *Supervisor) PID() int {
	if st := s.Status(); st.Running {
		return st.PID
	}
	return 0
}

func (s *Supervisor) record(t history.EventType, h *process.Handle, cause error) {
	if s.sink == nil {
		return
	}
	rec := history.Record{Unit: s.Name()}
	if h != nil {
		st := h.Snapshot()
		rec.PID = st.PID
		rec.StartedAt = st.StartedAt
		rec.StoppedAt = st.StoppedAt
		rec.ExitErr = st.ExitErr
	}
	if cause != nil {
		rec.Detail = cause.Error()
	}
	ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
	defer cancel()
	evt := history.Event{Type: t, OccurredAt: time.Now().UTC(), Record: rec}
	if err := s.sink.Send(ctx, evt); err != nil {
		s.log.Warn("history", "event", t, "err", err)
	}
}
