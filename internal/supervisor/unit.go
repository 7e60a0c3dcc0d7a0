package supervisor

import (
	"errors"
	"fmt"
	"time"

	"github.com/loykin/pasys/internal/jackgraph"
	"github.com/loykin/pasys/internal/probe"
	"github.com/loykin/pasys/internal/process"
	"github.com/loykin/pasys/internal/reconciler"
)

// DefaultStopWait is how long Stop waits after SIGTERM before SIGKILL.
const DefaultStopWait = 3 * time.Second

// Unit is one supervised plugin: the process to launch plus everything that
// gates, decorates and maintains it.
type Unit struct {
	Process process.Spec

	// StopCommand replaces signalling for units whose start merely loads
	// something into another daemon (pactl load-module, amp_manager on).
	StopCommand string
	StopWait    time.Duration
	StartDelay  time.Duration
	// StartSecs is how long the process must stay up to count as started.
	StartSecs time.Duration

	Requires []probe.Gate
	Ready    *probe.Gate
	Hooks    Hooks
	Watchdog *Watchdog

	Autostart bool

	// Companion runs the watchdog out of process when the supervisor is not
	// resident, so the port reconciler outlives the launching CLI.
	Companion *Unit
}

// Watchdog declares the port connections kept alive while the unit runs.
type Watchdog struct {
	Interval time.Duration
	Verbose  bool
	Edges    []jackgraph.Edge
}

func (u *Unit) Name() string { return u.Process.Name }

func (u *Unit) Validate() error {
	if err := u.Process.Validate(); err != nil {
		return err
	}
	if u.StopWait < 0 || u.StartDelay < 0 || u.StartSecs < 0 {
		return fmt.Errorf("unit %s: durations must not be negative", u.Name())
	}
	for i, g := range u.Requires {
		if g.Check == nil {
			return fmt.Errorf("unit %s: requires[%d] has no check", u.Name(), i)
		}
	}
	if u.Ready != nil && u.Ready.Check == nil {
		return fmt.Errorf("unit %s: ready has no check", u.Name())
	}
	if err := u.Hooks.Validate(); err != nil {
		return fmt.Errorf("unit %s: %w", u.Name(), err)
	}
	if u.Watchdog != nil {
		if len(u.Watchdog.Edges) == 0 {
			return fmt.Errorf("unit %s: watchdog without edges", u.Name())
		}
		seen := make(map[[2]jackgraph.Endpoint]bool, len(u.Watchdog.Edges))
		for _, e := range u.Watchdog.Edges {
			k := [2]jackgraph.Endpoint{e.Src, e.Dst}
			if seen[k] {
				return fmt.Errorf("unit %s: %w: %s -> %s", u.Name(), reconciler.ErrDuplicateEdge, e.Src, e.Dst)
			}
			seen[k] = true
		}
	}
	if u.Companion != nil {
		if u.Companion.Companion != nil {
			return errors.New("companion units cannot have companions")
		}
		if err := u.Companion.Validate(); err != nil {
			return fmt.Errorf("unit %s companion: %w", u.Name(), err)
		}
	}
	return nil
}

func (u *Unit) stopWait() time.Duration {
	if u.StopWait > 0 {
		return u.StopWait
	}
	return DefaultStopWait
}
