// Package probe waits for external conditions with bounded retries.
//
// A Check answers one question ("is port 9990 accepting connections", "does
// ~/.amplifier contain on"). WaitUntilReady asks it repeatedly until it says
// yes, the attempts run out, or the context is cancelled.
package probe

import (
	"context"
	"time"
)

// Check reports whether a condition currently holds. Implementations must be
// idempotent and free of side effects. An error counts as "not yet".
type Check interface {
	Ready(ctx context.Context) (bool, error)
	Describe() string
}

type funcCheck struct {
	desc string
	fn   func(ctx context.Context) (bool, error)
}

func (f funcCheck) Ready(ctx context.Context) (bool, error) { return f.fn(ctx) }
func (f funcCheck) Describe() string                        { return f.desc }

// FromFunc adapts a plain function to Check.
func FromFunc(desc string, fn func(ctx context.Context) (bool, error)) Check {
	return funcCheck{desc: desc, fn: fn}
}

// Result is produced fresh by every WaitUntilReady call.
type Result struct {
	Satisfied bool          `json:"satisfied"`
	Attempts  int           `json:"attempts"`
	Elapsed   time.Duration `json:"elapsed"`
	LastErr   error         `json:"-"`
}

// WaitUntilReady calls check at most maxAttempts times (at least once),
// sleeping interval between attempts that return false. It never sleeps after
// the final attempt. Cancelling ctx ends the wait early with Satisfied=false.
func WaitUntilReady(ctx context.Context, check Check, interval time.Duration, maxAttempts int) Result {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	start := time.Now()
	var res Result
	for res.Attempts < maxAttempts {
		if ctx.Err() != nil {
			break
		}
		res.Attempts++
		ok, err := check.Ready(ctx)
		if err != nil {
			res.LastErr = err
		}
		if ok && err == nil {
			res.Satisfied = true
			break
		}
		if res.Attempts == maxAttempts || interval <= 0 {
			continue
		}
		t := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			t.Stop()
		case <-t.C:
		}
	}
	res.Elapsed = time.Since(start)
	return res
}

// Gate is a configured wait: a check plus its retry budget.
type Gate struct {
	Name     string
	Check    Check
	Attempts int
	Interval time.Duration
}

func (g Gate) Wait(ctx context.Context) Result {
	return WaitUntilReady(ctx, g.Check, g.Interval, g.Attempts)
}

// Budget is the longest the gate can block, ignoring check latency.
func (g Gate) Budget() time.Duration {
	n := g.Attempts
	if n < 1 {
		n = 1
	}
	return time.Duration(n-1) * g.Interval
}
