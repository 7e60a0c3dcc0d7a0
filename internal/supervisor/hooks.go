package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/loykin/pasys/internal/process"
)

// Hooks are commands run around the unit lifecycle, e.g. switching the
// default sink after loading the JACK sink module, or disabling a systemd
// user unit that would race with ours.
type Hooks struct {
	PreStart  []Hook `json:"pre_start,omitempty" mapstructure:"pre_start"`
	PostStart []Hook `json:"post_start,omitempty" mapstructure:"post_start"`
	PreStop   []Hook `json:"pre_stop,omitempty" mapstructure:"pre_stop"`
	PostStop  []Hook `json:"post_stop,omitempty" mapstructure:"post_stop"`
}

type Hook struct {
	Name        string        `json:"name" mapstructure:"name"`
	Command     string        `json:"command" mapstructure:"command"`
	WorkDir     string        `json:"work_dir,omitempty" mapstructure:"work_dir"`
	Env         []string      `json:"env,omitempty" mapstructure:"env"`
	Timeout     time.Duration `json:"timeout,omitempty" mapstructure:"timeout"`
	FailureMode FailureMode   `json:"failure_mode,omitempty" mapstructure:"failure_mode"`
	RunMode     RunMode       `json:"run_mode,omitempty" mapstructure:"run_mode"`
}

// FailureMode defines how to handle hook execution failures
type FailureMode string

const (
	FailureModeIgnore FailureMode = "ignore" // log and continue
	FailureModeFail   FailureMode = "fail"   // abort the operation
	FailureModeRetry  FailureMode = "retry"  // retry, then abort
)

// RunMode defines how hooks are executed
type RunMode string

const (
	RunModeBlocking RunMode = "blocking"
	RunModeAsync    RunMode = "async"
)

const (
	defaultHookTimeout = 30 * time.Second
	hookRetries        = 3
	hookRetryDelay     = 500 * time.Millisecond
)

// Validate checks every phase and rejects duplicate names across phases.
func (hs *Hooks) Validate() error {
	names := make(map[string]string)
	phases := []struct {
		name  string
		hooks []Hook
	}{
		{"pre_start", hs.PreStart},
		{"post_start", hs.PostStart},
		{"pre_stop", hs.PreStop},
		{"post_stop", hs.PostStop},
	}
	for _, p := range phases {
		for i := range p.hooks {
			h := &p.hooks[i]
			if err := h.Validate(); err != nil {
				return fmt.Errorf("%s hook %d: %w", p.name, i, err)
			}
			if prev, ok := names[h.Name]; ok {
				return fmt.Errorf("duplicate hook name %q in %s and %s", h.Name, prev, p.name)
			}
			names[h.Name] = p.name
		}
	}
	return nil
}

func (h *Hook) Validate() error {
	name := strings.TrimSpace(h.Name)
	if name == "" {
		return errors.New("hook name is required")
	}
	if strings.ContainsAny(name, " \t\n\r/\\<>:\"|?*") {
		return fmt.Errorf("hook %q: name contains invalid characters", name)
	}
	if strings.TrimSpace(h.Command) == "" {
		return fmt.Errorf("hook %q requires command", name)
	}
	switch h.FailureMode {
	case "", FailureModeIgnore, FailureModeFail, FailureModeRetry:
	default:
		return fmt.Errorf("hook %q: invalid failure_mode %q, must be one of: ignore, fail, retry", name, h.FailureMode)
	}
	switch h.RunMode {
	case "", RunModeBlocking, RunModeAsync:
	default:
		return fmt.Errorf("hook %q: invalid run_mode %q, must be one of: blocking, async", name, h.RunMode)
	}
	if h.Timeout < 0 || h.Timeout > time.Hour {
		return fmt.Errorf("hook %q: timeout must be between 0 and 1h", name)
	}
	for i, kv := range h.Env {
		if k, _, ok := strings.Cut(kv, "="); !ok || strings.TrimSpace(k) == "" {
			return fmt.Errorf("hook %q: env[%d] %q must be KEY=VALUE", name, i, kv)
		} else if strings.HasPrefix(strings.TrimSpace(k), "PASYS_") {
			return fmt.Errorf("hook %q: env[%d] key %q is reserved (PASYS_ prefix)", name, i, k)
		}
	}
	return nil
}

// runHooks executes hooks in order. It returns the first failure of a hook
// whose failure mode is fail or retry.
func runHooks(ctx context.Context, log *slog.Logger, phase string, hooks []Hook, env []string) error {
	for _, h := range hooks {
		h := h
		if h.RunMode == RunModeAsync {
			go func() {
				// async hooks outlive the operation that started them
				if err := runHook(context.Background(), h, env); err != nil {
					log.Warn("async hook failed", "phase", phase, "hook", h.Name, "err", err)
				}
			}()
			continue
		}
		attempts := 1
		if h.FailureMode == FailureModeRetry {
			attempts = hookRetries
		}
		var err error
		for i := 0; i < attempts; i++ {
			if i > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(hookRetryDelay):
				}
			}
			if err = runHook(ctx, h, env); err == nil {
				break
			}
		}
		if err == nil {
			log.Debug("hook ok", "phase", phase, "hook", h.Name)
			continue
		}
		if h.FailureMode == FailureModeIgnore {
			log.Warn("hook failed, ignoring", "phase", phase, "hook", h.Name, "err", err)
			continue
		}
		return fmt.Errorf("%w: %s %s: %v", ErrHookFailed, phase, h.Name, err)
	}
	return nil
}

func runHook(ctx context.Context, h Hook, env []string) error {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = defaultHookTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	cmd := process.CommandFromStringContext(ctx, h.Command)
	if h.WorkDir != "" {
		cmd.Dir = h.WorkDir
	}
	if len(env) > 0 || len(h.Env) > 0 {
		cmd.Env = append(append([]string(nil), env...), h.Env...)
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) && len(out) > 0 {
			line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
			return fmt.Errorf("%v: %s", err, line)
		}
		return err
	}
	return nil
}
