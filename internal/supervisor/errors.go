package supervisor

import (
	"errors"

	"github.com/loykin/pasys/internal/process"
)

// Error taxonomy. All are wrapped with context; match with errors.Is.
var (
	ErrBinaryNotFound   = process.ErrBinaryNotFound
	ErrSpawnFailed      = process.ErrSpawnFailed
	ErrPermissionDenied = process.ErrPermissionDenied
	ErrExitedEarly      = process.ErrExitedEarly
	// ErrReadinessTimeout means a dependency or the launched process never
	// became ready within its attempts.
	ErrReadinessTimeout = errors.New("dependency not ready")
	ErrHookFailed       = errors.New("hook failed")
	ErrUnknownVerb      = errors.New("unknown verb")
	ErrUnknownUnit      = errors.New("unknown unit")
)

// failureReason labels start failures for metrics and history.
func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrBinaryNotFound):
		return "binary_not_found"
	case errors.Is(err, ErrReadinessTimeout):
		return "readiness_timeout"
	case errors.Is(err, ErrExitedEarly):
		return "exited_early"
	case errors.Is(err, ErrHookFailed):
		return "hook_failed"
	case errors.Is(err, ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, ErrSpawnFailed):
		return "spawn_failed"
	default:
		return "other"
	}
}
