package process

import "time"

// Status is a point-in-time view of a handle.
type Status struct {
	Name       string    `json:"name" yaml:"name"`
	Running    bool      `json:"running" yaml:"running"`
	PID        int       `json:"pid,omitempty" yaml:"pid,omitempty"`
	StartedAt  time.Time `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	StoppedAt  time.Time `json:"stopped_at,omitempty" yaml:"stopped_at,omitempty"`
	ExitErr    string    `json:"exit_error,omitempty" yaml:"exit_error,omitempty"`
	DetectedBy string    `json:"detected_by,omitempty" yaml:"detected_by,omitempty"`
	LogPath    string    `json:"log_path,omitempty" yaml:"log_path,omitempty"`
}

// Uptime is zero unless the process is running.
func (s Status) Uptime(now time.Time) time.Duration {
	if !s.Running || s.StartedAt.IsZero() {
		return 0
	}
	return now.Sub(s.StartedAt)
}
