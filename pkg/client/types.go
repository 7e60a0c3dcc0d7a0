package client

import "time"

// UnitStatus is the status document returned by the control API.
type UnitStatus struct {
	Name       string    `json:"name"`
	Running    bool      `json:"running"`
	PID        int       `json:"pid,omitempty"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	StoppedAt  time.Time `json:"stopped_at,omitempty"`
	ExitErr    string    `json:"exit_error,omitempty"`
	DetectedBy string    `json:"detected_by,omitempty"`
	LogPath    string    `json:"log_path,omitempty"`
}

// VerbResponse is returned by a successful verb request.
type VerbResponse struct {
	OK     bool       `json:"ok"`
	Verb   string     `json:"verb"`
	Status UnitStatus `json:"status"`
}

// Event is one lifecycle history entry.
type Event struct {
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Record     struct {
		Unit      string    `json:"unit"`
		PID       int       `json:"pid"`
		StartedAt time.Time `json:"started_at,omitempty"`
		StoppedAt time.Time `json:"stopped_at,omitempty"`
		ExitErr   string    `json:"exit_error,omitempty"`
		Detail    string    `json:"detail,omitempty"`
	} `json:"record"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}
