package probe

import (
	"fmt"
	"strings"
	"time"
)

// Check types accepted by Build.
const (
	TypeTCP     = "tcp"
	TypeFile    = "file"
	TypePIDFile = "pidfile"
	TypeProcess = "process"
	TypeCommand = "command"
	TypeMPD     = "mpd"
)

// Defaults match the control-server wait of the display and web plugins:
// ten one-second attempts.
const (
	DefaultAttempts = 10
	DefaultInterval = time.Second
)

// Spec is the configuration form of a check.
type Spec struct {
	Name     string        `json:"name,omitempty" mapstructure:"name"`
	Type     string        `json:"type" mapstructure:"type"`
	Address  string        `json:"address,omitempty" mapstructure:"address"`
	Path     string        `json:"path,omitempty" mapstructure:"path"`
	Value    string        `json:"value,omitempty" mapstructure:"value"`
	Mode     string        `json:"mode,omitempty" mapstructure:"mode"`
	Pattern  string        `json:"pattern,omitempty" mapstructure:"pattern"`
	User     string        `json:"user,omitempty" mapstructure:"user"`
	Command  string        `json:"command,omitempty" mapstructure:"command"`
	Password string        `json:"password,omitempty" mapstructure:"password"`
	Attempts int           `json:"attempts,omitempty" mapstructure:"attempts"`
	Interval time.Duration `json:"interval,omitempty" mapstructure:"interval"`
}

// Build turns a Spec into a Check, validating the fields its type needs.
func Build(s Spec) (Check, error) {
	switch strings.ToLower(strings.TrimSpace(s.Type)) {
	case TypeTCP:
		if s.Address == "" {
			return nil, fmt.Errorf("probe %s: address is required", TypeTCP)
		}
		return TCPPort{Address: s.Address}, nil
	case TypeFile:
		if s.Path == "" {
			return nil, fmt.Errorf("probe %s: path is required", TypeFile)
		}
		switch s.Mode {
		case "", ModeEquals, ModeContains:
		default:
			return nil, fmt.Errorf("probe %s: unknown mode %q", TypeFile, s.Mode)
		}
		return FileContent{Path: s.Path, Value: s.Value, Mode: s.Mode}, nil
	case TypePIDFile:
		if s.Path == "" {
			return nil, fmt.Errorf("probe %s: path is required", TypePIDFile)
		}
		return PIDFile{Path: s.Path}, nil
	case TypeProcess:
		if strings.TrimSpace(s.Pattern) == "" {
			return nil, fmt.Errorf("probe %s: pattern is required", TypeProcess)
		}
		return ProcessMatch{Pattern: s.Pattern, User: s.User}, nil
	case TypeCommand:
		if strings.TrimSpace(s.Command) == "" {
			return nil, fmt.Errorf("probe %s: command is required", TypeCommand)
		}
		return Command{Command: s.Command}, nil
	case TypeMPD:
		addr := s.Address
		if addr == "" {
			addr = "localhost:6600"
		}
		return MPD{Address: addr, Password: s.Password}, nil
	default:
		return nil, fmt.Errorf("unknown probe type %q", s.Type)
	}
}

// Gate builds the check and applies the retry defaults.
func (s Spec) Gate() (Gate, error) {
	c, err := Build(s)
	if err != nil {
		return Gate{}, err
	}
	g := Gate{Name: s.Name, Check: c, Attempts: s.Attempts, Interval: s.Interval}
	if g.Name == "" {
		g.Name = c.Describe()
	}
	if g.Attempts <= 0 {
		g.Attempts = DefaultAttempts
	}
	if g.Interval <= 0 {
		g.Interval = DefaultInterval
	}
	return g, nil
}
