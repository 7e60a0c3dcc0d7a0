package supervisor

import (
	"context"
	"fmt"
	"strings"
)

// Verb is a lifecycle request. The set is closed.
type Verb int

const (
	VerbStart Verb = iota + 1
	VerbStop
)

var verbAliases = map[string]Verb{
	"start":  VerbStart,
	"on":     VerbStart,
	"load":   VerbStart,
	"stop":   VerbStop,
	"off":    VerbStop,
	"unload": VerbStop,
}

// ParseVerb accepts start|on|load and stop|off|unload, case-insensitively.
func ParseVerb(s string) (Verb, error) {
	if v, ok := verbAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return v, nil
	}
	return 0, fmt.Errorf("%w %q (want start|stop)", ErrUnknownVerb, s)
}

func (v Verb) String() string {
	switch v {
	case VerbStart:
		return "start"
	case VerbStop:
		return "stop"
	default:
		return fmt.Sprintf("Verb(%d)", int(v))
	}
}

// Do dispatches v.
func (s *Supervisor) Do(ctx context.Context, v Verb) error {
	switch v {
	case VerbStart:
		_, err := s.Start(ctx)
		return err
	case VerbStop:
		return s.Stop(ctx)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownVerb, v)
	}
}
