// Package jackgraph models the JACK audio routing graph: named ports and the
// connections between them.
package jackgraph

import (
	"errors"
	"fmt"
	"strings"
)

// ErrGraphUnavailable wraps every failure to query or mutate the graph: the
// server is down, a port does not exist yet, a connect was refused.
var ErrGraphUnavailable = errors.New("audio graph unavailable")

// Endpoint names one port as client:port.
type Endpoint struct {
	Client string `json:"client"`
	Port   string `json:"port"`
}

// ParseEndpoint splits "client:port" at the first colon.
func ParseEndpoint(s string) (Endpoint, error) {
	c, p, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || c == "" || p == "" {
		return Endpoint{}, fmt.Errorf("invalid endpoint %q: want client:port", s)
	}
	return Endpoint{Client: c, Port: p}, nil
}

// MustEndpoint is ParseEndpoint for literals; it panics on bad input.
func MustEndpoint(s string) Endpoint {
	e, err := ParseEndpoint(s)
	if err != nil {
		panic(err)
	}
	return e
}

func (e Endpoint) String() string { return e.Client + ":" + e.Port }

func (e Endpoint) IsZero() bool { return e.Client == "" && e.Port == "" }

// Edge is one desired connection state between two ports.
type Edge struct {
	Src       Endpoint `json:"src"`
	Dst       Endpoint `json:"dst"`
	Connected bool     `json:"connected"`
}

func (e Edge) String() string {
	op := "->"
	if !e.Connected {
		op = "-/->"
	}
	return e.Src.String() + " " + op + " " + e.Dst.String()
}
