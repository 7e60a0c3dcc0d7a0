package jackgraph

import "context"

// Graph is the live, externally mutable routing graph.
type Graph interface {
	// Connections lists the ports connected to port.
	Connections(ctx context.Context, port Endpoint) ([]Endpoint, error)
	Connect(ctx context.Context, src, dst Endpoint) error
	Disconnect(ctx context.Context, src, dst Endpoint) error
}

// Contains reports whether ep is in list.
func Contains(list []Endpoint, ep Endpoint) bool {
	for _, e := range list {
		if e == ep {
			return true
		}
	}
	return false
}
