package jackgraph

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Memory is an in-process Graph. With registered ports it behaves like a
// server where only those ports exist; without any it accepts every port.
type Memory struct {
	mu       sync.Mutex
	ports    map[Endpoint]bool
	edges    map[Endpoint]map[Endpoint]bool // dst -> srcs
	queryErr error
	connects int
}

func NewMemory(ports ...Endpoint) *Memory {
	m := &Memory{edges: make(map[Endpoint]map[Endpoint]bool)}
	if len(ports) > 0 {
		m.ports = make(map[Endpoint]bool, len(ports))
		for _, p := range ports {
			m.ports[p] = true
		}
	}
	return m
}

// AddPort registers a port, as an upstream client does when it starts
// producing audio.
func (m *Memory) AddPort(p Endpoint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ports == nil {
		m.ports = make(map[Endpoint]bool)
	}
	m.ports[p] = true
}

// Reset drops every connection, like a client restarting.
func (m *Memory) Reset() {
	m.mu.Lock()
	m.edges = make(map[Endpoint]map[Endpoint]bool)
	m.mu.Unlock()
}

// SetQueryError makes every Connections call fail with err until cleared
// with nil.
func (m *Memory) SetQueryError(err error) {
	m.mu.Lock()
	m.queryErr = err
	m.mu.Unlock()
}

// ConnectCalls counts Connect requests, successful or not.
func (m *Memory) ConnectCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connects
}

func (m *Memory) exists(p Endpoint) bool { return m.ports == nil || m.ports[p] }

func (m *Memory) Connections(_ context.Context, port Endpoint) ([]Endpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.queryErr != nil {
		return nil, fmt.Errorf("%s: %w: %v", port, ErrGraphUnavailable, m.queryErr)
	}
	if !m.exists(port) {
		return nil, fmt.Errorf("%s: %w: port not found", port, ErrGraphUnavailable)
	}
	out := make([]Endpoint, 0, len(m.edges[port]))
	for src := range m.edges[port] {
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

func (m *Memory) Connect(_ context.Context, src, dst Endpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connects++
	if !m.exists(src) || !m.exists(dst) {
		return fmt.Errorf("connect %s %s: %w: port not found", src, dst, ErrGraphUnavailable)
	}
	if m.edges[dst] == nil {
		m.edges[dst] = make(map[Endpoint]bool)
	}
	m.edges[dst][src] = true
	return nil
}

func (m *Memory) Disconnect(_ context.Context, src, dst Endpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.edges[dst][src] {
		return fmt.Errorf("disconnect %s %s: %w: not connected", src, dst, ErrGraphUnavailable)
	}
	delete(m.edges[dst], src)
	return nil
}
