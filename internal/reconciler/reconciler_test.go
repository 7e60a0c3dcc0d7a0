package reconciler

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/loykin/pasys/internal/jackgraph"
)

func edge(src, dst string, connected bool) jackgraph.Edge {
	return jackgraph.Edge{Src: jackgraph.MustEndpoint(src), Dst: jackgraph.MustEndpoint(dst), Connected: connected}
}

func TestMissingEdgeConnectsOnceThenSteady(t *testing.T) {
	g := jackgraph.NewMemory()
	r, err := New("spot", g, []jackgraph.Edge{edge("instrumentA:out_0", "loopX:input_1", true)}, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	rep := r.Tick(ctx)
	if rep.Connected != 1 || g.ConnectCalls() != 1 {
		t.Fatalf("first tick: %+v calls=%d", rep, g.ConnectCalls())
	}
	conns, _ := g.Connections(ctx, jackgraph.MustEndpoint("loopX:input_1"))
	if !jackgraph.Contains(conns, jackgraph.MustEndpoint("instrumentA:out_0")) {
		t.Fatalf("edge not present after tick: %v", conns)
	}

	rep = r.Tick(ctx)
	if rep.Requests() != 0 || g.ConnectCalls() != 1 {
		t.Fatalf("second tick issued requests: %+v calls=%d", rep, g.ConnectCalls())
	}
}

func TestFailedConnectRetriedNextTick(t *testing.T) {
	src := jackgraph.MustEndpoint("librespot:out_0")
	dst := jackgraph.MustEndpoint("librespot_loop:input_1")
	g := jackgraph.NewMemory(dst) // upstream port not created yet
	r, err := New("spot", g, []jackgraph.Edge{{Src: src, Dst: dst, Connected: true}}, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	if rep := r.Tick(ctx); rep.Failed != 1 {
		t.Fatalf("expected failure, got %+v", rep)
	}
	g.AddPort(src)
	if rep := r.Tick(ctx); rep.Connected != 1 {
		t.Fatalf("expected connect after port appeared, got %+v", rep)
	}
	g.Reset()
	if rep := r.Tick(ctx); rep.Connected != 1 {
		t.Fatalf("expected reconnect after graph reset, got %+v", rep)
	}
}

func TestDisconnectEdge(t *testing.T) {
	g := jackgraph.NewMemory()
	ctx := context.Background()
	a, b := jackgraph.MustEndpoint("system:capture_1"), jackgraph.MustEndpoint("brutefir:in.L")
	_ = g.Connect(ctx, a, b)
	r, err := New("route", g, []jackgraph.Edge{{Src: a, Dst: b, Connected: false}}, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if rep := r.Tick(ctx); rep.Disconnected != 1 {
		t.Fatalf("expected one disconnect, got %+v", rep)
	}
	if rep := r.Tick(ctx); rep.Requests() != 0 {
		t.Fatalf("expected steady state, got %+v", rep)
	}
}

func TestQueryErrorIsNotFatal(t *testing.T) {
	g := jackgraph.NewMemory()
	g.SetQueryError(errors.New("JACK server not running"))
	r, err := New("spot", g, []jackgraph.Edge{edge("a:out", "b:in", true)}, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	rep := r.Tick(ctx)
	if rep.Checked != 1 || rep.Requests() != 0 {
		t.Fatalf("unexpected report %+v", rep)
	}
	g.SetQueryError(nil)
	if rep := r.Tick(ctx); rep.Connected != 1 {
		t.Fatalf("expected recovery, got %+v", rep)
	}
}

func TestNewRejectsDuplicates(t *testing.T) {
	g := jackgraph.NewMemory()
	_, err := New("dup", g, []jackgraph.Edge{edge("a:out", "b:in", true), edge("a:out", "b:in", false)}, Options{})
	if !errors.Is(err, ErrDuplicateEdge) {
		t.Fatalf("expected ErrDuplicateEdge, got %v", err)
	}
	if _, err := New("nil", nil, nil, Options{}); err == nil {
		t.Fatalf("expected error for nil graph")
	}
	r, err := New("def", g, nil, Options{})
	if err != nil || r.Interval() != DefaultInterval {
		t.Fatalf("default interval: %v err=%v", r.Interval(), err)
	}
}

// countingGraph wraps Memory to observe ticks from Run.
type countingGraph struct {
	*jackgraph.Memory
	mu      sync.Mutex
	queries int
}

func (c *countingGraph) Connections(ctx context.Context, p jackgraph.Endpoint) ([]jackgraph.Endpoint, error) {
	c.mu.Lock()
	c.queries++
	c.mu.Unlock()
	return c.Memory.Connections(ctx, p)
}

func (c *countingGraph) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queries
}

func TestRunStopsOnCancel(t *testing.T) {
	g := &countingGraph{Memory: jackgraph.NewMemory()}
	r, err := New("spot", g, []jackgraph.Edge{edge("a:out", "b:in", true)}, Options{Interval: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()
	time.Sleep(80 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run did not return after cancel")
	}
	if g.count() < 2 {
		t.Fatalf("expected several ticks, got %d", g.count())
	}
	if g.ConnectCalls() != 1 {
		t.Fatalf("expected a single connect across ticks, got %d", g.ConnectCalls())
	}
}

func TestPairEdges(t *testing.T) {
	edges, err := PairEdges("librespot:out_", "librespot_loop:input_", 2, 0, 1)
	if err != nil {
		t.Fatalf("PairEdges: %v", err)
	}
	if len(edges) != 2 {
		t.Fatalf("len %d", len(edges))
	}
	if edges[0].Src.String() != "librespot:out_0" || edges[0].Dst.String() != "librespot_loop:input_1" {
		t.Fatalf("edge 0: %s", edges[0])
	}
	if edges[1].Src.String() != "librespot:out_1" || edges[1].Dst.String() != "librespot_loop:input_2" || !edges[1].Connected {
		t.Fatalf("edge 1: %s", edges[1])
	}
	if _, err := PairEdges("bad", "x:y", 1, 0, 0); err == nil {
		t.Fatalf("expected error for prefix without client")
	}
}

func TestLogLinesCarryCallerAttrsOnce(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})).With("unit", "player")
	g := jackgraph.NewMemory()
	r, err := New("player", g, []jackgraph.Edge{edge("instrumentA:out_0", "loopX:input_1", true)}, Options{Verbose: true, Logger: log})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r.Tick(context.Background())
	r.Tick(context.Background())
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected connected + ok lines, got %q", buf.String())
	}
	for _, l := range lines {
		if n := strings.Count(l, "unit=player"); n != 1 {
			t.Fatalf("unit attribute appears %d times in %q", n, l)
		}
	}
}
