// Package reconciler keeps a set of desired port connections satisfied
// against a live audio graph that its clients reset whenever they restart.
//
// The upstream player creates its output ports lazily and offers no
// notification when they appear, so the reconciler polls: every tick it looks
// at each desired edge and issues at most one connect or disconnect for it.
// Failures are retried on the next tick.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/loykin/pasys/internal/jackgraph"
	"github.com/loykin/pasys/internal/metrics"
)

// DefaultInterval is the pause between ticks.
const DefaultInterval = 3 * time.Second

// ErrDuplicateEdge is returned by New when two edges name the same pair.
var ErrDuplicateEdge = errors.New("duplicate edge")

type Options struct {
	Interval time.Duration
	// Verbose logs edges that are already in the desired state.
	Verbose bool
	// Logger is used as is; callers attach the unit attribute.
	Logger *slog.Logger
}

// TickReport summarizes one pass.
type TickReport struct {
	Checked      int `json:"checked"`
	Connected    int `json:"connected"`
	Disconnected int `json:"disconnected"`
	Failed       int `json:"failed"`
}

// Requests is the number of graph mutations issued, successful or not.
func (r TickReport) Requests() int { return r.Connected + r.Disconnected + r.Failed }

type Reconciler struct {
	name     string
	graph    jackgraph.Graph
	edges    []jackgraph.Edge
	interval time.Duration
	verbose  bool
	log      *slog.Logger
}

// New validates edges and returns a reconciler for the unit called name.
func New(name string, graph jackgraph.Graph, edges []jackgraph.Edge, opts Options) (*Reconciler, error) {
	if graph == nil {
		return nil, errors.New("reconciler: nil graph")
	}
	type pair struct{ src, dst jackgraph.Endpoint }
	seen := make(map[pair]bool, len(edges))
	for _, e := range edges {
		if e.Src.IsZero() || e.Dst.IsZero() {
			return nil, fmt.Errorf("reconciler %s: incomplete edge %s", name, e)
		}
		p := pair{e.Src, e.Dst}
		if seen[p] {
			return nil, fmt.Errorf("reconciler %s: %w: %s -> %s", name, ErrDuplicateEdge, e.Src, e.Dst)
		}
		seen[p] = true
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Reconciler{
		name:     name,
		graph:    graph,
		edges:    append([]jackgraph.Edge(nil), edges...),
		interval: opts.Interval,
		verbose:  opts.Verbose,
		log:      opts.Logger,
	}, nil
}

func (r *Reconciler) Edges() []jackgraph.Edge { return append([]jackgraph.Edge(nil), r.edges...) }

func (r *Reconciler) Interval() time.Duration { return r.interval }

// Tick runs one pass over the desired edges. Graph errors are logged and
// counted, never returned.
func (r *Reconciler) Tick(ctx context.Context) TickReport {
	var rep TickReport
	metrics.IncTick(r.name)
	for _, e := range r.edges {
		if ctx.Err() != nil {
			break
		}
		rep.Checked++
		conns, err := r.graph.Connections(ctx, e.Dst)
		if err != nil {
			metrics.IncQueryError(r.name)
			r.log.Warn("query connections", "port", e.Dst.String(), "err", err)
			continue
		}
		present := jackgraph.Contains(conns, e.Src)
		if present == e.Connected {
			if r.verbose {
				r.log.Debug("ok", "edge", e.String())
			}
			continue
		}
		action, mutate := "connect", r.graph.Connect
		if !e.Connected {
			action, mutate = "disconnect", r.graph.Disconnect
		}
		if err := mutate(ctx, e.Src, e.Dst); err != nil {
			rep.Failed++
			metrics.IncRepair(r.name, action, false)
			r.log.Warn(action+" failed", "src", e.Src.String(), "dst", e.Dst.String(), "err", err)
			continue
		}
		metrics.IncRepair(r.name, action, true)
		if e.Connected {
			rep.Connected++
		} else {
			rep.Disconnected++
		}
		r.log.Info(action+"ed", "src", e.Src.String(), "dst", e.Dst.String())
	}
	return rep
}

// Run ticks immediately and then every interval until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	r.log.Info("reconciler started", "edges", len(r.edges), "interval", r.interval)
	defer r.log.Info("reconciler stopped")
	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		r.Tick(ctx)
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// PairEdges builds n connect edges src_i -> dst_i, numbering the source
// ports from srcBase and the destination ports from dstBase. The librespot
// watchdog uses PairEdges("librespot:out_", "librespot_loop:input_", 2, 0, 1).
func PairEdges(srcPrefix, dstPrefix string, n, srcBase, dstBase int) ([]jackgraph.Edge, error) {
	edges := make([]jackgraph.Edge, 0, n)
	for i := 0; i < n; i++ {
		src, err := jackgraph.ParseEndpoint(fmt.Sprintf("%s%d", srcPrefix, srcBase+i))
		if err != nil {
			return nil, err
		}
		dst, err := jackgraph.ParseEndpoint(fmt.Sprintf("%s%d", dstPrefix, dstBase+i))
		if err != nil {
			return nil, err
		}
		edges = append(edges, jackgraph.Edge{Src: src, Dst: dst, Connected: true})
	}
	return edges, nil
}
