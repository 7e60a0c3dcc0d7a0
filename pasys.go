// Package pasys is the embeddable facade over the unit supervisor: load a
// configuration, build supervisors for its units and drive them with verbs.
package pasys

import (
	"net/http"

	"github.com/loykin/pasys/internal/config"
	"github.com/loykin/pasys/internal/jackgraph"
	"github.com/loykin/pasys/internal/metrics"
	"github.com/loykin/pasys/internal/probe"
	"github.com/loykin/pasys/internal/process"
	"github.com/loykin/pasys/internal/reconciler"
	iapi "github.com/loykin/pasys/internal/server"
	"github.com/loykin/pasys/internal/supervisor"
	"github.com/prometheus/client_golang/prometheus"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Spec = process.Spec

type Status = process.Status

type Unit = supervisor.Unit

type Watchdog = supervisor.Watchdog

type Hook = supervisor.Hook

type Hooks = supervisor.Hooks

type Supervisor = supervisor.Supervisor

type Group = supervisor.Group

type Option = supervisor.Option

type Verb = supervisor.Verb

type Config = config.Config

type Endpoint = jackgraph.Endpoint

type Edge = jackgraph.Edge

type Gate = probe.Gate

type ProbeSpec = probe.Spec

const (
	VerbStart = supervisor.VerbStart
	VerbStop  = supervisor.VerbStop
)

var (
	ErrBinaryNotFound   = supervisor.ErrBinaryNotFound
	ErrSpawnFailed      = supervisor.ErrSpawnFailed
	ErrReadinessTimeout = supervisor.ErrReadinessTimeout
	ErrPermissionDenied = supervisor.ErrPermissionDenied
	ErrUnknownVerb      = supervisor.ErrUnknownVerb
	ErrConfigMissing    = config.ErrConfigMissing
	ErrGraphUnavailable = jackgraph.ErrGraphUnavailable
)

var (
	WithEnv     = supervisor.WithEnv
	WithGraph   = supervisor.WithGraph
	WithHistory = supervisor.WithHistory
	WithLogger  = supervisor.WithLogger
	Resident    = supervisor.Resident
)

func LoadConfig(path string) (*Config, error) { return config.Load(path) }

func ParseVerb(s string) (Verb, error) { return supervisor.ParseVerb(s) }

func ParseEndpoint(s string) (Endpoint, error) { return jackgraph.ParseEndpoint(s) }

// PairEdges builds n numbered connect edges, see reconciler.PairEdges.
func PairEdges(srcPrefix, dstPrefix string, n, srcBase, dstBase int) ([]Edge, error) {
	return reconciler.PairEdges(srcPrefix, dstPrefix, n, srcBase, dstBase)
}

func NewSupervisor(u Unit, opts ...Option) (*Supervisor, error) { return supervisor.New(u, opts...) }

// NewGroup builds one supervisor per configured unit, wired to the
// configuration's environment and JACK graph.
func NewGroup(cfg *Config, opts ...Option) (*Group, error) {
	units, err := cfg.Units()
	if err != nil {
		return nil, err
	}
	base := []Option{WithEnv(cfg.Env()), WithGraph(cfg.Graph())}
	return supervisor.NewGroup(units, append(base, opts...)...)
}

// NewHandler returns the HTTP control API for g mounted under basePath.
func NewHandler(g *Group, basePath string) http.Handler {
	return iapi.NewRouter(g, basePath).Handler()
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }
