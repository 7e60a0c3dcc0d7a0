package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	unitStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pasys",
			Subsystem: "unit",
			Name:      "starts_total",
			Help:      "Number of successful unit starts.",
		}, []string{"unit"},
	)
	unitStartFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pasys",
			Subsystem: "unit",
			Name:      "start_failures_total",
			Help:      "Number of failed unit starts by reason.",
		}, []string{"unit", "reason"},
	)
	unitStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pasys",
			Subsystem: "unit",
			Name:      "stops_total",
			Help:      "Number of stops that found something to stop.",
		}, []string{"unit"},
	)
	unitRunning = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "pasys",
			Subsystem: "unit",
			Name:      "running",
			Help:      "1 while the unit process is running.",
		}, []string{"unit"},
	)
	probeAttempts = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pasys",
			Subsystem: "probe",
			Name:      "attempts",
			Help:      "Attempts used per readiness wait.",
			Buckets:   []float64{1, 2, 3, 5, 10, 20, 60},
		}, []string{"unit", "probe"},
	)
	probeResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pasys",
			Subsystem: "probe",
			Name:      "results_total",
			Help:      "Readiness waits by outcome (satisfied, timeout).",
		}, []string{"unit", "probe", "result"},
	)
	reconcilerTicks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pasys",
			Subsystem: "reconciler",
			Name:      "ticks_total",
			Help:      "Reconciliation passes over the desired edges.",
		}, []string{"unit"},
	)
	reconcilerRepairs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pasys",
			Subsystem: "reconciler",
			Name:      "repairs_total",
			Help:      "Connect/disconnect requests issued by result (ok, error).",
		}, []string{"unit", "action", "result"},
	)
	reconcilerQueryErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pasys",
			Subsystem: "reconciler",
			Name:      "query_errors_total",
			Help:      "Graph queries that failed.",
		}, []string{"unit"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		unitStarts, unitStartFailures, unitStops, unitRunning,
		probeAttempts, probeResults,
		reconcilerTicks, reconcilerRepairs, reconcilerQueryErrors,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler serves the default gatherer.
func Handler() http.Handler { return promhttp.Handler() }

// HandlerFor serves g, for callers using their own registry.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// The helpers below no-op until Register has been called.

func IncStart(unit string) {
	if regOK.Load() {
		unitStarts.WithLabelValues(unit).Inc()
	}
}

func IncStartFailure(unit, reason string) {
	if regOK.Load() {
		unitStartFailures.WithLabelValues(unit, reason).Inc()
	}
}

func IncStop(unit string) {
	if regOK.Load() {
		unitStops.WithLabelValues(unit).Inc()
	}
}

func SetRunning(unit string, running bool) {
	if regOK.Load() {
		v := 0.0
		if running {
			v = 1
		}
		unitRunning.WithLabelValues(unit).Set(v)
	}
}

func ObserveProbe(unit, probe string, attempts int, satisfied bool) {
	if !regOK.Load() {
		return
	}
	probeAttempts.WithLabelValues(unit, probe).Observe(float64(attempts))
	result := "satisfied"
	if !satisfied {
		result = "timeout"
	}
	probeResults.WithLabelValues(unit, probe, result).Inc()
}

func IncTick(unit string) {
	if regOK.Load() {
		reconcilerTicks.WithLabelValues(unit).Inc()
	}
}

func IncRepair(unit, action string, ok bool) {
	if regOK.Load() {
		result := "ok"
		if !ok {
			result = "error"
		}
		reconcilerRepairs.WithLabelValues(unit, action, result).Inc()
	}
}

func IncQueryError(unit string) {
	if regOK.Load() {
		reconcilerQueryErrors.WithLabelValues(unit).Inc()
	}
}
