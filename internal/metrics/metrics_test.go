package metrics

import (
	"io"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterIdempotentAndCountersWork(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := Register(reg); err != nil {
		t.Fatalf("second register: %v", err)
	}

	IncStart("librespot")
	IncStart("librespot")
	IncStartFailure("lcd", "readiness_timeout")
	IncStop("librespot")
	SetRunning("librespot", true)
	ObserveProbe("lcd", "tcp:localhost:9990", 3, true)
	ObserveProbe("lcd", "tcp:localhost:9990", 10, false)
	IncTick("librespot")
	IncRepair("librespot", "connect", true)
	IncRepair("librespot", "connect", false)
	IncQueryError("librespot")

	if got := testutil.ToFloat64(unitStarts.WithLabelValues("librespot")); got != 2 {
		t.Fatalf("starts: %v", got)
	}
	if got := testutil.ToFloat64(unitRunning.WithLabelValues("librespot")); got != 1 {
		t.Fatalf("running gauge: %v", got)
	}
	if got := testutil.ToFloat64(probeResults.WithLabelValues("lcd", "tcp:localhost:9990", "timeout")); got != 1 {
		t.Fatalf("probe timeouts: %v", got)
	}
	if got := testutil.ToFloat64(reconcilerRepairs.WithLabelValues("librespot", "connect", "error")); got != 1 {
		t.Fatalf("repair errors: %v", got)
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	want := map[string]bool{
		"pasys_unit_starts_total":             false,
		"pasys_unit_start_failures_total":     false,
		"pasys_unit_stops_total":              false,
		"pasys_unit_running":                  false,
		"pasys_probe_attempts":                false,
		"pasys_probe_results_total":           false,
		"pasys_reconciler_ticks_total":        false,
		"pasys_reconciler_repairs_total":      false,
		"pasys_reconciler_query_errors_total": false,
	}
	for _, mf := range mfs {
		if _, ok := want[mf.GetName()]; ok {
			want[mf.GetName()] = true
		}
	}
	for n, ok := range want {
		if !ok {
			t.Fatalf("metric %s not gathered", n)
		}
	}

	srv := httptest.NewServer(HandlerFor(reg))
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "pasys_unit_starts_total") {
		t.Fatalf("scrape output missing counters")
	}
}

func TestResourceCollectorReportsSelf(t *testing.T) {
	c := NewResourceCollector(func() map[string]int {
		return map[string]int{"self": os.Getpid(), "gone": -1}
	})
	reg := prometheus.NewRegistry()
	if err := reg.Register(c); err != nil {
		t.Fatalf("register: %v", err)
	}
	if n := testutil.CollectAndCount(c); n != 3 {
		t.Fatalf("expected 3 samples for one live process, got %d", n)
	}
	u, ok := Sample(os.Getpid())
	if !ok || u.RSS == 0 || u.Threads == 0 {
		t.Fatalf("unexpected self sample %+v ok=%v", u, ok)
	}
}
