package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/loykin/pasys/internal/history"
	"github.com/loykin/pasys/internal/metrics"
	"github.com/loykin/pasys/internal/process"
	"github.com/loykin/pasys/internal/supervisor"
	"github.com/prometheus/client_golang/prometheus"
)

type fakeController struct {
	mu      sync.Mutex
	names   []string
	running map[string]bool
	fail    error
	calls   []string
}

func newFakeController(names ...string) *fakeController {
	return &fakeController{names: names, running: map[string]bool{}}
}

func (f *fakeController) Names() []string { return f.names }

func (f *fakeController) StatusAll() []process.Status {
	out := make([]process.Status, 0, len(f.names))
	for _, n := range f.names {
		st, _ := f.Status(n)
		out = append(out, st)
	}
	return out
}

func (f *fakeController) Status(name string) (process.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range f.names {
		if n == name {
			st := process.Status{Name: name, Running: f.running[name]}
			if st.Running {
				st.PID = 4242
			}
			return st, nil
		}
	}
	return process.Status{}, fmt.Errorf("%w %q", supervisor.ErrUnknownUnit, name)
}

func (f *fakeController) Do(_ context.Context, name string, v supervisor.Verb) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name+":"+v.String())
	if f.fail != nil {
		return f.fail
	}
	f.running[name] = v == supervisor.VerbStart
	return nil
}

func setupRouter(t *testing.T, ctl Controller, base string) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)
	return NewRouter(ctl, base).Handler()
}

func doReq(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestListUnits(t *testing.T) {
	h := setupRouter(t, newFakeController("librespot", "mpd"), "")
	rec := doReq(t, h, http.MethodGet, "/api/units")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var sts []process.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &sts); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(sts) != 2 || sts[0].Name != "librespot" {
		t.Fatalf("unexpected list: %+v", sts)
	}
}

func TestVerbAliases(t *testing.T) {
	ctl := newFakeController("jack_sink")
	h := setupRouter(t, ctl, "/pasys")
	rec := doReq(t, h, http.MethodPost, "/pasys/api/units/jack_sink/load")
	if rec.Code != http.StatusOK {
		t.Fatalf("load: %d %s", rec.Code, rec.Body.String())
	}
	var resp verbResp
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.OK || resp.Verb != "start" || !resp.Status.Running {
		t.Fatalf("unexpected response: %+v", resp)
	}
	rec = doReq(t, h, http.MethodPost, "/pasys/api/units/jack_sink/unload")
	if rec.Code != http.StatusOK {
		t.Fatalf("unload: %d", rec.Code)
	}
	if got := strings.Join(ctl.calls, ","); got != "jack_sink:start,jack_sink:stop" {
		t.Fatalf("calls = %s", got)
	}
}

func TestVerbErrors(t *testing.T) {
	ctl := newFakeController("lcd")
	h := setupRouter(t, ctl, "")
	cases := []struct {
		path string
		code int
	}{
		{"/api/units/lcd/restart", http.StatusBadRequest},
		{"/api/units/nope/start", http.StatusNotFound},
		{"/api/units/bad*name/start", http.StatusBadRequest},
	}
	for _, c := range cases {
		if rec := doReq(t, h, http.MethodPost, c.path); rec.Code != c.code {
			t.Errorf("%s: got %d want %d", c.path, rec.Code, c.code)
		}
	}
	if len(ctl.calls) != 0 {
		t.Fatalf("controller called for invalid requests: %v", ctl.calls)
	}

	ctl.fail = fmt.Errorf("lcd: %w: tcp:localhost:9990 after 10 attempts", supervisor.ErrReadinessTimeout)
	rec := doReq(t, h, http.MethodPost, "/api/units/lcd/start")
	if rec.Code != http.StatusGatewayTimeout || !strings.Contains(rec.Body.String(), "not ready") {
		t.Fatalf("readiness failure: %d %s", rec.Code, rec.Body.String())
	}
}

func TestStatusUnknownUnit(t *testing.T) {
	h := setupRouter(t, newFakeController("mpd"), "")
	if rec := doReq(t, h, http.MethodGet, "/api/units/other"); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec := doReq(t, h, http.MethodGet, "/api/units/mpd"); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctl := newFakeController("librespot")
	if rec := doReq(t, NewRouter(ctl, "").Handler(), http.MethodGet, "/api/units/librespot/history"); rec.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501 without reader, got %d", rec.Code)
	}

	sink, err := history.NewSQLSinkFromDSN("sqlite://" + filepath.Join(t.TempDir(), "h.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = sink.Close() }()
	for i := 0; i < 3; i++ {
		e := history.Event{Type: history.EventStart, OccurredAt: time.Now().UTC(), Record: history.Record{Unit: "librespot", PID: 100 + i}}
		if err := sink.Send(context.Background(), e); err != nil {
			t.Fatal(err)
		}
	}
	h := NewRouter(ctl, "").WithHistory(sink).Handler()
	rec := doReq(t, h, http.MethodGet, "/api/units/librespot/history?limit=2")
	if rec.Code != http.StatusOK {
		t.Fatalf("history: %d %s", rec.Code, rec.Body.String())
	}
	var events []history.Event
	if err := json.Unmarshal(rec.Body.Bytes(), &events); err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if rec := doReq(t, h, http.MethodGet, "/api/units/librespot/history?limit=x"); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad limit: %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg); err != nil {
		t.Fatal(err)
	}
	metrics.IncStart("librespot")
	h := NewRouter(newFakeController(), "").WithMetrics(metrics.HandlerFor(reg)).Handler()
	rec := doReq(t, h, http.MethodGet, "/metrics")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "pasys_unit_starts_total") {
		t.Fatalf("metrics: %d %s", rec.Code, rec.Body.String())
	}
}

func TestServeShutsDownOnCancel(t *testing.T) {
	srv := NewServer("127.0.0.1:0", setupRouter(t, newFakeController(), ""))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, srv) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
