package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

type memSink struct {
	events []Event
	err    error
}

func (m *memSink) Send(_ context.Context, e Event) error {
	m.events = append(m.events, e)
	return m.err
}

func TestMultiFansOutAndJoinsErrors(t *testing.T) {
	a, b := &memSink{}, &memSink{err: errors.New("broker down")}
	m := Multi{a, b}
	err := m.Send(context.Background(), Event{Type: EventStart, Record: Record{Unit: "mpd"}})
	if err == nil || err.Error() != "broker down" {
		t.Fatalf("expected joined error, got %v", err)
	}
	if len(a.events) != 1 || len(b.events) != 1 {
		t.Fatalf("event not delivered to every sink")
	}
	if err := m.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if m.Reader() != nil {
		t.Fatalf("memSink cannot be read back")
	}
}

func TestMultiReaderFindsSQLSink(t *testing.T) {
	s, err := NewSQLSinkFromDSN("sqlite://" + filepath.Join(t.TempDir(), "h.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	m := Multi{&memSink{}, s}
	defer func() { _ = m.Close() }()
	if m.Reader() == nil {
		t.Fatalf("expected sql sink as reader")
	}
}

func TestSQLSinkSQLiteRoundTrip(t *testing.T) {
	dsn := "sqlite://" + filepath.Join(t.TempDir(), "history.db")
	s, err := NewSQLSinkFromDSN(dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	started := time.Now().Add(-time.Minute).UTC().Truncate(time.Second)
	events := []Event{
		{Type: EventStart, OccurredAt: started, Record: Record{Unit: "librespot", PID: 4242, StartedAt: started}},
		{Type: EventStartFailed, OccurredAt: time.Now().UTC(), Record: Record{Unit: "lcd", Detail: "readiness timeout"}},
		{Type: EventStop, OccurredAt: time.Now().UTC(), Record: Record{Unit: "librespot", PID: 4242, StartedAt: started, StoppedAt: time.Now().UTC(), ExitErr: "signal: terminated"}},
	}
	for _, e := range events {
		if err := s.Send(ctx, e); err != nil {
			t.Fatalf("send %s: %v", e.Type, err)
		}
	}

	got, err := s.Recent(ctx, "librespot", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 librespot events, got %d", len(got))
	}
	if got[0].Type != EventStop || got[0].Record.ExitErr != "signal: terminated" {
		t.Fatalf("newest first expected, got %+v", got[0])
	}
	if got[1].Record.PID != 4242 || !got[1].Record.StartedAt.Equal(started) {
		t.Fatalf("start event fields lost: %+v", got[1])
	}

	all, err := s.Recent(ctx, "", 0)
	if err != nil || len(all) != 3 {
		t.Fatalf("recent all: n=%d err=%v", len(all), err)
	}
	if all[1].Record.Detail != "readiness timeout" {
		t.Fatalf("detail lost: %+v", all[1])
	}
}

func TestSQLSinkBindPostgres(t *testing.T) {
	s := &SQLSink{dialect: "postgres"}
	if got := s.bind("a = ? AND b = ?"); got != "a = $1 AND b = $2" {
		t.Fatalf("bind: %q", got)
	}
	s.dialect = "sqlite"
	if got := s.bind("a = ?"); got != "a = ?" {
		t.Fatalf("sqlite bind changed query: %q", got)
	}
}

func TestNewSQLSinkEmptyDSN(t *testing.T) {
	if _, err := NewSQLSinkFromDSN("  "); err == nil {
		t.Fatalf("expected error")
	}
}
