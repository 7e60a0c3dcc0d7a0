package logger

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// helper to close non-nil closers and ignore errors
func closeIf(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}

func TestWriter_NoPath(t *testing.T) {
	w, err := Config{}.Writer()
	if err != nil || w != nil {
		t.Fatalf("expected nil writer without path, got %v, %v", w, err)
	}
}

func TestWriter_TruncatesOnOpen(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "sub", ".demo_events")
	cfg := Config{Path: p}

	w, err := cfg.Writer()
	if err != nil {
		t.Fatalf("Writer: %v", err)
	}
	_, _ = w.Write([]byte("first run\n"))
	closeIf(w)

	w, err = cfg.Writer()
	if err != nil {
		t.Fatalf("Writer: %v", err)
	}
	_, _ = w.Write([]byte("second\n"))
	closeIf(w)

	b, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(b) != "second\n" {
		t.Fatalf("expected truncated file, got %q", b)
	}
	if _, ok := w.(*os.File); !ok {
		t.Fatalf("expected plain file without rotation, got %T", w)
	}
}

func TestWriter_RotateDefaults(t *testing.T) {
	p := filepath.Join(t.TempDir(), "r.log")
	w, err := Config{Path: p, Rotate: true}.Writer()
	if err != nil {
		t.Fatalf("Writer: %v", err)
	}
	defer closeIf(w)
	l, ok := w.(*lj.Logger)
	if !ok {
		t.Fatalf("expected lumberjack logger, got %T", w)
	}
	if l.MaxSize != DefaultMaxSizeMB || l.MaxBackups != DefaultMaxBackups || l.MaxAge != DefaultMaxAgeDays {
		t.Fatalf("unexpected defaults: size=%d backups=%d age=%d", l.MaxSize, l.MaxBackups, l.MaxAge)
	}

	w2, _ := Config{Path: p, Rotate: true, MaxSizeMB: 1, MaxBackups: 9, MaxAgeDays: 2, Compress: true}.Writer()
	defer closeIf(w2)
	l2 := w2.(*lj.Logger)
	if l2.MaxSize != 1 || l2.MaxBackups != 9 || l2.MaxAge != 2 || !l2.Compress {
		t.Fatalf("explicit values not applied: %+v", l2)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"INFO":    slog.LevelInfo,
		"debug":   slog.LevelDebug,
		" warn ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Fatalf("ParseLevel(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestNew_FileFormats(t *testing.T) {
	for _, format := range []string{"json", "text", "color"} {
		t.Run(format, func(t *testing.T) {
			p := filepath.Join(t.TempDir(), "pasys.log")
			l, c, err := New(Options{Level: "debug", Format: format, File: p})
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			l.Info("unit started", "unit", "librespot", "pid", 42)
			closeIf(c)
			b, err := os.ReadFile(p)
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			s := string(b)
			if !strings.Contains(s, "unit started") || !strings.Contains(s, "librespot") {
				t.Fatalf("missing record in %q", s)
			}
			if format == "json" && !strings.Contains(s, `"pid":42`) {
				t.Fatalf("expected json attrs, got %q", s)
			}
			if strings.Contains(s, "\x1b[") {
				t.Fatalf("file output must not carry color codes: %q", s)
			}
		})
	}
}

func TestNew_Errors(t *testing.T) {
	if _, _, err := New(Options{Level: "loud"}); err == nil {
		t.Fatal("expected level error")
	}
	if _, _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatal("expected format error")
	}
}

func TestNew_LevelFilters(t *testing.T) {
	p := filepath.Join(t.TempDir(), "lvl.log")
	l, c, err := New(Options{Level: "warn", Format: "text", File: p})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Info("hidden")
	l.Warn("shown")
	closeIf(c)
	b, _ := os.ReadFile(p)
	if strings.Contains(string(b), "hidden") || !strings.Contains(string(b), "shown") {
		t.Fatalf("unexpected output %q", b)
	}
}

func TestColorTextHandler(t *testing.T) {
	var buf bytes.Buffer
	h := NewColorTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	l := slog.New(h.WithAttrs([]slog.Attr{slog.String("unit", "jack_sink")}))
	l.Error("start failed")
	if !h.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("handler should be enabled at debug")
	}
	s := buf.String()
	if !strings.Contains(s, "start failed") || !strings.Contains(s, "jack_sink") {
		t.Fatalf("unexpected output %q", s)
	}
}
