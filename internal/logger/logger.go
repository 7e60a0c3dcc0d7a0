package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options configures the process-wide slog logger.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // text, color, json
	// File, when set, receives the log through a rotating lumberjack writer
	// instead of stderr. Rotation uses the Config fields below.
	File string
	Config
}

// ParseLevel maps a level name to slog.Level. Unknown names are an error.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// New builds a logger from opts. The returned closer releases the log file,
// if any, and is never nil.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	lvl, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}
	var (
		w      io.Writer = os.Stderr
		closer io.Closer = io.NopCloser(nil)
	)
	if opts.File != "" {
		lj := opts.Config.rotating(opts.File)
		w, closer = lj, lj
	}
	ho := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler
	switch strings.ToLower(opts.Format) {
	case "json":
		h = slog.NewJSONHandler(w, ho)
	case "text":
		h = slog.NewTextHandler(w, ho)
	case "", "color":
		if opts.File != "" {
			h = slog.NewTextHandler(w, ho)
		} else {
			h = NewColorTextHandler(w, ho)
		}
	default:
		return nil, nil, fmt.Errorf("unknown log format %q", opts.Format)
	}
	return slog.New(h), closer, nil
}

// Setup builds a logger from opts and installs it as the slog default.
func Setup(opts Options) (io.Closer, error) {
	l, c, err := New(opts)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(l)
	return c, nil
}
