package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation settings, used when Rotate is set and a field is zero.
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// Config describes where a managed process writes its stdout and stderr.
// Both streams go to the same file, like the "<state_dir>/.<name>_events"
// files the audio player daemons are read back from.
//
// Without Rotate the file is truncated on every start and handed to the
// child as a plain descriptor, so the child keeps writing after the launcher
// exits. With Rotate the output is piped through lumberjack, which only makes
// sense while the launcher stays resident.
type Config struct {
	Path       string `json:"path,omitempty" mapstructure:"path"`
	Rotate     bool   `json:"rotate,omitempty" mapstructure:"rotate"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty" mapstructure:"max_size_mb"`
	MaxBackups int    `json:"max_backups,omitempty" mapstructure:"max_backups"`
	MaxAgeDays int    `json:"max_age_days,omitempty" mapstructure:"max_age_days"`
	Compress   bool   `json:"compress,omitempty" mapstructure:"compress"`
}

// Writer opens the output destination. It returns (nil, nil) when no path is
// configured; callers then discard output.
func (c Config) Writer() (io.WriteCloser, error) {
	if c.Path == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(c.Path), 0o750); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	if c.Rotate {
		return c.rotating(c.Path), nil
	}
	// #nosec G304 -- path comes from the unit configuration
	f, err := os.OpenFile(c.Path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

func (c Config) rotating(path string) *lj.Logger {
	return &lj.Logger{
		Filename:   path,
		MaxSize:    valOr(c.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(c.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(c.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   c.Compress,
	}
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
