package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default logging configuration constants
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// Config describes the daemon's log output. Records always go to stderr;
// when File is set they are also written, uncolored, to a rotated file.
// Rotation parameters follow lumberjack semantics.
type Config struct {
	Level      string // debug, info, warn or error (default info)
	Color      bool   // ANSI colored levels on stderr
	File       string // optional log file
	MaxSizeMB  int    // megabytes before rotation (default 10)
	MaxBackups int    // number of backups to keep (default 3)
	MaxAgeDays int    // days to keep (default 7)
	Compress   bool   // Gzip rotated files
}

// ParseLevel maps a level name to a slog.Level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if strings.TrimSpace(s) == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return l, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return l, nil
}

// FileWriter returns the rotating writer for c.File, or nil when no file is configured.
func (c Config) FileWriter() io.WriteCloser {
	if c.File == "" {
		return nil
	}
	return &lj.Logger{
		Filename:   c.File,
		MaxSize:    valOr(c.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(c.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(c.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   c.Compress,
	}
}

// New builds a logger writing to stderr. The returned closer releases the log
// file, if any.
func New(c Config) (*slog.Logger, io.Closer, error) {
	return NewWithWriter(c, os.Stderr)
}

// NewWithWriter is New with a custom console writer.
func NewWithWriter(c Config, console io.Writer) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(c.Level)
	if err != nil {
		return nil, nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if c.Color {
		h = NewColorTextHandler(console, opts, true)
	} else {
		h = slog.NewTextHandler(console, opts)
	}

	fw := c.FileWriter()
	if fw == nil {
		return slog.New(h), nopCloser{}, nil
	}
	return slog.New(fanout{h, slog.NewTextHandler(fw, opts)}), fw, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
