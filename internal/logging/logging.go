// Package logging builds the slog loggers used by the server and the CLI.
package logging

import (
	"io"
	"log/slog"
	"strconv"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls handler choice and level.
type Options struct {
	Level     string
	Format    string // json or text
	AddSource bool
}

// FileOptions describes a rotating log file.
type FileOptions struct {
	Filename   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// New returns a logger writing to w.
func New(w io.Writer, opts Options) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{
		AddSource: opts.AddSource,
		Level:     ParseLevel(opts.Level, slog.LevelInfo),
	}

	var handler slog.Handler
	if strings.EqualFold(opts.Format, "text") {
		handler = slog.NewTextHandler(w, handlerOpts)
	} else {
		handler = slog.NewJSONHandler(w, handlerOpts)
	}
	return slog.New(handler)
}

// NewFile returns a logger backed by a rotating file and the writer, which the caller closes.
func NewFile(file FileOptions, opts Options) (*slog.Logger, io.WriteCloser) {
	w := &lumberjack.Logger{
		Filename:   file.Filename,
		MaxSize:    file.MaxSizeMB,
		MaxBackups: file.MaxBackups,
		MaxAge:     file.MaxAgeDays,
		Compress:   file.Compress,
	}
	return New(w, opts), w
}

// ParseLevel accepts names and numeric slog levels, falling back to defaultLevel.
func ParseLevel(value string, defaultLevel slog.Level) slog.Level {
	level := strings.ToLower(strings.TrimSpace(value))
	if level == "" {
		return defaultLevel
	}

	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}

	if n, err := strconv.Atoi(level); err == nil {
		return slog.Level(n)
	}
	return defaultLevel
}
