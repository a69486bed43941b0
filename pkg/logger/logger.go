// Package logger builds the slog loggers handed to every component. Loggers
// are created once in main and passed explicitly; nothing captures the
// process default at construction time.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

type contextKey struct{}

// Options describes a service logger.
type Options struct {
	Level   string
	Format  string
	Service string
	// Dir enables an additional rotating file sink at Dir/<Service>.log.
	Dir string
	// Output defaults to os.Stdout.
	Output io.Writer
}

// New returns a logger tagged with the service name.
func New(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	if opts.Dir != "" {
		out = io.MultiWriter(out, &lumberjack.Logger{
			Filename:   filepath.Join(opts.Dir, opts.Service+".log"),
			MaxSize:    10,
			MaxBackups: 5,
			Compress:   true,
		})
	}
	handlerOpts := &slog.HandlerOptions{
		Level: ParseLevel(opts.Level),
	}
	var handler slog.Handler
	switch opts.Format {
	case "json":
		handler = slog.NewJSONHandler(out, handlerOpts)
	default:
		handler = slog.NewTextHandler(out, handlerOpts)
	}
	l := slog.New(handler)
	if opts.Service != "" {
		l = l.With("service", opts.Service)
	}
	return l
}

// Setup builds a logger and installs it as the slog default. It is meant for
// main; components should take the returned logger as a parameter.
func Setup(opts Options) *slog.Logger {
	l := New(opts)
	slog.SetDefault(l)
	return l
}

// WithRunID stores a sweep run identifier in ctx.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, contextKey{}, runID)
}

// FromContext returns base (or the default logger) enriched with the run id
// stored in ctx, if any.
func FromContext(ctx context.Context, base *slog.Logger) *slog.Logger {
	l := OrDefault(base)
	if runID, ok := ctx.Value(contextKey{}).(string); ok {
		l = l.With("run_id", runID)
	}
	return l
}

// WithComponent tags base with a component name.
func WithComponent(base *slog.Logger, component string) *slog.Logger {
	return OrDefault(base).With("component", component)
}

// OrDefault returns l, or slog.Default() when l is nil.
func OrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

// ParseLevel maps a level name to a slog.Level. Names are case-insensitive
// and unknown names fall back to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "critical", "fatal":
		return slog.LevelError + 4
	default:
		return slog.LevelInfo
	}
}
