// Package simlog provides the structured, component-scoped logger used
// across the simulator. It keeps the field-based constructor shape of
// the project's original component logger but is backed by log/slog,
// matching the logging story the project's own gossip and reputation
// packages already standardized on.
package simlog

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps a *slog.Logger scoped to one component.
type Logger struct {
	slog *slog.Logger
}

// New creates a component-scoped logger writing to os.Stdout as JSON,
// at the given minimum level.
func New(component string, level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return &Logger{slog: slog.New(handler).With("component", component)}
}

// Default returns an INFO-level logger for component, matching the
// project's DefaultLogger convenience constructor.
func Default(component string) *Logger {
	return New(component, slog.LevelInfo)
}

// With returns a derived logger with additional persistent key/value
// fields attached, mirroring slog's own With but keeping the
// Logger wrapper type.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{slog: l.slog.With(args...)}
}

func (l *Logger) Debug(msg string, args ...any) { l.slog.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.slog.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.slog.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.slog.Error(msg, args...) }

// InfoCtx/ErrorCtx pass a context through to the underlying slog
// handler, for call sites that carry one, such as Harness.RunMany's
// per-run completion and cancellation logging.
func (l *Logger) InfoCtx(ctx context.Context, msg string, args ...any) {
	l.slog.InfoContext(ctx, msg, args...)
}

func (l *Logger) ErrorCtx(ctx context.Context, msg string, args ...any) {
	l.slog.ErrorContext(ctx, msg, args...)
}
