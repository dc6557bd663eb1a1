package heapcore

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with heapcore-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return NewLogger(slog.DiscardHandler)
}

// WithGeneration adds a generation field to the logger.
func (l *Logger) WithGeneration(gen int) *Logger {
	return &Logger{
		Logger: l.Logger.With("generation", gen),
	}
}

// WithType adds a type name field to the logger.
func (l *Logger) WithType(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("type", name),
	}
}

// LogCollection logs a finished collection pass.
func (l *Logger) LogCollection(ctx context.Context, res CollectionResult) {
	l.DebugContext(ctx, "collection completed",
		"generation", res.Generation,
		"examined", res.Examined,
		"collected", res.Collected,
		"resurrected", res.Resurrected,
		"bytes_reclaimed", res.BytesReclaimed,
		"duration", res.Duration,
	)
}

// LogFault logs a consistency fault before the runtime panics.
func (l *Logger) LogFault(ctx context.Context, f *Fault) {
	l.ErrorContext(ctx, "consistency fault",
		"kind", f.Kind.String(),
		"op", f.Op,
		"ref", f.Ref.String(),
		"type", f.Type,
		"detail", f.Detail,
	)
}

// LogUnraisable logs a panic recovered from a type or weak reference callback.
func (l *Logger) LogUnraisable(ctx context.Context, callback string, ref Ref, typ string, recovered any) {
	l.WarnContext(ctx, "unraisable panic in callback",
		"callback", callback,
		"ref", ref.String(),
		"type", typ,
		"panic", recovered,
	)
}

// LogAllocationFailure logs an allocation the allocator could not serve.
func (l *Logger) LogAllocationFailure(ctx context.Context, typ string, size int, err error) {
	l.WarnContext(ctx, "allocation failed",
		"type", typ,
		"size", size,
		"error", err,
	)
}

// LogClose logs runtime teardown.
func (l *Logger) LogClose(ctx context.Context, live int64, elapsed time.Duration, err error) {
	switch {
	case err != nil:
		l.ErrorContext(ctx, "close failed",
			"live_objects", live,
			"error", err,
		)
	case live > 0:
		l.WarnContext(ctx, "closed with live objects",
			"live_objects", live,
			"duration", elapsed,
		)
	default:
		l.DebugContext(ctx, "closed",
			"duration", elapsed,
		)
	}
}
