package vecfile

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with vecfile-specific context.
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
	return NewLogger(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	}))
}

// WithStore tags every record with the store name.
func (l *Logger) WithStore(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("store", name),
	}
}

// LogCreate logs store creation.
func (l *Logger) LogCreate(ctx context.Context, elementSize, elementsPerPage uint32, err error) {
	if err != nil {
		l.ErrorContext(ctx, "create failed",
			"element_size", elementSize,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "store created",
		"element_size", elementSize,
		"elements_per_page", elementsPerPage,
	)
}

// LogFlush logs a commit of all pending pages.
func (l *Logger) LogFlush(ctx context.Context, count, lastPage uint32, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "flush failed",
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "flush completed",
		"count", count,
		"last_page", lastPage,
		"duration", duration,
	)
}

// LogRecover logs a discard of all pending pages.
func (l *Logger) LogRecover(ctx context.Context, err error) {
	if err != nil {
		l.ErrorContext(ctx, "recover failed",
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "pending pages discarded")
}

// LogExpand logs page growth.
func (l *Logger) LogExpand(ctx context.Context, key, fromPage, toPage uint32, err error) {
	if err != nil {
		l.ErrorContext(ctx, "expand failed",
			"key", key,
			"last_page", fromPage,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "expand completed",
		"key", key,
		"from_page", fromPage,
		"to_page", toPage,
	)
}

// LogVerify logs the outcome of a verification pass.
func (l *Logger) LogVerify(ctx context.Context, pages, keys uint32, problems int) {
	if problems > 0 {
		l.WarnContext(ctx, "verify found problems",
			"pages", pages,
			"keys", keys,
			"problems", problems,
		)
		return
	}
	l.InfoContext(ctx, "verify completed",
		"pages", pages,
		"keys", keys,
	)
}

// LogBackup logs an archive upload.
func (l *Logger) LogBackup(ctx context.Context, name string, pages uint32, bytes int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "backup failed",
			"name", name,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "backup completed",
		"name", name,
		"pages", pages,
		"bytes", bytes,
	)
}

// LogRestore logs an archive restore.
func (l *Logger) LogRestore(ctx context.Context, name string, pages uint32, err error) {
	if err != nil {
		l.ErrorContext(ctx, "restore failed",
			"name", name,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "restore completed",
		"name", name,
		"pages", pages,
	)
}
