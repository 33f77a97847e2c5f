package forma

import (
	"io"
	"log/slog"
	"math"
	"os"
)

// Logger wraps slog.Logger with consistent field names for this package.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a Logger with the given handler. A nil handler means
// text output to stderr at info level.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{Logger: slog.New(handler)}
}

// NewTextLogger creates a Logger with human-readable text output.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NewJSONLogger creates a Logger with JSON output.
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NoopLogger creates a Logger that discards all output.
func NoopLogger() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)}))}
}

// WithFile returns a Logger scoped to one input file.
func (l *Logger) WithFile(name string) *Logger {
	return &Logger{Logger: l.Logger.With(slog.String("file", name))}
}

// WithFormat returns a Logger carrying the format and user version.
func (l *Logger) WithFormat(version, userVersion uint32) *Logger {
	return &Logger{Logger: l.Logger.With(
		slog.Uint64("version", uint64(version)),
		slog.Uint64("user_version", uint64(userVersion)),
	)}
}
