package forma

import (
	"log/slog"

	"github.com/formaproject/forma/cursor"
)

// Option configures a Format.
type Option func(*Format)

// WithCompression selects the payload compression for Save. Load ignores
// it and follows the container header.
func WithCompression(c cursor.Compression) Option {
	return func(f *Format) {
		f.compression = c
	}
}

// WithLogger configures structured logging.
func WithLogger(l *Logger) Option {
	return func(f *Format) {
		if l != nil {
			f.logger = l
		}
	}
}

// WithLogLevel is shorthand for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(f *Format) {
		f.logger = NewTextLogger(level)
	}
}
