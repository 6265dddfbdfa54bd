package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type contextKey struct{}

// Format selects the log encoding.
type Format string

const (
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

// Options configures a logger built by Configure.
type Options struct {
	Level  string // zerolog level name, "info" when empty
	Format Format
	Out    io.Writer // os.Stdout when nil
}

// New returns a console logger at info level.
func New() zerolog.Logger {
	return Configure(Options{})
}

// NewWithWriter returns a JSON logger that writes to w at debug level.
func NewWithWriter(w io.Writer) zerolog.Logger {
	return zerolog.New(w).Level(zerolog.DebugLevel).With().Timestamp().Logger()
}

// Configure builds the process logger. An unknown level falls back to info.
func Configure(opts Options) zerolog.Logger {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(opts.Level)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var w io.Writer = out
	if opts.Format != FormatJSON {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	return zerolog.New(w).Level(level).With().Timestamp().Caller().Logger()
}

// WithContext stores the logger in ctx.
func WithContext(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext returns the logger stored in ctx, or a default one.
func FromContext(ctx context.Context) zerolog.Logger {
	if logger, ok := ctx.Value(contextKey{}).(zerolog.Logger); ok {
		return logger
	}
	return New()
}

// WithFields returns a child of the context logger carrying fields, and a
// context holding it.
func WithFields(ctx context.Context, fields map[string]interface{}) (context.Context, zerolog.Logger) {
	c := FromContext(ctx).With()
	for k, v := range fields {
		c = c.Interface(k, v)
	}
	l := c.Logger()
	return WithContext(ctx, l), l
}
