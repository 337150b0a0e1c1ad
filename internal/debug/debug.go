// Package debug carries the --debug flag through context and configures slog.
package debug

import (
	"context"
	"io"
	"log/slog"
	"os"
)

type contextKey string

const debugKey contextKey = "debug_enabled"

// WithDebug returns a context with debug mode enabled/disabled.
func WithDebug(ctx context.Context, enabled bool) context.Context {
	return context.WithValue(ctx, debugKey, enabled)
}

// IsEnabled returns true if debug mode is enabled in the context.
func IsEnabled(ctx context.Context) bool {
	if v, ok := ctx.Value(debugKey).(bool); ok {
		return v
	}
	return false
}

// LoggerOptions controls where and how diagnostics are written.
type LoggerOptions struct {
	Debug bool
	JSON  bool
	// Writer defaults to os.Stderr so stdout stays parseable.
	Writer io.Writer
}

// NewLogger builds a logger at debug level when enabled and warn otherwise.
func NewLogger(opts LoggerOptions) *slog.Logger {
	level := slog.LevelWarn
	if opts.Debug {
		level = slog.LevelDebug
	}
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	if opts.JSON {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

// SetupLogger installs NewLogger's result as the slog default.
func SetupLogger(opts LoggerOptions) {
	slog.SetDefault(NewLogger(opts))
}
