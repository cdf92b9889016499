package logging

import (
	"context"
)

// contextKey is an unexported type for context keys to prevent collisions
type contextKey struct{}

var loggerKey = contextKey{}

// WithLogger returns a new context carrying logger
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext returns the logger stored in ctx, or the default logger
func FromContext(ctx context.Context) Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerKey).(Logger); ok && logger != nil {
			return logger
		}
	}
	return DefaultLogger()
}
