package logging

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

type contextKey int

const (
	invocationIDKey contextKey = iota
)

// NewInvocationID returns a short random id for one CLI invocation.
func NewInvocationID() string {
	id := uuid.New().String()
	return id[:8]
}

// WithInvocationID returns a new context carrying the given invocation id.
func WithInvocationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, invocationIDKey, id)
}

// NewInvocationContext creates a background context with a generated invocation id.
func NewInvocationContext() context.Context {
	return WithInvocationID(context.Background(), NewInvocationID())
}

// InvocationIDFromContext extracts the invocation id, or "" when none is set.
func InvocationIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(invocationIDKey).(string); ok {
		return id
	}
	return ""
}

// LoggerFromContext returns the default logger annotated with the invocation id
// carried by ctx, if any.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	logger := Logger()
	if id := InvocationIDFromContext(ctx); id != "" {
		logger = logger.With(KeyInvocationID, id)
	}
	return logger
}
