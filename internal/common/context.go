package common

import (
	"context"
	"log/slog"
)

// Context keys for storing values in context
type contextKey string

const (
	ContextKeyRequestID contextKey = "request_id"
	ContextKeyTask      contextKey = "task"
)

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// RequestIDFromContext extracts the request ID from context
func RequestIDFromContext(ctx context.Context) string {
	if requestID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return requestID
	}
	return ""
}

// WithTask tags the context with the name of the running task
func WithTask(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, ContextKeyTask, name)
}

// TaskFromContext extracts the task name from context
func TaskFromContext(ctx context.Context) string {
	if name, ok := ctx.Value(ContextKeyTask).(string); ok {
		return name
	}
	return ""
}

// LoggerFrom decorates logger with the request id and task carried by ctx.
func LoggerFrom(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	if id := RequestIDFromContext(ctx); id != "" {
		logger = logger.With("request_id", id)
	}
	if task := TaskFromContext(ctx); task != "" {
		logger = logger.With("task", task)
	}
	return logger
}
