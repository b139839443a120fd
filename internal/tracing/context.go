package tracing

import (
	"context"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// TraceIDKey is the context key for trace ID
	TraceIDKey ContextKey = "trace_id"
	// RunIDKey identifies one Answer call within a session
	RunIDKey ContextKey = "run_id"
	// SessionIDKey is the context key for the chat session id
	SessionIDKey ContextKey = "session_id"
	// BackendKey names the backend a call is addressed to
	BackendKey ContextKey = "backend"
)

// TraceContext holds tracing information
type TraceContext struct {
	TraceID   string
	RunID     string
	SessionID string
	Backend   string
}

// NewTraceID generates a new trace ID
func NewTraceID() string {
	return uuid.New().String()
}

// NewRunID generates a short run ID
func NewRunID() string {
	id, err := gonanoid.New()
	if err != nil {
		return uuid.New().String()
	}
	return id
}

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, RunIDKey, runID)
}

func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, SessionIDKey, sessionID)
}

func WithBackend(ctx context.Context, backend string) context.Context {
	return context.WithValue(ctx, BackendKey, backend)
}

func stringValue(ctx context.Context, key ContextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// GetTraceID retrieves the trace ID from the context
func GetTraceID(ctx context.Context) string { return stringValue(ctx, TraceIDKey) }

// GetRunID retrieves the run ID from the context
func GetRunID(ctx context.Context) string { return stringValue(ctx, RunIDKey) }

// GetSessionID retrieves the session ID from the context
func GetSessionID(ctx context.Context) string { return stringValue(ctx, SessionIDKey) }

// GetBackend retrieves the backend name from the context
func GetBackend(ctx context.Context) string { return stringValue(ctx, BackendKey) }

// FromContext extracts all tracing information from the context
func FromContext(ctx context.Context) *TraceContext {
	return &TraceContext{
		TraceID:   GetTraceID(ctx),
		RunID:     GetRunID(ctx),
		SessionID: GetSessionID(ctx),
		Backend:   GetBackend(ctx),
	}
}

// NewRunContext starts a run inside a session. The trace ID is set by the
// run's first span.
func NewRunContext(ctx context.Context, sessionID string) context.Context {
	ctx = WithSessionID(ctx, sessionID)
	return WithRunID(ctx, NewRunID())
}
