package types

import "context"

// contextKey is used for storing values in context.Context.
type contextKey string

const (
	keyTraceID contextKey = "trace_id"
	keyRunID   contextKey = "run_id"
	keyEpoch   contextKey = "epoch"
)

// WithTraceID adds trace ID to context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, keyTraceID, traceID)
}

// TraceID extracts trace ID from context.
func TraceID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyTraceID).(string)
	return v, ok && v != ""
}

// WithRunID adds training run ID to context.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, keyRunID, runID)
}

// RunID extracts training run ID from context.
func RunID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyRunID).(string)
	return v, ok && v != ""
}

// WithEpoch adds the current epoch index to context.
func WithEpoch(ctx context.Context, epoch int) context.Context {
	return context.WithValue(ctx, keyEpoch, epoch)
}

// Epoch extracts the current epoch index from context.
func Epoch(ctx context.Context) (int, bool) {
	v, ok := ctx.Value(keyEpoch).(int)
	return v, ok
}
