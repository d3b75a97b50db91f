package logger

import (
	"context"
)

type contextKey struct{}

var logContextKey = contextKey{}

// LogContext carries the container an operation is working on. The *Ctx
// logging functions prepend its non-empty fields to every record.
type LogContext struct {
	TraceID       string
	SpanID        string
	Operation     string // create, load, reconcile, delete, put_block, mark_deleted
	ContainerID   int64
	SchemaVersion string
	StorePath     string
	Volume        string
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	clone := *lc
	return &clone
}

// args returns the fields as slog key/value pairs, identity first.
func (lc *LogContext) args() []any {
	out := make([]any, 0, 14)
	if lc.ContainerID != 0 {
		out = append(out, KeyContainerID, lc.ContainerID)
	}
	if lc.SchemaVersion != "" {
		out = append(out, KeySchemaVersion, lc.SchemaVersion)
	}
	if lc.Operation != "" {
		out = append(out, KeyOperation, lc.Operation)
	}
	if lc.Volume != "" {
		out = append(out, KeyVolume, lc.Volume)
	}
	if lc.StorePath != "" {
		out = append(out, KeyStorePath, lc.StorePath)
	}
	if lc.TraceID != "" {
		out = append(out, KeyTraceID, lc.TraceID)
	}
	if lc.SpanID != "" {
		out = append(out, KeySpanID, lc.SpanID)
	}
	return out
}
