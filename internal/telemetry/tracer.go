package telemetry

import (
	"context"
	"strings"

	"github.com/marmos91/kvcontainer/internal/logger"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys for container operations.
const (
	// ========================================================================
	// Container attributes
	// ========================================================================
	AttrContainerID   = "container.id"
	AttrSchemaVersion = "container.schema_version"
	AttrForce         = "container.force"
	AttrVolume        = "container.volume"
	AttrReason        = "container.reason"

	// ========================================================================
	// Reconcile attributes
	// ========================================================================
	AttrFullScan      = "reconcile.full_scan"
	AttrCorruptBlocks = "reconcile.corrupt_blocks"

	// ========================================================================
	// Store attributes
	// ========================================================================
	AttrStorePath = "store.path"
	AttrUncached  = "store.uncached"
)

// Span names for operations.
// Format: <component>.<operation>
const (
	SpanContainerCreate    = "container.create"
	SpanContainerLoad      = "container.load"
	SpanContainerReconcile = "container.reconcile"
	SpanContainerDelete    = "container.delete"
	SpanContainerPutBlock  = "container.put_block"
	SpanContainerMarkDel   = "container.mark_deleted"
	SpanVolumeLoad         = "volume.load"
)

// ContainerID returns an attribute for a container identifier
func ContainerID(id int64) attribute.KeyValue {
	return attribute.Int64(AttrContainerID, id)
}

// SchemaVersion returns an attribute for a store schema version
func SchemaVersion(v string) attribute.KeyValue {
	return attribute.String(AttrSchemaVersion, v)
}

// StorePath returns an attribute for a store path
func StorePath(p string) attribute.KeyValue {
	return attribute.String(AttrStorePath, p)
}

// Force returns an attribute for a forced operation
func Force(force bool) attribute.KeyValue {
	return attribute.Bool(AttrForce, force)
}

// Volume returns an attribute for a volume root
func Volume(root string) attribute.KeyValue {
	return attribute.String(AttrVolume, root)
}

// Reason returns an attribute for a failure reason
func Reason(reason string) attribute.KeyValue {
	return attribute.String(AttrReason, reason)
}

// FullScan returns an attribute marking a reconcile that rescanned the block table
func FullScan(full bool) attribute.KeyValue {
	return attribute.Bool(AttrFullScan, full)
}

// CorruptBlocks returns an attribute for blocks skipped during a scan
func CorruptBlocks(n int) attribute.KeyValue {
	return attribute.Int(AttrCorruptBlocks, n)
}

// Uncached returns an attribute marking a store opened outside the cache
func Uncached(uncached bool) attribute.KeyValue {
	return attribute.Bool(AttrUncached, uncached)
}

// Container identifies the container a span operates on.
type Container struct {
	ID            int64
	SchemaVersion string
	StorePath     string
	Volume        string
}

// Attributes returns the span attributes describing c.
func (c Container) Attributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{ContainerID(c.ID)}
	if c.SchemaVersion != "" {
		attrs = append(attrs, SchemaVersion(c.SchemaVersion))
	}
	if c.StorePath != "" {
		attrs = append(attrs, StorePath(c.StorePath))
	}
	if c.Volume != "" {
		attrs = append(attrs, Volume(c.Volume))
	}
	return attrs
}

// StartContainerSpan starts a span for a container lifecycle operation and
// binds a logger.LogContext carrying the container and the new span's ids,
// so that every *Ctx log line inside the operation names the container and
// links to the trace.
func StartContainerSpan(ctx context.Context, name string, c Container, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := append(c.Attributes(), attrs...)
	ctx, span := StartSpan(ctx, name, trace.WithAttributes(all...))

	lc := logger.FromContext(ctx).Clone()
	if lc == nil {
		lc = &logger.LogContext{}
	}
	lc.Operation = strings.TrimPrefix(name, "container.")
	lc.ContainerID = c.ID
	lc.SchemaVersion = c.SchemaVersion
	lc.StorePath = c.StorePath
	if c.Volume != "" {
		lc.Volume = c.Volume
	}
	if sc := span.SpanContext(); sc.IsValid() {
		lc.TraceID = sc.TraceID().String()
		lc.SpanID = sc.SpanID().String()
	}
	return logger.WithContext(ctx, lc), span
}
