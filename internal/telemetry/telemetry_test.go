package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/marmos91/kvcontainer/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// useRecorder installs an in-memory tracer for the duration of the test.
func useRecorder(t *testing.T, rate float64) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(rec),
		sdktrace.WithSampler(newSampler(rate)),
	)
	prev := tracer
	tracer = tp.Tracer("kvcontainer-test")
	t.Cleanup(func() {
		tracer = prev
		_ = tp.Shutdown(context.Background())
	})
	return rec
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.False(t, cfg.Enabled)
	assert.Equal(t, "kvcontainer", cfg.ServiceName)
	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.True(t, cfg.Insecure)
	assert.Equal(t, 1.0, cfg.SampleRate)
	assert.Empty(t, cfg.NodeID)
	assert.Empty(t, cfg.Volume)
}

func TestInitDisabled(t *testing.T) {
	ctx := context.Background()

	shutdown, err := Init(ctx, DefaultConfig())
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(ctx))
	assert.False(t, IsEnabled())

	// Container spans still work against the no-op tracer.
	_, span := StartContainerSpan(ctx, SpanContainerLoad, Container{ID: 1})
	assert.False(t, span.SpanContext().IsValid())
	span.End()
}

func TestResourceAttributes(t *testing.T) {
	cfg := DefaultConfig()
	attrs := resourceAttributes(cfg)
	assert.Len(t, attrs, 2)

	cfg.NodeID = "6f1c2d1e-8f0a-4b6a-9c55-0d4a3c1e2b7f"
	cfg.Volume = "/data/hdds"
	attrs = resourceAttributes(cfg)
	assert.Contains(t, attrs, semconv.ServiceInstanceID(cfg.NodeID))
	assert.Contains(t, attrs, attribute.String(AttrResourceVolume, "/data/hdds"))
}

func TestContainerAttributes(t *testing.T) {
	assert.Equal(t, []attribute.KeyValue{ContainerID(42)}, Container{ID: 42}.Attributes())

	full := Container{ID: 42, SchemaVersion: "3", StorePath: "/vol/container.db", Volume: "/vol"}
	assert.Equal(t, []attribute.KeyValue{
		ContainerID(42),
		SchemaVersion("3"),
		StorePath("/vol/container.db"),
		Volume("/vol"),
	}, full.Attributes())
}

func TestStartContainerSpanRecordsAttributes(t *testing.T) {
	rec := useRecorder(t, 1.0)

	c := Container{ID: 7, SchemaVersion: "2", StorePath: "/m/7-dn-container.db"}
	_, span := StartContainerSpan(context.Background(), SpanContainerDelete, c, Force(true))
	span.End()

	ended := rec.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, SpanContainerDelete, ended[0].Name())
	got := ended[0].Attributes()
	assert.Contains(t, got, ContainerID(7))
	assert.Contains(t, got, SchemaVersion("2"))
	assert.Contains(t, got, StorePath("/m/7-dn-container.db"))
	assert.Contains(t, got, Force(true))
}

func TestStartContainerSpanBindsLogContext(t *testing.T) {
	useRecorder(t, 1.0)

	parent := logger.WithContext(context.Background(), &logger.LogContext{Volume: "/vol"})
	c := Container{ID: 3, SchemaVersion: "3", StorePath: "/vol/container.db"}
	ctx, span := StartContainerSpan(parent, SpanContainerReconcile, c)
	defer span.End()

	lc := logger.FromContext(ctx)
	require.NotNil(t, lc)
	assert.Equal(t, "reconcile", lc.Operation)
	assert.Equal(t, int64(3), lc.ContainerID)
	assert.Equal(t, "3", lc.SchemaVersion)
	assert.Equal(t, "/vol/container.db", lc.StorePath)
	assert.Equal(t, "/vol", lc.Volume)
	assert.Equal(t, span.SpanContext().TraceID().String(), lc.TraceID)
	assert.Equal(t, span.SpanContext().SpanID().String(), lc.SpanID)

	// The parent's LogContext is left untouched.
	assert.Zero(t, logger.FromContext(parent).ContainerID)
}

func TestSamplerKeepsDeletesAndReconciles(t *testing.T) {
	rec := useRecorder(t, 0.0)
	ctx := context.Background()

	for _, name := range []string{SpanContainerLoad, SpanContainerPutBlock, SpanContainerDelete, SpanContainerReconcile} {
		_, span := StartContainerSpan(ctx, name, Container{ID: 1})
		span.End()
	}

	var names []string
	for _, s := range rec.Ended() {
		names = append(names, s.Name())
	}
	assert.ElementsMatch(t, []string{SpanContainerDelete, SpanContainerReconcile}, names)
}

func TestSamplerChildrenFollowParent(t *testing.T) {
	rec := useRecorder(t, 0.0)

	ctx, parent := StartContainerSpan(context.Background(), SpanContainerDelete, Container{ID: 1})
	_, child := StartSpan(ctx, "store.close")
	child.End()
	parent.End()

	assert.Len(t, rec.Ended(), 2)
	assert.Contains(t, newSampler(0.5).Description(), "ContainerSampler")
}

func TestRecordError(t *testing.T) {
	rec := useRecorder(t, 1.0)

	ctx, span := StartSpan(context.Background(), SpanContainerPutBlock)
	RecordError(ctx, nil)
	RecordError(ctx, errors.New("disk full"))
	span.End()

	ended := rec.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "disk full", ended[0].Status().Description)
	require.Len(t, ended[0].Events(), 1)
}
