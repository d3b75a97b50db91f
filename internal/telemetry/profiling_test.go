package telemetry

import (
	"context"
	"runtime/pprof"
	"testing"

	"github.com/grafana/pyroscope-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitProfilingDisabled(t *testing.T) {
	shutdown, err := InitProfiling(ProfilingConfig{Enabled: false, Endpoint: "http://localhost:4040"})
	require.NoError(t, err)
	assert.NoError(t, shutdown())
	assert.False(t, IsProfilingEnabled())
}

func TestInitProfilingRejectsUnknownType(t *testing.T) {
	_, err := InitProfiling(ProfilingConfig{
		Enabled:      true,
		Endpoint:     "http://localhost:4040",
		ProfileTypes: []string{"cpu", "heap"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"heap"`)
	assert.False(t, IsProfilingEnabled())
}

func TestParseProfileTypes(t *testing.T) {
	types, err := parseProfileTypes(DefaultProfileTypes)
	require.NoError(t, err)
	assert.Equal(t, []pyroscope.ProfileType{
		pyroscope.ProfileCPU,
		pyroscope.ProfileAllocSpace,
		pyroscope.ProfileInuseSpace,
		pyroscope.ProfileGoroutines,
	}, types)

	for _, name := range []string{"alloc_objects", "inuse_objects", "mutex_count", "mutex_duration", "block_count", "block_duration"} {
		_, err := parseProfileType(name)
		assert.NoError(t, err, name)
	}
}

func TestProfileTags(t *testing.T) {
	assert.Equal(t, map[string]string{"version": "dev"}, profileTags(ProfilingConfig{ServiceVersion: "dev"}))

	tags := profileTags(ProfilingConfig{ServiceVersion: "1.0.0", NodeID: "node-1", Volume: "/data/hdds"})
	assert.Equal(t, "node-1", tags["node_id"])
	assert.Equal(t, "/data/hdds", tags["volume"])
}

func TestProfileOperationSetsLabels(t *testing.T) {
	var got string
	ProfileOperation(context.Background(), "load", func(ctx context.Context) {
		got, _ = pprof.Label(ctx, "operation")
	})
	assert.Equal(t, "load", got)
}
