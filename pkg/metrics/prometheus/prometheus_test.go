package prometheus

import (
	"testing"
	"time"

	"github.com/marmos91/kvcontainer/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructorsReturnNilWhenDisabled(t *testing.T) {
	metrics.Reset()

	assert.Nil(t, NewContainerMetrics())
	assert.Nil(t, NewStoreCacheMetrics())
}

func TestContainerMetrics(t *testing.T) {
	metrics.Reset()
	metrics.InitRegistry()
	t.Cleanup(metrics.Reset)

	m := NewContainerMetrics()
	require.NotNil(t, m)
	cm := m.(*containerMetrics)

	m.RecordLoad("loaded", 3*time.Millisecond)
	m.RecordLoad("loaded", time.Millisecond)
	m.RecordLoad("skipped", time.Millisecond)
	m.RecordReconcile(true, 2)
	m.RecordReconcile(false, 0)
	m.RecordDelete(false, "FilesOnDisk")
	m.RecordDelete(true, "deleted")

	assert.Equal(t, 2.0, testutil.ToFloat64(cm.loads.WithLabelValues("loaded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(cm.loads.WithLabelValues("skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(cm.reconciles.WithLabelValues("true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(cm.reconciles.WithLabelValues("false")))
	assert.Equal(t, 2.0, testutil.ToFloat64(cm.corruptBlocks))
	assert.Equal(t, 1.0, testutil.ToFloat64(cm.deletes.WithLabelValues("false", "FilesOnDisk")))
	assert.Equal(t, 1.0, testutil.ToFloat64(cm.deletes.WithLabelValues("true", "deleted")))
}

func TestStoreCacheMetrics(t *testing.T) {
	metrics.Reset()
	metrics.InitRegistry()
	t.Cleanup(metrics.Reset)

	m := NewStoreCacheMetrics()
	require.NotNil(t, m)
	sm := m.(*storeCacheMetrics)

	m.SetOpenStores(3)
	m.RecordHit()
	m.RecordHit()
	m.RecordMiss()
	m.RecordEviction("capacity")

	assert.Equal(t, 3.0, testutil.ToFloat64(sm.openStores))
	assert.Equal(t, 2.0, testutil.ToFloat64(sm.lookups.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sm.lookups.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sm.evictions.WithLabelValues("capacity")))
}

func TestNilReceiversAreSafe(t *testing.T) {
	var cm *containerMetrics
	var sm *storeCacheMetrics

	assert.NotPanics(t, func() {
		cm.RecordLoad("loaded", time.Second)
		cm.RecordReconcile(true, 1)
		cm.RecordDelete(true, "deleted")
		sm.SetOpenStores(1)
		sm.RecordHit()
		sm.RecordMiss()
		sm.RecordEviction("force")
	})
}

func TestSnapshot(t *testing.T) {
	metrics.Reset()
	metrics.InitRegistry()
	t.Cleanup(metrics.Reset)

	m := NewStoreCacheMetrics()
	m.SetOpenStores(2)
	m.RecordMiss()

	samples, err := metrics.Snapshot()
	require.NoError(t, err)

	byName := map[string]float64{}
	for _, s := range samples {
		byName[s.Name] = s.Value
	}
	assert.Equal(t, 2.0, byName["kvcontainer_store_cache_open_stores"])
	assert.Equal(t, 1.0, byName["kvcontainer_store_cache_lookups_total"])
	for name := range byName {
		assert.Contains(t, name, metrics.Namespace)
	}
}
