package prometheus

import (
	"github.com/marmos91/kvcontainer/pkg/metrics"
	"github.com/marmos91/kvcontainer/pkg/store/dbcache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// storeCacheMetrics is the Prometheus implementation of dbcache.Metrics.
type storeCacheMetrics struct {
	openStores prometheus.Gauge
	lookups    *prometheus.CounterVec
	evictions  *prometheus.CounterVec
}

// NewStoreCacheMetrics creates Prometheus-backed handle cache metrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewStoreCacheMetrics() dbcache.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &storeCacheMetrics{
		openStores: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: metrics.Namespace,
				Name:      "store_cache_open_stores",
				Help:      "Current number of stores held open by the handle cache",
			},
		),
		lookups: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metrics.Namespace,
				Name:      "store_cache_lookups_total",
				Help:      "Total number of handle cache lookups by result",
			},
			[]string{"result"}, // "hit", "miss"
		),
		evictions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metrics.Namespace,
				Name:      "store_cache_evictions_total",
				Help:      "Total number of stores closed by the handle cache by reason",
			},
			[]string{"reason"}, // "capacity", "force"
		),
	}
}

func (m *storeCacheMetrics) SetOpenStores(n int) {
	if m == nil {
		return
	}
	m.openStores.Set(float64(n))
}

func (m *storeCacheMetrics) RecordHit() {
	if m == nil {
		return
	}
	m.lookups.WithLabelValues("hit").Inc()
}

func (m *storeCacheMetrics) RecordMiss() {
	if m == nil {
		return
	}
	m.lookups.WithLabelValues("miss").Inc()
}

func (m *storeCacheMetrics) RecordEviction(reason string) {
	if m == nil {
		return
	}
	m.evictions.WithLabelValues(reason).Inc()
}
