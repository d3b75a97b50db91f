// Package prometheus provides the Prometheus implementations of the
// container and store cache metrics interfaces.
package prometheus

import (
	"strconv"
	"time"

	"github.com/marmos91/kvcontainer/pkg/container"
	"github.com/marmos91/kvcontainer/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// containerMetrics is the Prometheus implementation of container.Metrics.
type containerMetrics struct {
	loads         *prometheus.CounterVec
	loadDuration  *prometheus.HistogramVec
	reconciles    *prometheus.CounterVec
	corruptBlocks prometheus.Counter
	deletes       *prometheus.CounterVec
}

// NewContainerMetrics creates Prometheus-backed container lifecycle metrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewContainerMetrics() container.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &containerMetrics{
		loads: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metrics.Namespace,
				Name:      "container_loads_total",
				Help:      "Total number of container loads by outcome",
			},
			[]string{"outcome"}, // "loaded", "skipped", "failed"
		),
		loadDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metrics.Namespace,
				Name:      "container_load_duration_milliseconds",
				Help:      "Duration of container loads in milliseconds",
				Buckets: []float64{
					1,     // fast path, counters present
					5,     // 5ms
					10,    // 10ms
					50,    // 50ms
					100,   // 100ms
					500,   // 500ms - full scan of a busy container
					1000,  // 1s
					5000,  // 5s
					30000, // 30s
				},
			},
			[]string{"outcome"},
		),
		reconciles: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metrics.Namespace,
				Name:      "container_reconciles_total",
				Help:      "Total number of reconciles by whether counters were recomputed",
			},
			[]string{"full_scan"},
		),
		corruptBlocks: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: metrics.Namespace,
				Name:      "container_corrupt_blocks_total",
				Help:      "Total number of undecodable blocks skipped during reconcile",
			},
		),
		deletes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metrics.Namespace,
				Name:      "container_deletes_total",
				Help:      "Total number of container deletes by force flag and outcome",
			},
			[]string{"force", "outcome"}, // outcome: "deleted", a NotEmptyReason, "error"
		),
	}
}

func (m *containerMetrics) RecordLoad(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.loads.WithLabelValues(outcome).Inc()
	m.loadDuration.WithLabelValues(outcome).Observe(duration.Seconds() * 1000)
}

func (m *containerMetrics) RecordReconcile(fullScan bool, corruptBlocks int) {
	if m == nil {
		return
	}
	m.reconciles.WithLabelValues(strconv.FormatBool(fullScan)).Inc()
	if corruptBlocks > 0 {
		m.corruptBlocks.Add(float64(corruptBlocks))
	}
}

func (m *containerMetrics) RecordDelete(force bool, outcome string) {
	if m == nil {
		return
	}
	m.deletes.WithLabelValues(strconv.FormatBool(force), outcome).Inc()
}
