// Package metrics exposes Prometheus instrumentation for the
// collector and analytics pipeline. Metrics are registered once via
// promauto and served by the dataset HTTP server on /metrics.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	upstreamRequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wfm_upstream_request_total",
			Help: "Total number of warframe.market API requests",
		},
		[]string{"endpoint", "status"},
	)

	upstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wfm_upstream_request_duration_seconds",
			Help:    "Upstream API request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
		},
		[]string{"endpoint"},
	)

	itemsSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wfm_items_skipped_total",
			Help: "Total number of per-item failures skipped during a cycle",
		},
		[]string{"phase"},
	)

	snapshotRowsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wfm_snapshot_rows_written_total",
			Help: "Total rows written into monthly partitions",
		},
		[]string{"kind"},
	)

	snapshotDuplicatesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wfm_snapshot_duplicates_dropped_total",
			Help: "Total re-polled duplicate rows dropped by first-write-wins dedup",
		},
		[]string{"kind"},
	)

	snapshotMalformedSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wfm_snapshot_malformed_skipped_total",
			Help: "Total malformed partition rows skipped on read",
		},
		[]string{"kind"},
	)

	eligibleItems = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wfm_eligible_items",
			Help: "Number of items in the current eligibility screen",
		},
	)

	setsIndexed = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wfm_sets_indexed",
			Help: "Number of sets in the last published index",
		},
	)

	reconcileDivergences = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wfm_reconcile_divergences",
			Help: "Cost divergences above tolerance in the last analytics run",
		},
	)

	pipelineRunTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wfm_pipeline_run_total",
			Help: "Total pipeline runs by job and outcome",
		},
		[]string{"job", "status"},
	)

	pipelineRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wfm_pipeline_run_duration_seconds",
			Help:    "Pipeline run duration in seconds",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 1800, 3600},
		},
		[]string{"job"},
	)

	lastRunTimestamp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wfm_last_run_timestamp_seconds",
			Help: "Unix time of the last completed run per job",
		},
		[]string{"job"},
	)
)

// Metrics records pipeline events into the Prometheus registry.
type Metrics struct{}

// NewMetrics creates a new Metrics instance.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordUpstreamRequest records one API call with its outcome.
func (m *Metrics) RecordUpstreamRequest(endpoint, status string, duration time.Duration) {
	upstreamRequestTotal.WithLabelValues(endpoint, status).Inc()
	upstreamRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordItemSkipped records a per-item failure that the cycle skipped.
func (m *Metrics) RecordItemSkipped(phase string) {
	itemsSkippedTotal.WithLabelValues(phase).Inc()
}

// RecordRotation records the outcome of one partition rotation.
func (m *Metrics) RecordRotation(kind string, written, duplicates, malformed int) {
	snapshotRowsWritten.WithLabelValues(kind).Add(float64(written))
	snapshotDuplicatesDropped.WithLabelValues(kind).Add(float64(duplicates))
	snapshotMalformedSkipped.WithLabelValues(kind).Add(float64(malformed))
}

// SetEligibleItems publishes the size of the current eligibility screen.
func (m *Metrics) SetEligibleItems(count int) {
	eligibleItems.Set(float64(count))
}

// SetSetsIndexed publishes the size of the last published set index.
func (m *Metrics) SetSetsIndexed(count int) {
	setsIndexed.Set(float64(count))
}

// SetReconcileDivergences publishes the divergence count of the last run.
func (m *Metrics) SetReconcileDivergences(count int) {
	reconcileDivergences.Set(float64(count))
}

// RecordRun records a completed pipeline run.
func (m *Metrics) RecordRun(job, status string, duration time.Duration) {
	pipelineRunTotal.WithLabelValues(job, status).Inc()
	pipelineRunDuration.WithLabelValues(job).Observe(duration.Seconds())
	if status == "success" {
		lastRunTimestamp.WithLabelValues(job).SetToCurrentTime()
	}
}

var global *Metrics

// Get returns the process-wide Metrics instance.
func Get() *Metrics {
	once.Do(func() {
		global = NewMetrics()
	})
	return global
}
