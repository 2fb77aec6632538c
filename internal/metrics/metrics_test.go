package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestGetReturnsSameInstance(t *testing.T) {
	assert.Same(t, Get(), Get())
}

func TestRecordRotation(t *testing.T) {
	m := Get()

	before := testutil.ToFloat64(snapshotRowsWritten.WithLabelValues("orderbook_test"))
	m.RecordRotation("orderbook_test", 12, 3, 1)

	assert.Equal(t, before+12, testutil.ToFloat64(snapshotRowsWritten.WithLabelValues("orderbook_test")))
	assert.Equal(t, 3.0, testutil.ToFloat64(snapshotDuplicatesDropped.WithLabelValues("orderbook_test")))
	assert.Equal(t, 1.0, testutil.ToFloat64(snapshotMalformedSkipped.WithLabelValues("orderbook_test")))
}

func TestGaugesTrackLastRun(t *testing.T) {
	m := Get()

	m.SetEligibleItems(42)
	assert.Equal(t, 42.0, testutil.ToFloat64(eligibleItems))

	m.SetSetsIndexed(7)
	assert.Equal(t, 7.0, testutil.ToFloat64(setsIndexed))

	m.SetReconcileDivergences(2)
	assert.Equal(t, 2.0, testutil.ToFloat64(reconcileDivergences))
}

func TestRecordRun(t *testing.T) {
	m := Get()

	before := testutil.ToFloat64(pipelineRunTotal.WithLabelValues("analytics_test", "success"))
	m.RecordRun("analytics_test", "success", 3*time.Second)
	assert.Equal(t, before+1, testutil.ToFloat64(pipelineRunTotal.WithLabelValues("analytics_test", "success")))
	assert.Greater(t, testutil.ToFloat64(lastRunTimestamp.WithLabelValues("analytics_test")), 0.0)
}
