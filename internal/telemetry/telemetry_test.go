// Package telemetry tests verify collectors register and record locally.
package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNilMetrics verifies a nil *Metrics is safe to call.
func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.DrainStarted()
		m.DrainFinished(time.Second, 1, 2, 3)
		m.ReconcileError()
		m.SetQueueDepth(4)
		m.Enqueued()
		m.Triggered(ReasonOnline)
	})
}

// TestMetrics_record verifies values land in the registry.
func TestMetrics_record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.DrainStarted()
	m.DrainFinished(20*time.Millisecond, 3, 1, 0)
	m.SetQueueDepth(1)
	m.Enqueued()
	m.Enqueued()
	m.Triggered(ReasonVisible)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.drainRuns))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.deliveries.WithLabelValues(OutcomeSynced)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.deliveries.WithLabelValues(OutcomeFailed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.queueDepth))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.enqueued))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.triggers.WithLabelValues(ReasonVisible)))

	n, err := testutil.GatherAndCount(reg, "fieldsync_drain_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

// TestNewMetrics_duplicateRegistration verifies one registry cannot hold two sets.
func TestNewMetrics_duplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg)
	assert.Panics(t, func() { NewMetrics(reg) })
}
