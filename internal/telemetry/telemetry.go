// Package telemetry provides local Prometheus metrics for the offline queue.
//
// Metrics are only exposed for scraping on the local API; nothing is pushed
// to any external service.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Delivery outcomes used as the "outcome" label.
const (
	OutcomeSynced  = "synced"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

// Trigger reasons used as the "reason" label.
const (
	ReasonOnline  = "online"
	ReasonVisible = "visible"
	ReasonStartup = "startup"
	ReasonManual  = "manual"
)

// Metrics groups the queue collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	drainRuns       prometheus.Counter
	drainDuration   prometheus.Histogram
	deliveries      *prometheus.CounterVec
	reconcileErrors prometheus.Counter
	queueDepth      prometheus.Gauge
	enqueued        prometheus.Counter
	triggers        *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		drainRuns: f.NewCounter(prometheus.CounterOpts{
			Name: "fieldsync_drain_runs_total",
			Help: "Number of drain passes started",
		}),
		drainDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "fieldsync_drain_duration_seconds",
			Help:    "Time to run one drain pass",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
		}),
		deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fieldsync_deliveries_total",
			Help: "Delivery attempts by outcome",
		}, []string{"outcome"}),
		reconcileErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "fieldsync_reconcile_errors_total",
			Help: "Store failures while removing or re-counting an entry after delivery",
		}),
		queueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "fieldsync_queue_depth",
			Help: "Queued submissions observed at the end of the last drain",
		}),
		enqueued: f.NewCounter(prometheus.CounterOpts{
			Name: "fieldsync_enqueued_total",
			Help: "Submissions saved to the offline queue",
		}),
		triggers: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fieldsync_drain_triggers_total",
			Help: "Drain triggers by reason",
		}, []string{"reason"}),
	}
}

// DrainStarted counts a drain pass.
func (m *Metrics) DrainStarted() {
	if m == nil {
		return
	}
	m.drainRuns.Inc()
}

// DrainFinished records pass duration and per-outcome counts.
func (m *Metrics) DrainFinished(d time.Duration, synced, failed, skipped int) {
	if m == nil {
		return
	}
	m.drainDuration.Observe(d.Seconds())
	m.deliveries.WithLabelValues(OutcomeSynced).Add(float64(synced))
	m.deliveries.WithLabelValues(OutcomeFailed).Add(float64(failed))
	m.deliveries.WithLabelValues(OutcomeSkipped).Add(float64(skipped))
}

// ReconcileError counts a failed remove or retry increment.
func (m *Metrics) ReconcileError() {
	if m == nil {
		return
	}
	m.reconcileErrors.Inc()
}

// SetQueueDepth records the current queue size.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

// Enqueued counts a submission saved offline.
func (m *Metrics) Enqueued() {
	if m == nil {
		return
	}
	m.enqueued.Inc()
}

// Triggered counts a drain trigger by reason.
func (m *Metrics) Triggered(reason string) {
	if m == nil {
		return
	}
	m.triggers.WithLabelValues(reason).Inc()
}
