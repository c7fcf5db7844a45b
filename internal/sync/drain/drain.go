// Package drain delivers every queued submission and reconciles the queue
// with each delivery's outcome.
package drain

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kimhsiao/fieldsync/backend/internal/errors"
	"github.com/kimhsiao/fieldsync/backend/internal/logging"
	"github.com/kimhsiao/fieldsync/backend/internal/models"
	"github.com/kimhsiao/fieldsync/backend/internal/sync/delivery"
	"github.com/kimhsiao/fieldsync/backend/internal/telemetry"
)

// Queue is the part of queue.Queue the drainer needs.
type Queue interface {
	GetAll(ctx context.Context) ([]*models.QueuedSubmission, error)
	Remove(ctx context.Context, id string) error
	IncrementRetry(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

// Config holds drain settings.
type Config struct {
	// Concurrency is the number of deliveries in flight; values < 1 mean 1.
	Concurrency int

	// MaxRetries, when > 0, stops delivering entries whose retry count has
	// reached it. They stay queued until cleared. 0 retries forever.
	MaxRetries int
}

// Drainer runs drain passes. Overlapping Drain calls are not serialized:
// two passes may deliver the same entry, which relies on the backend
// treating repeated completions of one submission as success.
type Drainer struct {
	queue     Queue
	deliverer delivery.Deliverer
	cfg       Config
	metrics   *telemetry.Metrics
}

// New creates a Drainer. metrics may be nil.
func New(q Queue, d delivery.Deliverer, cfg Config, metrics *telemetry.Metrics) *Drainer {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Drainer{
		queue:     q,
		deliverer: d,
		cfg:       cfg,
		metrics:   metrics,
	}
}

// Drain attempts one delivery for every entry in the current queue snapshot.
// Delivered entries are removed; failed ones have their retry count bumped
// and stay queued. Only a failure to read the snapshot is returned as an
// error; delivery failures are reported through the result counts.
//
// Once ctx is done no new deliveries start. Attempts already in flight are
// still reconciled.
func (d *Drainer) Drain(ctx context.Context) (models.DrainResult, error) {
	start := time.Now()
	d.metrics.DrainStarted()

	snapshot, err := d.queue.GetAll(ctx)
	if err != nil {
		logging.ErrorWithCode("Failed to read offline queue", string(errors.CodeOf(err)), err)
		return models.DrainResult{}, err
	}
	if len(snapshot) == 0 {
		d.metrics.DrainFinished(time.Since(start), 0, 0, 0)
		d.metrics.SetQueueDepth(0)
		return models.DrainResult{}, nil
	}

	logging.Info("Draining offline queue", map[string]interface{}{"count": len(snapshot)})

	var (
		mu     sync.Mutex
		result models.DrainResult
	)
	record := func(fn func(r *models.DrainResult)) {
		mu.Lock()
		fn(&result)
		mu.Unlock()
	}

	g := new(errgroup.Group)
	g.SetLimit(d.cfg.Concurrency)

	for _, entry := range snapshot {
		if ctx.Err() != nil {
			break
		}
		if d.cfg.MaxRetries > 0 && entry.RetryCount >= d.cfg.MaxRetries {
			record(func(r *models.DrainResult) { r.Skipped++ })
			continue
		}

		entry := entry
		g.Go(func() error {
			if d.deliverOne(ctx, entry) {
				record(func(r *models.DrainResult) { r.Synced++ })
			} else {
				record(func(r *models.DrainResult) { r.Failed++ })
			}
			return nil
		})
	}
	_ = g.Wait()

	d.metrics.DrainFinished(time.Since(start), result.Synced, result.Failed, result.Skipped)
	if n, err := d.queue.Count(context.WithoutCancel(ctx)); err == nil {
		d.metrics.SetQueueDepth(n)
	}

	logging.Info("Offline queue drain completed", map[string]interface{}{
		"synced":   result.Synced,
		"failed":   result.Failed,
		"skipped":  result.Skipped,
		"duration": time.Since(start).String(),
	})
	return result, nil
}

// deliverOne makes the single delivery attempt for entry and reconciles the
// queue afterwards. It reports whether the backend acknowledged delivery.
func (d *Drainer) deliverOne(ctx context.Context, entry *models.QueuedSubmission) bool {
	deliverErr := d.deliverer.Deliver(ctx, entry)

	// Reconcile even if ctx was canceled during the attempt.
	rctx := context.WithoutCancel(ctx)

	if deliverErr == nil {
		if err := d.queue.Remove(rctx, entry.ID); err != nil {
			// Delivered but still queued: the next drain redelivers it.
			d.metrics.ReconcileError()
			logging.Error("Failed to remove delivered submission", err, map[string]interface{}{
				"id":            entry.ID,
				"submission_id": entry.SubmissionID,
			})
		}
		return true
	}

	logging.Warn("Offline submission delivery failed", map[string]interface{}{
		"id":            entry.ID,
		"submission_id": entry.SubmissionID,
		"retry_count":   entry.RetryCount + 1,
		"error":         deliverErr.Error(),
	})
	if err := d.queue.IncrementRetry(rctx, entry.ID); err != nil {
		d.metrics.ReconcileError()
		logging.Error("Failed to record delivery retry", err, map[string]interface{}{"id": entry.ID})
	}
	return false
}
