// Package queue is the only sanctioned interface to the offline submission store.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"

	"github.com/kimhsiao/fieldsync/backend/internal/db"
	"github.com/kimhsiao/fieldsync/backend/internal/errors"
	"github.com/kimhsiao/fieldsync/backend/internal/logging"
	"github.com/kimhsiao/fieldsync/backend/internal/models"
	"github.com/kimhsiao/fieldsync/backend/internal/uuid"
)

// Stats summarizes the queue contents.
type Stats struct {
	Total          int   `json:"total"`
	TotalRetries   int   `json:"totalRetries"`
	MaxRetryCount  int   `json:"maxRetryCount"`
	OldestQueuedAt int64 `json:"oldestQueuedAt,omitempty"`
}

// Option configures a Queue.
type Option func(*Queue)

// WithClock overrides the time source used for queuedAt.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		q.now = now
	}
}

// WithIDGenerator overrides id generation.
func WithIDGenerator(newID func() string) Option {
	return func(q *Queue) {
		q.newID = newID
	}
}

// Queue wraps a SubmissionStore and enforces the record lifecycle:
// records are created only by Enqueue, mutated only by IncrementRetry and
// destroyed only by Remove or Clear.
type Queue struct {
	store    db.SubmissionStore
	now      func() time.Time
	newID    func() string
	validate *validator.Validate

	locks keyedMutex
}

// New creates a Queue over store.
func New(store db.SubmissionStore, opts ...Option) *Queue {
	v := validator.New(validator.WithRequiredStructEnabled())
	// "notblank" ships with validator but is not registered by default.
	_ = v.RegisterValidation("notblank", validators.NotBlank)

	q := &Queue{
		store:    store,
		now:      time.Now,
		newID:    uuid.New,
		validate: v,
		locks:    keyedMutex{locks: make(map[string]*refMutex)},
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Open initializes the underlying store.
func (q *Queue) Open(ctx context.Context) error {
	return q.store.Open(ctx)
}

// Close releases the underlying store.
func (q *Queue) Close() error {
	return q.store.Close()
}

// Enqueue persists a new submission and returns its generated id.
func (q *Queue) Enqueue(ctx context.Context, in models.NewSubmission) (string, error) {
	if err := q.validate.Struct(in); err != nil {
		return "", errors.Wrap(errors.ErrInvalid, "invalid submission", err)
	}

	rec := &models.QueuedSubmission{
		ID:           q.newID(),
		SubmissionID: in.SubmissionID,
		ResponseData: in.ResponseData,
		GPS:          in.GPS,
		DeviceInfo:   in.DeviceInfo,
		QueuedAt:     q.now().UnixMilli(),
		RetryCount:   0,
	}
	if err := q.store.Put(ctx, rec); err != nil {
		return "", err
	}

	logging.Info("Queued offline submission", map[string]interface{}{
		"id":            rec.ID,
		"submission_id": rec.SubmissionID,
	})
	return rec.ID, nil
}

// GetAll returns every queued submission; an empty queue yields an empty slice.
func (q *Queue) GetAll(ctx context.Context) ([]*models.QueuedSubmission, error) {
	all, err := q.store.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	if all == nil {
		all = []*models.QueuedSubmission{}
	}
	return all, nil
}

// Get returns the submission with id, or (nil, nil) if it is not queued.
func (q *Queue) Get(ctx context.Context, id string) (*models.QueuedSubmission, error) {
	return q.store.Get(ctx, id)
}

// Remove deletes the submission with id. Removing an absent id is not an error.
func (q *Queue) Remove(ctx context.Context, id string) error {
	unlock := q.locks.lock(id)
	defer unlock()

	if err := q.store.DeleteByID(ctx, id); err != nil {
		return err
	}
	logging.Debug("Removed queued submission", map[string]interface{}{"id": id})
	return nil
}

// IncrementRetry adds exactly one to the record's retry count. If the record
// is gone (for example delivered by an overlapping drain) this is a no-op.
func (q *Queue) IncrementRetry(ctx context.Context, id string) error {
	unlock := q.locks.lock(id)
	defer unlock()

	rec, err := q.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}

	rec.RetryCount++
	if err := q.store.Put(ctx, rec); err != nil {
		return err
	}

	logging.Debug("Incremented retry count", map[string]interface{}{
		"id":          id,
		"retry_count": rec.RetryCount,
	})
	return nil
}

// Count returns the number of queued submissions.
func (q *Queue) Count(ctx context.Context) (int, error) {
	return q.store.Count(ctx)
}

// Clear discards every queued submission without delivering it.
func (q *Queue) Clear(ctx context.Context) (int, error) {
	n, err := q.store.DeleteAll(ctx)
	if err != nil {
		return 0, err
	}
	logging.Warn("Offline queue cleared", map[string]interface{}{"removed": n})
	return n, nil
}

// Stats returns queue statistics.
func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	all, err := q.store.GetAll(ctx)
	if err != nil {
		return Stats{}, err
	}

	var s Stats
	for _, rec := range all {
		s.Total++
		s.TotalRetries += rec.RetryCount
		if rec.RetryCount > s.MaxRetryCount {
			s.MaxRetryCount = rec.RetryCount
		}
		if s.OldestQueuedAt == 0 || rec.QueuedAt < s.OldestQueuedAt {
			s.OldestQueuedAt = rec.QueuedAt
		}
	}
	return s, nil
}

// keyedMutex serializes read-modify-write on the same id within one process.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) lock(id string) (unlock func()) {
	k.mu.Lock()
	m, ok := k.locks[id]
	if !ok {
		m = &refMutex{}
		k.locks[id] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}
