// Package redisstore implements the submission store on a Redis hash.
//
// Durability depends on the server: run Redis with AOF or RDB persistence
// when using this backend for the offline queue.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/kimhsiao/fieldsync/backend/internal/db"
	apperrors "github.com/kimhsiao/fieldsync/backend/internal/errors"
	"github.com/kimhsiao/fieldsync/backend/internal/models"
)

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	// Prefix namespaces the hash key, "fieldsync" when empty.
	Prefix string
}

// Store keeps every submission as a field of one hash: <prefix>:queued_submissions.
type Store struct {
	opts    Options
	hashKey string

	group  singleflight.Group
	mu     sync.RWMutex
	client *redis.Client
}

var _ db.SubmissionStore = (*Store)(nil)

// New creates a store; no connection is made until Open.
func New(opts Options) *Store {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "fieldsync"
	}
	return &Store{
		opts:    opts,
		hashKey: prefix + ":" + models.QueuedSubmission{}.TableName(),
	}
}

// Open connects and verifies the server is reachable.
func (s *Store) Open(ctx context.Context) error {
	_, err := s.conn(ctx)
	return err
}

func (s *Store) conn(ctx context.Context) (*redis.Client, error) {
	s.mu.RLock()
	c := s.client
	s.mu.RUnlock()
	if c != nil {
		return c, nil
	}

	ch := s.group.DoChan("open", func() (interface{}, error) {
		s.mu.RLock()
		existing := s.client
		s.mu.RUnlock()
		if existing != nil {
			return existing, nil
		}

		client := redis.NewClient(&redis.Options{
			Addr:     s.opts.Addr,
			Password: s.opts.Password,
			DB:       s.opts.DB,
		})
		// Detached from the caller so one canceled caller does not fail the shared open.
		if err := client.Ping(context.Background()).Err(); err != nil {
			client.Close()
			return nil, err
		}

		s.mu.Lock()
		s.client = client
		s.mu.Unlock()
		return client, nil
	})

	select {
	case <-ctx.Done():
		return nil, apperrors.Storage("open redis store", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, apperrors.Storage("open redis store", res.Err)
		}
		return res.Val.(*redis.Client), nil
	}
}

// Put inserts or replaces rec.
func (s *Store) Put(ctx context.Context, rec *models.QueuedSubmission) error {
	c, err := s.conn(ctx)
	if err != nil {
		return err
	}
	val, err := json.Marshal(rec)
	if err != nil {
		return apperrors.Storage("encode submission", err)
	}
	return apperrors.Storage("put submission", c.HSet(ctx, s.hashKey, rec.ID, val).Err())
}

// Get returns the record with id, or nil when absent.
func (s *Store) Get(ctx context.Context, id string) (*models.QueuedSubmission, error) {
	c, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := c.HGet(ctx, s.hashKey, id).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Storage("get submission", err)
	}
	var rec models.QueuedSubmission
	if err := db.DecodeJSON(raw, &rec); err != nil {
		return nil, apperrors.Storage("decode submission", err)
	}
	return &rec, nil
}

// GetAll returns every record.
func (s *Store) GetAll(ctx context.Context) ([]*models.QueuedSubmission, error) {
	c, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	fields, err := c.HGetAll(ctx, s.hashKey).Result()
	if err != nil {
		return nil, apperrors.Storage("list submissions", err)
	}

	out := make([]*models.QueuedSubmission, 0, len(fields))
	for id, raw := range fields {
		var rec models.QueuedSubmission
		if err := db.DecodeJSON([]byte(raw), &rec); err != nil {
			return nil, apperrors.Storage("decode submission", fmt.Errorf("%s: %w", id, err))
		}
		out = append(out, &rec)
	}
	return out, nil
}

// DeleteByID removes the record if present.
func (s *Store) DeleteByID(ctx context.Context, id string) error {
	c, err := s.conn(ctx)
	if err != nil {
		return err
	}
	return apperrors.Storage("delete submission", c.HDel(ctx, s.hashKey, id).Err())
}

// DeleteAll removes every record atomically.
func (s *Store) DeleteAll(ctx context.Context) (int, error) {
	c, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}

	var n *redis.IntCmd
	_, err = c.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		n = pipe.HLen(ctx, s.hashKey)
		pipe.Del(ctx, s.hashKey)
		return nil
	})
	if err != nil {
		return 0, apperrors.Storage("clear submissions", err)
	}
	return int(n.Val()), nil
}

// Count returns the number of records.
func (s *Store) Count(ctx context.Context) (int, error) {
	c, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}
	n, err := c.HLen(ctx, s.hashKey).Result()
	if err != nil {
		return 0, apperrors.Storage("count submissions", err)
	}
	return int(n), nil
}

// Close closes the client if it was opened.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}
