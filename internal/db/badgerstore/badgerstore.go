// Package badgerstore implements the submission store on an embedded Badger database.
package badgerstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"golang.org/x/sync/singleflight"

	"github.com/kimhsiao/fieldsync/backend/internal/db"
	apperrors "github.com/kimhsiao/fieldsync/backend/internal/errors"
	"github.com/kimhsiao/fieldsync/backend/internal/logging"
	"github.com/kimhsiao/fieldsync/backend/internal/models"
)

// keyPrefix namespaces queue records inside the Badger keyspace.
var keyPrefix = []byte("queued_submissions/")

func key(id string) []byte {
	return append(append([]byte{}, keyPrefix...), id...)
}

// Store persists each submission as one JSON value under queued_submissions/<id>.
type Store struct {
	dir      string
	inMemory bool

	group singleflight.Group
	mu    sync.RWMutex
	db    *badger.DB
}

var _ db.SubmissionStore = (*Store)(nil)

// New creates a store rooted at dir.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// NewInMemory creates a non-durable store, for tests only.
func NewInMemory() *Store {
	return &Store{inMemory: true}
}

// Open opens the Badger directory.
func (s *Store) Open(ctx context.Context) error {
	_, err := s.handle(ctx)
	return err
}

func (s *Store) handle(ctx context.Context) (*badger.DB, error) {
	s.mu.RLock()
	bdb := s.db
	s.mu.RUnlock()
	if bdb != nil {
		return bdb, nil
	}

	ch := s.group.DoChan("open", func() (interface{}, error) {
		s.mu.RLock()
		existing := s.db
		s.mu.RUnlock()
		if existing != nil {
			return existing, nil
		}

		opts := badger.DefaultOptions(s.dir).
			WithInMemory(s.inMemory).
			WithLogger(badgerLogger{}).
			WithLoggingLevel(badger.WARNING)
		opened, err := badger.Open(opts)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		s.db = opened
		s.mu.Unlock()
		return opened, nil
	})

	select {
	case <-ctx.Done():
		return nil, apperrors.Storage("open badger store", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, apperrors.Storage("open badger store", res.Err)
		}
		return res.Val.(*badger.DB), nil
	}
}

// Put inserts or replaces rec.
func (s *Store) Put(ctx context.Context, rec *models.QueuedSubmission) error {
	bdb, err := s.handle(ctx)
	if err != nil {
		return err
	}
	val, err := json.Marshal(rec)
	if err != nil {
		return apperrors.Storage("encode submission", err)
	}
	err = bdb.Update(func(txn *badger.Txn) error {
		return txn.Set(key(rec.ID), val)
	})
	return apperrors.Storage("put submission", err)
}

// Get returns the record with id, or nil when absent.
func (s *Store) Get(ctx context.Context, id string) (*models.QueuedSubmission, error) {
	bdb, err := s.handle(ctx)
	if err != nil {
		return nil, err
	}

	var rec *models.QueuedSubmission
	err = bdb.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(id))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			rec = &models.QueuedSubmission{}
			return db.DecodeJSON(val, rec)
		})
	})
	if err != nil {
		return nil, apperrors.Storage("get submission", err)
	}
	return rec, nil
}

// GetAll returns every record in key order.
func (s *Store) GetAll(ctx context.Context) ([]*models.QueuedSubmission, error) {
	bdb, err := s.handle(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*models.QueuedSubmission, 0)
	err = bdb.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: true, PrefetchSize: 64, Prefix: keyPrefix})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				var rec models.QueuedSubmission
				if err := db.DecodeJSON(val, &rec); err != nil {
					return fmt.Errorf("decode %s: %w", item.Key(), err)
				}
				out = append(out, &rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.Storage("list submissions", err)
	}
	return out, nil
}

// DeleteByID removes the record if present.
func (s *Store) DeleteByID(ctx context.Context, id string) error {
	bdb, err := s.handle(ctx)
	if err != nil {
		return err
	}
	err = bdb.Update(func(txn *badger.Txn) error {
		return txn.Delete(key(id))
	})
	return apperrors.Storage("delete submission", err)
}

// DeleteAll removes every record.
func (s *Store) DeleteAll(ctx context.Context) (int, error) {
	bdb, err := s.handle(ctx)
	if err != nil {
		return 0, err
	}

	keys, err := s.keys(bdb)
	if err != nil {
		return 0, apperrors.Storage("clear submissions", err)
	}

	wb := bdb.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return 0, apperrors.Storage("clear submissions", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, apperrors.Storage("clear submissions", err)
	}
	return len(keys), nil
}

// Count returns the number of records.
func (s *Store) Count(ctx context.Context) (int, error) {
	bdb, err := s.handle(ctx)
	if err != nil {
		return 0, err
	}
	keys, err := s.keys(bdb)
	if err != nil {
		return 0, apperrors.Storage("count submissions", err)
	}
	return len(keys), nil
}

func (s *Store) keys(bdb *badger.DB) ([][]byte, error) {
	var keys [][]byte
	err := bdb.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: false, Prefix: keyPrefix})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	return keys, err
}

// Close closes the database if it was opened.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// badgerLogger routes Badger's internal logging into the structured logger.
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...interface{}) {
	logging.Error("badger", fmt.Errorf(format, args...))
}

func (badgerLogger) Warningf(format string, args ...interface{}) {
	logging.Warn(fmt.Sprintf("badger: "+format, args...))
}

func (badgerLogger) Infof(format string, args ...interface{}) {
	logging.Info(fmt.Sprintf("badger: "+format, args...))
}

func (badgerLogger) Debugf(format string, args ...interface{}) {
	logging.Debug(fmt.Sprintf("badger: "+format, args...))
}
