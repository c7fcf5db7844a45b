package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	apperrors "github.com/kimhsiao/fieldsync/backend/internal/errors"
	"github.com/kimhsiao/fieldsync/backend/internal/models"
)

// SubmissionStore persists queued submissions keyed by id.
//
// Every I/O failure is returned as a storage error (errors.ErrStorage).
// Implementations open lazily: any operation on an unopened store opens it.
type SubmissionStore interface {
	// Open initializes the backing storage. Safe to call repeatedly and
	// from concurrent goroutines; all callers share one handle.
	Open(ctx context.Context) error

	// Put inserts or replaces the record with rec.ID.
	Put(ctx context.Context, rec *models.QueuedSubmission) error

	// Get returns the record with id, or (nil, nil) when absent.
	Get(ctx context.Context, id string) (*models.QueuedSubmission, error)

	// GetAll returns every stored record. Order carries no meaning.
	GetAll(ctx context.Context) ([]*models.QueuedSubmission, error)

	// DeleteByID removes the record. Absent ids are not an error.
	DeleteByID(ctx context.Context, id string) error

	// DeleteAll removes every record and returns how many were removed.
	DeleteAll(ctx context.Context) (int, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)

	Close() error
}

// SQLiteStore is the default SubmissionStore, one SQLite file per data dir.
type SQLiteStore struct {
	dataDir string

	group singleflight.Group
	mu    sync.RWMutex
	db    *DB
}

var _ SubmissionStore = (*SQLiteStore)(nil)

// NewSQLiteStore creates a store rooted at dataDir. Nothing touches disk until Open.
func NewSQLiteStore(dataDir string) *SQLiteStore {
	return &SQLiteStore{dataDir: dataDir}
}

// Open opens the database and applies embedded migrations.
func (s *SQLiteStore) Open(ctx context.Context) error {
	_, err := s.conn(ctx)
	return err
}

// conn returns the open handle, opening it on first use. Concurrent first
// callers wait on a single open attempt. A failed attempt is not cached.
func (s *SQLiteStore) conn(ctx context.Context) (*DB, error) {
	s.mu.RLock()
	db := s.db
	s.mu.RUnlock()
	if db != nil {
		return db, nil
	}

	ch := s.group.DoChan("open", func() (interface{}, error) {
		s.mu.RLock()
		existing := s.db
		s.mu.RUnlock()
		if existing != nil {
			return existing, nil
		}

		opened, err := Open(s.dataDir)
		if err != nil {
			return nil, err
		}
		migrator := NewMigrator(opened.DB, EmbeddedMigrations())
		if err := migrator.Initialize(); err != nil {
			opened.Close()
			return nil, fmt.Errorf("failed to initialize migrations: %w", err)
		}
		if err := migrator.Up(); err != nil {
			opened.Close()
			return nil, apperrors.Wrap(apperrors.ErrMigration, "apply migrations", err)
		}

		s.mu.Lock()
		s.db = opened
		s.mu.Unlock()
		return opened, nil
	})

	select {
	case <-ctx.Done():
		return nil, apperrors.Storage("open store", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, apperrors.Storage("open store", res.Err)
		}
		return res.Val.(*DB), nil
	}
}

// Put inserts or replaces rec.
func (s *SQLiteStore) Put(ctx context.Context, rec *models.QueuedSubmission) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}

	responseData, gps, deviceInfo, err := encodeColumns(rec)
	if err != nil {
		return apperrors.Storage("encode submission", err)
	}

	query := `
	INSERT OR REPLACE INTO queued_submissions
		(id, submission_id, response_data, gps, device_info, queued_at, retry_count)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err = db.ExecContext(ctx, query, rec.ID, rec.SubmissionID, responseData, gps, deviceInfo,
		rec.QueuedAt, rec.RetryCount)
	return apperrors.Storage("put submission", err)
}

const selectColumns = `SELECT id, submission_id, response_data, gps, device_info, queued_at, retry_count
	FROM queued_submissions`

// Get returns the record with id, or nil when absent.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*models.QueuedSubmission, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	rec, err := scanSubmission(db.QueryRowContext(ctx, selectColumns+" WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Storage("get submission", err)
	}
	return rec, nil
}

// GetAll returns every record, oldest first.
func (s *SQLiteStore) GetAll(ctx context.Context) ([]*models.QueuedSubmission, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, selectColumns+" ORDER BY queued_at, id")
	if err != nil {
		return nil, apperrors.Storage("list submissions", err)
	}
	defer rows.Close()

	out := make([]*models.QueuedSubmission, 0)
	for rows.Next() {
		rec, err := scanSubmission(rows)
		if err != nil {
			return nil, apperrors.Storage("scan submission", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Storage("list submissions", err)
	}
	return out, nil
}

// DeleteByID removes the record if present.
func (s *SQLiteStore) DeleteByID(ctx context.Context, id string) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, "DELETE FROM queued_submissions WHERE id = ?", id)
	return apperrors.Storage("delete submission", err)
}

// DeleteAll removes every record.
func (s *SQLiteStore) DeleteAll(ctx context.Context) (int, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}
	res, err := db.ExecContext(ctx, "DELETE FROM queued_submissions")
	if err != nil {
		return 0, apperrors.Storage("clear submissions", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperrors.Storage("clear submissions", err)
	}
	return int(n), nil
}

// Count returns the number of records.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}
	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM queued_submissions").Scan(&n); err != nil {
		return 0, apperrors.Storage("count submissions", err)
	}
	return n, nil
}

// Close closes the database if it was opened. The store may be reopened.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSubmission(row rowScanner) (*models.QueuedSubmission, error) {
	var rec models.QueuedSubmission
	var responseData string
	var gps, deviceInfo sql.NullString

	if err := row.Scan(&rec.ID, &rec.SubmissionID, &responseData, &gps, &deviceInfo,
		&rec.QueuedAt, &rec.RetryCount); err != nil {
		return nil, err
	}

	if err := DecodeJSON([]byte(responseData), &rec.ResponseData); err != nil {
		return nil, fmt.Errorf("decode response_data for %s: %w", rec.ID, err)
	}
	if gps.Valid {
		rec.GPS = &models.GPS{}
		if err := DecodeJSON([]byte(gps.String), rec.GPS); err != nil {
			return nil, fmt.Errorf("decode gps for %s: %w", rec.ID, err)
		}
	}
	if deviceInfo.Valid {
		if err := DecodeJSON([]byte(deviceInfo.String), &rec.DeviceInfo); err != nil {
			return nil, fmt.Errorf("decode device_info for %s: %w", rec.ID, err)
		}
	}
	return &rec, nil
}

func encodeColumns(rec *models.QueuedSubmission) (string, sql.NullString, sql.NullString, error) {
	var gps, deviceInfo sql.NullString

	responseData := rec.ResponseData
	if responseData == nil {
		responseData = map[string]interface{}{}
	}
	rd, err := json.Marshal(responseData)
	if err != nil {
		return "", gps, deviceInfo, err
	}

	if rec.GPS != nil {
		b, err := json.Marshal(rec.GPS)
		if err != nil {
			return "", gps, deviceInfo, err
		}
		gps = sql.NullString{String: string(b), Valid: true}
	}
	if rec.DeviceInfo != nil {
		b, err := json.Marshal(rec.DeviceInfo)
		if err != nil {
			return "", gps, deviceInfo, err
		}
		deviceInfo = sql.NullString{String: string(b), Valid: true}
	}
	return string(rd), gps, deviceInfo, nil
}
