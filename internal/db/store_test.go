package db_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kimhsiao/fieldsync/backend/internal/db"
	"github.com/kimhsiao/fieldsync/backend/internal/db/storetest"
	apperrors "github.com/kimhsiao/fieldsync/backend/internal/errors"
)

func newSQLiteStore(t *testing.T) db.SubmissionStore {
	t.Helper()
	s := db.NewSQLiteStore(t.TempDir())
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_Conformance(t *testing.T) {
	storetest.Run(t, newSQLiteStore)
}

// TestSQLiteStore_SurvivesRestart verifies records persist across store instances.
func TestSQLiteStore_SurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first := db.NewSQLiteStore(dir)
	require.NoError(t, first.Put(ctx, storetest.Sample("a")))
	require.NoError(t, first.Close())

	second := db.NewSQLiteStore(dir)
	defer second.Close()

	all, err := second.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "a", all[0].ID)
	assert.Equal(t, "sub-a", all[0].SubmissionID)
}

// TestSQLiteStore_ReopenAfterClose verifies Close does not poison the store.
func TestSQLiteStore_ReopenAfterClose(t *testing.T) {
	s := db.NewSQLiteStore(t.TempDir())
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, storetest.Sample("a")))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

// TestSQLiteStore_StorageError verifies I/O failures surface as storage errors.
func TestSQLiteStore_StorageError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocked")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	s := db.NewSQLiteStore(path)
	defer s.Close()

	err := s.Open(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsStorage(err), "got %v", err)

	_, err = s.Count(context.Background())
	assert.True(t, apperrors.IsStorage(err))
}

// TestSQLiteStore_CanceledOpen verifies a canceled context aborts the wait.
func TestSQLiteStore_CanceledOpen(t *testing.T) {
	s := db.NewSQLiteStore(t.TempDir())
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Either the open finished first or the cancellation won; both are valid,
	// but an error must be a storage error.
	if err := s.Open(ctx); err != nil {
		assert.True(t, apperrors.IsStorage(err))
	}
	require.NoError(t, s.Open(context.Background()))
}
