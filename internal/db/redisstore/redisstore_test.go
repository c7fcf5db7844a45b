package redisstore

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kimhsiao/fieldsync/backend/internal/db"
	"github.com/kimhsiao/fieldsync/backend/internal/db/storetest"
	apperrors "github.com/kimhsiao/fieldsync/backend/internal/errors"
)

// redisAddr returns the server used for integration tests, skipping when unset.
func redisAddr(t *testing.T) string {
	t.Helper()
	addr := os.Getenv("FIELDSYNC_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("FIELDSYNC_TEST_REDIS_ADDR not set")
	}
	return addr
}

func TestStore_Conformance(t *testing.T) {
	addr := redisAddr(t)
	storetest.Run(t, func(t *testing.T) db.SubmissionStore {
		s := New(Options{Addr: addr, Prefix: fmt.Sprintf("fieldsync-test-%d", time.Now().UnixNano())})
		t.Cleanup(func() {
			s.DeleteAll(context.Background())
			s.Close()
		})
		return s
	})
}

// TestNew_hashKey verifies the default and custom key prefixes.
func TestNew_hashKey(t *testing.T) {
	assert.Equal(t, "fieldsync:queued_submissions", New(Options{}).hashKey)
	assert.Equal(t, "kiosk7:queued_submissions", New(Options{Prefix: "kiosk7"}).hashKey)
}

// TestStore_unreachable verifies a dead server surfaces as a storage error.
func TestStore_unreachable(t *testing.T) {
	s := New(Options{Addr: "127.0.0.1:1"})
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.Open(ctx)
	require.Error(t, err)
	assert.True(t, apperrors.IsStorage(err))
}
