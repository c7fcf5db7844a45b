package badgerstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kimhsiao/fieldsync/backend/internal/db"
	"github.com/kimhsiao/fieldsync/backend/internal/db/storetest"
)

func TestStore_Conformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) db.SubmissionStore {
		s := New(t.TempDir())
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestStore_InMemoryConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) db.SubmissionStore {
		s := NewInMemory()
		t.Cleanup(func() { s.Close() })
		return s
	})
}

// TestStore_SurvivesRestart verifies records persist across store instances.
func TestStore_SurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first := New(dir)
	require.NoError(t, first.Put(ctx, storetest.Sample("a")))
	require.NoError(t, first.Close())

	second := New(dir)
	defer second.Close()
	got, err := second.Get(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "sub-a", got.SubmissionID)
}

// TestKey verifies ids are namespaced under the queue prefix.
func TestKey(t *testing.T) {
	assert.Equal(t, "queued_submissions/abc", string(key("abc")))
	// key must not alias the shared prefix slice
	k1 := key("a")
	k2 := key("b")
	assert.NotEqual(t, string(k1), string(k2))
}
