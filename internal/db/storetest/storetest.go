// Package storetest holds the behavioral checks every SubmissionStore backend must pass.
package storetest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kimhsiao/fieldsync/backend/internal/db"
	"github.com/kimhsiao/fieldsync/backend/internal/models"
)

// Factory returns a fresh, empty store. The factory owns cleanup via t.Cleanup.
type Factory func(t *testing.T) db.SubmissionStore

// Sample builds a fully populated record.
func Sample(id string) *models.QueuedSubmission {
	return &models.QueuedSubmission{
		ID:           id,
		SubmissionID: "sub-" + id,
		ResponseData: map[string]interface{}{
			"passOrFail": "Pass",
			"obdReady":   true,
			"readings":   map[string]interface{}{"hc": "12", "co": "0.3"},
		},
		GPS:        &models.GPS{Latitude: "40.7128", Longitude: "-74.0060", Accuracy: "8"},
		DeviceInfo: map[string]interface{}{"userAgent": "kiosk/1.0", "online": false},
		QueuedAt:   1700000000000,
	}
}

// Run executes the conformance suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("OpenIsIdempotent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Open(ctx))
		require.NoError(t, s.Open(ctx))

		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("OpenConcurrent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		var wg sync.WaitGroup
		errs := make(chan error, 16)
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- s.Open(ctx)
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		require.NoError(t, s.Put(ctx, Sample("a")))
		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		rec := Sample("a")
		require.NoError(t, s.Put(ctx, rec))

		got, err := s.Get(ctx, "a")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, rec.SubmissionID, got.SubmissionID)
		assert.Equal(t, rec.QueuedAt, got.QueuedAt)
		assert.Equal(t, 0, got.RetryCount)
		assert.Equal(t, *rec.GPS, *got.GPS)
		assert.Equal(t, "Pass", got.ResponseData["passOrFail"])
		assert.Equal(t, true, got.ResponseData["obdReady"])
		assert.Equal(t, "kiosk/1.0", got.DeviceInfo["userAgent"])
	})

	t.Run("LargeIntegersKeepPrecision", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		rec := Sample("big")
		rec.ResponseData["odometer"] = int64(9007199254740993)
		rec.DeviceInfo["screenWidth"] = 1280
		require.NoError(t, s.Put(ctx, rec))

		got, err := s.Get(ctx, "big")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, json.Number("9007199254740993"), got.ResponseData["odometer"])
		assert.Equal(t, json.Number("1280"), got.DeviceInfo["screenWidth"])

		all, err := s.GetAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, json.Number("9007199254740993"), all[0].ResponseData["odometer"])
	})

	t.Run("OptionalFieldsStayNil", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		rec := Sample("a")
		rec.GPS = nil
		rec.DeviceInfo = nil
		require.NoError(t, s.Put(ctx, rec))

		got, err := s.Get(ctx, "a")
		require.NoError(t, err)
		assert.Nil(t, got.GPS)
		assert.Nil(t, got.DeviceInfo)
	})

	t.Run("PutReplaces", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		rec := Sample("a")
		require.NoError(t, s.Put(ctx, rec))
		rec.RetryCount = 3
		require.NoError(t, s.Put(ctx, rec))

		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		got, err := s.Get(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, 3, got.RetryCount)
	})

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		got, err := s.Get(context.Background(), "missing")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("GetAllEmpty", func(t *testing.T) {
		s := newStore(t)
		all, err := s.GetAll(context.Background())
		require.NoError(t, err)
		assert.NotNil(t, all)
		assert.Empty(t, all)
	})

	t.Run("GetAllReturnsEveryRecord", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		want := map[string]bool{}
		for i := 0; i < 5; i++ {
			id := fmt.Sprintf("r%d", i)
			rec := Sample(id)
			rec.QueuedAt += int64(i)
			require.NoError(t, s.Put(ctx, rec))
			want[id] = true
		}

		all, err := s.GetAll(ctx)
		require.NoError(t, err)
		got := map[string]bool{}
		for _, r := range all {
			got[r.ID] = true
		}
		assert.Equal(t, want, got)
	})

	t.Run("DeleteByID", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Put(ctx, Sample("a")))
		require.NoError(t, s.Put(ctx, Sample("b")))
		require.NoError(t, s.DeleteByID(ctx, "a"))
		require.NoError(t, s.DeleteByID(ctx, "a"))
		require.NoError(t, s.DeleteByID(ctx, "never-existed"))

		all, err := s.GetAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, "b", all[0].ID)
	})

	t.Run("DeleteAll", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for _, id := range []string{"a", "b", "c"} {
			require.NoError(t, s.Put(ctx, Sample(id)))
		}
		n, err := s.DeleteAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		count, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})
}
