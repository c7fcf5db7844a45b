// Package uuid provides unit tests for identifier generation and validation.
package uuid

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNew tests that New() generates valid UUID v7 strings.
func TestNew(t *testing.T) {
	id := New()
	require.NotEmpty(t, id)
	assert.True(t, IsValid(id), "not a v7 id: %s", id)
	assert.Equal(t, byte('7'), id[14])
}

// TestNewUniqueness tests that rapid calls never collide, including across goroutines.
func TestNewUniqueness(t *testing.T) {
	const perWorker = 500
	const workers = 8

	var mu sync.Mutex
	ids := make(map[string]struct{}, perWorker*workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]string, 0, perWorker)
			for i := 0; i < perWorker; i++ {
				local = append(local, New())
			}
			mu.Lock()
			for _, id := range local {
				ids[id] = struct{}{}
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, ids, perWorker*workers)
}

// TestNewOrdering tests that sequential ids sort in creation order.
func TestNewOrdering(t *testing.T) {
	prev := New()
	for i := 0; i < 100; i++ {
		next := New()
		assert.Less(t, prev, next)
		prev = next
	}
}

// TestIsValid tests id validation.
func TestIsValid(t *testing.T) {
	tests := []struct {
		name string
		uuid string
		want bool
	}{
		{"valid v7", "01890a5d-ac96-774b-bcce-b302099a8057", true},
		{"valid v7 uppercase", "01890A5D-AC96-774B-BCCE-B302099A8057", true},
		{"v4 rejected", "f47ac10b-58cc-4372-a567-0e02b2c3d479", false},
		{"empty string", "", false},
		{"no dashes", "01890a5dac96774bbcceb302099a8057", false},
		{"bad variant", "01890a5d-ac96-774b-0cce-b302099a8057", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValid(tt.uuid))
			if tt.want {
				assert.NoError(t, Validate(tt.uuid))
			} else {
				assert.Error(t, Validate(tt.uuid))
			}
		})
	}
}
