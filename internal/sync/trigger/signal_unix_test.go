//go:build !windows

package trigger

import (
	"context"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSignalSource verifies SIGUSR1 and SIGUSR2 map to visibility signals.
func TestSignalSource(t *testing.T) {
	src := NewSignalSource()
	src.Start(context.Background())
	defer src.Stop()

	assert.False(t, src.Online())

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGUSR1))
	assert.Equal(t, SignalVisible, nextSignal(t, src.Events()))

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGUSR2))
	assert.Equal(t, SignalHidden, nextSignal(t, src.Events()))
}
