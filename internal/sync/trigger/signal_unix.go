//go:build !windows

package trigger

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// =====================================================
// SignalSource
// =====================================================

// SignalSource turns process signals into visibility events: SIGUSR1 is
// Visible and SIGUSR2 is Hidden. It carries no connectivity information and
// always reports offline; combine it with a connectivity source through
// MultiSource.
type SignalSource struct {
	events  chan Signal
	signals chan os.Signal

	stopCh chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	active bool
}

// NewSignalSource creates a SignalSource.
func NewSignalSource() *SignalSource {
	return &SignalSource{
		events:  make(chan Signal, eventBuffer),
		signals: make(chan os.Signal, 1),
	}
}

func (s *SignalSource) Events() <-chan Signal { return s.events }
func (s *SignalSource) Online() bool          { return false }

func (s *SignalSource) Start(ctx context.Context) {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return
	}
	s.active = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	signal.Notify(s.signals, syscall.SIGUSR1, syscall.SIGUSR2)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case sig := <-s.signals:
				switch sig {
				case syscall.SIGUSR1:
					send(s.events, SignalVisible)
				case syscall.SIGUSR2:
					send(s.events, SignalHidden)
				}
			}
		}
	}()
}

func (s *SignalSource) Stop() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	close(s.stopCh)
	s.mu.Unlock()

	signal.Stop(s.signals)
	s.wg.Wait()
}
