//go:build windows

package trigger

import "context"

// SignalSource has no visibility signals on Windows; it never emits.
type SignalSource struct {
	events chan Signal
}

// NewSignalSource creates a SignalSource.
func NewSignalSource() *SignalSource {
	return &SignalSource{events: make(chan Signal)}
}

func (s *SignalSource) Events() <-chan Signal { return s.events }
func (s *SignalSource) Online() bool          { return false }
func (s *SignalSource) Start(context.Context) {}
func (s *SignalSource) Stop()                 {}
