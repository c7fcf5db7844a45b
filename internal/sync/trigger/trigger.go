// Package trigger decides when the offline queue is drained.
//
// A Trigger listens to an EventSource and calls the drain function when
// connectivity returns, when the app becomes visible while online, and once
// at start if the source already reports online. It holds no record logic.
package trigger

import (
	"context"
	"sync"

	"github.com/kimhsiao/fieldsync/backend/internal/logging"
	"github.com/kimhsiao/fieldsync/backend/internal/telemetry"
)

// Signal is an environment event consumed by the Trigger.
type Signal int

const (
	SignalOnline Signal = iota + 1
	SignalOffline
	SignalVisible
	SignalHidden
)

func (s Signal) String() string {
	switch s {
	case SignalOnline:
		return "online"
	case SignalOffline:
		return "offline"
	case SignalVisible:
		return "visible"
	case SignalHidden:
		return "hidden"
	default:
		return "unknown"
	}
}

// EventSource delivers connectivity and visibility signals.
type EventSource interface {
	// Events returns the channel signals are sent on. It is never closed
	// while the source is running.
	Events() <-chan Signal
	// Online reports the current connectivity state.
	Online() bool
	Start(ctx context.Context)
	Stop()
}

// DrainFunc runs one drain pass. reason is one of the telemetry Reason* values.
type DrainFunc func(ctx context.Context, reason string)

// Trigger binds an EventSource to a DrainFunc.
type Trigger struct {
	source  EventSource
	metrics *telemetry.Metrics

	stopCh    chan struct{}
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// New creates a Trigger. metrics may be nil.
func New(source EventSource, metrics *telemetry.Metrics) *Trigger {
	return &Trigger{
		source:  source,
		metrics: metrics,
	}
}

// Start starts the source and the event loop. Drains run in their own
// goroutines and are not serialized. Calling Start on a running Trigger is
// a no-op.
func (t *Trigger) Start(ctx context.Context, drain DrainFunc) {
	t.mu.Lock()
	if t.isRunning {
		t.mu.Unlock()
		return
	}
	t.isRunning = true
	ctx, t.cancel = context.WithCancel(ctx)
	t.stopCh = make(chan struct{})
	t.mu.Unlock()

	t.source.Start(ctx)

	if t.source.Online() {
		t.fire(ctx, drain, telemetry.ReasonStartup)
	}

	t.wg.Add(1)
	go t.loop(ctx, drain)

	logging.Info("Drain trigger started", map[string]interface{}{"online": t.source.Online()})
}

// Stop stops the source, cancels running drains and waits for them to
// reconcile.
func (t *Trigger) Stop() {
	t.mu.Lock()
	if !t.isRunning {
		t.mu.Unlock()
		return
	}
	t.isRunning = false
	close(t.stopCh)
	t.cancel()
	t.mu.Unlock()

	t.source.Stop()
	t.wg.Wait()

	logging.Info("Drain trigger stopped", nil)
}

// IsRunning reports whether the trigger loop is active.
func (t *Trigger) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.isRunning
}

func (t *Trigger) loop(ctx context.Context, drain DrainFunc) {
	defer t.wg.Done()

	events := t.source.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stopCh:
			return
		case sig := <-events:
			t.handle(ctx, drain, sig)
		}
	}
}

func (t *Trigger) handle(ctx context.Context, drain DrainFunc, sig Signal) {
	switch sig {
	case SignalOnline:
		logging.Info("Network restored", nil)
		t.fire(ctx, drain, telemetry.ReasonOnline)
	case SignalVisible:
		if !t.source.Online() {
			logging.Debug("App visible while offline, not draining", nil)
			return
		}
		t.fire(ctx, drain, telemetry.ReasonVisible)
	case SignalOffline:
		logging.Info("Network lost", nil)
	default:
		logging.Debug("Ignoring signal", map[string]interface{}{"signal": sig.String()})
	}
}

func (t *Trigger) fire(ctx context.Context, drain DrainFunc, reason string) {
	t.metrics.Triggered(reason)
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		drain(ctx, reason)
	}()
}
