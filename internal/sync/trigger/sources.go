package trigger

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kimhsiao/fieldsync/backend/internal/logging"
)

const eventBuffer = 8

// send delivers sig unless the buffer is full. A pending signal already
// leads to a drain, so a dropped duplicate loses nothing.
func send(ch chan Signal, sig Signal) {
	select {
	case ch <- sig:
	default:
		logging.Debug("Signal buffer full, dropping", map[string]interface{}{"signal": sig.String()})
	}
}

// =====================================================
// ManualSource
// =====================================================

// ManualSource is driven by explicit calls, e.g. the local API forwarding
// visibility changes from the UI.
type ManualSource struct {
	events chan Signal
	online atomic.Bool
}

// NewManualSource creates a ManualSource with the given initial state.
func NewManualSource(online bool) *ManualSource {
	s := &ManualSource{events: make(chan Signal, eventBuffer)}
	s.online.Store(online)
	return s
}

func (s *ManualSource) Events() <-chan Signal { return s.events }
func (s *ManualSource) Online() bool          { return s.online.Load() }
func (s *ManualSource) Start(context.Context) {}
func (s *ManualSource) Stop()                 {}

// SetOnline updates connectivity and emits Online or Offline on a change.
func (s *ManualSource) SetOnline(online bool) {
	if s.online.Swap(online) == online {
		return
	}
	if online {
		send(s.events, SignalOnline)
	} else {
		send(s.events, SignalOffline)
	}
}

// Notify emits sig. Online and Offline also update the state.
func (s *ManualSource) Notify(sig Signal) {
	switch sig {
	case SignalOnline:
		s.online.Store(true)
	case SignalOffline:
		s.online.Store(false)
	}
	send(s.events, sig)
}

// =====================================================
// ProbeSource
// =====================================================

// Pinger checks backend reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DefaultProbeInterval is used when ProbeSource is given a non-positive interval.
const DefaultProbeInterval = 15 * time.Second

// MaxStartProbeTimeout bounds the synchronous probe in Start, so a hanging
// backend cannot hold up the caller.
const MaxStartProbeTimeout = 2 * time.Second

// ProbeSource derives connectivity by pinging the backend on an interval and
// emits Online or Offline on each transition.
type ProbeSource struct {
	pinger       Pinger
	interval     time.Duration
	timeout      time.Duration
	startTimeout time.Duration
	events       chan Signal
	online   atomic.Bool

	stopCh chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	active bool
}

// NewProbeSource creates a ProbeSource. Each background probe is bounded by
// the interval; the probe in Start by the smaller of the interval and
// MaxStartProbeTimeout.
func NewProbeSource(p Pinger, interval time.Duration) *ProbeSource {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	return &ProbeSource{
		pinger:       p,
		interval:     interval,
		timeout:      interval,
		startTimeout: min(interval, MaxStartProbeTimeout),
		events:       make(chan Signal, eventBuffer),
	}
}

func (s *ProbeSource) Events() <-chan Signal { return s.events }
func (s *ProbeSource) Online() bool          { return s.online.Load() }

// Start runs a short first probe synchronously, so Online is accurate on
// return, then probes in the background. The first probe emits no signal; a
// backend that does not answer in time counts as offline until the next
// probe, which emits Online if it succeeds.
func (s *ProbeSource) Start(ctx context.Context) {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return
	}
	s.active = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	s.online.Store(s.probe(ctx, s.startTimeout))

	s.wg.Add(1)
	go s.run(ctx)
}

// Stop halts probing and waits for the probe goroutine.
func (s *ProbeSource) Stop() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *ProbeSource) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			online := s.probe(ctx, s.timeout)
			if s.online.Swap(online) == online {
				continue
			}
			if online {
				send(s.events, SignalOnline)
			} else {
				send(s.events, SignalOffline)
			}
		}
	}
}

func (s *ProbeSource) probe(ctx context.Context, timeout time.Duration) bool {
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := s.pinger.Ping(pctx); err != nil {
		logging.Debug("Backend probe failed", map[string]interface{}{"error": err.Error()})
		return false
	}
	return true
}

// =====================================================
// MultiSource
// =====================================================

// MultiSource merges the events of several sources. Connectivity comes from
// the first source only.
type MultiSource struct {
	connectivity EventSource
	sources      []EventSource
	events       chan Signal

	stopCh chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	active bool
}

// NewMultiSource creates a MultiSource whose Online state is connectivity's.
func NewMultiSource(connectivity EventSource, others ...EventSource) *MultiSource {
	return &MultiSource{
		connectivity: connectivity,
		sources:      append([]EventSource{connectivity}, others...),
		events:       make(chan Signal, eventBuffer),
	}
}

func (m *MultiSource) Events() <-chan Signal { return m.events }
func (m *MultiSource) Online() bool          { return m.connectivity.Online() }

func (m *MultiSource) Start(ctx context.Context) {
	m.mu.Lock()
	if m.active {
		m.mu.Unlock()
		return
	}
	m.active = true
	m.stopCh = make(chan struct{})
	m.mu.Unlock()

	for _, src := range m.sources {
		src.Start(ctx)
		m.wg.Add(1)
		go m.forward(ctx, src.Events())
	}
}

func (m *MultiSource) Stop() {
	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return
	}
	m.active = false
	close(m.stopCh)
	m.mu.Unlock()

	for _, src := range m.sources {
		src.Stop()
	}
	m.wg.Wait()
}

func (m *MultiSource) forward(ctx context.Context, in <-chan Signal) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case sig := <-in:
			select {
			case m.events <- sig:
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			}
		}
	}
}
