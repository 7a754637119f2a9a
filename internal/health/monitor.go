package health

import (
	"sync"
)

// Monitor reports whether the local host is healthy. Sessions subscribe to
// it to suspend queues while the host is unhealthy.
type Monitor interface {
	// Healthy returns the current host health.
	Healthy() bool

	// Subscribe registers fn to be called on every health transition and
	// returns a function that removes the subscription. fn must not block.
	Subscribe(fn func(healthy bool)) (unsubscribe func())
}

// subscribers is the subscription list shared by monitor implementations
type subscribers struct {
	mu     sync.Mutex
	nextID int
	fns    map[int]func(bool)
}

func (s *subscribers) add(fn func(bool)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fns == nil {
		s.fns = make(map[int]func(bool))
	}
	id := s.nextID
	s.nextID++
	s.fns[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.fns, id)
		})
	}
}

func (s *subscribers) notify(healthy bool) {
	s.mu.Lock()
	fns := make([]func(bool), 0, len(s.fns))
	for _, fn := range s.fns {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(healthy)
	}
}

// BasicMonitor is a Monitor whose state is set by the application.
// It starts healthy.
type BasicMonitor struct {
	mu      sync.Mutex
	healthy bool
	subs    subscribers
}

// NewBasicMonitor creates a monitor in the healthy state
func NewBasicMonitor() *BasicMonitor {
	return &BasicMonitor{healthy: true}
}

// Healthy returns the current host health
func (m *BasicMonitor) Healthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.healthy
}

// Subscribe registers fn for health transitions
func (m *BasicMonitor) Subscribe(fn func(healthy bool)) func() {
	return m.subs.add(fn)
}

// SetHealthy marks the host healthy, notifying subscribers on a transition
func (m *BasicMonitor) SetHealthy() {
	m.set(true)
}

// SetUnhealthy marks the host unhealthy, notifying subscribers on a transition
func (m *BasicMonitor) SetUnhealthy() {
	m.set(false)
}

func (m *BasicMonitor) set(healthy bool) {
	m.mu.Lock()
	changed := m.healthy != healthy
	m.healthy = healthy
	m.mu.Unlock()

	if changed {
		m.subs.notify(healthy)
	}
}
