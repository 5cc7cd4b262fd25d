package session

import (
	"sync"

	"voice-translation-viewer/internal/events"
	"voice-translation-viewer/internal/observability/metrics"
)

// Change is published after every dispatched action.
type Change struct {
	Action Action
	Prev   State
	Next   State
}

// Store holds the current State and serializes transitions.
type Store struct {
	mu      sync.RWMutex
	state   State
	changes *events.Bus[Change]
	metrics *metrics.Metrics
}

// NewStore creates a store starting at initial.
func NewStore(initial State) *Store {
	return &Store{
		state:   initial,
		changes: events.NewBus[Change](),
		metrics: metrics.DefaultMetrics,
	}
}

// State returns the current state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Dispatch applies a and notifies subscribers outside the lock.
func (s *Store) Dispatch(a Action) State {
	s.mu.Lock()
	prev := s.state
	next := Reduce(prev, a)
	s.state = next
	s.mu.Unlock()

	s.metrics.RecordSessionAction(a.Kind())
	s.changes.Publish(Change{Action: a, Prev: prev, Next: next})
	return next
}

// Subscribe registers fn for every future change.
func (s *Store) Subscribe(fn func(Change)) *events.Subscription {
	return s.changes.Subscribe(fn)
}

// Close releases all subscribers.
func (s *Store) Close() {
	s.changes.Close()
}
