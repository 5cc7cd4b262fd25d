package events

import (
	"errors"
	"slices"
	"sync"
)

// ErrClosed is returned by operations on a closed bus or publisher.
var ErrClosed = errors.New("events: closed")

// Bus fans values out to subscribers. Each Subscribe returns a handle that
// must be released with Unsubscribe when its owner is torn down.
type Bus[T any] struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]func(T)
	closed bool
}

// NewBus creates an empty bus.
func NewBus[T any]() *Bus[T] {
	return &Bus[T]{subs: make(map[uint64]func(T))}
}

// Subscription is the release handle returned by Subscribe.
type Subscription struct {
	once    sync.Once
	release func()
}

// Unsubscribe removes the callback. Safe to call more than once and on a nil
// handle, so it can always be deferred.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		if s.release != nil {
			s.release()
		}
	})
}

// Subscribe registers fn. After Unsubscribe returns, fn is never called again
// by a Publish that starts later.
func (b *Bus[T]) Subscribe(fn func(T)) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return &Subscription{}
	}
	b.nextID++
	id := b.nextID
	b.subs[id] = fn
	return &Subscription{release: func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}}
}

// Publish delivers v to a snapshot of the current subscribers, synchronously
// and in subscription order.
func (b *Bus[T]) Publish(v T) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	ids := make([]uint64, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	b.mu.RUnlock()

	slices.Sort(ids)
	for _, id := range ids {
		b.mu.RLock()
		fn, ok := b.subs[id]
		b.mu.RUnlock()
		if ok {
			fn(v)
		}
	}
}

// Len returns the number of live subscriptions.
func (b *Bus[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close drops every subscriber; later publishes are no-ops.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = make(map[uint64]func(T))
}
