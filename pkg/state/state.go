package state

import "sync"

// Change carries the snapshots handed to subscribers on every Set.
type Change[T any] struct {
	Previous T
	Current  T
}

// Subscriber is a channel that receives state changes
type Subscriber[T any] chan Change[T]

// Store holds an observable snapshot of T. T must have value
// semantics: Current hands out copies, and Set replaces the snapshot
// wholesale, so readers never observe a partially-applied mutation.
type Store[T any] struct {
	mu      sync.RWMutex
	current T

	subMu       sync.RWMutex
	subscribers map[Subscriber[T]]bool
}

// NewStore creates a store seeded with the given snapshot.
func NewStore[T any](initial T) *Store[T] {
	return &Store[T]{
		current:     initial,
		subscribers: make(map[Subscriber[T]]bool),
	}
}

// Current returns the latest snapshot.
func (s *Store[T]) Current() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Set replaces the snapshot with the result of applying mutate to the
// current one, then notifies subscribers with (previous, current).
// mutate runs under the store lock and must not call back into the
// store. The new snapshot is returned.
func (s *Store[T]) Set(mutate func(current T) T) T {
	s.mu.Lock()
	previous := s.current
	s.current = mutate(s.current)
	current := s.current
	s.mu.Unlock()

	s.broadcast(Change[T]{Previous: previous, Current: current})
	return current
}

// Subscribe creates a new subscription and returns a channel
func (s *Store[T]) Subscribe() Subscriber[T] {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	sub := make(Subscriber[T], 16) // Buffer per subscriber
	s.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription
func (s *Store[T]) Unsubscribe(sub Subscriber[T]) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	delete(s.subscribers, sub)
	close(sub)
}

// SubscriberCount returns the number of active subscribers
func (s *Store[T]) SubscriberCount() int {
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	return len(s.subscribers)
}

func (s *Store[T]) broadcast(change Change[T]) {
	s.subMu.RLock()
	defer s.subMu.RUnlock()

	for sub := range s.subscribers {
		select {
		case sub <- change:
		default:
			// Subscriber buffer full, skip
		}
	}
}
