package services

import (
	"fmt"
	"slices"
	"sync"
)

// EntityStore is an ordered in-memory collection keyed by a local id.
//
// Every mutation publishes a new snapshot slice; snapshots handed out by All
// are never written again, so observers can compare previous and next values
// by identity.
type EntityStore[T any] struct {
	mu        sync.Mutex
	key       func(T) string
	items     []T
	version   uint64
	observers map[int]func(prev, next []T)
	nextObs   int

	// delivered is the last version whose observers have returned.
	notifyMu  sync.Mutex
	notified  *sync.Cond
	delivered uint64
}

func NewEntityStore[T any](key func(T) string) *EntityStore[T] {
	s := &EntityStore[T]{
		key:       key,
		items:     []T{},
		observers: make(map[int]func(prev, next []T)),
	}
	s.notified = sync.NewCond(&s.notifyMu)
	return s
}

// Add appends item at the end of the collection.
func (s *EntityStore[T]) Add(item T) error {
	s.mu.Lock()
	id := s.key(item)
	if s.indexOf(id) >= 0 {
		s.mu.Unlock()
		return fmt.Errorf("adding %s: %w", id, ErrDuplicateID)
	}
	next := make([]T, len(s.items), len(s.items)+1)
	copy(next, s.items)
	next = append(next, item)
	s.publish(next)
	return nil
}

// Remove deletes the entity with the given id. Unknown ids are ignored.
func (s *EntityStore[T]) Remove(id string) bool {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	next := make([]T, 0, len(s.items)-1)
	next = append(next, s.items[:i]...)
	next = append(next, s.items[i+1:]...)
	s.publish(next)
	return true
}

// Update applies merge to a copy of the entity with the given id and
// publishes the result. Unknown ids are ignored. The lookup and the merge
// happen under one lock, so an entity removed concurrently is never revived.
func (s *EntityStore[T]) Update(id string, merge func(*T)) bool {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	item := s.items[i]
	merge(&item)
	next := slices.Clone(s.items)
	next[i] = item
	s.publish(next)
	return true
}

func (s *EntityStore[T]) Get(id string) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(id); i >= 0 {
		return s.items[i], true
	}
	var zero T
	return zero, false
}

// All returns the current snapshot in insertion order. Callers must not
// modify it.
func (s *EntityStore[T]) All() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items
}

func (s *EntityStore[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Version increases by one on every effective mutation.
func (s *EntityStore[T]) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Subscribe registers fn to be called after every effective mutation with
// the previous and next snapshots. Observers run outside the store lock, in
// the goroutine that performed the mutation, and see mutations in the order
// they were applied. An observer may read the store but must not mutate it.
func (s *EntityStore[T]) Subscribe(fn func(prev, next []T)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

func (s *EntityStore[T]) indexOf(id string) int {
	for i, item := range s.items {
		if s.key(item) == id {
			return i
		}
	}
	return -1
}

// publish swaps in next and releases the lock before notifying observers.
// Notifications of concurrent mutations are delivered in version order.
func (s *EntityStore[T]) publish(next []T) {
	prev := s.items
	s.items = next
	s.version++
	version := s.version
	fns := make([]func(prev, next []T), 0, len(s.observers))
	for _, fn := range s.observers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	s.notifyMu.Lock()
	for s.delivered != version-1 {
		s.notified.Wait()
	}
	s.notifyMu.Unlock()

	for _, fn := range fns {
		fn(prev, next)
	}

	s.notifyMu.Lock()
	s.delivered = version
	s.notified.Broadcast()
	s.notifyMu.Unlock()
}
