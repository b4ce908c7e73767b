package listener

import (
	"sync"

	"github.com/google/uuid"
)

// Listener is a registrable callback with a stable identity.
type Listener[T any] struct {
	id uuid.UUID
	fn func(T)
}

// New wraps fn in a listener handle.
func New[T any](fn func(T)) *Listener[T] {
	return &Listener[T]{
		id: uuid.New(),
		fn: fn,
	}
}

// ID returns the listener's identity.
func (l *Listener[T]) ID() uuid.UUID {
	return l.id
}

// Call invokes the wrapped callback.
func (l *Listener[T]) Call(v T) {
	if l.fn != nil {
		l.fn(v)
	}
}

// Set is a registry of listeners. Iteration follows registration order.
type Set[T any] struct {
	mu    sync.RWMutex
	order []*Listener[T]
	index map[uuid.UUID]int
}

// Add registers l. Adding a nil or already registered listener is a no-op.
// Returns true if l was newly registered.
func (s *Set[T]) Add(l *Listener[T]) bool {
	if l == nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.index == nil {
		s.index = make(map[uuid.UUID]int)
	}
	if _, ok := s.index[l.id]; ok {
		return false
	}
	s.index[l.id] = len(s.order)
	s.order = append(s.order, l)
	return true
}

// Remove unregisters l. Removing an unknown listener is a no-op.
// Returns true if l was registered.
func (s *Set[T]) Remove(l *Listener[T]) bool {
	if l == nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[l.id]
	if !ok {
		return false
	}
	s.order = append(s.order[:i], s.order[i+1:]...)
	delete(s.index, l.id)
	for j := i; j < len(s.order); j++ {
		s.index[s.order[j].id] = j
	}
	return true
}

// Has reports whether l is registered.
func (s *Set[T]) Has(l *Listener[T]) bool {
	if l == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.index[l.id]
	return ok
}

// Len returns the number of registered listeners.
func (s *Set[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Snapshot returns the registered listeners in registration order.
func (s *Set[T]) Snapshot() []*Listener[T] {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Listener[T], len(s.order))
	copy(out, s.order)
	return out
}

// Emit calls every registered listener with v, one at a time, in
// registration order. The set is snapshotted first, so listeners may add or
// remove registrations while running. A panicking listener aborts the pass.
func (s *Set[T]) Emit(v T) int {
	listeners := s.Snapshot()
	for _, l := range listeners {
		l.Call(v)
	}
	return len(listeners)
}
