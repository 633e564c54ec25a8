package server

import (
	"sync"

	"github.com/google/uuid"
)

// store is a mutex-guarded map keyed by generated ids.
type store[T any] struct {
	mu    sync.RWMutex
	items map[string]T
}

func newStore[T any]() *store[T] {
	return &store[T]{items: map[string]T{}}
}

// put saves v under id, generating one when id is empty.
func (s *store[T]) put(id string, v T) string {
	if id == "" {
		id = uuid.NewString()
	}
	s.mu.Lock()
	s.items[id] = v
	s.mu.Unlock()
	return id
}

func (s *store[T]) get(id string) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[id]
	return v, ok
}

func (s *store[T]) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
