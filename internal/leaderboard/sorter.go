package leaderboard

import (
	"sync"

	"castboard/internal/domain"
)

// Sorter remembers the last requested ordering so that asking for the
// same key twice flips the direction.
type Sorter struct {
	mu        sync.Mutex
	key       domain.SortKey
	ascending bool
}

// NewSorter creates a sorter with no previous ordering.
func NewSorter() *Sorter {
	return &Sorter{}
}

// Next records a request for key and returns the direction to use.
// The same key as last time toggles; a new key starts descending.
func (s *Sorter) Next(key domain.SortKey) (ascending bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.key == key {
		s.ascending = !s.ascending
	} else {
		s.key = key
		s.ascending = false
	}
	return s.ascending
}

// Set records an explicitly requested direction so the next request for
// the same key flips relative to it.
func (s *Sorter) Set(key domain.SortKey, ascending bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.key = key
	s.ascending = ascending
}

// Current returns the last key and direction. key is empty before the first Next.
func (s *Sorter) Current() (key domain.SortKey, ascending bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key, s.ascending
}
