// Package dedup tracks recently seen correlation ids so the signaling bus
// can drop duplicate deliveries from an at-least-once pub/sub relay.
package dedup

import (
	"sync"

	"github.com/petervdpas/goop2/internal/util"
)

const defaultCapacity = 256

// Set is a bounded LRU of correlation ids. Seen reports whether id has
// already been recorded and records it if not, both atomically under one
// lock. When the set is full, the oldest id is evicted to make room.
type Set struct {
	mu    sync.Mutex
	ring  *util.RingBuffer[string]
	index map[string]struct{}
	cap   int
}

// New creates a dedup set with the given capacity. capacity <= 0 uses the
// default of 256 entries, matching the few-hundred-entry budget.
func New(capacity int) *Set {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Set{
		ring:  util.NewRingBuffer[string](capacity),
		index: make(map[string]struct{}, capacity),
		cap:   capacity,
	}
}

// Seen returns true if id was already recorded. Otherwise it records id
// and returns false.
func (s *Set) Seen(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.index[id]; ok {
		return true
	}
	if s.ring.Len() == s.cap {
		oldest := s.ring.Snapshot()[0]
		delete(s.index, oldest)
	}
	s.ring.Push(id)
	s.index[id] = struct{}{}
	return false
}

// Clear empties the set, e.g. on session change.
func (s *Set) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ring = util.NewRingBuffer[string](s.cap)
	s.index = make(map[string]struct{}, s.cap)
}

// Len reports the number of tracked ids.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ring.Len()
}
