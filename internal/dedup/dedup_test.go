package dedup

import "testing"

func TestSeenIdempotent(t *testing.T) {
	s := New(4)
	if s.Seen("a") {
		t.Fatalf("first sighting of a reported as seen")
	}
	if !s.Seen("a") {
		t.Fatalf("second sighting of a reported as unseen")
	}
}

func TestEvictsOldestAtCapacity(t *testing.T) {
	s := New(2)
	s.Seen("a")
	s.Seen("b")
	s.Seen("c") // evicts "a"
	if s.Seen("a") {
		t.Fatalf("a should have been evicted and treated as unseen again")
	}
	if !s.Seen("c") {
		t.Fatalf("c should still be tracked")
	}
}

func TestClear(t *testing.T) {
	s := New(4)
	s.Seen("a")
	s.Clear()
	if s.Len() != 0 {
		t.Fatalf("expected empty set after Clear, got len=%d", s.Len())
	}
	if s.Seen("a") {
		t.Fatalf("a should be unseen after Clear")
	}
}
