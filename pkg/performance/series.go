package performance

import (
	"sort"
	"time"
)

// Series holds at most capacity entries ordered by timestamp, oldest first.
// When full, the oldest entry gives way to a newer one.
type Series[T any] struct {
	items    []T
	capacity int
	ts       func(T) time.Time
}

// NewSeries creates a series keyed by ts
func NewSeries[T any](capacity int, ts func(T) time.Time) *Series[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Series[T]{capacity: capacity, ts: ts}
}

// Push inserts v in timestamp order. It reports false when the series is full
// and v is older than every entry held, in which case v is dropped.
func (s *Series[T]) Push(v T) bool {
	at := s.ts(v)
	if len(s.items) == s.capacity {
		if at.Before(s.ts(s.items[0])) {
			return false
		}
		s.items = s.items[1:]
	}
	i := sort.Search(len(s.items), func(i int) bool { return s.ts(s.items[i]).After(at) })
	var zero T
	s.items = append(s.items, zero)
	copy(s.items[i+1:], s.items[i:])
	s.items[i] = v
	return true
}

// Len returns the number of entries held
func (s *Series[T]) Len() int { return len(s.items) }

// Latest returns the entry with the greatest timestamp
func (s *Series[T]) Latest() (T, bool) {
	if len(s.items) == 0 {
		var zero T
		return zero, false
	}
	return s.items[len(s.items)-1], true
}

// Items returns a copy of the entries oldest first
func (s *Series[T]) Items() []T {
	out := make([]T, len(s.items))
	copy(out, s.items)
	return out
}

// Each calls fn for every entry oldest first until fn returns false
func (s *Series[T]) Each(fn func(T) bool) {
	for _, v := range s.items {
		if !fn(v) {
			return
		}
	}
}
