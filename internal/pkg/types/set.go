package types

import (
	"cmp"
	"iter"
	"maps"
	"slices"
)

// Set is a generic hash set backed by map[T]struct{}. It is not safe for
// concurrent mutation; callers guard it themselves.
type Set[T comparable] map[T]struct{}

// NewSet creates a Set holding data.
func NewSet[T comparable](data ...T) Set[T] {
	set := make(Set[T], len(data))
	set.Add(data...)
	return set
}

// Add inserts values into the set.
func (s Set[T]) Add(values ...T) {
	for _, val := range values {
		s[val] = struct{}{}
	}
}

// AddNew inserts value and reports whether it was absent before.
func (s Set[T]) AddNew(value T) bool {
	if s.Has(value) {
		return false
	}

	s[value] = struct{}{}
	return true
}

// Delete removes values from the set.
func (s Set[T]) Delete(values ...T) {
	for _, val := range values {
		delete(s, val)
	}
}

// Has reports whether value is in the set.
func (s Set[T]) Has(value T) bool {
	_, ok := s[value]
	return ok
}

// Len returns the number of elements.
func (s Set[T]) Len() int {
	return len(s)
}

// ToIter returns an iterator over the elements, in no particular order.
func (s Set[T]) ToIter() iter.Seq[T] {
	return maps.Keys(s)
}

// ToSlice returns the elements in no particular order.
func (s Set[T]) ToSlice() []T {
	return slices.Collect(s.ToIter())
}

// Sorted returns the elements of an ordered set in ascending order.
func Sorted[T cmp.Ordered](s Set[T]) []T {
	return slices.Sorted(s.ToIter())
}
