package container

import (
	"github.com/RoaringBitmap/roaring/v2"
	"github.com/pkg/errors"
)

// StableIndex is a slice-like collection that hands out a stable integer handle for every inserted element. Removing an
// element never shifts other elements, the freed handle is reused by the next insertion (lowest freed handle first).
// StableIndex is not safe for concurrent use.
type StableIndex[T any] struct {
	elements []T
	free     *roaring.Bitmap // Handles of removed elements that are below len(elements).
}

func NewStableIndex[T any]() *StableIndex[T] {
	return &StableIndex[T]{
		elements: []T{},
		free:     roaring.New(),
	}
}

// Insert stores the element and returns its handle. The lowest previously freed handle is used if one exists, otherwise
// the element is appended.
func (s *StableIndex[T]) Insert(element T) int {
	if !s.free.IsEmpty() {
		index := s.free.Minimum()
		s.free.Remove(index)
		s.elements[index] = element
		return int(index)
	}

	s.elements = append(s.elements, element)
	return len(s.elements) - 1
}

// Remove frees the given handle. It returns false if the handle is not in use.
func (s *StableIndex[T]) Remove(index int) bool {
	if !s.Has(index) {
		return false
	}

	var zero T
	s.elements[index] = zero
	s.free.Add(uint32(index))

	s.shrink()
	return true
}

// shrink drops freed handles at the end of the slice so that Cap() reflects the highest handle in use.
func (s *StableIndex[T]) shrink() {
	for len(s.elements) > 0 && s.free.Contains(uint32(len(s.elements)-1)) {
		s.free.Remove(uint32(len(s.elements) - 1))
		s.elements = s.elements[:len(s.elements)-1]
	}
}

func (s *StableIndex[T]) Has(index int) bool {
	return index >= 0 && index < len(s.elements) && !s.free.Contains(uint32(index))
}

// Get returns the element for the given handle and false if the handle is not in use.
func (s *StableIndex[T]) Get(index int) (T, bool) {
	if !s.Has(index) {
		var zero T
		return zero, false
	}
	return s.elements[index], true
}

// Set replaces the element of a handle that is in use.
func (s *StableIndex[T]) Set(index int, element T) error {
	if !s.Has(index) {
		return errors.Errorf("Handle %d is not in use", index)
	}
	s.elements[index] = element
	return nil
}

// Restore puts the element at exactly the given handle, growing the collection and marking skipped handles as free.
// This is used when decoding persisted data where handles must survive unchanged.
func (s *StableIndex[T]) Restore(index int, element T) error {
	if index < 0 {
		return errors.Errorf("Invalid handle %d", index)
	}
	if s.Has(index) {
		return errors.Errorf("Handle %d is already in use", index)
	}

	for len(s.elements) <= index {
		s.free.Add(uint32(len(s.elements)))
		var zero T
		s.elements = append(s.elements, zero)
	}

	s.free.Remove(uint32(index))
	s.elements[index] = element
	return nil
}

// Len returns the number of handles in use.
func (s *StableIndex[T]) Len() int {
	return len(s.elements) - int(s.free.GetCardinality())
}

// Cap returns the number of slots, i.e. one more than the highest handle in use.
func (s *StableIndex[T]) Cap() int {
	return len(s.elements)
}

// Each calls f for every handle in use in ascending order. Iteration stops when f returns false.
func (s *StableIndex[T]) Each(f func(index int, element T) bool) {
	for i, element := range s.elements {
		if s.free.Contains(uint32(i)) {
			continue
		}
		if !f(i, element) {
			return
		}
	}
}

// Indices returns all handles in use in ascending order.
func (s *StableIndex[T]) Indices() []int {
	indices := make([]int, 0, s.Len())
	s.Each(func(index int, _ T) bool {
		indices = append(indices, index)
		return true
	})
	return indices
}

// FreeIndices returns the freed handles below Cap() in ascending order.
func (s *StableIndex[T]) FreeIndices() []int {
	freeIndices := make([]int, 0, s.free.GetCardinality())
	iterator := s.free.Iterator()
	for iterator.HasNext() {
		freeIndices = append(freeIndices, int(iterator.Next()))
	}
	return freeIndices
}

// Clear removes all elements and forgets all handles.
func (s *StableIndex[T]) Clear() {
	s.elements = []T{}
	s.free.Clear()
}
