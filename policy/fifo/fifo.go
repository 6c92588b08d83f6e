// Package fifo implements the first-in-first-out eviction strategy.
package fifo

import (
	"container/list"

	"trackmap/policy"
)

// fifo evicts entries in the order they became resident. Checkouts don't change this order.
type fifo[K comparable] struct {
	order    *list.List // Front is the oldest entry.
	elements map[K]*list.Element
}

func New[K comparable]() policy.Strategy[K] {
	return &fifo[K]{
		order:    list.New(),
		elements: map[K]*list.Element{},
	}
}

func (f *fifo[K]) Admit(key K) {
	if _, ok := f.elements[key]; ok {
		return
	}
	f.elements[key] = f.order.PushBack(key)
}

func (f *fifo[K]) Touch(K) {}

func (f *fifo[K]) Remove(key K) {
	element, ok := f.elements[key]
	if !ok {
		return
	}
	f.order.Remove(element)
	delete(f.elements, key)
}

// Victim walks from the oldest entry and skips entries that can't be evicted right now.
func (f *fifo[K]) Victim(evictable func(key K) bool) (K, bool) {
	for element := f.order.Front(); element != nil; element = element.Next() {
		key := element.Value.(K)
		if evictable(key) {
			return key, true
		}
	}
	var zero K
	return zero, false
}

func (f *fifo[K]) Len() int {
	return f.order.Len()
}
