package cache

import (
	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

// KeySpace hands out keys for new values. Freed keys are reused (lowest first) before new keys are taken. It's not
// thread-safe, the cache guards it with its lock.
type KeySpace[K Key] struct {
	used *roaring64.Bitmap
	free *roaring64.Bitmap
	next uint64
}

// NewKeySpace reconstructs the key space. The largest free key is treated as the next unused key like the stores
// report it.
func NewKeySpace[K Key](used []K, free []K) *KeySpace[K] {
	s := &KeySpace[K]{
		used: roaring64.New(),
		free: roaring64.New(),
	}

	for _, key := range used {
		s.used.Add(uint64(key))
		if uint64(key)+1 > s.next {
			s.next = uint64(key) + 1
		}
	}
	for _, key := range free {
		if uint64(key) > s.next {
			s.next = uint64(key)
		}
	}
	for _, key := range free {
		if uint64(key) < s.next && !s.used.Contains(uint64(key)) {
			s.free.Add(uint64(key))
		}
	}

	return s
}

// Allocate returns the lowest free key or the next unused one.
func (s *KeySpace[K]) Allocate() K {
	var key uint64
	if !s.free.IsEmpty() {
		key = s.free.Minimum()
		s.free.Remove(key)
	} else {
		key = s.next
		s.next++
	}
	s.used.Add(key)
	return K(key)
}

// Reserve marks a key as used that wasn't obtained by Allocate.
func (s *KeySpace[K]) Reserve(key K) {
	k := uint64(key)
	s.used.Add(k)
	s.free.Remove(k)
	if k >= s.next {
		s.next = k + 1
	}
}

// Release makes a key available for Allocate again.
func (s *KeySpace[K]) Release(key K) {
	k := uint64(key)
	if !s.used.Contains(k) {
		return
	}
	s.used.Remove(k)
	s.free.Add(k)
}

func (s *KeySpace[K]) IsUsed(key K) bool {
	return s.used.Contains(uint64(key))
}

func (s *KeySpace[K]) Len() int {
	return int(s.used.GetCardinality())
}
