package cache

import (
	"sync/atomic"
)

// Handle is a checkout of a cache entry. The entry can't be evicted as long as at least one handle of it isn't
// released. Handles aren't freed automatically, use "defer handle.Release()" or Cache.Use.
type Handle[K Key, V any] struct {
	cache    *Cache[K, V]
	entry    *entry[K, V]
	released atomic.Bool
}

func newHandle[K Key, V any](cache *Cache[K, V], e *entry[K, V]) *Handle[K, V] {
	return &Handle[K, V]{
		cache: cache,
		entry: e,
	}
}

func (h *Handle[K, V]) Key() K {
	return h.entry.key
}

// Found is false for absent entries, i.e. the key neither was in the store nor has been set.
func (h *Handle[K, V]) Found() bool {
	h.cache.mutex.Lock()
	defer h.cache.mutex.Unlock()
	return h.entry.found
}

func (h *Handle[K, V]) Value() V {
	h.cache.mutex.Lock()
	defer h.cache.mutex.Unlock()
	return h.entry.value
}

// Set replaces the value and marks the entry as dirty. A larger value first makes room within the hard limits like an
// admission, i.e. it may evict other entries or wait for their release.
func (h *Handle[K, V]) Set(value V) error {
	h.cache.mutex.Lock()
	defer h.cache.mutex.Unlock()
	return h.cache.replace(h.entry, value)
}

// Fill sets the value of an absent entry without marking it dirty, so it's only persisted after it was modified. It
// returns the value of the entry, which is the given one unless the entry was found or filled before.
func (h *Handle[K, V]) Fill(value V) V {
	h.cache.mutex.Lock()
	defer h.cache.mutex.Unlock()
	if !h.entry.found {
		h.entry.value = value
		h.entry.found = true
		h.cache.resize(h.entry)
		h.cache.trimToHardLimit()
	}
	return h.entry.value
}

// MarkDirty must be called after the value was modified in place. The size of the value is determined again, when it
// grew beyond the hard limit unused entries are evicted. The value itself is already in memory, so this never waits.
func (h *Handle[K, V]) MarkDirty() {
	h.cache.mutex.Lock()
	defer h.cache.mutex.Unlock()
	h.cache.markDirty(h.entry)
	h.cache.trimToHardLimit()
}

// Clone creates a second, independent handle of the same entry.
func (h *Handle[K, V]) Clone() *Handle[K, V] {
	h.cache.mutex.Lock()
	defer h.cache.mutex.Unlock()
	h.entry.refs++
	return newHandle(h.cache, h.entry)
}

// Release gives the entry back to the cache. Calling it several times has no effect.
func (h *Handle[K, V]) Release() {
	if h.released.Swap(true) {
		return
	}
	h.cache.release(h.entry)
}
