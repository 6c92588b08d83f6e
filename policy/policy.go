// Package policy defines the contract of eviction strategies used by the object cache.
package policy

// Strategy decides which resident entry is evicted next. It only tracks keys, the cache owns the entries and decides
// which of them are evictable at all (e.g. not checked out).
//
// Concurrency: all methods are called while the cache holds its lock.
type Strategy[K comparable] interface {
	// Admit is called when an entry becomes resident.
	Admit(key K)

	// Touch is called on every checkout of a resident entry. Strategies ignoring recency do nothing here.
	Touch(key K)

	// Remove is called when an entry left the cache.
	Remove(key K)

	// Victim returns the next key to evict among the keys accepted by evictable. It returns false if there's no such key.
	// The victim stays tracked until Remove is called for it.
	Victim(evictable func(key K) bool) (K, bool)

	// Len returns the number of tracked keys.
	Len() int
}
