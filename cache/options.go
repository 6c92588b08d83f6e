package cache

import (
	"trackmap/policy"
)

// Key is the type of cache keys. Keys are integers since they are stored as integer ids in the persistent store.
type Key interface {
	~int | ~int32 | ~int64 | ~uint | ~uint32 | ~uint64
}

// EvictReason explains why an entry was removed.
type EvictReason int

const (
	// EvictHardLimit - removed before admitting a new entry that would exceed MaxObjects or HardMaxBytes.
	EvictHardLimit EvictReason = iota
	// EvictSoftLimit - removed opportunistically because the resident size exceeded SoftMaxBytes.
	EvictSoftLimit
	// EvictErase - removed together with its persisted data.
	EvictErase
)

func (r EvictReason) String() string {
	switch r {
	case EvictHardLimit:
		return "hard-limit"
	case EvictSoftLimit:
		return "soft-limit"
	default:
		return "erase"
	}
}

// Metrics exposes cache-level observability hooks. NoopMetrics is used when nothing is configured.
type Metrics interface {
	Hit()
	Miss()
	Load(err error)
	Evict(reason EvictReason)
	Size(entries int, bytes int64)
}

type NoopMetrics struct{}

func (NoopMetrics) Hit() {}
func (NoopMetrics) Miss() {}
func (NoopMetrics) Load(error) {}
func (NoopMetrics) Evict(EvictReason) {}
func (NoopMetrics) Size(entries int, bytes int64) {}

var _ Metrics = NoopMetrics{}

// Options configures a cache. Zero values are safe, New applies these defaults:
//   - nil Strategy => FIFO
//   - nil Metrics  => NoopMetrics
//   - nil SizeOf   => all values have size 0, only MaxObjects limits the cache
type Options[K Key, V any] struct {
	// Persistence loads and saves values. It's required unless NonPersistent is set.
	Persistence Persistence[K, V]

	// NonPersistent disables persistence. Misses result in absent entries and dirty entries are never evicted, since
	// they are the only copy of their value.
	NonPersistent bool

	// NoMemoryLimit disables MaxObjects and HardMaxBytes, i.e. admissions never evict or block.
	NoMemoryLimit bool

	// MaxObjects is the hard limit of resident entries (0 = unlimited).
	MaxObjects int

	// MinObjects is the number of entries the soft limit never evicts below.
	MinObjects int

	// SoftMaxBytes triggers opportunistic eviction when exceeded (0 = disabled).
	SoftMaxBytes int64

	// HardMaxBytes is never exceeded by admissions, they evict or block instead (0 = unlimited).
	HardMaxBytes int64

	// SizeOf estimates the size of a value in bytes.
	SizeOf func(value V) int64

	// Strategy selects eviction victims.
	Strategy policy.Strategy[K]

	Metrics Metrics
}
