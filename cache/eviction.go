package cache

import (
	"github.com/hauke96/sigolo/v2"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const flushConcurrency = 4

func (c *Cache[K, V]) overHardLimit(additionalObjects int, additionalBytes int64) (objects bool, bytes bool) {
	if c.options.NoMemoryLimit {
		return false, false
	}
	objects = c.options.MaxObjects > 0 && c.reserved+additionalObjects > c.options.MaxObjects
	bytes = c.options.HardMaxBytes > 0 && c.bytes+additionalBytes > c.options.HardMaxBytes
	return objects, bytes
}

// makeRoom evicts entries until the additional objects and bytes fit into the hard limits. When nothing can be
// evicted, it waits until entries are released. A value larger than the byte limit is admitted when no other value is
// resident, ownBytes are the bytes of the growing entry itself. Returns with the lock held and the room available.
// Must be called with the lock held.
func (c *Cache[K, V]) makeRoom(additionalObjects int, additionalBytes int64, ownBytes int64) error {
	for {
		if c.closed {
			return ErrClosed
		}

		tooManyObjects, tooManyBytes := c.overHardLimit(additionalObjects, additionalBytes)
		if !tooManyObjects && !tooManyBytes {
			return nil
		}

		victim, ok := c.options.Strategy.Victim(c.isEvictable)
		if !ok {
			if !tooManyObjects && c.bytes-ownBytes == 0 {
				sigolo.Debugf("Admit value of %d bytes exceeding the hard limit of %d bytes into empty cache", additionalBytes, c.options.HardMaxBytes)
				return nil
			}

			sigolo.Tracef("Cache is full with %d entries and %d bytes, wait for releases", c.reserved, c.bytes)
			c.changed.Wait()
			continue
		}

		err := c.evict(victim, EvictHardLimit)
		if err != nil {
			return err
		}
	}
}

func (c *Cache[K, V]) isEvictable(key K) bool {
	e, ok := c.entries[key]
	if !ok || e.state != stateResident || e.refs > 0 {
		return false
	}
	// Without persistence a dirty value only exists in the cache
	return !e.dirty || c.options.Persistence != nil
}

// evict removes the entry and saves it before if it's dirty. The lock is released while saving, the entry is in
// evicting state then. When saving fails, the entry stays resident. Must be called with the lock held.
func (c *Cache[K, V]) evict(key K, reason EvictReason) error {
	e := c.entries[key]

	if e.dirty && c.options.Persistence != nil {
		e.state = stateEvicting
		value := e.value

		c.mutex.Unlock()
		err := c.options.Persistence.Save(key, value)
		c.mutex.Lock()

		if err != nil {
			// The key keeps its position in the strategy
			e.state = stateResident
			c.changed.Broadcast()
			return errors.Wrapf(err, "Unable to save cache entry %v before evicting it", key)
		}
	}

	delete(c.entries, key)
	c.options.Strategy.Remove(key)
	c.reserved--
	c.resident--
	c.bytes -= e.size
	c.options.Metrics.Evict(reason)
	c.options.Metrics.Size(c.resident, c.bytes)
	c.changed.Broadcast()

	sigolo.Tracef("Evicted cache entry %v (%s), %d entries with %d bytes remain", key, reason, c.resident, c.bytes)
	return nil
}

// trimToHardLimit evicts unused entries after a value grew in place. It never waits, the limit is restored by the next
// admission otherwise. Must be called with the lock held.
func (c *Cache[K, V]) trimToHardLimit() {
	for !c.closed {
		_, tooManyBytes := c.overHardLimit(0, 0)
		if !tooManyBytes {
			return
		}

		victim, ok := c.options.Strategy.Victim(c.isEvictable)
		if !ok {
			sigolo.Debugf("Cache holds %d bytes above the hard limit of %d bytes, nothing is evictable", c.bytes, c.options.HardMaxBytes)
			return
		}

		err := c.evict(victim, EvictHardLimit)
		if err != nil {
			sigolo.Errorf("Eviction after in-place growth failed: %+v", err)
			return
		}
	}
}

// evictSoft evicts unused entries as long as the resident size exceeds the soft limit and more than the minimum number
// of objects are resident. Failures are logged, the entry stays resident then.
func (c *Cache[K, V]) evictSoft() {
	if c.options.SoftMaxBytes <= 0 {
		return
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	for !c.closed && c.bytes > c.options.SoftMaxBytes && c.resident > c.options.MinObjects {
		victim, ok := c.options.Strategy.Victim(c.isEvictable)
		if !ok {
			return
		}

		err := c.evict(victim, EvictSoftLimit)
		if err != nil {
			sigolo.Errorf("Soft eviction failed: %+v", err)
			return
		}
	}
}

func flushParallel[K Key, V any](c *Cache[K, V], keys []K) error {
	group := errgroup.Group{}
	group.SetLimit(flushConcurrency)

	for _, key := range keys {
		group.Go(func() error {
			return c.Flush(key)
		})
	}

	return group.Wait()
}
