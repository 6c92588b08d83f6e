package cache

import (
	"sync"
	"time"
	"trackmap/policy/fifo"
	"trackmap/util"

	"github.com/hauke96/sigolo/v2"
	"github.com/pkg/errors"
)

var ErrClosed = errors.New("Cache is closed")

type entryState int

const (
	stateLoading entryState = iota
	stateResident
	stateEvicting
)

type entry[K Key, V any] struct {
	key     K
	value   V
	found   bool
	refs    int
	dirty   bool
	version uint64 // Incremented on every change, a flush only cleans the entry when no change happened meanwhile.
	size    int64
	state   entryState
}

// Cache is a thread-safe, size-bounded object cache. Values are loaded from and saved to a Persistence, handed out as
// reference-counted handles and evicted by a policy.Strategy when they aren't checked out.
//
// All state is guarded by one mutex. Loads and saves happen without holding it, entries in these states are marked as
// loading/evicting and other goroutines interested in them wait on the condition variable.
type Cache[K Key, V any] struct {
	mutex   sync.Mutex
	changed *sync.Cond

	options  Options[K, V]
	entries  map[K]*entry[K, V]
	reserved int // Entries holding an object slot: resident, evicting and loading ones that passed admission.
	resident int
	bytes    int64
	closed   bool

	keysOnce  sync.Once
	keys      *KeySpace[K]
	keysError error

	prefetcher prefetcher[K]
}

func New[K Key, V any](options Options[K, V]) (*Cache[K, V], error) {
	if options.Persistence == nil && !options.NonPersistent {
		return nil, errors.New("Cache without persistence must be configured as non-persistent")
	}
	if options.MaxObjects < 0 || options.MinObjects < 0 || options.SoftMaxBytes < 0 || options.HardMaxBytes < 0 {
		return nil, errors.Errorf("Cache limits must not be negative")
	}
	if options.MaxObjects > 0 && options.MinObjects > options.MaxObjects {
		return nil, errors.Errorf("Minimum of %d objects exceeds maximum of %d objects", options.MinObjects, options.MaxObjects)
	}

	if options.Strategy == nil {
		options.Strategy = fifo.New[K]()
	}
	if options.Metrics == nil {
		options.Metrics = NoopMetrics{}
	}
	if options.NonPersistent {
		options.Persistence = nil
	}

	c := &Cache[K, V]{
		options: options,
		entries: map[K]*entry[K, V]{},
	}
	c.changed = sync.NewCond(&c.mutex)
	c.prefetcher.init()

	return c, nil
}

// Get checks out the entry of the key and loads it if it's not resident. Keys unknown to the persistence result in an
// absent entry (Found() is false). Get blocks while the key is loaded or evicted by someone else and while the cache is
// full of checked out entries.
func (c *Cache[K, V]) Get(key K) (*Handle[K, V], error) {
	c.mutex.Lock()
	e, err := c.acquire(key)
	c.mutex.Unlock()
	if err != nil {
		return nil, err
	}

	c.evictSoft()
	return newHandle(c, e), nil
}

// Use checks out the key, calls the function and releases the handle afterward.
func (c *Cache[K, V]) Use(key K, f func(handle *Handle[K, V]) error) error {
	handle, err := c.Get(key)
	if err != nil {
		return err
	}
	defer handle.Release()
	return f(handle)
}

// acquire returns the resident entry with an incremented reference count. Must be called with the lock held.
func (c *Cache[K, V]) acquire(key K) (*entry[K, V], error) {
	for {
		if c.closed {
			return nil, ErrClosed
		}

		e, ok := c.entries[key]
		if !ok {
			break
		}
		if e.state != stateResident {
			c.changed.Wait()
			continue
		}

		e.refs++
		c.options.Strategy.Touch(key)
		c.options.Metrics.Hit()
		return e, nil
	}

	c.options.Metrics.Miss()

	e := c.placeholder(key)
	err := c.admit(e, 1, false, func() (V, bool, error) {
		return c.load(key)
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (c *Cache[K, V]) load(key K) (V, bool, error) {
	var value V
	if c.options.Persistence == nil {
		return value, false, nil
	}

	start := time.Now()
	value, found, err := c.options.Persistence.Load(key)
	c.options.Metrics.Load(err)
	if err != nil {
		return value, false, errors.Wrapf(err, "Unable to load cache entry %v", key)
	}

	sigolo.Tracef("Loaded cache entry %v (found=%t) in %s", key, found, time.Since(start))
	return value, found, nil
}

// Insert stores the value under the key, marks it as dirty and checks it out. An existing value is replaced.
func (c *Cache[K, V]) Insert(key K, value V) (*Handle[K, V], error) {
	c.mutex.Lock()
	e, err := c.insert(key, value)
	c.mutex.Unlock()
	if err != nil {
		return nil, err
	}

	c.evictSoft()
	return newHandle(c, e), nil
}

func (c *Cache[K, V]) insert(key K, value V) (*entry[K, V], error) {
	for {
		if c.closed {
			return nil, ErrClosed
		}

		e, ok := c.entries[key]
		if !ok {
			break
		}
		if e.state != stateResident {
			c.changed.Wait()
			continue
		}

		e.refs++
		err := c.replace(e, value)
		if err != nil {
			c.unpin(e)
			return nil, err
		}
		c.options.Strategy.Touch(key)
		return e, nil
	}

	if c.keys != nil {
		c.keys.Reserve(key)
	}

	e := c.placeholder(key)
	err := c.admit(e, 1, true, func() (V, bool, error) {
		return value, true, nil
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Create stores the value under a new key. Keys of erased values are reused, lowest first.
func (c *Cache[K, V]) Create(value V) (K, *Handle[K, V], error) {
	c.keysOnce.Do(func() {
		keys, err := c.loadKeySpace()
		c.mutex.Lock()
		c.keys, c.keysError = keys, err
		c.mutex.Unlock()
	})

	c.mutex.Lock()
	var key K
	if c.keysError != nil {
		c.mutex.Unlock()
		return key, nil, c.keysError
	}
	for {
		key = c.keys.Allocate()
		// Inserted but never saved values are unknown to the persistence
		if _, ok := c.entries[key]; !ok {
			break
		}
	}
	e, err := c.insert(key, value)
	if err != nil {
		c.keys.Release(key)
	}
	c.mutex.Unlock()
	if err != nil {
		return key, nil, err
	}

	c.evictSoft()
	return key, newHandle(c, e), nil
}

func (c *Cache[K, V]) loadKeySpace() (*KeySpace[K], error) {
	if c.options.Persistence == nil {
		return NewKeySpace[K](nil, nil), nil
	}

	used, err := c.options.Persistence.UsedKeys()
	if err != nil {
		return nil, errors.Wrap(err, "Unable to read used keys")
	}
	free, err := c.options.Persistence.FreeKeys()
	if err != nil {
		return nil, errors.Wrap(err, "Unable to read free keys")
	}

	sigolo.Debugf("Reconstructed key space with %d used and %d free keys", len(used), len(free))
	return NewKeySpace(used, free), nil
}

// placeholder reserves the entry for the key in loading state, so that nobody else loads it concurrently.
func (c *Cache[K, V]) placeholder(key K) *entry[K, V] {
	e := &entry[K, V]{
		key:   key,
		state: stateLoading,
	}
	c.entries[key] = e
	return e
}

func (c *Cache[K, V]) dropPlaceholder(e *entry[K, V]) {
	delete(c.entries, e.key)
	c.changed.Broadcast()
}

// admit makes room for the placeholder, obtains its value without holding the lock and makes it resident. On error
// the placeholder is removed again. Must be called with the lock held.
func (c *Cache[K, V]) admit(e *entry[K, V], refs int, dirty bool, obtain func() (V, bool, error)) error {
	err := c.makeRoom(1, 0, 0)
	if err != nil {
		c.dropPlaceholder(e)
		return err
	}
	c.reserved++

	c.mutex.Unlock()
	value, found, err := obtain()
	c.mutex.Lock()
	if err != nil {
		c.reserved--
		c.dropPlaceholder(e)
		return err
	}

	size := c.sizeOf(value, found)
	err = c.makeRoom(0, size, 0)
	if err != nil {
		c.reserved--
		c.dropPlaceholder(e)
		return err
	}

	e.value = value
	e.found = found
	e.size = size
	e.refs = refs
	e.dirty = dirty
	e.state = stateResident
	if dirty {
		e.version++
	}

	c.resident++
	c.bytes += size
	c.options.Strategy.Admit(e.key)
	c.options.Metrics.Size(c.resident, c.bytes)
	c.changed.Broadcast()

	return nil
}

func (c *Cache[K, V]) sizeOf(value V, found bool) int64 {
	if !found || c.options.SizeOf == nil {
		return 0
	}
	return c.options.SizeOf(value)
}

// replace sets a new value of the checked out entry. A growing value first makes room within the hard limits, which may
// evict other entries or wait for releases. Must be called with the lock held.
func (c *Cache[K, V]) replace(e *entry[K, V], value V) error {
	size := c.sizeOf(value, true)
	if size > e.size {
		err := c.makeRoom(0, size-e.size, e.size)
		if err != nil {
			return err
		}
	}

	e.value = value
	e.found = true
	c.markDirty(e)
	return nil
}

// unpin drops a reference taken under the lock. Must be called with the lock held.
func (c *Cache[K, V]) unpin(e *entry[K, V]) {
	e.refs--
	if e.refs == 0 {
		c.changed.Broadcast()
	}
}

// markDirty must be called with the lock held.
func (c *Cache[K, V]) markDirty(e *entry[K, V]) {
	e.dirty = true
	e.version++
	c.resize(e)
}

// resize determines the size of the value again. Must be called with the lock held.
func (c *Cache[K, V]) resize(e *entry[K, V]) {
	size := c.sizeOf(e.value, e.found)
	c.bytes += size - e.size
	e.size = size
	c.options.Metrics.Size(c.resident, c.bytes)
}

func (c *Cache[K, V]) release(e *entry[K, V]) {
	c.mutex.Lock()
	e.refs--
	if e.refs < 0 {
		util.LogBug("Cache entry %v released more often than checked out", e.key)
		e.refs = 0
	}
	unused := e.refs == 0
	if unused {
		c.changed.Broadcast()
	}
	c.mutex.Unlock()

	if unused {
		c.evictSoft()
	}
}

// Flush saves the value of the key if it's dirty. The entry stays resident.
func (c *Cache[K, V]) Flush(key K) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	for {
		e, ok := c.entries[key]
		if !ok {
			return nil
		}
		if e.state == stateResident {
			return c.flush(e)
		}
		c.changed.Wait()
	}
}

// flush saves the entry without holding the lock. The entry is checked out meanwhile so that it can't be evicted. Must
// be called with the lock held.
func (c *Cache[K, V]) flush(e *entry[K, V]) error {
	if !e.dirty || c.options.Persistence == nil {
		return nil
	}

	e.refs++
	version := e.version
	value := e.value

	c.mutex.Unlock()
	err := c.options.Persistence.Save(e.key, value)
	c.mutex.Lock()

	c.unpin(e)

	if err != nil {
		return errors.Wrapf(err, "Unable to flush cache entry %v", e.key)
	}
	if e.version == version {
		e.dirty = false
	}
	return nil
}

// FlushAll saves all dirty entries. The first error is returned after all saves have been tried.
func (c *Cache[K, V]) FlushAll() error {
	c.mutex.Lock()
	var dirty []K
	for key, e := range c.entries {
		if e.state == stateResident && e.dirty {
			dirty = append(dirty, key)
		}
	}
	c.mutex.Unlock()

	if len(dirty) == 0 || c.options.Persistence == nil {
		return nil
	}

	sigolo.Debugf("Flush %d dirty cache entries", len(dirty))
	return flushParallel(c, dirty)
}

// Erase removes the key from the cache and from the persistence. The entry must not be checked out.
func (c *Cache[K, V]) Erase(key K) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	var e *entry[K, V]
	var existed bool
	for {
		e, existed = c.entries[key]
		if !existed {
			// Blocks loads of this key while erasing
			e = c.placeholder(key)
			e.state = stateEvicting
			break
		}
		if e.state == stateResident {
			if e.refs > 0 {
				return errors.Errorf("Unable to erase cache entry %v, it's checked out %d times", key, e.refs)
			}
			e.state = stateEvicting
			break
		}
		c.changed.Wait()
	}

	var err error
	if c.options.Persistence != nil {
		c.mutex.Unlock()
		err = c.options.Persistence.Erase(key)
		c.mutex.Lock()
	}

	if err != nil {
		if existed {
			// The strategy still knows the key at its original position
			e.state = stateResident
		} else {
			delete(c.entries, key)
		}
		c.changed.Broadcast()
		return errors.Wrapf(err, "Unable to erase cache entry %v", key)
	}

	delete(c.entries, key)
	if existed {
		c.options.Strategy.Remove(key)
		c.reserved--
		c.resident--
		c.bytes -= e.size
		c.options.Metrics.Evict(EvictErase)
		c.options.Metrics.Size(c.resident, c.bytes)
	}
	if c.keys != nil {
		c.keys.Release(key)
	}
	c.changed.Broadcast()

	return nil
}

// Contains returns true when the key is resident. The entry isn't checked out.
func (c *Cache[K, V]) Contains(key K) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	e, ok := c.entries[key]
	return ok && e.state == stateResident
}

// Len returns the number of resident entries.
func (c *Cache[K, V]) Len() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.resident
}

// Size returns the sum of the sizes of all resident values.
func (c *Cache[K, V]) Size() int64 {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.bytes
}

// Close stops the prefetch worker and flushes all dirty entries. Further checkouts fail with ErrClosed.
func (c *Cache[K, V]) Close() error {
	c.mutex.Lock()
	if c.closed {
		c.mutex.Unlock()
		return nil
	}
	c.closed = true
	c.changed.Broadcast()
	c.mutex.Unlock()

	c.stopPrefetcher()

	return c.FlushAll()
}
