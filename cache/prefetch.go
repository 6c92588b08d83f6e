package cache

import (
	"github.com/hauke96/sigolo/v2"
)

// Notifier is called on the prefetch worker goroutine once the requested key is resident or loading it failed.
type Notifier[K Key] func(key K, err error)

type prefetchRequest[K Key] struct {
	key       K
	notifiers []Notifier[K]
}

// prefetcher holds the queue of the background worker. All fields are guarded by the cache lock.
type prefetcher[K Key] struct {
	queue    []*prefetchRequest[K]
	pending  map[K]*prefetchRequest[K]
	running  bool
	wake     chan struct{}
	shutdown chan struct{}
	finished chan struct{}
}

func (p *prefetcher[K]) init() {
	p.pending = map[K]*prefetchRequest[K]{}
	p.wake = make(chan struct{}, 1)
	p.shutdown = make(chan struct{})
	p.finished = make(chan struct{})
}

// GetOrPrefetch returns a handle when the key is resident. Otherwise it queues the key for the background worker and
// returns false, the notifier is called once the worker is done with it. Several requests of a key that's still queued
// are merged, each notifier is called exactly once. It never blocks on I/O.
func (c *Cache[K, V]) GetOrPrefetch(key K, notifier Notifier[K]) (*Handle[K, V], bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	e, ok := c.entries[key]
	if ok && e.state == stateResident && !c.closed {
		e.refs++
		c.options.Strategy.Touch(key)
		c.options.Metrics.Hit()
		return newHandle(c, e), true
	}

	if c.closed {
		if notifier != nil {
			go notifier(key, ErrClosed)
		}
		return nil, false
	}

	p := &c.prefetcher
	if request, ok := p.pending[key]; ok {
		if notifier != nil {
			request.notifiers = append(request.notifiers, notifier)
		}
		return nil, false
	}

	request := &prefetchRequest[K]{key: key}
	if notifier != nil {
		request.notifiers = append(request.notifiers, notifier)
	}
	p.pending[key] = request
	p.queue = append(p.queue, request)

	if !p.running {
		p.running = true
		go c.prefetchWorker()
	}
	select {
	case p.wake <- struct{}{}:
	default:
	}

	return nil, false
}

func (c *Cache[K, V]) prefetchWorker() {
	p := &c.prefetcher
	defer close(p.finished)

	sigolo.Debugf("Started cache prefetch worker")

	for {
		select {
		case <-p.shutdown:
			c.dropPrefetchRequests()
			sigolo.Debugf("Stopped cache prefetch worker")
			return
		case <-p.wake:
		}

		for {
			request := c.nextPrefetchRequest()
			if request == nil {
				break
			}
			c.prefetch(request)
		}
	}
}

func (c *Cache[K, V]) nextPrefetchRequest() *prefetchRequest[K] {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	p := &c.prefetcher
	if len(p.queue) == 0 {
		return nil
	}
	request := p.queue[0]
	p.queue[0] = nil
	p.queue = p.queue[1:]
	return request
}

// prefetch loads the key of the request unless it's already resident and calls all notifiers of the request.
func (c *Cache[K, V]) prefetch(request *prefetchRequest[K]) {
	key := request.key

	c.mutex.Lock()
	err := c.prefetchLocked(key)
	// Requests arriving from now on find the key resident or create a new request.
	delete(c.prefetcher.pending, key)
	notifiers := request.notifiers
	c.mutex.Unlock()

	if err != nil {
		sigolo.Errorf("Prefetching cache entry %v failed: %+v", key, err)
	} else {
		c.evictSoft()
	}

	for _, notifier := range notifiers {
		notifier(key, err)
	}
}

func (c *Cache[K, V]) prefetchLocked(key K) error {
	for {
		if c.closed {
			return ErrClosed
		}

		e, ok := c.entries[key]
		if !ok {
			break
		}
		if e.state == stateResident {
			return nil
		}
		c.changed.Wait()
	}

	c.options.Metrics.Miss()

	e := c.placeholder(key)
	return c.admit(e, 0, false, func() (V, bool, error) {
		return c.load(key)
	})
}

// dropPrefetchRequests notifies all queued requests about the shutdown.
func (c *Cache[K, V]) dropPrefetchRequests() {
	c.mutex.Lock()
	p := &c.prefetcher
	queue := p.queue
	p.queue = nil
	p.pending = map[K]*prefetchRequest[K]{}
	c.mutex.Unlock()

	for _, request := range queue {
		for _, notifier := range request.notifiers {
			notifier(request.key, ErrClosed)
		}
	}
}

func (c *Cache[K, V]) stopPrefetcher() {
	c.mutex.Lock()
	p := &c.prefetcher
	running := p.running
	c.mutex.Unlock()

	if !running {
		return
	}

	close(p.shutdown)
	<-p.finished
}
