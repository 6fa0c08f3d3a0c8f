// Package modelcache provides a process-wide cache for loaded speech models so
// repeated sessions against the same model avoid reload cost. The cache is an
// explicit, injected service with a defined lifecycle: populate on first use,
// evict least-recently-used beyond capacity, unload on demand.
package modelcache

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LoadFunc loads the model identified by key
type LoadFunc[M any] func(key string) (M, error)

// EvictFunc releases a model removed from the cache
type EvictFunc[M any] func(key string, model M)

// Cache holds up to a fixed number of loaded models keyed by path or name.
// Loading is serialized so a model is never loaded twice concurrently.
type Cache[M any] struct {
	mu    sync.Mutex
	lru   *lru.Cache[string, M]
	load  LoadFunc[M]
	evict EvictFunc[M]
}

// New creates a cache bounded at size models
func New[M any](size int, load LoadFunc[M], evict EvictFunc[M]) (*Cache[M], error) {
	if load == nil {
		return nil, fmt.Errorf("load function must not be nil")
	}

	c := &Cache[M]{load: load, evict: evict}
	inner, err := lru.NewWithEvict[string, M](size, func(key string, model M) {
		if c.evict != nil {
			c.evict(key, model)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	c.lru = inner
	return c, nil
}

// Get returns the cached model for key, loading it on first use
func (c *Cache[M]) Get(key string) (M, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if model, ok := c.lru.Get(key); ok {
		return model, nil
	}

	model, err := c.load(key)
	if err != nil {
		var zero M
		return zero, fmt.Errorf("load model %q: %w", key, err)
	}
	c.lru.Add(key, model)
	return model, nil
}

// Unload removes one model, releasing it through the eviction callback
func (c *Cache[M]) Unload(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(key)
}

// Purge releases every cached model
func (c *Cache[M]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}

// Len returns the number of currently loaded models
func (c *Cache[M]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
