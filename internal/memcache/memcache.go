// Package memcache provides a per-namespace, in-memory LRU cache with
// per-entry TTL enforced on read. It is the fast tier of the two-tier
// cache manager (internal/gcm); eviction here never touches the disk tier.
package memcache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aman-cerp/corpuscore/internal/model"
)

// entry carries a cached value alongside its expiry deadline.
type entry struct {
	value   []byte
	expires time.Time // zero means no TTL
}

func (e entry) expired(now time.Time) bool {
	return !e.expires.IsZero() && now.After(e.expires)
}

// Stats is an immutable snapshot of a namespace cache's counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Len       int
}

// namespaceCache is a single namespace's LRU plus its counters.
type namespaceCache struct {
	mu        sync.Mutex
	lru       *lru.Cache[string, entry]
	hits      int64
	misses    int64
	evictions int64
}

// Cache is a collection of per-namespace LRU caches.
type Cache struct {
	mu         sync.RWMutex
	namespaces map[model.Namespace]*namespaceCache
	configs    map[model.Namespace]model.NamespaceConfig
}

// New creates a Cache using the given per-namespace configuration for
// memory limits. Namespaces not present in configs fall back to
// model.DefaultNamespaceConfigs().
func New(configs map[model.Namespace]model.NamespaceConfig) *Cache {
	if configs == nil {
		configs = model.DefaultNamespaceConfigs()
	}
	return &Cache{
		namespaces: make(map[model.Namespace]*namespaceCache),
		configs:    configs,
	}
}

func (c *Cache) namespaceLimit(ns model.Namespace) int {
	if cfg, ok := c.configs[ns]; ok && cfg.MemoryLimit > 0 {
		return cfg.MemoryLimit
	}
	return model.DefaultNamespaceConfigs()[model.NamespaceDefault].MemoryLimit
}

func (c *Cache) namespaceTTL(ns model.Namespace) time.Duration {
	if cfg, ok := c.configs[ns]; ok {
		return cfg.MemoryTTL
	}
	return 0
}

// getOrCreate returns the namespaceCache for ns, creating it on first use.
func (c *Cache) getOrCreate(ns model.Namespace) *namespaceCache {
	c.mu.RLock()
	nc, ok := c.namespaces[ns]
	c.mu.RUnlock()
	if ok {
		return nc
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if nc, ok := c.namespaces[ns]; ok {
		return nc
	}

	limit := c.namespaceLimit(ns)
	nc = &namespaceCache{}
	l, _ := lru.NewWithEvict[string, entry](limit, func(string, entry) {
		nc.evictions++
	})
	nc.lru = l
	c.namespaces[ns] = nc
	return nc
}

// Get returns the cached value for key in namespace ns. A miss (absent or
// expired) returns ok=false; an expired entry is purged from the cache.
func (c *Cache) Get(ns model.Namespace, key string) (value []byte, ok bool) {
	nc := c.getOrCreate(ns)
	nc.mu.Lock()
	defer nc.mu.Unlock()

	e, found := nc.lru.Get(key)
	if !found {
		nc.misses++
		return nil, false
	}
	if e.expired(time.Now()) {
		nc.lru.Remove(key)
		nc.misses++
		return nil, false
	}
	nc.hits++
	return e.value, true
}

// Set stores value under key in namespace ns. A zero ttl uses the
// namespace's default TTL (no expiry when that is also zero); a positive
// ttl overrides it.
func (c *Cache) Set(ns model.Namespace, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.namespaceTTL(ns)
	}

	nc := c.getOrCreate(ns)
	nc.mu.Lock()
	defer nc.mu.Unlock()

	e := entry{value: value}
	if ttl > 0 {
		e.expires = time.Now().Add(ttl)
	}
	nc.lru.Add(key, e)
}

// Delete removes key from namespace ns, if present.
func (c *Cache) Delete(ns model.Namespace, key string) {
	nc := c.getOrCreate(ns)
	nc.mu.Lock()
	defer nc.mu.Unlock()
	nc.lru.Remove(key)
}

// Clear removes all entries from namespace ns.
func (c *Cache) Clear(ns model.Namespace) {
	nc := c.getOrCreate(ns)
	nc.mu.Lock()
	defer nc.mu.Unlock()
	nc.lru.Purge()
}

// Stats returns a snapshot of namespace ns's counters.
func (c *Cache) Stats(ns model.Namespace) Stats {
	nc := c.getOrCreate(ns)
	nc.mu.Lock()
	defer nc.mu.Unlock()
	return Stats{
		Hits:      nc.hits,
		Misses:    nc.misses,
		Evictions: nc.evictions,
		Len:       nc.lru.Len(),
	}
}
