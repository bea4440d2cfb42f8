package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"clustermatch/internal/domain"
	"clustermatch/internal/port"
)

// ClientCache keeps constructed embedder handles per credential. Entries are
// keyed by a hash of the credential so the raw key is never held as a map key.
type ClientCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	order   []string
	maxSize int
	ttl     time.Duration
	now     func() time.Time
}

type cacheEntry struct {
	embedder  port.Embedder
	timestamp time.Time
}

func NewClientCache(maxSize int, ttl time.Duration) *ClientCache {
	if maxSize <= 0 {
		maxSize = 16
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ClientCache{
		entries: make(map[string]*cacheEntry),
		order:   make([]string, 0, maxSize),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// KeyFor returns the cache key for a credential. The first 8 hex characters
// are safe to log.
func KeyFor(cred domain.Credential) string {
	hash := sha256.Sum256([]byte(cred))
	return hex.EncodeToString(hash[:16])
}

func (c *ClientCache) Get(cred domain.Credential) (port.Embedder, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := KeyFor(cred)
	entry, exists := c.entries[key]
	if !exists {
		return nil, false
	}

	if c.now().Sub(entry.timestamp) > c.ttl {
		delete(c.entries, key)
		c.removeFromOrder(key)
		return nil, false
	}

	c.moveToEnd(key)
	return entry.embedder, true
}

func (c *ClientCache) Put(cred domain.Credential, e port.Embedder) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := KeyFor(cred)

	if _, exists := c.entries[key]; exists {
		c.entries[key] = &cacheEntry{embedder: e, timestamp: c.now()}
		c.moveToEnd(key)
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	c.entries[key] = &cacheEntry{embedder: e, timestamp: c.now()}
	c.order = append(c.order, key)
}

// Invalidate drops the handle for one credential, e.g. after an auth failure.
func (c *ClientCache) Invalidate(cred domain.Credential) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := KeyFor(cred)
	delete(c.entries, key)
	c.removeFromOrder(key)
}

func (c *ClientCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *ClientCache) evictOldest() {
	if len(c.order) == 0 {
		return
	}
	oldest := c.order[0]
	c.order = c.order[1:]
	delete(c.entries, oldest)
}

func (c *ClientCache) moveToEnd(key string) {
	c.removeFromOrder(key)
	c.order = append(c.order, key)
}

func (c *ClientCache) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

// Factory builds an embedder for a credential.
type Factory func(cred domain.Credential) (port.Embedder, error)

// CachedSource implements port.EmbedderSource on top of a ClientCache.
type CachedSource struct {
	factory Factory
	cache   *ClientCache
}

var _ port.EmbedderSource = (*CachedSource)(nil)

func NewCachedSource(factory Factory, cache *ClientCache) *CachedSource {
	return &CachedSource{
		factory: factory,
		cache:   cache,
	}
}

func (s *CachedSource) Embedder(cred domain.Credential) (port.Embedder, error) {
	if e, hit := s.cache.Get(cred); hit {
		return e, nil
	}

	e, err := s.factory(cred)
	if err != nil {
		return nil, err
	}

	s.cache.Put(cred, e)
	return e, nil
}

// Forget drops the cached handle for cred.
func (s *CachedSource) Forget(cred domain.Credential) {
	s.cache.Invalidate(cred)
}
