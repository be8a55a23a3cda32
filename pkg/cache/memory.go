package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// entry is one cached item. size counts key and value bytes so the byte
// limit tracks real memory use.
type entry struct {
	key       string
	value     []byte
	expiresAt time.Time
	size      int64
}

func (e *entry) expired() bool {
	return !e.expiresAt.IsZero() && time.Now().After(e.expiresAt)
}

// MemoryCache is an in-memory LRU cache with TTL support. Counters are
// guarded by mu; the read path takes the write lock because every hit
// reorders the LRU list.
type MemoryCache struct {
	mu    sync.RWMutex
	items map[string]*list.Element // element values are *entry
	lru   *list.List               // front = most recently used
	cfg   Config

	hits        int64
	misses      int64
	sets        int64
	deletes     int64
	evictions   int64
	expirations int64
	sizeBytes   int64

	stop      chan struct{}
	closeOnce sync.Once
}

// NewMemoryCache creates a new in-memory LRU cache and starts its
// background expiry sweep.
func NewMemoryCache(cfg Config) *MemoryCache {
	if cfg.MaxSize == 0 {
		cfg.MaxSize = DefaultConfig().MaxSize
	}
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = DefaultConfig().CleanupInterval
	}

	c := &MemoryCache{
		items: make(map[string]*list.Element),
		lru:   list.New(),
		cfg:   cfg,
		stop:  make(chan struct{}),
	}
	go c.sweep()
	return c
}

// Get retrieves a value by key.
func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, ErrNotFound
	}

	e := elem.Value.(*entry)
	// Expired entries are removed on read and count as a miss
	if e.expired() {
		c.remove(elem)
		c.misses++
		c.expirations++
		return nil, ErrNotFound
	}

	c.lru.MoveToFront(elem)
	c.hits++
	return e.value, nil
}

// Set stores a value with optional TTL.
func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	size := int64(len(key) + len(value))
	if c.cfg.MaxSizeBytes > 0 && size > c.cfg.MaxSizeBytes {
		return ErrValueTooLarge
	}

	e := &entry{
		key:       key,
		value:     value,
		expiresAt: c.expiry(ttl),
		size:      size,
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		old := elem.Value.(*entry)
		c.sizeBytes += size - old.size
		elem.Value = e
		c.lru.MoveToFront(elem)
		c.sets++
		return nil
	}

	for c.overLimit(size) {
		c.evictLRU()
	}

	c.items[key] = c.lru.PushFront(e)
	c.sizeBytes += size
	c.sets++
	return nil
}

// GetOrCompute returns the cached value for key, or runs compute and
// stores its result. The lock is released before compute runs, so
// concurrent misses for the same key may compute more than once; the
// last write wins.
func (c *MemoryCache) GetOrCompute(ctx context.Context, key string, compute func(context.Context) ([]byte, error), ttl time.Duration) ([]byte, error) {
	value, err := c.Get(ctx, key)
	if err == nil {
		return value, nil
	}
	if err != ErrNotFound {
		return nil, err
	}

	value, err = compute(ctx)
	if err != nil {
		return nil, err
	}

	// Store best-effort; the computed value is returned regardless
	_ = c.Set(ctx, key, value, ttl)
	return value, nil
}

// Delete removes a key from the cache.
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return ErrNotFound
	}

	c.remove(elem)
	c.deletes++
	return nil
}

// Has checks if a key exists without counting a hit or a miss.
func (c *MemoryCache) Has(ctx context.Context, key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	elem, ok := c.items[key]
	return ok && !elem.Value.(*entry).expired()
}

// Clear removes all entries. Counters keep their values so hit rates
// survive a flush.
func (c *MemoryCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element)
	c.lru.Init()
	c.sizeBytes = 0
	return nil
}

// CleanupExpired removes all expired entries and returns how many were
// removed. It also runs periodically on the configured interval.
func (c *MemoryCache) CleanupExpired(ctx context.Context) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var stale []*list.Element
	for elem := c.lru.Back(); elem != nil; elem = elem.Prev() {
		if elem.Value.(*entry).expired() {
			stale = append(stale, elem)
		}
	}

	for _, elem := range stale {
		c.remove(elem)
		c.expirations++
	}
	return len(stale)
}

// Stats returns a snapshot of cache statistics.
func (c *MemoryCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Stats{
		Hits:         c.hits,
		Misses:       c.misses,
		Sets:         c.sets,
		Deletes:      c.deletes,
		Evictions:    c.evictions,
		Expirations:  c.expirations,
		Size:         int64(len(c.items)),
		SizeBytes:    c.sizeBytes,
		MaxSize:      c.cfg.MaxSize,
		MaxSizeBytes: c.cfg.MaxSizeBytes,
	}
}

// Close stops the background sweep. Safe to call more than once.
func (c *MemoryCache) Close() error {
	c.closeOnce.Do(func() { close(c.stop) })
	return nil
}

// expiry resolves the effective expiration for a write. Zero ttl falls
// back to the configured default; a zero default means no expiration.
func (c *MemoryCache) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		ttl = c.cfg.DefaultTTL
	}
	if ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(ttl)
}

// overLimit reports whether adding extra bytes would break a limit.
func (c *MemoryCache) overLimit(extra int64) bool {
	if c.cfg.MaxSize > 0 && int64(len(c.items)) >= c.cfg.MaxSize {
		return true
	}
	return c.cfg.MaxSizeBytes > 0 && c.sizeBytes+extra > c.cfg.MaxSizeBytes
}

// evictLRU drops the least recently used entry.
func (c *MemoryCache) evictLRU() {
	elem := c.lru.Back()
	if elem == nil {
		return
	}
	c.remove(elem)
	c.evictions++
}

// remove unlinks an element from both the map and the LRU list.
func (c *MemoryCache) remove(elem *list.Element) {
	e := elem.Value.(*entry)
	delete(c.items, e.key)
	c.lru.Remove(elem)
	c.sizeBytes -= e.size
}

// sweep expires entries in the background until Close.
func (c *MemoryCache) sweep() {
	ticker := time.NewTicker(c.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.CleanupExpired(context.Background())
		case <-c.stop:
			return
		}
	}
}
