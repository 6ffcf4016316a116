package cache

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

// PixelCache defines a generic interface for caching encoded pixel buffers.
type PixelCache interface {
	// Get retrieves a buffer from the cache.
	Get(key uint64) ([]uint8, bool)
	// Put stores a buffer in the cache.
	Put(key uint64, pix []uint8)
	// Size returns the number of items in the cache.
	Size() int
}

// Key hashes a request body into a cache key.
func Key(body []byte) uint64 {
	return xxhash.Sum64(body)
}

// MapCache is a bounded in-memory implementation of PixelCache.
// When full, the oldest inserted entry is evicted.
type MapCache struct {
	data  map[uint64][]uint8
	order []uint64
	limit int
	mu    sync.RWMutex
}

// NewMapCache returns a cache holding at most limit entries.
// limit <= 0 means unbounded.
func NewMapCache(limit int) *MapCache {
	return &MapCache{
		data:  make(map[uint64][]uint8),
		limit: limit,
	}
}

func (c *MapCache) Get(key uint64) ([]uint8, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// Return copy to avoid modification of cached value
	if v, ok := c.data[key]; ok {
		dst := make([]uint8, len(v))
		copy(dst, v)
		cacheHits.Inc()
		return dst, true
	}
	cacheMisses.Inc()
	return nil, false
}

func (c *MapCache) Put(key uint64, pix []uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Store copy
	dst := make([]uint8, len(pix))
	copy(dst, pix)
	if _, ok := c.data[key]; !ok {
		c.order = append(c.order, key)
	}
	c.data[key] = dst

	for c.limit > 0 && len(c.data) > c.limit {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.data, oldest)
		cacheEvictions.Inc()
	}
}

func (c *MapCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}
