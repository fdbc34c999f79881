package mapfilter

import (
	"sync"

	"github.com/turtacn/BizAtlas/internal/domain/geoentity"
)

// FilterCache memoises the last filter result of one map session.  It holds
// a single slot: the key of the last evaluation (filter hash plus snapshot
// version) and its result.
type FilterCache struct {
	mu     sync.Mutex
	key    string
	result []geoentity.Entity
	hits   uint64
	misses uint64
}

// NewFilterCache returns an empty cache.
func NewFilterCache() *FilterCache {
	return &FilterCache{}
}

// Lookup returns the cached slice when key matches the stored key and the
// stored result is non-empty.  A hit returns the very slice that was stored.
func (c *FilterCache) Lookup(key string) ([]geoentity.Entity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if key != "" && key == c.key && len(c.result) > 0 {
		c.hits++
		return c.result, true
	}
	c.misses++
	return nil, false
}

// Store replaces the slot.
func (c *FilterCache) Store(key string, result []geoentity.Entity) {
	c.mu.Lock()
	c.key = key
	c.result = result
	c.mu.Unlock()
}

// Reset empties the slot.
func (c *FilterCache) Reset() {
	c.mu.Lock()
	c.key = ""
	c.result = nil
	c.mu.Unlock()
}

// Stats returns hit and miss counts.
func (c *FilterCache) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

//Personal.AI order the ending
