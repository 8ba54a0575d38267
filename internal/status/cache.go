package status

import (
	"sync"

	"github.com/labwatch/labwatch/internal/model"
)

// Cache holds the last known status per monitored item. Incoming maps are
// merged: an absent key means "no new information", never "item removed".
type Cache struct {
	mu    sync.RWMutex
	items model.StatusMap
}

// NewCache creates an empty status cache
func NewCache() *Cache {
	return &Cache{items: make(model.StatusMap)}
}

// Merge folds a full or partial status map into the cache
func (c *Cache) Merge(sm model.StatusMap) {
	if len(sm) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for id, st := range sm {
		c.items[id] = st
	}
}

// Get returns the status for an item, defaulting to warning for items
// without a configured status source.
func (c *Cache) Get(id string) model.Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if st, ok := c.items[id]; ok {
		return st
	}
	return model.StatusWarning
}

// Snapshot returns a copy of the full cached map
func (c *Cache) Snapshot() model.StatusMap {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(model.StatusMap, len(c.items))
	for id, st := range c.items {
		out[id] = st
	}
	return out
}
