package ops

import (
	"sync"

	"spaces/api/internal/space"
)

// spaceCache holds the last fetched aggregate per space. Entries are dropped
// whenever this client mutates the space; there is no push invalidation.
type spaceCache struct {
	mu     sync.Mutex
	spaces map[string]*space.Space
}

func newSpaceCache() *spaceCache {
	return &spaceCache{spaces: map[string]*space.Space{}}
}

func (c *spaceCache) get(id string) (*space.Space, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sp, ok := c.spaces[id]
	if !ok {
		return nil, false
	}
	return sp.Clone(), true
}

func (c *spaceCache) put(sp *space.Space) {
	cp := sp.Clone()
	c.mu.Lock()
	c.spaces[sp.ID] = cp
	c.mu.Unlock()
}

func (c *spaceCache) invalidate(id string) {
	c.mu.Lock()
	delete(c.spaces, id)
	c.mu.Unlock()
}

func (c *spaceCache) applyPublicACL(id string, enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sp, ok := c.spaces[id]; ok {
		sp.ApplyPublicACL(enabled)
	}
}
