package change

import (
	"context"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/gosuda/fanout/internal/domain"
)

// WorkspaceCache memoizes ownership lookups. Entries never expire; they are
// removed only by Invalidate. Get and Invalidate are the only mutators.
type WorkspaceCache struct {
	mu      sync.RWMutex
	entries map[string]domain.Ownership
	// byBoard indexes every key whose entry was derived through a board.
	byBoard map[string]map[string]struct{}
	// gen advances on every invalidation; loads that began under an older
	// generation do not populate the cache.
	gen   uint64
	group singleflight.Group
}

// NewWorkspaceCache returns an empty cache.
func NewWorkspaceCache() *WorkspaceCache {
	return &WorkspaceCache{
		entries: make(map[string]domain.Ownership),
		byBoard: make(map[string]map[string]struct{}),
	}
}

// LoadFunc fetches ownership on a cache miss.
type LoadFunc func(ctx context.Context) (*domain.Ownership, error)

// Get returns the entry for key, calling load on a miss. Concurrent misses
// for the same key share a single load. hit reports whether the value came
// from the cache.
func (c *WorkspaceCache) Get(ctx context.Context, key string, load LoadFunc) (own domain.Ownership, hit bool, err error) {
	c.mu.RLock()
	own, ok := c.entries[key]
	gen := c.gen
	c.mu.RUnlock()
	if ok {
		return own, true, nil
	}

	v, err, _ := c.group.Do(key+"@"+strconv.FormatUint(gen, 10), func() (any, error) {
		loaded, loadErr := load(ctx)
		if loadErr != nil {
			return nil, loadErr
		}
		if loaded == nil {
			return nil, domain.ErrNotFound
		}

		c.mu.Lock()
		if c.gen == gen {
			c.entries[key] = *loaded
			if loaded.BoardID != "" {
				keys, exists := c.byBoard[loaded.BoardID]
				if !exists {
					keys = make(map[string]struct{})
					c.byBoard[loaded.BoardID] = keys
				}
				keys[key] = struct{}{}
			}
		}
		c.mu.Unlock()

		return *loaded, nil
	})
	if err != nil {
		return domain.Ownership{}, false, err
	}

	return v.(domain.Ownership), false, nil //nolint:forcetypeassert // only Ownership is stored
}

// Invalidate drops every entry derived through boardID and returns how many
// were removed.
func (c *WorkspaceCache) Invalidate(boardID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++

	removed := 0
	for key := range c.byBoard[boardID] {
		delete(c.entries, key)
		removed++
	}
	delete(c.byBoard, boardID)

	if _, ok := c.entries[boardKey(boardID)]; ok {
		delete(c.entries, boardKey(boardID))
		removed++
	}

	return removed
}

// Peek returns the cached entry for key without loading.
func (c *WorkspaceCache) Peek(key string) (domain.Ownership, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	own, ok := c.entries[key]
	return own, ok
}

// Len returns the number of cached entries.
func (c *WorkspaceCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func boardKey(id string) string  { return "board:" + id }
func columnKey(id string) string { return "column:" + id }
func cardKey(id string) string   { return "card:" + id }
