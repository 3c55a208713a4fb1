package cache

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Subgraph is an opaque cached traversal result (a set of entity ids and
// whatever shape the retrieval layer attaches). Graph query dialect and
// traversal internals are out of scope here; SubgraphCache only caches
// the end result keyed by a caller-supplied fingerprint.
type Subgraph struct {
	EntityIDs []string
	Payload   interface{}
}

// SubgraphCache is a tenant-scoped, generational LRU over subgraph
// traversal results using version-bump invalidation: rather than scanning for keys to evict, bumping a
// tenant's generation makes every existing entry for that tenant
// unreachable on the next Get, and the LRU reclaims the space lazily.
type SubgraphCache struct {
	mu         sync.Mutex
	entries    *lru.Cache[string, subgraphCacheEntry]
	generation map[string]int64
}

type subgraphCacheEntry struct {
	generation int64
	value      Subgraph
}

// NewSubgraphCache constructs a cache holding at most maxEntries subgraphs
// across all tenants.
func NewSubgraphCache(maxEntries int) *SubgraphCache {
	if maxEntries <= 0 {
		maxEntries = 2000
	}
	c, _ := lru.New[string, subgraphCacheEntry](maxEntries)
	return &SubgraphCache{entries: c, generation: make(map[string]int64)}
}

func tenantKey(tenantID, key string) string {
	return tenantID + "\x00" + key
}

// Get returns the cached subgraph for (tenantID, key) if present and from
// the tenant's current generation.
func (c *SubgraphCache) Get(tenantID, key string) (Subgraph, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tk := tenantKey(tenantID, key)
	entry, ok := c.entries.Get(tk)
	if !ok {
		return Subgraph{}, false
	}
	if entry.generation != c.generation[tenantID] {
		c.entries.Remove(tk)
		return Subgraph{}, false
	}
	return entry.value, true
}

// Put stores a subgraph under the tenant's current generation.
func (c *SubgraphCache) Put(tenantID, key string, value Subgraph) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries.Add(tenantKey(tenantID, key), subgraphCacheEntry{
		generation: c.generation[tenantID],
		value:      value,
	})
}

// InvalidateTenant bumps tenantID's generation, logically evicting every
// entry previously stored for it without a key scan.
func (c *SubgraphCache) InvalidateTenant(tenantID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation[tenantID]++
}

// Len reports the current entry count across all tenants, including
// logically-invalidated entries not yet reclaimed.
func (c *SubgraphCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}
