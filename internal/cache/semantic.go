package cache

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/graphrag/orchestrator/domain"
)

// InvalidationChannel is the pg_notify channel used to broadcast node
// invalidations across process replicas, via pkg/pgnotify.
const InvalidationChannel = "semcache_invalidate"

// MutationBus is the capability subset of pkg/pgnotify.Bus this package
// needs: broadcasting invalidations. Declared here instead of importing
// pgnotify's concrete type directly keeps this package's tests free of a
// Postgres dependency.
type MutationBus interface {
	Publish(ctx context.Context, channel string, payload interface{}) error
}

// invalidationPayload is what crosses the wire on InvalidationChannel.
type invalidationPayload struct {
	NodeIDs []string `json:"node_ids"`
}

// ComputeFunc produces a fresh result for a cache miss. Its nodeIDs return
// value seeds the stored entry's topology hash.
type ComputeFunc func(ctx context.Context) (result interface{}, nodeIDs map[string]struct{}, quality domain.CacheQuality, err error)

// SemanticCache composes the L1 local store with an optional L2 shared
// store and singleflight request coalescing, per section 4.3: concurrent
// lookups for the same key while a compute is in flight share one
// upstream call rather than stampeding it.
type SemanticCache struct {
	l1    *Store
	l2    SharedStore
	bus   MutationBus
	group singleflight.Group
}

// NewSemanticCache constructs a cache. l2 and bus may be nil to run
// L1-only with no cross-replica invalidation broadcast.
func NewSemanticCache(l1Cfg Config, l2 SharedStore, bus MutationBus) *SemanticCache {
	return &SemanticCache{l1: NewStore(l1Cfg), l2: l2, bus: bus}
}

// LookupOrCompute implements lookup_or_wait/notify_complete: check L1, fall
// back to L2 when configured, and otherwise coalesce concurrent computes
// for the same keyHash so only one caller pays the compute cost.
func (c *SemanticCache) LookupOrCompute(ctx context.Context, keyHash string, embedding []float32, tenantID, aclKey string, currentNodeIDs map[string]struct{}, baseTTL time.Duration, compute ComputeFunc) (*domain.CacheEntry, bool, error) {
	if entry, ok := c.l1.Lookup(embedding, tenantID, aclKey, currentNodeIDs); ok {
		return entry, true, nil
	}

	if c.l2 != nil {
		if entry, ok, err := c.l2.Get(ctx, keyHash); err == nil && ok {
			if entry.TenantID == tenantID && entry.ACLKey == aclKey &&
				!entry.IsExpired(time.Now()) && ValidateTopology(entry.TopologyHash, currentNodeIDs) {
				c.l1.Store(entry, time.Duration(entry.TTLSeconds*float64(time.Second)))
				return entry, true, nil
			}
		}
	}

	fn := func() (interface{}, error) {
		result, nodeIDs, quality, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		entry := &domain.CacheEntry{
			KeyHash:   keyHash,
			Embedding: embedding,
			Result:    result,
			TenantID:  tenantID,
			ACLKey:    aclKey,
			NodeIDs:   nodeIDs,
			Quality:   quality,
		}
		c.l1.Store(entry, baseTTL)
		if c.l2 != nil {
			_ = c.l2.Set(ctx, entry) // L2 write failure degrades to L1-only, not fatal
		}
		return entry, nil
	}

	v, err, _ := c.group.Do(keyHash, fn)
	if err != nil {
		// The owner's compute failed; every waiter coalesced on this flight
		// would otherwise share that same error forever. Forget the failed
		// flight and retry once: whichever goroutine reaches Do first is
		// promoted to owner and actually retries the compute, instead of the
		// failure being silently handed to every waiter (section 4.3; mirrors
		// original_source's notify_complete(failed=True) waiter hand-off).
		c.group.Forget(keyHash)
		v, err, _ = c.group.Do(keyHash, fn)
		if err != nil {
			return nil, false, err
		}
	}
	return v.(*domain.CacheEntry), false, nil
}

// InvalidateByNodes drops every L1 entry whose topology references one of
// nodeIDs, and broadcasts the invalidation over the mutation bus so other
// replicas' L1s follow suit. L2 entries are not deleted; they remain until
// their TTL expires.
func (c *SemanticCache) InvalidateByNodes(ctx context.Context, nodeIDs map[string]struct{}) error {
	c.l1.InvalidateByNodes(nodeIDs)
	if c.l2 != nil {
		// L2 has no secondary index by node id; entries expire on TTL.
	}
	if c.bus == nil {
		return nil
	}
	ids := make([]string, 0, len(nodeIDs))
	for id := range nodeIDs {
		ids = append(ids, id)
	}
	return c.bus.Publish(ctx, InvalidationChannel, invalidationPayload{NodeIDs: ids})
}

// InvalidateByTenant drops every L1 entry scoped to tenantID. Used by the
// GDPR erasure path; L2 entries expire on TTL since per-tenant L2 scanning
// is not attempted (Redis has no secondary index here).
func (c *SemanticCache) InvalidateByTenant(tenantID string) int {
	return c.l1.InvalidateByTenant(tenantID)
}

// ApplyRemoteInvalidation is called by InvalidationWorker when a peer
// replica broadcasts a node invalidation; it only touches this process's
// L1, since the publishing replica already updated its own.
func (c *SemanticCache) ApplyRemoteInvalidation(nodeIDs map[string]struct{}) {
	c.l1.InvalidateByNodes(nodeIDs)
}

// Metrics exposes the L1 store's hit/miss/eviction counters.
func (c *SemanticCache) Metrics() Metrics { return c.l1.Metrics() }

// GetValidScores returns every CacheQualityGood entry in L1, for quality
// aggregation callers.
func (c *SemanticCache) GetValidScores() []*domain.CacheEntry { return c.l1.GetValidScores() }
