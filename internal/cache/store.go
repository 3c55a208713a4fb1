package cache

import (
	"math"
	"math/rand"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/graphrag/orchestrator/domain"
)

// Config configures a local Store.
type Config struct {
	MaxEntries         int
	SimilarityThreshold float64
	DefaultTTL         time.Duration
	TTLJitter          float64 // fraction, e.g. 0.2 for ±20%
}

// DefaultConfig returns the spec's defaults.
func DefaultConfig() Config {
	return Config{
		MaxEntries:          10000,
		SimilarityThreshold: 0.92,
		DefaultTTL:          10 * time.Minute,
		TTLJitter:           0.2,
	}
}

// Store is the L1 in-process semantic cache. It maintains the primary
// entry map, an LRU recency order, and two secondary indices
// (tenant_acl -> keys, node -> keys) kept in sync under the same critical
// section on every mutation, per section 9's arena-of-sets note.
type Store struct {
	mu  sync.Mutex
	cfg Config

	lru *lru.Cache[string, *domain.CacheEntry]

	tenantACLIndex map[string]map[string]struct{} // "tenant\x00acl" -> key set
	nodeIndex      map[string]map[string]struct{} // node id -> key set

	hits      int64
	misses    int64
	evictions int64
}

// NewStore constructs a Store. The LRU eviction callback keeps the
// secondary indices in sync whenever golang-lru evicts an entry on its own
// (size pressure), in addition to the explicit paths below.
func NewStore(cfg Config) *Store {
	if cfg.MaxEntries <= 0 {
		cfg = DefaultConfig()
	}
	s := &Store{
		cfg:            cfg,
		tenantACLIndex: make(map[string]map[string]struct{}),
		nodeIndex:      make(map[string]map[string]struct{}),
	}
	c, err := lru.NewWithEvict[string, *domain.CacheEntry](cfg.MaxEntries, func(key string, entry *domain.CacheEntry) {
		s.unindexLocked(key, entry)
		s.evictions++
	})
	if err != nil {
		// cfg.MaxEntries validated above; NewWithEvict only errors on size<=0.
		c, _ = lru.NewWithEvict[string, *domain.CacheEntry](DefaultConfig().MaxEntries, nil)
	}
	s.lru = c
	return s
}

func scopeKey(tenantID, aclKey string) string {
	return tenantID + "\x00" + aclKey
}

// Store records a freshly-computed result. TTL is assigned here: base is
// cfg.DefaultTTL unless baseTTL is non-zero, then jittered to ±TTLJitter.
func (s *Store) Store(entry *domain.CacheEntry, baseTTL time.Duration) {
	base := s.cfg.DefaultTTL
	if baseTTL > 0 {
		base = baseTTL
	}
	entry.TTLSeconds = jitteredSeconds(base, s.cfg.TTLJitter)
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if entry.NodeIDs == nil {
		entry.NodeIDs = map[string]struct{}{}
	}
	entry.TopologyHash = ComputeTopologyHash(entry.NodeIDs)

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.lru.Peek(entry.KeyHash); ok {
		s.unindexLocked(entry.KeyHash, old)
	}
	s.lru.Add(entry.KeyHash, entry)
	s.indexLocked(entry.KeyHash, entry)
}

func jitteredSeconds(base time.Duration, jitter float64) float64 {
	seconds := base.Seconds()
	if jitter <= 0 {
		return seconds
	}
	delta := seconds * jitter
	return seconds - delta + rand.Float64()*2*delta
}

func (s *Store) indexLocked(key string, entry *domain.CacheEntry) {
	sk := scopeKey(entry.TenantID, entry.ACLKey)
	if s.tenantACLIndex[sk] == nil {
		s.tenantACLIndex[sk] = make(map[string]struct{})
	}
	s.tenantACLIndex[sk][key] = struct{}{}

	for nodeID := range entry.NodeIDs {
		if s.nodeIndex[nodeID] == nil {
			s.nodeIndex[nodeID] = make(map[string]struct{})
		}
		s.nodeIndex[nodeID][key] = struct{}{}
	}
}

func (s *Store) unindexLocked(key string, entry *domain.CacheEntry) {
	if entry == nil {
		return
	}
	sk := scopeKey(entry.TenantID, entry.ACLKey)
	if set, ok := s.tenantACLIndex[sk]; ok {
		delete(set, key)
		if len(set) == 0 {
			delete(s.tenantACLIndex, sk)
		}
	}
	for nodeID := range entry.NodeIDs {
		if set, ok := s.nodeIndex[nodeID]; ok {
			delete(set, key)
			if len(set) == 0 {
				delete(s.nodeIndex, nodeID)
			}
		}
	}
}

// Lookup implements the algorithm in section 4.3: evict expired entries
// lazily, restrict candidates to the (tenant, acl) scope, rank by cosine
// similarity, and validate topology before returning a hit.
func (s *Store) Lookup(embedding []float32, tenantID, aclKey string, currentNodeIDs map[string]struct{}) (*domain.CacheEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sk := scopeKey(tenantID, aclKey)
	candidateKeys := s.tenantACLIndex[sk]
	if len(candidateKeys) == 0 {
		s.misses++
		return nil, false
	}

	var best *domain.CacheEntry
	var bestSim float64 = -1

	now := time.Now()
	for key := range cloneKeySet(candidateKeys) {
		entry, ok := s.lru.Peek(key)
		if !ok {
			continue
		}
		if entry.IsExpired(now) {
			s.evictLocked(key, entry)
			continue
		}
		sim := cosineSimilarity(embedding, entry.Embedding)
		if sim > bestSim {
			bestSim = sim
			best = entry
		}
	}

	if best == nil || bestSim < s.cfg.SimilarityThreshold {
		s.misses++
		return nil, false
	}
	if !ValidateTopology(best.TopologyHash, currentNodeIDs) {
		s.misses++
		return nil, false
	}

	best.AccessCount++
	s.lru.Get(best.KeyHash) // touch recency
	s.hits++
	return best, true
}

func cloneKeySet(m map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(m))
	for k := range m {
		out[k] = struct{}{}
	}
	return out
}

func (s *Store) evictLocked(key string, entry *domain.CacheEntry) {
	s.lru.Remove(key)
	// Remove triggers the eviction callback, which unindexes — but Remove's
	// callback invocation path in golang-lru only fires OnEvicted for the
	// evicted entry, which is exactly this one, so no double-unindex occurs.
}

// InvalidateByNodes removes every entry referencing any of the given node
// ids, for the L1 eviction half of SemanticCache.invalidate_by_nodes.
func (s *Store) InvalidateByNodes(nodeIDs map[string]struct{}) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	toRemove := make(map[string]struct{})
	for nodeID := range nodeIDs {
		for key := range s.nodeIndex[nodeID] {
			toRemove[key] = struct{}{}
		}
	}
	for key := range toRemove {
		s.lru.Remove(key)
	}
	return len(toRemove)
}

// InvalidateByTenant removes every entry scoped to tenantID, used by the
// GDPR erasure path.
func (s *Store) InvalidateByTenant(tenantID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	toRemove := make(map[string]struct{})
	for sk, keys := range s.tenantACLIndex {
		if scopeTenant(sk) == tenantID {
			for key := range keys {
				toRemove[key] = struct{}{}
			}
		}
	}
	for key := range toRemove {
		s.lru.Remove(key)
	}
	return len(toRemove)
}

func scopeTenant(sk string) string {
	for i := 0; i < len(sk); i++ {
		if sk[i] == 0 {
			return sk[:i]
		}
	}
	return sk
}

// InvalidateStaleTopologies removes entries whose referenced node ids are
// not a subset of current.
func (s *Store) InvalidateStaleTopologies(current map[string]struct{}) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	toRemove := make(map[string]struct{})
	for _, key := range s.lru.Keys() {
		entry, ok := s.lru.Peek(key)
		if !ok {
			continue
		}
		if !IsSubsetOf(entry.NodeIDs, current) {
			toRemove[key] = struct{}{}
		}
	}
	for key := range toRemove {
		s.lru.Remove(key)
	}
	return len(toRemove)
}

// Size returns the current entry count.
func (s *Store) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Len()
}

// Metrics reports hits, misses, evictions, size, and hit ratio.
type Metrics struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Size      int
	HitRatio  float64
}

// Metrics computes the current metrics snapshot.
func (s *Store) Metrics() Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := s.hits + s.misses
	ratio := 0.0
	if total > 0 {
		ratio = float64(s.hits) / float64(total)
	}
	return Metrics{
		Hits:      s.hits,
		Misses:    s.misses,
		Evictions: s.evictions,
		Size:      s.lru.Len(),
		HitRatio:  ratio,
	}
}

// GetValidScores returns every entry whose Quality is CacheQualityGood,
// excluding error/skipped/pending entries from quality aggregations.
func (s *Store) GetValidScores() []*domain.CacheEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.CacheEntry
	for _, key := range s.lru.Keys() {
		entry, ok := s.lru.Peek(key)
		if ok && entry.Quality == domain.CacheQualityGood {
			out = append(out, entry)
		}
	}
	return out
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
