package domain

import "time"

// CacheQuality tags whether a CacheEntry's grounding score was good enough
// to be trusted by aggregations. get_valid_scores()-equivalent callers skip
// everything but CacheQualityGood.
type CacheQuality string

const (
	CacheQualityGood    CacheQuality = "good"
	CacheQualityError   CacheQuality = "error"
	CacheQualitySkipped CacheQuality = "skipped"
	CacheQualityPending CacheQuality = "pending"
)

// CacheEntry is one stored semantic-query result. TTLSeconds is jittered at
// store time (±20% of the base); IsExpired compares against a monotonic
// clock, never wall time.
type CacheEntry struct {
	KeyHash      string
	Embedding    []float32
	Query        string
	Result       interface{}
	CreatedAt    time.Time // monotonic-backed
	TTLSeconds   float64
	TenantID     string
	ACLKey       string
	NodeIDs      map[string]struct{}
	TopologyHash string
	AccessCount  int64
	Quality      CacheQuality
}

// IsExpired reports whether the entry's TTL has elapsed as measured from
// the supplied "now", which callers must derive from a monotonic clock.
func (e *CacheEntry) IsExpired(now time.Time) bool {
	return now.Sub(e.CreatedAt).Seconds() > e.TTLSeconds
}

// QueryComplexity tags the cost tier of a query for rate limiting and cost
// budgeting purposes.
type QueryComplexity string

const (
	ComplexityEntityLookup QueryComplexity = "entity_lookup"
	ComplexitySingleHop    QueryComplexity = "single_hop"
	ComplexityMultiHop     QueryComplexity = "multi_hop"
	ComplexityAggregate    QueryComplexity = "aggregate"
)
