package ratelimit

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/graphrag/orchestrator/domain"
)

// TenantRateLimiter maintains one AdaptiveTokenBucket per tenant, evicting
// the least-recently-used tenant's bucket once MaxTenants is exceeded.
// Eviction only drops the in-memory AIMD rate state (a tenant simply
// starts fresh at default capacity on its next request); it never denies
// that tenant service.
type TenantRateLimiter struct {
	mu      sync.Mutex
	buckets *lru.Cache[string, *AdaptiveTokenBucket]
	newState func() domain.TokenBucketState
}

// NewTenantRateLimiter constructs a limiter holding at most maxTenants
// buckets, each freshly seeded from newState when first created.
func NewTenantRateLimiter(maxTenants int, newState func() domain.TokenBucketState) *TenantRateLimiter {
	if maxTenants <= 0 {
		maxTenants = 10000
	}
	buckets, _ := lru.New[string, *AdaptiveTokenBucket](maxTenants)
	return &TenantRateLimiter{buckets: buckets, newState: newState}
}

// BucketFor returns the bucket for tenantID, creating one on first use.
func (l *TenantRateLimiter) BucketFor(tenantID string) *AdaptiveTokenBucket {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buckets.Get(tenantID); ok {
		return b
	}
	b := NewAdaptiveTokenBucket(l.newState())
	l.buckets.Add(tenantID, b)
	return b
}

// Len reports how many tenant buckets are currently tracked.
func (l *TenantRateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buckets.Len()
}
