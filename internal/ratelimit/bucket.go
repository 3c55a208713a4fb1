// Package ratelimit implements the per-tenant AIMD token bucket and cost
// budget described in section 4.7. It is distinct from
// infrastructure/ratelimit, which is a plain golang.org/x/time/rate wrapper
// for outbound HTTP clients; this package is tenant-aware and adapts its
// refill rate to observed throttling the way TCP congestion control does.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/graphrag/orchestrator/domain"
)

// AdaptiveTokenBucket is a token bucket whose refill rate additively
// increases on sustained success and multiplicatively decreases
// (halves) whenever the caller reports it was throttled downstream,
// bounded to [MinRate, MaxRate].
type AdaptiveTokenBucket struct {
	mu sync.Mutex

	capacity   float64
	tokens     float64
	rate       float64 // tokens per second
	minRate    float64
	maxRate    float64
	lastRefill time.Time
}

// NewAdaptiveTokenBucket constructs a bucket from a TokenBucketState.
func NewAdaptiveTokenBucket(state domain.TokenBucketState) *AdaptiveTokenBucket {
	return &AdaptiveTokenBucket{
		capacity:   state.Capacity,
		tokens:     state.Tokens,
		rate:       state.RefillRate,
		minRate:    state.MinRate,
		maxRate:    state.MaxRate,
		lastRefill: time.Now(),
	}
}

func (b *AdaptiveTokenBucket) refillLocked() {
	now := time.Now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed * b.rate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.lastRefill = now
}

// TryAcquire attempts to take cost tokens without blocking, reporting
// whether it succeeded.
func (b *AdaptiveTokenBucket) TryAcquire(cost float64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked()
	if b.tokens < cost {
		return false
	}
	b.tokens -= cost
	return true
}

// Acquire blocks (honoring ctx) until cost tokens are available or the
// bucket's own polling interval elapses, retrying until success or ctx is
// done.
func (b *AdaptiveTokenBucket) Acquire(ctx context.Context, cost float64) error {
	for {
		if b.TryAcquire(cost) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(25 * time.Millisecond):
		}
	}
}

// ReportSuccess additively increases the refill rate, up to MaxRate. Called
// after a successful downstream operation to slowly recover capacity that
// was previously cut by ReportThrottled.
func (b *AdaptiveTokenBucket) ReportSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rate += 1
	if b.rate > b.maxRate {
		b.rate = b.maxRate
	}
}

// ReportThrottled multiplicatively decreases the refill rate (halves it),
// down to MinRate. Called when a downstream dependency signals it is
// overloaded (e.g. an LLM provider's rate-limit response).
func (b *AdaptiveTokenBucket) ReportThrottled() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rate /= 2
	if b.rate < b.minRate {
		b.rate = b.minRate
	}
}

// Rate returns the bucket's current refill rate, for metrics.
func (b *AdaptiveTokenBucket) Rate() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rate
}
