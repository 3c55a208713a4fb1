package ratelimit

import (
	"sync"
	"time"

	"github.com/graphrag/orchestrator/domain"
)

// CostBudget enforces a per-tenant sliding-window spend cap, denominated
// in the abstract cost units of domain.CostTable (entity lookups are
// cheap, multi-hop traversals expensive). Unlike AdaptiveTokenBucket, the
// budget never adapts on its own — it resets deterministically when the
// window rolls over.
type CostBudget struct {
	mu     sync.Mutex
	window time.Duration
	limit  int
	costs  domain.CostTable

	spent      map[string]int
	windowEnds map[string]time.Time
}

// NewCostBudget constructs a CostBudget capping each tenant to limit cost
// units per window.
func NewCostBudget(window time.Duration, limit int, costs domain.CostTable) *CostBudget {
	if costs == nil {
		costs = domain.DefaultCostTable()
	}
	return &CostBudget{
		window:     window,
		limit:      limit,
		costs:      costs,
		spent:      make(map[string]int),
		windowEnds: make(map[string]time.Time),
	}
}

// TryAcquire charges tenantID the cost of complexity, denying the request
// (and leaving the budget unchanged) if it would exceed the window's
// limit. The window resets lazily: it rolls over the first time TryAcquire
// is called after windowEnds has passed.
func (b *CostBudget) TryAcquire(tenantID string, complexity domain.QueryComplexity) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	if end, ok := b.windowEnds[tenantID]; !ok || now.After(end) {
		b.spent[tenantID] = 0
		b.windowEnds[tenantID] = now.Add(b.window)
	}

	cost := b.costs.CostFor(complexity)
	if b.spent[tenantID]+cost > b.limit {
		return false
	}
	b.spent[tenantID] += cost
	return true
}

// Remaining reports how many cost units tenantID has left in its current
// window.
func (b *CostBudget) Remaining(tenantID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	if end, ok := b.windowEnds[tenantID]; !ok || now.After(end) {
		return b.limit
	}
	return b.limit - b.spent[tenantID]
}
