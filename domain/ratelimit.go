package domain

// TokenBucketState is the externally observable state of an
// AdaptiveTokenBucket, used for metrics and tests.
type TokenBucketState struct {
	Capacity   float64
	RefillRate float64
	MinRate    float64
	MaxRate    float64
	Tokens     float64
}

// CostTable maps a QueryComplexity to its cost, per section 3's default
// table (entity_lookup=1, single_hop=3, multi_hop=10, aggregate=8).
type CostTable map[QueryComplexity]int

// DefaultCostTable returns the spec's default complexity->cost mapping.
func DefaultCostTable() CostTable {
	return CostTable{
		ComplexityEntityLookup: 1,
		ComplexitySingleHop:    3,
		ComplexityMultiHop:     10,
		ComplexityAggregate:    8,
	}
}

// CostFor returns the configured cost for a complexity tier, defaulting to
// the single_hop cost for an unrecognized tier.
func (t CostTable) CostFor(c QueryComplexity) int {
	if v, ok := t[c]; ok {
		return v
	}
	return t[ComplexitySingleHop]
}
