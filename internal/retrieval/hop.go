// Package retrieval implements the retrieval-time helpers that sit between
// the semantic cache and the graph store: batched multi-hop expansion,
// topological plausibility scoring, and tombstone filtering. The graph
// query dialect itself is out of scope; HopRunner and TombstoneChecker are
// the seams.
package retrieval

import (
	"context"
	"sort"
	"sync"
)

// Candidate is a retrieval result, either a vector hit or a hop-expansion
// record. Fields beyond Name/Score/ID are opaque payload carried through
// unchanged.
type Candidate struct {
	ID      string
	Name    string
	Score   float64
	HasScore bool
	Payload map[string]interface{}
}

// CapCandidates ranks by score (when present) and truncates to limit,
// matching batched_hop.py's cap_candidates: a candidate list with no
// scored entries is simply truncated in its existing order.
func CapCandidates(candidates []Candidate, limit int) []Candidate {
	anyScored := false
	for _, c := range candidates {
		if c.HasScore {
			anyScored = true
			break
		}
	}
	out := candidates
	if anyScored {
		out = append([]Candidate(nil), candidates...)
		sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	}
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// PartitionNames splits names into batches of at most batchSize.
func PartitionNames(names []string, batchSize int) [][]string {
	if len(names) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	var batches [][]string
	for i := 0; i < len(names); i += batchSize {
		end := i + batchSize
		if end > len(names) {
			end = len(names)
		}
		batches = append(batches, names[i:end])
	}
	return batches
}

// HopRunner expands one batch of entity names by one graph hop. The
// returned records are opaque maps; dedup keys off the identity fields
// below if present.
type HopRunner interface {
	RunHop(ctx context.Context, names []string) ([]map[string]interface{}, error)
}

// identityFields mirrors batched_hop.py's _IDENTITY_FIELDS: the record
// fields used to build a dedup key across concurrently-fetched batches.
var identityFields = []string{"source", "rel", "target", "id", "name"}

func dedupKey(record map[string]interface{}) string {
	key := ""
	for _, f := range identityFields {
		key += "\x00"
		if v, ok := record[f]; ok {
			key += toStringKey(v)
		}
	}
	return key
}

func toStringKey(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	default:
		return ""
	}
}

// BatchedHopExecutor caps, partitions, and concurrently expands a
// candidate list by one graph hop, deduplicating across batch boundaries.
type BatchedHopExecutor struct {
	runner         HopRunner
	candidateLimit int
	batchSize      int
}

// NewBatchedHopExecutor constructs an executor with the given caps. A
// non-positive limit or batchSize falls back to 50, matching
// batched_hop.py's defaults.
func NewBatchedHopExecutor(runner HopRunner, candidateLimit, batchSize int) *BatchedHopExecutor {
	if candidateLimit <= 0 {
		candidateLimit = 50
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &BatchedHopExecutor{runner: runner, candidateLimit: candidateLimit, batchSize: batchSize}
}

// Execute caps candidates, extracts their names, partitions into batches,
// runs every batch's hop concurrently, and returns the deduplicated union
// of results in batch order.
func (e *BatchedHopExecutor) Execute(ctx context.Context, candidates []Candidate) ([]map[string]interface{}, error) {
	capped := CapCandidates(candidates, e.candidateLimit)
	if len(capped) == 0 {
		return nil, nil
	}

	var names []string
	for _, c := range capped {
		name := c.Name
		if name == "" {
			if result, ok := c.Payload["result"].(map[string]interface{}); ok {
				if n, ok := result["name"].(string); ok {
					name = n
				}
			}
		}
		if name != "" {
			names = append(names, name)
		}
	}

	batches := PartitionNames(names, e.batchSize)
	results := make([][]map[string]interface{}, len(batches))
	errs := make([]error, len(batches))

	var wg sync.WaitGroup
	for i, batch := range batches {
		wg.Add(1)
		go func(i int, batch []string) {
			defer wg.Done()
			r, err := e.runner.RunHop(ctx, batch)
			results[i] = r
			errs[i] = err
		}(i, batch)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	seen := make(map[string]struct{})
	var deduped []map[string]interface{}
	for _, batchResult := range results {
		for _, record := range batchResult {
			key := dedupKey(record)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			deduped = append(deduped, record)
		}
	}
	return deduped, nil
}
