package retrieval

import "context"

// TombstoneChecker reports which of a set of node ids have at least one
// tombstoned outgoing edge. The Cypher/graph-query dialect used to answer
// this is out of scope; this interface is the seam, grounded on
// tombstone_filter.py's check_tombstoned_nodes.
type TombstoneChecker interface {
	CheckTombstonedNodes(ctx context.Context, nodeIDs []string, tenantID string) (map[string]struct{}, error)
}

// FilterTombstonedResults drops any candidate whose id was reported
// tombstoned by checker, preserving the order of the survivors.
func FilterTombstonedResults(ctx context.Context, checker TombstoneChecker, candidates []Candidate, tenantID string) ([]Candidate, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	var nodeIDs []string
	for _, c := range candidates {
		if c.ID != "" {
			nodeIDs = append(nodeIDs, c.ID)
		}
	}
	if len(nodeIDs) == 0 {
		return candidates, nil
	}

	tombstoned, err := checker.CheckTombstonedNodes(ctx, nodeIDs, tenantID)
	if err != nil {
		return nil, err
	}
	if len(tombstoned) == 0 {
		return candidates, nil
	}

	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if _, dropped := tombstoned[c.ID]; dropped {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}
