package retrieval

import "context"

// TopologicalScore reports how well a claimed set of graph edges is
// actually backed by the graph, used to down-weight or flag a possibly
// hallucinated LLM answer.
type TopologicalScore struct {
	EdgeExistenceRatio float64
	PathReachable      *bool
	CompositeScore     float64
	IsHallucinated     bool
	ClaimedEdges       int
	VerifiedEdges      int
}

// EdgeVerifier reports how many of the given claimed edge ids actually
// exist in the graph. The graph query dialect itself is out of scope.
type EdgeVerifier interface {
	VerifyEdges(ctx context.Context, claimedEdgeIDs []string) (int, error)
}

// PathChecker reports whether end is reachable from start within maxHops.
type PathChecker interface {
	CheckPathReachability(ctx context.Context, start, end string, maxHops int) (bool, error)
}

// EvaluatorConfig tunes TopologicalEvaluator's weighting.
type EvaluatorConfig struct {
	Alpha         float64 // weight given to the upstream vector score
	TopoThreshold float64 // below this composite topology score, flag as hallucinated
	MaxHops       int
}

// DefaultEvaluatorConfig mirrors topological_evaluator.py's defaults.
func DefaultEvaluatorConfig() EvaluatorConfig {
	return EvaluatorConfig{Alpha: 0.6, TopoThreshold: 0.3, MaxHops: 5}
}

// TopologicalEvaluator scores how well an LLM's claimed edges and path are
// backed by the graph, grounded on topological_evaluator.py.
type TopologicalEvaluator struct {
	verifyEdges EdgeVerifier
	checkPath   PathChecker
	cfg         EvaluatorConfig
}

// NewTopologicalEvaluator constructs an evaluator. checkPath may be nil if
// path-reachability checking is not available; PathReachable is then left
// nil on every score.
func NewTopologicalEvaluator(verifyEdges EdgeVerifier, checkPath PathChecker, cfg EvaluatorConfig) *TopologicalEvaluator {
	if cfg.MaxHops <= 0 {
		cfg = DefaultEvaluatorConfig()
	}
	return &TopologicalEvaluator{verifyEdges: verifyEdges, checkPath: checkPath, cfg: cfg}
}

// EvaluateTopology scores claimedEdgeIDs against the graph and, if both
// node ids and a PathChecker are given, factors in path reachability.
func (e *TopologicalEvaluator) EvaluateTopology(ctx context.Context, claimedEdgeIDs []string, startNode, endNode string, vectorScore float64) (TopologicalScore, error) {
	var edgeRatio float64
	var verified int
	if len(claimedEdgeIDs) > 0 {
		v, err := e.verifyEdges.VerifyEdges(ctx, claimedEdgeIDs)
		if err != nil {
			return TopologicalScore{}, err
		}
		verified = v
		edgeRatio = float64(verified) / float64(len(claimedEdgeIDs))
	}

	var pathReachable *bool
	if startNode != "" && endNode != "" && e.checkPath != nil {
		reachable, err := e.checkPath.CheckPathReachability(ctx, startNode, endNode, e.cfg.MaxHops)
		if err != nil {
			return TopologicalScore{}, err
		}
		pathReachable = &reachable
	}

	pathScore := 0.0
	if pathReachable != nil && *pathReachable {
		pathScore = 1.0
	}
	topoScore := edgeRatio
	if pathReachable != nil {
		topoScore = (edgeRatio + pathScore) / 2.0
	}

	composite := e.cfg.Alpha*vectorScore + (1-e.cfg.Alpha)*topoScore

	return TopologicalScore{
		EdgeExistenceRatio: edgeRatio,
		PathReachable:      pathReachable,
		CompositeScore:     composite,
		IsHallucinated:     topoScore < e.cfg.TopoThreshold,
		ClaimedEdges:       len(claimedEdgeIDs),
		VerifiedEdges:      verified,
	}, nil
}
