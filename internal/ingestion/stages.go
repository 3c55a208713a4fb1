package ingestion

import (
	"context"
	"fmt"

	"github.com/graphrag/orchestrator/domain"
)

// Stage is one step of the ingestion pipeline, grounded on
// stages/__init__.py's IngestionStage protocol.
type Stage interface {
	Execute(ctx context.Context, state *PipelineState) error
	Healthcheck(ctx context.Context) error
}

// ASTExtractor runs AST extraction over a batch of pending files. AST
// extraction internals are an explicit Non-goal; this interface is the
// seam the extraction service (Go, gRPC, or in-process) sits behind.
type ASTExtractor interface {
	ExtractBatch(ctx context.Context, files []PendingFile) ([]ASTResult, error)
	Available() bool
}

// BlobStore resolves a pending file's content by repository-relative path
// when the caller enqueued a reference instead of pre-loaded Content (e.g.
// the orchestrator runs apart from the repository checkout). This is the
// seam pkg/blob's SourceFetcher sits behind.
type BlobStore interface {
	FetchFile(ctx context.Context, path string) ([]byte, error)
}

// ASTStage runs AST extraction over this run's pending files, grounded
// directly on stages/ast_stage.py.
type ASTStage struct {
	extractor ASTExtractor
	blobs     BlobStore
}

// NewASTStage constructs an ASTStage. extractor may be nil, matching
// ast_stage.py's local-fallback path when no extraction service is wired.
// blobs may also be nil, in which case every pending file must already
// carry its Content.
func NewASTStage(extractor ASTExtractor, blobs BlobStore) *ASTStage {
	return &ASTStage{extractor: extractor, blobs: blobs}
}

// resolveContent fills in Content for any pending file that arrived as a
// bare path reference, fetching it from the blob store by section 9's
// "optionally through a blob store" seam instead of requiring every
// caller to pre-load file bytes.
func (s *ASTStage) resolveContent(ctx context.Context, files []PendingFile) error {
	if s.blobs == nil {
		return nil
	}
	for i := range files {
		if files[i].Content != "" {
			continue
		}
		data, err := s.blobs.FetchFile(ctx, files[i].Path)
		if err != nil {
			return fmt.Errorf("fetch blob content for %q: %w", files[i].Path, err)
		}
		files[i].Content = string(data)
	}
	return nil
}

func (s *ASTStage) Execute(ctx context.Context, state *PipelineState) error {
	if len(state.PendingFiles) == 0 {
		return nil
	}
	if s.extractor == nil || !s.extractor.Available() {
		return nil
	}
	if err := s.resolveContent(ctx, state.PendingFiles); err != nil {
		return err
	}
	results, err := s.extractor.ExtractBatch(ctx, state.PendingFiles)
	if err != nil {
		return err
	}
	state.ASTResults = results
	return nil
}

func (s *ASTStage) Healthcheck(ctx context.Context) error { return nil }

// EntityExtractor turns AST results into graph entities. This is the
// seam for the LLM-backed or rule-based extraction logic that assigns
// entity kind, ownership, and namespace ACLs from raw AST output.
type EntityExtractor interface {
	ExtractAll(ctx context.Context, results []ASTResult) ([]domain.Entity, error)
}

// ExtractionStage turns this run's AST results into graph entities,
// assigning domain.DefaultConfidence to every newly extracted entity and
// never lowering a previously-assigned confidence, grounded directly on
// stages/extraction_stage.py.
type ExtractionStage struct {
	extractor EntityExtractor
}

// NewExtractionStage constructs an ExtractionStage.
func NewExtractionStage(extractor EntityExtractor) *ExtractionStage {
	return &ExtractionStage{extractor: extractor}
}

func (s *ExtractionStage) Execute(ctx context.Context, state *PipelineState) error {
	if len(state.ASTResults) == 0 {
		return nil
	}
	extracted, err := s.extractor.ExtractAll(ctx, state.ASTResults)
	if err != nil {
		return err
	}
	for i := range extracted {
		extracted[i].Confidence = domain.DefaultConfidence
	}
	state.ExtractedNodes = append(state.ExtractedNodes, extracted...)
	return nil
}

func (s *ExtractionStage) Healthcheck(ctx context.Context) error { return nil }

// GraphCommitter is the capability interface GraphWriteStage commits
// through. The graph query dialect itself is out of scope.
type GraphCommitter interface {
	CommitTopology(ctx context.Context, entities []domain.Entity) error
	ReadTopology(ctx context.Context) error
}

// GraphWriteStage commits this run's extracted entities to the graph
// store, grounded directly on stages/graph_write_stage.py. A commit
// failure is recorded on state rather than propagated, so later stages
// (and the driver's checkpoint bookkeeping) can still observe it and
// retry on the next pass.
type GraphWriteStage struct {
	repository GraphCommitter
}

// NewGraphWriteStage constructs a GraphWriteStage.
func NewGraphWriteStage(repository GraphCommitter) *GraphWriteStage {
	return &GraphWriteStage{repository: repository}
}

func (s *GraphWriteStage) Execute(ctx context.Context, state *PipelineState) error {
	if len(state.ExtractedNodes) == 0 {
		state.CommitStatus = CommitSkipped
		return nil
	}
	if err := s.repository.CommitTopology(ctx, state.ExtractedNodes); err != nil {
		state.CommitStatus = CommitFailed
		state.CommitError = err.Error()
		return nil
	}
	state.CommitStatus = CommitSuccess
	return nil
}

func (s *GraphWriteStage) Healthcheck(ctx context.Context) error {
	return s.repository.ReadTopology(ctx)
}

// OutboxEnqueuer is the capability interface VectorSyncStage writes
// through.
type OutboxEnqueuer interface {
	WriteEvent(ctx context.Context, event domain.OutboxEvent) error
}

// VectorSyncStage derives mutation events from this run's successfully
// committed entities and durably enqueues the ones that require a
// downstream vector-index effect, grounded directly on
// stages/vector_sync_stage.py. Only entities committed this run (not the
// whole extracted-nodes history) generate events, since re-ingesting
// unchanged entities on a resumed run must not re-trigger a delete.
type VectorSyncStage struct {
	outbox OutboxEnqueuer
}

// NewVectorSyncStage constructs a VectorSyncStage.
func NewVectorSyncStage(outbox OutboxEnqueuer) *VectorSyncStage {
	return &VectorSyncStage{outbox: outbox}
}

func (s *VectorSyncStage) Execute(ctx context.Context, state *PipelineState) error {
	if state.CommitStatus != CommitSuccess {
		state.VectorSyncStatus = VectorSyncSkipped
		return nil
	}

	var tombstoned []string
	for _, e := range state.ExtractedNodes {
		if e.IsTombstoned() {
			tombstoned = append(tombstoned, e.ID)
		}
	}
	if len(tombstoned) == 0 {
		state.VectorSyncStatus = VectorSyncSkipped
		return nil
	}

	event := domain.OutboxEvent{
		Collection: "entities",
		Operation:  domain.OutboxDelete,
		PrunedIDs:  tombstoned,
	}
	if err := s.outbox.WriteEvent(ctx, event); err != nil {
		return err
	}
	state.VectorSyncStatus = VectorSyncEnqueued
	return nil
}

func (s *VectorSyncStage) Healthcheck(ctx context.Context) error { return nil }
