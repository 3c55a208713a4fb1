// Package ingestion implements the ingestion pipeline driver (section 4.1):
// AST extraction -> entity extraction -> graph write -> vector sync, each
// stage threading a shared PipelineState, with per-file checkpointing so a
// crashed run resumes instead of restarting. AST extraction internals are
// out of scope; ASTExtractor is the seam.
package ingestion

import "github.com/graphrag/orchestrator/domain"

// PendingFile is one source file queued for AST extraction.
type PendingFile struct {
	Path    string
	Content string
}

// ASTResult is one extractor's opaque result for a batch of files. The AST
// shape itself is out of scope; downstream stages only care that a result
// exists per language.
type ASTResult struct {
	Language string
	Raw      interface{}
}

// CommitStatus is the outcome GraphWriteStage records on PipelineState.
type CommitStatus string

const (
	CommitSkipped CommitStatus = "skipped"
	CommitSuccess CommitStatus = "success"
	CommitFailed  CommitStatus = "failed"
)

// VectorSyncStatus is the outcome VectorSyncStage records on PipelineState.
type VectorSyncStatus string

const (
	VectorSyncSkipped  VectorSyncStatus = "skipped"
	VectorSyncEnqueued VectorSyncStatus = "enqueued"
)

// PipelineState is threaded through every stage of one ingestion run,
// generalizing the original's dict-of-any IngestionState into explicit
// typed fields.
type PipelineState struct {
	CheckpointID     string
	PendingFiles     []PendingFile
	ASTResults       []ASTResult
	ExtractedNodes   []domain.Entity
	CommitStatus     CommitStatus
	MutationEvents   []domain.MutationEvent
	VectorSyncStatus VectorSyncStatus
	CommitError      string
}
