package ingestion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/graphrag/orchestrator/domain"
)

// Pipeline drives the AST -> Extraction -> GraphWrite -> VectorSync stages
// over a shared PipelineState, integrating checkpointing, run-status
// tracking, and completion skipping for resumability across restarts.
// Grounded on stages/__init__.py's build_graph wiring together with
// checkpointing.py, ingestion_resume.py, and completion_tracker.py.
type Pipeline struct {
	ast        *ASTStage
	extraction *ExtractionStage
	graphWrite *GraphWriteStage
	vectorSync *VectorSyncStage

	checkpoints CheckpointStore
	status      IngestionStatusStore
	completion  *CompletionTracker
}

// NewPipeline wires the four stages together with the stores that make a
// run resumable. status and completion may be nil, in which case the
// pipeline runs without run-level tracking or dedup.
func NewPipeline(ast *ASTStage, extraction *ExtractionStage, graphWrite *GraphWriteStage, vectorSync *VectorSyncStage, checkpoints CheckpointStore, status IngestionStatusStore, completion *CompletionTracker) *Pipeline {
	return &Pipeline{
		ast:         ast,
		extraction:  extraction,
		graphWrite:  graphWrite,
		vectorSync:  vectorSync,
		checkpoints: checkpoints,
		status:      status,
		completion:  completion,
	}
}

// contentHash identifies a run's file set for completion tracking, matching
// completion_tracker.py's use of a stable digest over sorted file content
// rather than the checkpoint id (two checkpoint ids can cover the same
// underlying content across a restart).
func contentHash(files []PendingFile) string {
	sorted := append([]PendingFile(nil), files...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })
	h := sha256.New()
	for _, f := range sorted {
		h.Write([]byte(f.Path))
		h.Write([]byte{0})
		h.Write([]byte(f.Content))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Run executes one ingestion pass for checkpointID over files, resuming
// from any previously saved checkpoint and skipping the graph commit
// entirely if this exact content was already durably committed.
func (p *Pipeline) Run(ctx context.Context, checkpointID string, files []PendingFile) (*PipelineState, error) {
	if p.status != nil {
		if err := p.status.Create(ctx, checkpointID, len(files)); err != nil {
			return nil, err
		}
	}

	state, err := p.run(ctx, checkpointID, files)
	if err != nil {
		if p.status != nil {
			_ = p.status.MarkFailed(ctx, checkpointID, err.Error())
		}
		return state, err
	}

	if state.CommitStatus == CommitFailed {
		if p.status != nil {
			_ = p.status.MarkFailed(ctx, checkpointID, state.CommitError)
		}
		return state, fmt.Errorf("graph commit failed: %s", state.CommitError)
	}

	if p.status != nil {
		if err := p.status.MarkCompleted(ctx, checkpointID); err != nil {
			return state, err
		}
	}
	return state, nil
}

func (p *Pipeline) run(ctx context.Context, checkpointID string, files []PendingFile) (*PipelineState, error) {
	hash := contentHash(files)
	if p.completion != nil {
		skip, err := p.completion.ShouldSkip(ctx, hash)
		if err != nil {
			return nil, err
		}
		if skip {
			return &PipelineState{
				CheckpointID: checkpointID,
				CommitStatus: CommitSkipped,
			}, nil
		}
	}

	checkpoint := NewCheckpointFromFiles(checkpointID, files)
	if p.checkpoints != nil {
		if existing, err := p.checkpoints.Load(ctx, checkpointID); err != nil {
			return nil, err
		} else if existing != nil {
			existing.RetryFailed()
			checkpoint = existing
		}
	}

	pending := checkpoint.Pending()
	pendingSet := make(map[string]struct{}, len(pending))
	for _, path := range pending {
		pendingSet[path] = struct{}{}
	}
	var pendingFiles []PendingFile
	for _, f := range files {
		if _, ok := pendingSet[f.Path]; ok {
			pendingFiles = append(pendingFiles, f)
		}
	}

	state := &PipelineState{
		CheckpointID: checkpointID,
		PendingFiles: pendingFiles,
	}

	if err := p.ast.Execute(ctx, state); err != nil {
		return state, err
	}
	if p.status != nil {
		_ = p.status.UpdateProgress(ctx, checkpointID, len(files)-len(pendingFiles))
	}

	if err := p.extraction.Execute(ctx, state); err != nil {
		return state, err
	}

	if err := p.graphWrite.Execute(ctx, state); err != nil {
		return state, err
	}

	if state.CommitStatus == CommitSuccess {
		for _, f := range pendingFiles {
			checkpoint.Files[f.Path] = domain.FileStatusExtracted
		}
		if p.completion != nil {
			if err := p.completion.MarkCommitted(ctx, hash); err != nil {
				return state, err
			}
		}
	} else if state.CommitStatus == CommitFailed {
		for _, f := range pendingFiles {
			checkpoint.Files[f.Path] = domain.FileStatusFailed
		}
	}
	if p.checkpoints != nil {
		if err := p.checkpoints.Save(ctx, checkpoint); err != nil {
			return state, err
		}
	}

	if err := p.vectorSync.Execute(ctx, state); err != nil {
		return state, err
	}

	return state, nil
}

// Healthcheck reports whether every wired stage's downstream dependency is
// reachable.
func (p *Pipeline) Healthcheck(ctx context.Context) error {
	for _, stage := range []Stage{p.ast, p.extraction, p.graphWrite, p.vectorSync} {
		if err := stage.Healthcheck(ctx); err != nil {
			return err
		}
	}
	return nil
}
