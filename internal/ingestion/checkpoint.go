package ingestion

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/graphrag/orchestrator/domain"
)

// sourceExtensions mirrors checkpointing.py's _SOURCE_EXTENSIONS: only
// these file types are queued for extraction, everything else is recorded
// Skipped up front and never revisited.
var sourceExtensions = map[string]struct{}{
	".go": {},
	".py": {},
}

// NewCheckpointFromFiles classifies each file by extension into Pending
// (source files) or Skipped (everything else), grounded on
// ExtractionCheckpoint.from_files.
func NewCheckpointFromFiles(checkpointID string, files []PendingFile) *domain.Checkpoint {
	c := domain.NewCheckpoint(checkpointID)
	for _, f := range files {
		ext := strings.ToLower(filepath.Ext(f.Path))
		if _, ok := sourceExtensions[ext]; ok {
			c.Files[f.Path] = domain.FileStatusPending
		} else {
			c.Files[f.Path] = domain.FileStatusSkipped
		}
	}
	return c
}

// CheckpointStore persists a Checkpoint across process restarts.
type CheckpointStore interface {
	Save(ctx context.Context, c *domain.Checkpoint) error
	Load(ctx context.Context, checkpointID string) (*domain.Checkpoint, error)
}

// MemoryCheckpointStore is an in-process CheckpointStore, the default
// backend matching checkpoint_store.py's MemorySaver fallback.
type MemoryCheckpointStore struct {
	data map[string]map[string]string
}

// NewMemoryCheckpointStore constructs an empty store.
func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{data: make(map[string]map[string]string)}
}

func (s *MemoryCheckpointStore) Save(ctx context.Context, c *domain.Checkpoint) error {
	s.data[c.CheckpointID] = c.ToMap()
	return nil
}

func (s *MemoryCheckpointStore) Load(ctx context.Context, checkpointID string) (*domain.Checkpoint, error) {
	m, ok := s.data[checkpointID]
	if !ok {
		return nil, nil
	}
	return domain.CheckpointFromMap(m), nil
}

// PostgresCheckpointStore persists checkpoints as one row per
// (checkpoint_id, path) pair, the durable backend selected by
// CHECKPOINT_BACKEND=postgres per checkpoint_store.py's
// CheckpointStoreConfig.
type PostgresCheckpointStore struct {
	db *sqlx.DB
}

// NewPostgresCheckpointStore wraps an existing *sqlx.DB.
func NewPostgresCheckpointStore(db *sqlx.DB) *PostgresCheckpointStore {
	return &PostgresCheckpointStore{db: db}
}

type checkpointFileRow struct {
	CheckpointID string `db:"checkpoint_id"`
	Path         string `db:"path"`
	Status       string `db:"status"`
}

// Save upserts every file's status for this checkpoint id.
func (s *PostgresCheckpointStore) Save(ctx context.Context, c *domain.Checkpoint) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for path, status := range c.Files {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO ingestion_checkpoint_files (checkpoint_id, path, status)
			VALUES ($1, $2, $3)
			ON CONFLICT (checkpoint_id, path) DO UPDATE SET status = EXCLUDED.status
		`, c.CheckpointID, path, string(status)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Load reconstructs a Checkpoint from every row recorded under
// checkpointID. A checkpoint with no rows yet is reported as not found
// (nil, nil), letting callers distinguish "never started" from "empty".
func (s *PostgresCheckpointStore) Load(ctx context.Context, checkpointID string) (*domain.Checkpoint, error) {
	var rows []checkpointFileRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT checkpoint_id, path, status FROM ingestion_checkpoint_files WHERE checkpoint_id = $1
	`, checkpointID); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	c := domain.NewCheckpoint(checkpointID)
	for _, r := range rows {
		c.Files[r.Path] = domain.FileStatus(r.Status)
	}
	return c, nil
}
