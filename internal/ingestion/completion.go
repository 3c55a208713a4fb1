package ingestion

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// CompletionStore records which content hashes have already been committed
// to the graph, grounded on completion_tracker.py's CompletionStore
// protocol.
type CompletionStore interface {
	Mark(ctx context.Context, contentHash string) error
	Exists(ctx context.Context, contentHash string) (bool, error)
	Cleanup(ctx context.Context, maxAge time.Duration) (int, error)
}

// MemoryCompletionStore is an in-process CompletionStore.
type MemoryCompletionStore struct {
	committed map[string]time.Time
}

// NewMemoryCompletionStore constructs an empty store.
func NewMemoryCompletionStore() *MemoryCompletionStore {
	return &MemoryCompletionStore{committed: make(map[string]time.Time)}
}

func (s *MemoryCompletionStore) Mark(ctx context.Context, contentHash string) error {
	s.committed[contentHash] = time.Now()
	return nil
}

func (s *MemoryCompletionStore) Exists(ctx context.Context, contentHash string) (bool, error) {
	_, ok := s.committed[contentHash]
	return ok, nil
}

func (s *MemoryCompletionStore) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for hash, committedAt := range s.committed {
		if committedAt.Before(cutoff) {
			delete(s.committed, hash)
			removed++
		}
	}
	return removed, nil
}

// PostgresCompletionStore persists completion records durably, grounded on
// domain.CompletionRecord.
type PostgresCompletionStore struct {
	db *sqlx.DB
}

// NewPostgresCompletionStore wraps an existing *sqlx.DB.
func NewPostgresCompletionStore(db *sqlx.DB) *PostgresCompletionStore {
	return &PostgresCompletionStore{db: db}
}

func (s *PostgresCompletionStore) Mark(ctx context.Context, contentHash string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ingestion_completions (content_hash, committed_at)
		VALUES ($1, now())
		ON CONFLICT (content_hash) DO UPDATE SET committed_at = EXCLUDED.committed_at
	`, contentHash)
	return err
}

func (s *PostgresCompletionStore) Exists(ctx context.Context, contentHash string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `
		SELECT EXISTS(SELECT 1 FROM ingestion_completions WHERE content_hash = $1)
	`, contentHash)
	return exists, err
}

func (s *PostgresCompletionStore) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM ingestion_completions WHERE committed_at < $1
	`, time.Now().Add(-maxAge))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// CompletionTracker lets the GraphWrite stage skip re-committing content
// that already made it into the graph across a restart, grounded directly
// on completion_tracker.py's CompletionTracker.
type CompletionTracker struct {
	store CompletionStore
}

// NewCompletionTracker wraps a CompletionStore.
func NewCompletionTracker(store CompletionStore) *CompletionTracker {
	return &CompletionTracker{store: store}
}

// MarkCommitted records contentHash as durably committed.
func (t *CompletionTracker) MarkCommitted(ctx context.Context, contentHash string) error {
	return t.store.Mark(ctx, contentHash)
}

// IsCommitted reports whether contentHash was already committed.
func (t *CompletionTracker) IsCommitted(ctx context.Context, contentHash string) (bool, error) {
	return t.store.Exists(ctx, contentHash)
}

// ShouldSkip is an alias for IsCommitted, matching completion_tracker.py's
// naming at its two call sites (pre-commit skip check reads more clearly
// than a bare IsCommitted there).
func (t *CompletionTracker) ShouldSkip(ctx context.Context, contentHash string) (bool, error) {
	return t.store.Exists(ctx, contentHash)
}
