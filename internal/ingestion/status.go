package ingestion

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/graphrag/orchestrator/domain"
)

// IngestionStatusStore tracks one ingestion run's lifecycle across process
// restarts so a resumer can decide which checkpoint to re-attach a driver
// to, grounded directly on ingestion_resume.py's IngestionStatusStore
// protocol.
type IngestionStatusStore interface {
	Create(ctx context.Context, threadID string, totalFiles int) error
	Get(ctx context.Context, threadID string) (*domain.IngestionStatus, error)
	UpdateProgress(ctx context.Context, threadID string, processed int) error
	MarkCompleted(ctx context.Context, threadID string) error
	MarkFailed(ctx context.Context, threadID string, errMsg string) error
	Cleanup(ctx context.Context, maxAge time.Duration) (int, error)
	ListResumable(ctx context.Context) ([]domain.IngestionStatus, error)
}

// InMemoryStatusStore is an in-process IngestionStatusStore.
type InMemoryStatusStore struct {
	store map[string]*domain.IngestionStatus
}

// NewInMemoryStatusStore constructs an empty store.
func NewInMemoryStatusStore() *InMemoryStatusStore {
	return &InMemoryStatusStore{store: make(map[string]*domain.IngestionStatus)}
}

func (s *InMemoryStatusStore) Create(ctx context.Context, threadID string, totalFiles int) error {
	s.store[threadID] = &domain.IngestionStatus{
		ThreadID:   threadID,
		State:      domain.IngestionRunning,
		TotalFiles: totalFiles,
		CreatedAt:  time.Now().Unix(),
	}
	return nil
}

func (s *InMemoryStatusStore) Get(ctx context.Context, threadID string) (*domain.IngestionStatus, error) {
	st, ok := s.store[threadID]
	if !ok {
		return nil, nil
	}
	copied := *st
	return &copied, nil
}

func (s *InMemoryStatusStore) UpdateProgress(ctx context.Context, threadID string, processed int) error {
	if st, ok := s.store[threadID]; ok {
		st.ProcessedFiles = processed
	}
	return nil
}

func (s *InMemoryStatusStore) MarkCompleted(ctx context.Context, threadID string) error {
	if st, ok := s.store[threadID]; ok {
		st.State = domain.IngestionCompleted
		now := time.Now().Unix()
		st.CompletedAt = &now
	}
	return nil
}

func (s *InMemoryStatusStore) MarkFailed(ctx context.Context, threadID string, errMsg string) error {
	if st, ok := s.store[threadID]; ok {
		st.State = domain.IngestionFailed
		st.Error = errMsg
		now := time.Now().Unix()
		st.CompletedAt = &now
	}
	return nil
}

func (s *InMemoryStatusStore) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge).Unix()
	removed := 0
	for id, st := range s.store {
		if st.CompletedAt != nil && *st.CompletedAt < cutoff {
			delete(s.store, id)
			removed++
		}
	}
	return removed, nil
}

func (s *InMemoryStatusStore) ListResumable(ctx context.Context) ([]domain.IngestionStatus, error) {
	var out []domain.IngestionStatus
	for _, st := range s.store {
		if st.Resumable() {
			out = append(out, *st)
		}
	}
	return out, nil
}

// PostgresStatusStore persists ingestion run status durably.
type PostgresStatusStore struct {
	db *sqlx.DB
}

// NewPostgresStatusStore wraps an existing *sqlx.DB.
func NewPostgresStatusStore(db *sqlx.DB) *PostgresStatusStore {
	return &PostgresStatusStore{db: db}
}

type statusRow struct {
	ThreadID       string         `db:"thread_id"`
	State          string         `db:"state"`
	TotalFiles     int            `db:"total_files"`
	ProcessedFiles int            `db:"processed_files"`
	Error          sqlxNullString `db:"error"`
	CreatedAt      time.Time      `db:"created_at"`
	CompletedAt    *time.Time     `db:"completed_at"`
}

// sqlxNullString scans a nullable text column into a string plus a
// validity flag.
type sqlxNullString struct {
	String string
	Valid  bool
}

func (n *sqlxNullString) Scan(value interface{}) error {
	if value == nil {
		n.String, n.Valid = "", false
		return nil
	}
	switch v := value.(type) {
	case string:
		n.String, n.Valid = v, true
	case []byte:
		n.String, n.Valid = string(v), true
	}
	return nil
}

func (r statusRow) toDomain() domain.IngestionStatus {
	st := domain.IngestionStatus{
		ThreadID:       r.ThreadID,
		State:          domain.IngestionState(r.State),
		TotalFiles:     r.TotalFiles,
		ProcessedFiles: r.ProcessedFiles,
		CreatedAt:      r.CreatedAt.Unix(),
	}
	if r.Error.Valid {
		st.Error = r.Error.String
	}
	if r.CompletedAt != nil {
		unix := r.CompletedAt.Unix()
		st.CompletedAt = &unix
	}
	return st
}

func (s *PostgresStatusStore) Create(ctx context.Context, threadID string, totalFiles int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ingestion_status (thread_id, state, total_files, processed_files, created_at)
		VALUES ($1, 'running', $2, 0, now())
		ON CONFLICT (thread_id) DO UPDATE SET state = 'running', total_files = EXCLUDED.total_files
	`, threadID, totalFiles)
	return err
}

func (s *PostgresStatusStore) Get(ctx context.Context, threadID string) (*domain.IngestionStatus, error) {
	var row statusRow
	err := s.db.GetContext(ctx, &row, `
		SELECT thread_id, state, total_files, processed_files, error, created_at, completed_at
		FROM ingestion_status WHERE thread_id = $1
	`, threadID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	st := row.toDomain()
	return &st, nil
}

func (s *PostgresStatusStore) UpdateProgress(ctx context.Context, threadID string, processed int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE ingestion_status SET processed_files = $2 WHERE thread_id = $1
	`, threadID, processed)
	return err
}

func (s *PostgresStatusStore) MarkCompleted(ctx context.Context, threadID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE ingestion_status SET state = 'completed', completed_at = now() WHERE thread_id = $1
	`, threadID)
	return err
}

func (s *PostgresStatusStore) MarkFailed(ctx context.Context, threadID string, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE ingestion_status SET state = 'failed', error = $2, completed_at = now() WHERE thread_id = $1
	`, threadID, errMsg)
	return err
}

func (s *PostgresStatusStore) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM ingestion_status WHERE completed_at IS NOT NULL AND completed_at < $1
	`, time.Now().Add(-maxAge))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *PostgresStatusStore) ListResumable(ctx context.Context) ([]domain.IngestionStatus, error) {
	var rows []statusRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT thread_id, state, total_files, processed_files, error, created_at, completed_at
		FROM ingestion_status WHERE state IN ('running', 'failed')
	`); err != nil {
		return nil, err
	}
	out := make([]domain.IngestionStatus, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}
