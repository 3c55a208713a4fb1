// Package outbox implements the transactional outbox (section 4.2): a
// durable event log of vector-index side effects written adjacent to graph
// commits, drained at-least-once by a bounded-retry worker.
package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/graphrag/orchestrator/domain"
	"github.com/graphrag/orchestrator/infrastructure/logging"
)

// Store is the durable backing store for OutboxEvents, backed by Postgres
// via sqlx/lib-pq the way the rest of this codebase's repositories are.
type Store struct {
	db     *sqlx.DB
	logger *logging.Logger
}

// NewStore wraps an existing *sqlx.DB as an outbox Store.
func NewStore(db *sqlx.DB, logger *logging.Logger) *Store {
	return &Store{db: db, logger: logger}
}

type eventRow struct {
	EventID        string         `db:"event_id"`
	Collection     string         `db:"collection"`
	Operation      string         `db:"operation"`
	PrunedIDs      pq.StringArray `db:"pruned_ids"`
	Vectors        []byte         `db:"vectors"`
	Status         string         `db:"status"`
	RetryCount     int            `db:"retry_count"`
	ClaimedBy      sql.NullString `db:"claimed_by"`
	ClaimExpiresAt sql.NullTime   `db:"claim_expires_at"`
	CreatedAt      time.Time      `db:"created_at"`
}

func (r eventRow) toDomain() (domain.OutboxEvent, error) {
	var vectors []float32
	if len(r.Vectors) > 0 {
		if err := json.Unmarshal(r.Vectors, &vectors); err != nil {
			return domain.OutboxEvent{}, fmt.Errorf("decode vectors: %w", err)
		}
	}
	e := domain.OutboxEvent{
		EventID:    r.EventID,
		Collection: r.Collection,
		Operation:  domain.OutboxOperation(r.Operation),
		PrunedIDs:  []string(r.PrunedIDs),
		Vectors:    vectors,
		Status:     domain.OutboxStatus(r.Status),
		RetryCount: r.RetryCount,
		CreatedAt:  r.CreatedAt,
	}
	if r.ClaimedBy.Valid {
		e.ClaimedBy = r.ClaimedBy.String
	}
	if r.ClaimExpiresAt.Valid {
		t := r.ClaimExpiresAt.Time
		e.ClaimExpiresAt = &t
	}
	return e, nil
}

// WriteEvent persists a single event outside of any caller transaction.
func (s *Store) WriteEvent(ctx context.Context, e domain.OutboxEvent) error {
	return s.WriteAfterTx(ctx, []domain.OutboxEvent{e})
}

// WriteAfterTx persists events after the caller's graph transaction has
// already committed. Per the atomicity contract, a failure here surfaces to
// the caller without rolling back the already-committed graph write.
func (s *Store) WriteAfterTx(ctx context.Context, events []domain.OutboxEvent) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrOutboxWrite, err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := s.writeInTx(ctx, tx, events); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrOutboxWrite, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrOutboxWrite, err)
	}
	return nil
}

// WriteInTx persists events as part of a caller-owned transaction, for
// callers composing the outbox write with their own graph-commit
// transaction.
func (s *Store) WriteInTx(ctx context.Context, tx *sqlx.Tx, events []domain.OutboxEvent) error {
	return s.writeInTx(ctx, tx, events)
}

func (s *Store) writeInTx(ctx context.Context, tx *sqlx.Tx, events []domain.OutboxEvent) error {
	const q = `
		INSERT INTO outbox_events
			(event_id, collection, operation, pruned_ids, vectors, status, retry_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7)`
	for _, e := range events {
		var vectors []byte
		if len(e.Vectors) > 0 {
			var err error
			vectors, err = json.Marshal(e.Vectors)
			if err != nil {
				return fmt.Errorf("encode vectors: %w", err)
			}
		}
		createdAt := e.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		if _, err := tx.ExecContext(ctx, q,
			e.EventID, e.Collection, string(e.Operation), pq.Array(e.PrunedIDs), vectors,
			string(domain.OutboxPending), createdAt,
		); err != nil {
			return err
		}
	}
	return nil
}

// LoadPending returns every event currently in OutboxPending status.
func (s *Store) LoadPending(ctx context.Context) ([]domain.OutboxEvent, error) {
	const q = `
		SELECT event_id, collection, operation, pruned_ids, vectors, status, retry_count,
		       claimed_by, claim_expires_at, created_at
		FROM outbox_events
		WHERE status = $1
		ORDER BY created_at ASC`
	var rows []eventRow
	if err := s.db.SelectContext(ctx, &rows, q, string(domain.OutboxPending)); err != nil {
		return nil, err
	}
	return rowsToDomain(rows)
}

// ClaimPending implements the claim/lease protocol for horizontal drainer
// workers: it selects up to limit events that are pending or whose lease
// has expired, and marks them claimed with a fresh lease in one
// transaction.
func (s *Store) ClaimPending(ctx context.Context, workerID string, limit int, leaseSeconds int) ([]domain.OutboxEvent, error) {
	if limit <= 0 {
		return nil, nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	const selectQ = `
		SELECT event_id, collection, operation, pruned_ids, vectors, status, retry_count,
		       claimed_by, claim_expires_at, created_at
		FROM outbox_events
		WHERE status = $1 OR (status = $2 AND claim_expires_at < $3)
		ORDER BY created_at ASC
		LIMIT $4
		FOR UPDATE SKIP LOCKED`
	var rows []eventRow
	if err := tx.SelectContext(ctx, &rows, selectQ, string(domain.OutboxPending), string(domain.OutboxClaimed), now, limit); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, tx.Commit()
	}

	leaseExpiry := now.Add(time.Duration(leaseSeconds) * time.Second)
	const updateQ = `UPDATE outbox_events SET status = $1, claimed_by = $2, claim_expires_at = $3 WHERE event_id = $4`
	for i := range rows {
		if _, err := tx.ExecContext(ctx, updateQ, string(domain.OutboxClaimed), workerID, leaseExpiry, rows[i].EventID); err != nil {
			return nil, err
		}
		rows[i].Status = string(domain.OutboxClaimed)
		rows[i].ClaimedBy = sql.NullString{String: workerID, Valid: true}
		rows[i].ClaimExpiresAt = sql.NullTime{Time: leaseExpiry, Valid: true}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return rowsToDomain(rows)
}

// MarkCompleted deletes a successfully-processed event.
func (s *Store) MarkCompleted(ctx context.Context, eventID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM outbox_events WHERE event_id = $1`, eventID)
	return err
}

// ReleaseClaim releases a worker's claim on an event without deleting it,
// returning it to OutboxPending for the next drain cycle.
func (s *Store) ReleaseClaim(ctx context.Context, eventID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE outbox_events SET status = $1, claimed_by = NULL, claim_expires_at = NULL WHERE event_id = $2`,
		string(domain.OutboxPending), eventID)
	return err
}

// ReleaseExpiredClaims is the periodic sweep that returns any claim whose
// lease has expired back to OutboxPending.
func (s *Store) ReleaseExpiredClaims(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE outbox_events SET status = $1, claimed_by = NULL, claim_expires_at = NULL
		 WHERE status = $2 AND claim_expires_at < $3`,
		string(domain.OutboxPending), string(domain.OutboxClaimed), time.Now().UTC())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// DeleteEvent removes an event regardless of status, used when a drainer
// discards a poison-pill event after exhausting its retry budget.
func (s *Store) DeleteEvent(ctx context.Context, eventID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM outbox_events WHERE event_id = $1`, eventID)
	return err
}

// UpdateRetryCount persists a new retry_count for an event.
func (s *Store) UpdateRetryCount(ctx context.Context, eventID string, retryCount int) error {
	_, err := s.db.ExecContext(ctx, `UPDATE outbox_events SET retry_count = $1 WHERE event_id = $2`, retryCount, eventID)
	return err
}

func rowsToDomain(rows []eventRow) ([]domain.OutboxEvent, error) {
	out := make([]domain.OutboxEvent, 0, len(rows))
	for _, r := range rows {
		e, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}
