// Package graphstore provides the Postgres-backed implementation of the
// capability interfaces the rest of this workspace treats as seams: graph
// commit/read (internal/outbox.GraphRepository, internal/ingestion's
// GraphCommitter), tombstone reaping (internal/reaper.TombstoneStore), and
// vector-index deletion (internal/outbox.VectorDeleter,
// internal/vectorsync.VectorDeleter). The graph query dialect itself
// remains out of scope — this store does plain row CRUD, not graph
// traversal, topology-aware queries, or a query language; any dialect or
// traversal engine sits in front of or alongside this table, not in it.
package graphstore

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/graphrag/orchestrator/domain"
	"github.com/graphrag/orchestrator/infrastructure/metrics"
)

// Store persists graph entities and the vector-index rows derived from
// them in Postgres, backed by sqlx/lib-pq the way every other repository
// in this workspace is.
type Store struct {
	db      *sqlx.DB
	metrics *metrics.Metrics
}

// New wraps an existing *sqlx.DB. m may be nil, in which case queries go
// unrecorded.
func New(db *sqlx.DB, m *metrics.Metrics) *Store {
	return &Store{db: db, metrics: m}
}

func (s *Store) observe(operation string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
		s.metrics.RecordError("graphstore", "query", operation)
	}
	s.metrics.RecordDatabaseQuery("graphstore", operation, status, time.Since(start))
}

type entityRow struct {
	ID           string         `db:"id"`
	Kind         string         `db:"kind"`
	Repository   string         `db:"repository"`
	Namespace    string         `db:"namespace"`
	Name         string         `db:"name"`
	Language     string         `db:"language"`
	Framework    string         `db:"framework"`
	Owners       pq.StringArray `db:"owners"`
	NamespaceACL pq.StringArray `db:"namespace_acl"`
	TeamOwner    string         `db:"team_owner"`
	Confidence   float64        `db:"confidence"`
	TenantID     string         `db:"tenant_id"`
	TombstonedAt *time.Time     `db:"tombstoned_at"`
}

func toRow(e domain.Entity) entityRow {
	return entityRow{
		ID:           e.ID,
		Kind:         string(e.Kind),
		Repository:   e.Repository,
		Namespace:    e.Namespace,
		Name:         e.Name,
		Language:     e.Language,
		Framework:    e.Framework,
		Owners:       pq.StringArray(e.Owners),
		NamespaceACL: pq.StringArray(e.NamespaceACL),
		TeamOwner:    e.TeamOwner,
		Confidence:   e.Confidence,
		TenantID:     e.TenantID,
		TombstonedAt: tombstonedTime(e.TombstonedAt),
	}
}

func tombstonedTime(unix *int64) *time.Time {
	if unix == nil {
		return nil
	}
	t := time.Unix(*unix, 0).UTC()
	return &t
}

// CommitTopology upserts every entity by id, satisfying
// internal/outbox.GraphRepository and internal/ingestion's GraphCommitter.
func (s *Store) CommitTopology(ctx context.Context, entities []domain.Entity) (err error) {
	if len(entities) == 0 {
		return nil
	}
	defer func(start time.Time) { s.observe("commit_topology", start, err) }(time.Now())

	tx, beginErr := s.db.BeginTxx(ctx, nil)
	if beginErr != nil {
		err = beginErr
		return err
	}
	defer tx.Rollback()

	const upsert = `
		INSERT INTO graph_entities (
			id, kind, repository, namespace, name, language, framework,
			owners, namespace_acl, team_owner, confidence, tenant_id, tombstoned_at
		) VALUES (
			:id, :kind, :repository, :namespace, :name, :language, :framework,
			:owners, :namespace_acl, :team_owner, :confidence, :tenant_id, :tombstoned_at
		)
		ON CONFLICT (id) DO UPDATE SET
			kind = EXCLUDED.kind,
			repository = EXCLUDED.repository,
			namespace = EXCLUDED.namespace,
			name = EXCLUDED.name,
			language = EXCLUDED.language,
			framework = EXCLUDED.framework,
			owners = EXCLUDED.owners,
			namespace_acl = EXCLUDED.namespace_acl,
			team_owner = EXCLUDED.team_owner,
			confidence = GREATEST(graph_entities.confidence, EXCLUDED.confidence),
			tenant_id = EXCLUDED.tenant_id,
			tombstoned_at = EXCLUDED.tombstoned_at
	`
	for _, e := range entities {
		if _, execErr := tx.NamedExecContext(ctx, upsert, toRow(e)); execErr != nil {
			err = execErr
			return err
		}
	}
	err = tx.Commit()
	return err
}

// ReadTopology is a cheap reachability healthcheck, satisfying
// internal/ingestion's GraphCommitter.
func (s *Store) ReadTopology(ctx context.Context) (err error) {
	defer func(start time.Time) { s.observe("read_topology", start, err) }(time.Now())
	var one int
	err = s.db.GetContext(ctx, &one, `SELECT 1 FROM graph_entities LIMIT 1`)
	return err
}

// ReapBatch permanently deletes up to limit entities tombstoned before
// olderThan, satisfying internal/reaper.TombstoneStore.
func (s *Store) ReapBatch(ctx context.Context, olderThan time.Time, limit int) (n int, err error) {
	defer func(start time.Time) { s.observe("reap_batch", start, err) }(time.Now())
	res, execErr := s.db.ExecContext(ctx, `
		DELETE FROM graph_entities
		WHERE id IN (
			SELECT id FROM graph_entities
			WHERE tombstoned_at IS NOT NULL AND tombstoned_at < $1
			ORDER BY tombstoned_at
			LIMIT $2
		)
	`, olderThan, limit)
	if execErr != nil {
		err = execErr
		return 0, err
	}
	affected, err2 := res.RowsAffected()
	err = err2
	return int(affected), err
}

// CountPending reports how many tombstoned entities are eligible for
// reaping, satisfying internal/reaper.TombstoneStore.
func (s *Store) CountPending(ctx context.Context, olderThan time.Time) (count int, err error) {
	defer func(start time.Time) { s.observe("count_pending", start, err) }(time.Now())
	err = s.db.GetContext(ctx, &count, `
		SELECT count(*) FROM graph_entities WHERE tombstoned_at IS NOT NULL AND tombstoned_at < $1
	`, olderThan)
	return count, err
}

// DeleteFromIndex removes rows from the vector index for a collection,
// satisfying internal/outbox.VectorDeleter.
func (s *Store) DeleteFromIndex(ctx context.Context, collection string, prunedIDs []string) (err error) {
	if len(prunedIDs) == 0 {
		return nil
	}
	defer func(start time.Time) { s.observe("delete_from_index", start, err) }(time.Now())
	_, err = s.db.ExecContext(ctx, `
		DELETE FROM vector_index WHERE collection = $1 AND entity_id = ANY($2)
	`, collection, pq.StringArray(prunedIDs))
	return err
}

// Delete removes rows from the vector index by entity id regardless of
// collection, satisfying internal/vectorsync.VectorDeleter.
func (s *Store) Delete(ctx context.Context, ids []string) (err error) {
	if len(ids) == 0 {
		return nil
	}
	defer func(start time.Time) { s.observe("delete", start, err) }(time.Now())
	_, err = s.db.ExecContext(ctx, `
		DELETE FROM vector_index WHERE entity_id = ANY($1)
	`, pq.StringArray(ids))
	return err
}
