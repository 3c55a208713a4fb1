// Package schema tracks the graph store's own schema version — a
// sequence of idempotent Cypher-equivalent statements applied against the
// graph database, separate from golang-migrate's relational migrations
// (which own the outbox/checkpoint/audit tables). Grounded on
// schema_version.py.
package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"

	"github.com/graphrag/orchestrator/domain"
)

// ComputeChecksum returns the first 16 hex characters of the sha256 of a
// migration's statement, matching Migration.compute_checksum.
func ComputeChecksum(statement string) string {
	sum := sha256.Sum256([]byte(statement))
	return hex.EncodeToString(sum[:])[:16]
}

// ParseMigrations splits a canonical schema file into one migration per
// non-blank, non-comment line, versioned in file order. Lines beginning
// with "--" are treated as comments, matching the Cypher-script convention
// of the canonical schema file.
func ParseMigrations(schemaText string) []domain.GraphMigration {
	var migrations []domain.GraphMigration
	version := 0
	for _, line := range strings.Split(strings.TrimSpace(schemaText), "\n") {
		stripped := strings.TrimSpace(line)
		if stripped == "" || strings.HasPrefix(stripped, "--") {
			continue
		}
		version++
		name := stripped
		if len(name) > 60 {
			name = name[:60]
		}
		migrations = append(migrations, domain.GraphMigration{
			Version:   version,
			Name:      name,
			Statement: stripped,
			Checksum:  ComputeChecksum(stripped),
		})
	}
	return migrations
}

// VersionTracker records which graph-schema migrations have been applied
// and reports which of a canonical migration set remain pending.
type VersionTracker struct {
	mu               sync.RWMutex
	currentVersion   int
	appliedMigrations []string
}

// NewVersionTracker constructs a tracker starting at version 0.
func NewVersionTracker() *VersionTracker {
	return &VersionTracker{}
}

// CurrentVersion returns the highest version number recorded as applied.
func (t *VersionTracker) CurrentVersion() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.currentVersion
}

// AppliedMigrations returns the names of every migration recorded applied,
// in application order.
func (t *VersionTracker) AppliedMigrations() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, len(t.appliedMigrations))
	copy(out, t.appliedMigrations)
	return out
}

// RecordApplied advances the tracker's current version to migration's and
// appends its name to the applied list. Migrations are expected to be
// recorded in increasing version order; this does not itself execute the
// migration's statement against the graph store.
func (t *VersionTracker) RecordApplied(migration domain.GraphMigration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.currentVersion = migration.Version
	t.appliedMigrations = append(t.appliedMigrations, migration.Name)
}

// PendingMigrations returns every migration in allMigrations whose version
// exceeds the tracker's current version, in their given order.
func (t *VersionTracker) PendingMigrations(allMigrations []domain.GraphMigration) []domain.GraphMigration {
	current := t.CurrentVersion()
	var pending []domain.GraphMigration
	for _, m := range allMigrations {
		if m.Version > current {
			pending = append(pending, m)
		}
	}
	return pending
}

// IsUpToDate reports whether no migration in allMigrations is pending.
func (t *VersionTracker) IsUpToDate(allMigrations []domain.GraphMigration) bool {
	return len(t.PendingMigrations(allMigrations)) == 0
}
