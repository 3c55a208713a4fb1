package tenant

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/graphrag/orchestrator/domain"
	"github.com/graphrag/orchestrator/internal/audit"
)

// TenantDataStore is a data source GDPRService knows how to export from and
// erase by tenant, grounded on gdpr.py's TenantDataStore protocol. Each
// registered store is identified by a collection name (e.g. "graph_nodes",
// "semantic_cache", "audit_log") so export/erasure results can report
// per-store outcomes.
type TenantDataStore interface {
	FindByTenant(ctx context.Context, tenantID string) ([]map[string]interface{}, error)
	DeleteByTenant(ctx context.Context, tenantID string) (int, error)
}

// GDPRService implements data-subject export and erasure across every
// registered store. Exactly one AuditEvent is emitted per request,
// regardless of whether every store succeeded, per section 7's invariant
// that GDPR requests are always audit-logged.
type GDPRService struct {
	stores  map[string]TenantDataStore
	auditor *audit.SecurityAuditLogger
}

// NewGDPRService constructs a GDPRService with no stores registered yet.
func NewGDPRService(auditor *audit.SecurityAuditLogger) *GDPRService {
	return &GDPRService{stores: make(map[string]TenantDataStore), auditor: auditor}
}

// RegisterStore adds a named data store to be included in future
// export/erasure requests.
func (g *GDPRService) RegisterStore(collection string, store TenantDataStore) {
	g.stores[collection] = store
}

func subjectMatches(record map[string]interface{}, subjectID string) bool {
	for _, field := range []string{"subject_id", "owner", "team_owner"} {
		if v, ok := record[field]; ok {
			if s, ok := v.(string); ok && s == subjectID {
				return true
			}
		}
	}
	return false
}

// ExportData gathers every record across every registered store that
// belongs to subjectID within tenantID.
func (g *GDPRService) ExportData(ctx context.Context, tenantID, subjectID string) *domain.DataExportResult {
	result := &domain.DataExportResult{
		RequestID:  uuid.NewString(),
		TenantID:   tenantID,
		SubjectID:  subjectID,
		Records:    make(map[string][]map[string]interface{}),
		ExportedAt: time.Now(),
		Failures:   make(map[string]string),
	}

	for collection, store := range g.stores {
		records, err := store.FindByTenant(ctx, tenantID)
		if err != nil {
			result.Failures[collection] = err.Error()
			continue
		}
		var subjectRecords []map[string]interface{}
		for _, r := range records {
			if subjectMatches(r, subjectID) {
				subjectRecords = append(subjectRecords, r)
			}
		}
		if len(subjectRecords) > 0 {
			result.Records[collection] = subjectRecords
		}
	}

	if g.auditor != nil {
		outcome := domain.AuditOutcomeAllowed
		if len(result.Failures) > 0 {
			outcome = domain.AuditOutcomeError
		}
		g.auditor.Log(domain.AuditEvent{
			EventID:   result.RequestID,
			Action:    domain.AuditGDPRExport,
			TenantID:  tenantID,
			Principal: subjectID,
			Timestamp: result.ExportedAt,
			Outcome:   outcome,
			Detail:    map[string]interface{}{"failures": result.Failures},
		})
	}
	return result
}

// EraseData deletes every tenant-scoped record across every registered
// store, then re-reads each store to verify no record still matches
// subjectID, mirroring gdpr.py's erase_data verification pass. A store
// failing either phase is recorded in Failures but does not prevent the
// remaining stores from being processed.
func (g *GDPRService) EraseData(ctx context.Context, tenantID, subjectID string) *domain.ErasureResult {
	result := &domain.ErasureResult{
		RequestID: uuid.NewString(),
		TenantID:  tenantID,
		SubjectID: subjectID,
		ErasedAt:  time.Now(),
		Failures:  make(map[string]string),
	}

	for collection, store := range g.stores {
		deleted, err := store.DeleteByTenant(ctx, tenantID)
		if err != nil {
			result.Failures[collection] = err.Error()
			continue
		}
		result.RowsErased += deleted
		result.CollectionsErased = append(result.CollectionsErased, collection)

		remaining, err := store.FindByTenant(ctx, tenantID)
		if err != nil {
			result.Failures[collection] = "verification failed: " + err.Error()
			continue
		}
		for _, r := range remaining {
			if subjectMatches(r, subjectID) {
				result.Failures[collection] = "erasure verification found a remaining record"
				break
			}
		}
	}

	if g.auditor != nil {
		outcome := domain.AuditOutcomeAllowed
		if len(result.Failures) > 0 {
			outcome = domain.AuditOutcomeError
		}
		g.auditor.Log(domain.AuditEvent{
			EventID:   result.RequestID,
			Action:    domain.AuditGDPRErasure,
			TenantID:  tenantID,
			Principal: subjectID,
			Timestamp: result.ErasedAt,
			Outcome:   outcome,
			Detail:    map[string]interface{}{"rows_erased": result.RowsErased, "failures": result.Failures},
		})
	}
	return result
}
