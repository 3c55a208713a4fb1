package tenant

import (
	"context"
	"fmt"

	"github.com/graphrag/orchestrator/domain"
	"github.com/graphrag/orchestrator/internal/audit"
)

// GraphSession is the capability subset of a graph database driver session
// this package needs. The query dialect itself (Cypher, Gremlin, etc.) is
// out of scope; ConnectionWrapper only decides whether a query may run, not
// how it runs.
type GraphSession interface {
	Run(ctx context.Context, query string, params map[string]interface{}) (interface{}, error)
	Database() string
}

// ConnectionWrapper binds a graph session to exactly one tenant and
// database for its lifetime. Every query that passes through it is
// validated against that binding before being allowed to execute; any
// mismatch is an isolation violation, which is always audit-logged before
// it is returned to the caller (section 7).
type ConnectionWrapper struct {
	session  GraphSession
	tenantID string
	database string
	auditor  *audit.SecurityAuditLogger
}

// NewConnectionWrapper binds session to tenantID and database.
func NewConnectionWrapper(session GraphSession, tenantID, database string, auditor *audit.SecurityAuditLogger) *ConnectionWrapper {
	return &ConnectionWrapper{session: session, tenantID: tenantID, database: database, auditor: auditor}
}

// ValidateDatabase rejects any attempt to run a query against a database
// other than the one this wrapper is bound to.
func (w *ConnectionWrapper) ValidateDatabase() error {
	if w.session.Database() != w.database {
		reason := fmt.Sprintf("wrapper bound to database %q but session reports %q", w.database, w.session.Database())
		if w.auditor != nil {
			w.auditor.Isolation(w.tenantID, "", reason)
		}
		return domain.NewTenantIsolationViolation(w.tenantID, reason)
	}
	return nil
}

// ValidateQueryTenant rejects a query whose caller-supplied tenant id does
// not match the binding. Every query entry point must call this before
// Run, even when the query text itself already carries a tenant filter —
// the wrapper is the last line of defense against a caller with a stale or
// forged tenant id.
func (w *ConnectionWrapper) ValidateQueryTenant(requestedTenantID string) error {
	if requestedTenantID != w.tenantID {
		reason := fmt.Sprintf("query requested tenant %q but connection is bound to %q", requestedTenantID, w.tenantID)
		if w.auditor != nil {
			w.auditor.Isolation(w.tenantID, requestedTenantID, reason)
		}
		return domain.NewTenantIsolationViolation(w.tenantID, reason)
	}
	return nil
}

// Run validates the binding and executes query. params is augmented with
// the bound tenant_id via InjectTenantFilter before being passed down, so
// callers never need to remember to add it themselves.
func (w *ConnectionWrapper) Run(ctx context.Context, requestedTenantID, query string, params map[string]interface{}) (interface{}, error) {
	if err := w.ValidateQueryTenant(requestedTenantID); err != nil {
		return nil, err
	}
	if err := w.ValidateDatabase(); err != nil {
		return nil, err
	}
	return w.session.Run(ctx, query, InjectTenantFilter(params, w.tenantID))
}

// TenantID returns the tenant this wrapper is bound to.
func (w *ConnectionWrapper) TenantID() string { return w.tenantID }

// Database returns the database this wrapper is bound to.
func (w *ConnectionWrapper) Database() string { return w.database }

// InjectTenantFilter returns a copy of params with tenant_id set to
// tenantID, overriding any caller-supplied value. Query text is expected to
// reference $tenant_id in its WHERE clause; the graph query dialect itself
// is out of scope here.
func InjectTenantFilter(params map[string]interface{}, tenantID string) map[string]interface{} {
	out := make(map[string]interface{}, len(params)+1)
	for k, v := range params {
		out[k] = v
	}
	out["tenant_id"] = tenantID
	return out
}
