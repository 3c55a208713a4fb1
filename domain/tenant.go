package domain

import "fmt"

// IsolationMode describes how a tenant's data is separated from other
// tenants'. Physical isolation pins the tenant to a dedicated database or
// vector collection; logical isolation shares storage and filters by
// tenant_id at query time.
type IsolationMode string

const (
	IsolationPhysical IsolationMode = "physical"
	IsolationLogical  IsolationMode = "logical"
)

// TenantConfig describes a registered tenant: its isolation mode, the
// database it is bound to, and its per-tenant concurrency cap.
type TenantConfig struct {
	TenantID       string
	IsolationMode  IsolationMode
	Database       string
	ConcurrencyCap int
}

// DefaultDatabase is used when a tenant has no explicit database binding.
const DefaultDatabase = "neo4j"

// TenantIsolationViolation reports a cross-tenant or cross-database access
// attempt. It is never suppressed: every code path that constructs one must
// also audit-log it before returning to the caller.
type TenantIsolationViolation struct {
	TenantID string
	Reason   string
}

func (e *TenantIsolationViolation) Error() string {
	return fmt.Sprintf("tenant isolation violation for %q: %s", e.TenantID, e.Reason)
}

// NewTenantIsolationViolation constructs a TenantIsolationViolation.
func NewTenantIsolationViolation(tenantID, reason string) *TenantIsolationViolation {
	return &TenantIsolationViolation{TenantID: tenantID, Reason: reason}
}

// ConfigViolation reports a production-mode invariant that was not met at
// startup. The process is expected to abort after this is raised.
type ConfigViolation struct {
	Setting string
	Reason  string
}

func (e *ConfigViolation) Error() string {
	return fmt.Sprintf("config violation for %q: %s", e.Setting, e.Reason)
}

// NewConfigViolation constructs a ConfigViolation.
func NewConfigViolation(setting, reason string) *ConfigViolation {
	return &ConfigViolation{Setting: setting, Reason: reason}
}
