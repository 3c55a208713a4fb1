// Package tenant implements multi-tenant isolation (section 4.4): tenant
// registration and routing, a connection wrapper that rejects any query
// targeting a tenant or database other than the one it was bound to, and
// query-time tenant filter injection. AST extraction internals and the
// graph query dialect itself stay out of scope; this package only owns the
// isolation boundary around them.
package tenant

import (
	"fmt"
	"sync"

	"github.com/graphrag/orchestrator/domain"
)

// Edition gates which isolation modes a deployment may use. Physical
// isolation (a dedicated database per tenant) is an enterprise-only
// feature; community deployments are restricted to logical isolation.
type Edition string

const (
	EditionCommunity  Edition = "community"
	EditionEnterprise Edition = "enterprise"
)

// Registry holds the set of known tenants and their isolation
// configuration. Registration is idempotent-hostile by design: registering
// the same tenant id twice is a config error, since it usually means two
// independent bootstrap paths raced to define a tenant differently.
type Registry struct {
	mu      sync.RWMutex
	edition Edition
	tenants map[string]domain.TenantConfig
}

// NewRegistry constructs an empty Registry gated to edition.
func NewRegistry(edition Edition) *Registry {
	return &Registry{edition: edition, tenants: make(map[string]domain.TenantConfig)}
}

// Register adds a new tenant. It returns a *domain.ConfigViolation if the
// tenant id is already registered, or if physical isolation is requested
// under the community edition.
func (r *Registry) Register(cfg domain.TenantConfig) error {
	if cfg.IsolationMode == domain.IsolationPhysical && r.edition != EditionEnterprise {
		return domain.NewConfigViolation("tenant_isolation_mode",
			fmt.Sprintf("physical isolation for tenant %q requires the enterprise edition", cfg.TenantID))
	}
	if cfg.Database == "" {
		cfg.Database = domain.DefaultDatabase
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tenants[cfg.TenantID]; exists {
		return domain.NewConfigViolation("tenant_registration",
			fmt.Sprintf("tenant %q is already registered", cfg.TenantID))
	}
	r.tenants[cfg.TenantID] = cfg
	return nil
}

// Remove unregisters a tenant, reporting whether it was present.
func (r *Registry) Remove(tenantID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tenants[tenantID]; !exists {
		return false
	}
	delete(r.tenants, tenantID)
	return true
}

// Lookup returns a tenant's configuration.
func (r *Registry) Lookup(tenantID string) (domain.TenantConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.tenants[tenantID]
	return cfg, ok
}

// All returns a snapshot of every registered tenant, in no particular
// order.
func (r *Registry) All() []domain.TenantConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.TenantConfig, 0, len(r.tenants))
	for _, cfg := range r.tenants {
		out = append(out, cfg)
	}
	return out
}

// Router resolves a tenant id to the database it is bound to, falling back
// to domain.DefaultDatabase for unregistered tenants (matching the
// original system's permissive default for tenants not yet explicitly
// onboarded into physical isolation).
type Router struct {
	registry *Registry
}

// NewRouter constructs a Router over registry.
func NewRouter(registry *Registry) *Router {
	return &Router{registry: registry}
}

// DatabaseFor resolves which database a tenant's queries must run against.
func (r *Router) DatabaseFor(tenantID string) string {
	if cfg, ok := r.registry.Lookup(tenantID); ok && cfg.Database != "" {
		return cfg.Database
	}
	return domain.DefaultDatabase
}

// IsolationModeFor resolves a tenant's isolation mode, defaulting to
// logical for unregistered tenants.
func (r *Router) IsolationModeFor(tenantID string) domain.IsolationMode {
	if cfg, ok := r.registry.Lookup(tenantID); ok {
		return cfg.IsolationMode
	}
	return domain.IsolationLogical
}
