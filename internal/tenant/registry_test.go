package tenant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphrag/orchestrator/domain"
)

func TestRegistry_RejectsDuplicateRegistration(t *testing.T) {
	r := NewRegistry(EditionEnterprise)
	require.NoError(t, r.Register(domain.TenantConfig{TenantID: "acme", IsolationMode: domain.IsolationLogical}))

	err := r.Register(domain.TenantConfig{TenantID: "acme", IsolationMode: domain.IsolationLogical})
	require.Error(t, err)
	var cfgErr *domain.ConfigViolation
	assert.ErrorAs(t, err, &cfgErr)
}

func TestRegistry_RejectsPhysicalIsolationUnderCommunityEdition(t *testing.T) {
	r := NewRegistry(EditionCommunity)
	err := r.Register(domain.TenantConfig{TenantID: "acme", IsolationMode: domain.IsolationPhysical, Database: "acme_db"})
	require.Error(t, err)
	var cfgErr *domain.ConfigViolation
	assert.ErrorAs(t, err, &cfgErr)
}

func TestRegistry_RemoveReportsPresence(t *testing.T) {
	r := NewRegistry(EditionEnterprise)
	require.NoError(t, r.Register(domain.TenantConfig{TenantID: "acme"}))

	assert.True(t, r.Remove("acme"))
	assert.False(t, r.Remove("acme"))
}

func TestRouter_DefaultsUnregisteredTenantToLogicalOnDefaultDatabase(t *testing.T) {
	router := NewRouter(NewRegistry(EditionEnterprise))
	assert.Equal(t, domain.DefaultDatabase, router.DatabaseFor("ghost"))
	assert.Equal(t, domain.IsolationLogical, router.IsolationModeFor("ghost"))
}

func TestRouter_ResolvesRegisteredTenantDatabase(t *testing.T) {
	registry := NewRegistry(EditionEnterprise)
	require.NoError(t, registry.Register(domain.TenantConfig{
		TenantID: "acme", IsolationMode: domain.IsolationPhysical, Database: "acme_db",
	}))
	router := NewRouter(registry)

	assert.Equal(t, "acme_db", router.DatabaseFor("acme"))
	assert.Equal(t, domain.IsolationPhysical, router.IsolationModeFor("acme"))
}
