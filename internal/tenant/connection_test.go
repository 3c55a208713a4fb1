package tenant

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphrag/orchestrator/domain"
	"github.com/graphrag/orchestrator/internal/audit"
)

type fakeSession struct {
	database string
	lastQuery string
	lastParams map[string]interface{}
}

func (s *fakeSession) Run(ctx context.Context, query string, params map[string]interface{}) (interface{}, error) {
	s.lastQuery = query
	s.lastParams = params
	return "ok", nil
}

func (s *fakeSession) Database() string { return s.database }

func TestConnectionWrapper_RejectsMismatchedTenant(t *testing.T) {
	session := &fakeSession{database: "acme_db"}
	wrapper := NewConnectionWrapper(session, "acme", "acme_db", nil)

	_, err := wrapper.Run(context.Background(), "intruder", "MATCH (n) RETURN n", nil)
	require.Error(t, err)
	var isoErr *domain.TenantIsolationViolation
	assert.ErrorAs(t, err, &isoErr)
}

func TestConnectionWrapper_RejectsMismatchedDatabase(t *testing.T) {
	session := &fakeSession{database: "wrong_db"}
	wrapper := NewConnectionWrapper(session, "acme", "acme_db", nil)

	_, err := wrapper.Run(context.Background(), "acme", "MATCH (n) RETURN n", nil)
	require.Error(t, err)
	var isoErr *domain.TenantIsolationViolation
	assert.ErrorAs(t, err, &isoErr)
}

func TestConnectionWrapper_InjectsTenantFilterIntoParams(t *testing.T) {
	session := &fakeSession{database: "acme_db"}
	wrapper := NewConnectionWrapper(session, "acme", "acme_db", nil)

	_, err := wrapper.Run(context.Background(), "acme", "MATCH (n {tenant_id: $tenant_id}) RETURN n", map[string]interface{}{"limit": 10})
	require.NoError(t, err)
	assert.Equal(t, "acme", session.lastParams["tenant_id"])
	assert.Equal(t, 10, session.lastParams["limit"])
}

func TestConnectionWrapper_ViolationIsAuditLogged(t *testing.T) {
	auditor, err := audit.New(audit.Config{})
	require.NoError(t, err)
	defer auditor.Close()

	session := &fakeSession{database: "acme_db"}
	wrapper := NewConnectionWrapper(session, "acme", "acme_db", auditor)

	_, err = wrapper.Run(context.Background(), "intruder", "MATCH (n) RETURN n", nil)
	require.Error(t, err)

	recent := auditor.Recent(10)
	require.Len(t, recent, 1)
	assert.Equal(t, domain.AuditIsolationViolation, recent[0].Action)
}
