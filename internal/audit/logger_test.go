package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphrag/orchestrator/domain"
)

func TestSecurityAuditLogger_RecentReturnsEventsNewestLast(t *testing.T) {
	logger, err := New(Config{})
	require.NoError(t, err)
	defer logger.Close()

	logger.Isolation("tenant-a", "svc-x", "database mismatch")
	logger.ConfigViolation("outbox_drainer", "production requires durable store")

	recent := logger.Recent(10)
	require.Len(t, recent, 2)
	assert.Equal(t, domain.AuditIsolationViolation, recent[0].Action)
	assert.Equal(t, domain.AuditConfigViolation, recent[1].Action)
	assert.Equal(t, domain.AuditOutcomeDenied, recent[1].Outcome)
}

func TestSecurityAuditLogger_RecentRespectsLimit(t *testing.T) {
	logger, err := New(Config{})
	require.NoError(t, err)
	defer logger.Close()

	for i := 0; i < 5; i++ {
		logger.RateLimitHit("tenant-a", "svc-x")
	}

	assert.Len(t, logger.Recent(2), 2)
	assert.Len(t, logger.Recent(100), 5)
}

func TestSecurityAuditLogger_ClearBufferEmptiesRecent(t *testing.T) {
	logger, err := New(Config{})
	require.NoError(t, err)
	defer logger.Close()

	logger.QueryReject("tenant-a", "svc-x", "budget exhausted")
	require.Len(t, logger.Recent(10), 1)

	logger.ClearBuffer()
	assert.Len(t, logger.Recent(10), 0)
}
