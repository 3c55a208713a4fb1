package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTombstoneChecker struct{ tombstoned map[string]struct{} }

func (c *fakeTombstoneChecker) CheckTombstonedNodes(ctx context.Context, nodeIDs []string, tenantID string) (map[string]struct{}, error) {
	return c.tombstoned, nil
}

func TestFilterTombstonedResults_DropsTombstonedCandidates(t *testing.T) {
	checker := &fakeTombstoneChecker{tombstoned: map[string]struct{}{"b": {}}}
	candidates := []Candidate{{ID: "a"}, {ID: "b"}, {ID: "c"}}

	out, err := FilterTombstonedResults(context.Background(), checker, candidates, "")
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].ID)
	assert.Equal(t, "c", out[1].ID)
}

func TestFilterTombstonedResults_NoneTombstonedReturnsOriginal(t *testing.T) {
	checker := &fakeTombstoneChecker{tombstoned: map[string]struct{}{}}
	candidates := []Candidate{{ID: "a"}}

	out, err := FilterTombstonedResults(context.Background(), checker, candidates, "")
	require.NoError(t, err)
	assert.Equal(t, candidates, out)
}

func TestFilterTombstonedResults_EmptyInputReturnsNil(t *testing.T) {
	checker := &fakeTombstoneChecker{}
	out, err := FilterTombstonedResults(context.Background(), checker, nil, "")
	require.NoError(t, err)
	assert.Nil(t, out)
}
