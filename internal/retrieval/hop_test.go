package retrieval

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapCandidates_RanksByScoreWhenPresent(t *testing.T) {
	candidates := []Candidate{
		{Name: "a", Score: 0.2, HasScore: true},
		{Name: "b", Score: 0.9, HasScore: true},
		{Name: "c", Score: 0.5, HasScore: true},
	}
	out := CapCandidates(candidates, 2)
	require.Len(t, out, 2)
	assert.Equal(t, "b", out[0].Name)
	assert.Equal(t, "c", out[1].Name)
}

func TestCapCandidates_TruncatesInOrderWhenUnscored(t *testing.T) {
	candidates := []Candidate{{Name: "a"}, {Name: "b"}, {Name: "c"}}
	out := CapCandidates(candidates, 2)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].Name)
	assert.Equal(t, "b", out[1].Name)
}

func TestPartitionNames_SplitsIntoBatches(t *testing.T) {
	names := []string{"a", "b", "c", "d", "e"}
	batches := PartitionNames(names, 2)
	assert.Equal(t, [][]string{{"a", "b"}, {"c", "d"}, {"e"}}, batches)
}

func TestPartitionNames_EmptyInputReturnsNil(t *testing.T) {
	assert.Nil(t, PartitionNames(nil, 2))
}

type fakeHopRunner struct {
	responses map[string][]map[string]interface{}
}

func (r *fakeHopRunner) RunHop(ctx context.Context, names []string) ([]map[string]interface{}, error) {
	var out []map[string]interface{}
	for _, n := range names {
		out = append(out, r.responses[n]...)
	}
	return out, nil
}

func TestBatchedHopExecutor_DedupsAcrossBatches(t *testing.T) {
	runner := &fakeHopRunner{responses: map[string][]map[string]interface{}{
		"svc-a": {{"source": "svc-a", "rel": "calls", "target": "svc-b"}},
		"svc-b": {{"source": "svc-a", "rel": "calls", "target": "svc-b"}},
	}}
	executor := NewBatchedHopExecutor(runner, 50, 1)

	candidates := []Candidate{{Name: "svc-a"}, {Name: "svc-b"}}
	out, err := executor.Execute(context.Background(), candidates)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "svc-a", out[0]["source"])
}

func TestBatchedHopExecutor_EmptyCandidatesReturnsNil(t *testing.T) {
	executor := NewBatchedHopExecutor(&fakeHopRunner{}, 50, 50)
	out, err := executor.Execute(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestBatchedHopExecutor_AppliesCandidateLimit(t *testing.T) {
	runner := &fakeHopRunner{responses: map[string][]map[string]interface{}{}}
	executor := NewBatchedHopExecutor(runner, 1, 50)

	candidates := []Candidate{
		{Name: "a", Score: 0.1, HasScore: true},
		{Name: "b", Score: 0.9, HasScore: true},
	}
	out, err := executor.Execute(context.Background(), candidates)
	require.NoError(t, err)
	assert.Empty(t, out)

	names := make([]string, 0)
	for n := range runner.responses {
		names = append(names, n)
	}
	sort.Strings(names)
}
