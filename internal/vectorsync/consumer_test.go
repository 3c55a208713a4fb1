package vectorsync

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphrag/orchestrator/domain"
	"github.com/graphrag/orchestrator/pkg/pgnotify"
)

type fakeDeleter struct {
	deleted [][]string
	failN   int
	calls   int
}

func (d *fakeDeleter) Delete(ctx context.Context, ids []string) error {
	d.calls++
	if d.calls <= d.failN {
		return errors.New("vector store unreachable")
	}
	d.deleted = append(d.deleted, ids)
	return nil
}

func TestConsumer_TombstoneAndDeleteTriggerVectorDelete(t *testing.T) {
	deleter := &fakeDeleter{}
	c := NewConsumer(deleter, nil)

	require.NoError(t, c.ProcessEvent(context.Background(), domain.MutationEvent{
		MutationType: domain.MutationEdgeTombstone,
		EntityIDs:    []string{"a", "b"},
	}))
	require.NoError(t, c.ProcessEvent(context.Background(), domain.MutationEvent{
		MutationType: domain.MutationNodeDelete,
		EntityIDs:    []string{"c"},
	}))

	assert.Equal(t, [][]string{{"a", "b"}, {"c"}}, deleter.deleted)
	assert.Equal(t, int64(2), c.ProcessedCount())
}

func TestConsumer_UpsertDoesNotTriggerDelete(t *testing.T) {
	deleter := &fakeDeleter{}
	c := NewConsumer(deleter, nil)

	require.NoError(t, c.ProcessEvent(context.Background(), domain.MutationEvent{
		MutationType: domain.MutationNodeUpsert,
		EntityIDs:    []string{"a"},
	}))

	assert.Empty(t, deleter.deleted)
	assert.Equal(t, int64(1), c.ProcessedCount())
}

func TestConsumer_RetriesTransientDeleteFailureBeforeSucceeding(t *testing.T) {
	deleter := &fakeDeleter{failN: 1}
	c := NewConsumer(deleter, nil)

	err := c.ProcessEvent(context.Background(), domain.MutationEvent{
		MutationType: domain.MutationEdgeTombstone,
		EntityIDs:    []string{"a"},
	})
	require.NoError(t, err, "a transient failure must be retried rather than dropped, since pgnotify never redelivers")
	assert.Equal(t, 2, deleter.calls)
	assert.Equal(t, [][]string{{"a"}}, deleter.deleted)
}

func TestConsumer_ReturnsErrorAfterExhaustingRetries(t *testing.T) {
	deleter := &fakeDeleter{failN: 100}
	c := NewConsumer(deleter, nil)

	err := c.ProcessEvent(context.Background(), domain.MutationEvent{
		MutationType: domain.MutationEdgeTombstone,
		EntityIDs:    []string{"a"},
	})
	require.Error(t, err)
	assert.Equal(t, deleteRetryAttempts+1, deleter.calls)
	assert.Equal(t, int64(0), c.ProcessedCount())
}

func TestConsumer_HandlerSkipsMalformedPayloadWithoutError(t *testing.T) {
	deleter := &fakeDeleter{}
	c := NewConsumer(deleter, nil)
	handler := c.Handler()

	err := handler(context.Background(), pgnotify.Event{
		Channel:   MutationChannel,
		Payload:   json.RawMessage(`not json`),
		Timestamp: time.Now(),
	})
	assert.NoError(t, err)
	assert.Equal(t, int64(0), c.ProcessedCount())
}

func TestConsumer_HandlerProcessesWellFormedEvent(t *testing.T) {
	deleter := &fakeDeleter{}
	c := NewConsumer(deleter, nil)
	handler := c.Handler()

	payload, err := json.Marshal(domain.MutationEvent{
		MutationType: domain.MutationEdgeTombstone,
		EntityIDs:    []string{"x"},
	})
	require.NoError(t, err)

	require.NoError(t, handler(context.Background(), pgnotify.Event{
		Channel: MutationChannel,
		Payload: payload,
	}))
	assert.Equal(t, [][]string{{"x"}}, deleter.deleted)
}
