package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphrag/orchestrator/domain"
)

type fakeStore struct {
	mu     sync.Mutex
	events map[string]domain.OutboxEvent
}

func newFakeStore(events ...domain.OutboxEvent) *fakeStore {
	m := make(map[string]domain.OutboxEvent, len(events))
	for _, e := range events {
		m[e.EventID] = e
	}
	return &fakeStore{events: m}
}

func (f *fakeStore) LoadPending(ctx context.Context) ([]domain.OutboxEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.OutboxEvent, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeStore) MarkCompleted(ctx context.Context, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.events, eventID)
	return nil
}

func (f *fakeStore) DeleteEvent(ctx context.Context, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.events, eventID)
	return nil
}

func (f *fakeStore) UpdateRetryCount(ctx context.Context, eventID string, retryCount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e := f.events[eventID]
	e.RetryCount = retryCount
	f.events[eventID] = e
	return nil
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func (f *fakeStore) get(id string) (domain.OutboxEvent, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.events[id]
	return e, ok
}

type flakyDeleter struct {
	mu        sync.Mutex
	failTimes int
	calls     int
}

func (d *flakyDeleter) DeleteFromIndex(ctx context.Context, collection string, prunedIDs []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.calls <= d.failTimes {
		return errors.New("downstream unavailable")
	}
	return nil
}

func TestDrainer_OutboxAtomicityOnVectorStoreFailure(t *testing.T) {
	store := newFakeStore(domain.OutboxEvent{
		EventID: "evt-1", Collection: "svc", PrunedIDs: []string{"id-1"}, Status: domain.OutboxPending,
	})
	deleter := &flakyDeleter{failTimes: 1}
	drainer := NewDrainer(store, deleter, DrainerConfig{MaxRetries: 3}, nil, true)

	_, err := drainer.ProcessOnce(context.Background())
	require.NoError(t, err)

	evt, ok := store.get("evt-1")
	require.True(t, ok, "event should remain pending after a transient failure")
	assert.Equal(t, 1, evt.RetryCount)
}

func TestDrainer_DiscardsAfterMaxRetries(t *testing.T) {
	store := newFakeStore(domain.OutboxEvent{
		EventID: "evt-1", Collection: "svc", PrunedIDs: []string{"id-1"}, Status: domain.OutboxPending, RetryCount: 2,
	})
	deleter := &flakyDeleter{failTimes: 100}
	drainer := NewDrainer(store, deleter, DrainerConfig{MaxRetries: 3}, nil, true)

	_, err := drainer.ProcessOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, store.count(), "event should be discarded once retry_count reaches max_retries")
}

func TestDrainer_PartialFailureDoesNotBlockOtherEvents(t *testing.T) {
	store := newFakeStore(
		domain.OutboxEvent{EventID: "evt-ok", Collection: "svc", PrunedIDs: []string{"a"}, Status: domain.OutboxPending},
		domain.OutboxEvent{EventID: "evt-bad", Collection: "svc", PrunedIDs: []string{"b"}, Status: domain.OutboxPending},
	)
	deleter := &selectiveDeleter{failFor: map[string]bool{"evt-bad": true}}
	drainer := NewDrainer(store, deleter, DrainerConfig{MaxRetries: 3}, nil, true)

	completed, err := drainer.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, completed)

	_, stillThere := store.get("evt-bad")
	assert.True(t, stillThere)
	_, gone := store.get("evt-ok")
	assert.False(t, gone)
}

// selectiveDeleter fails based on which prunedIDs it sees, letting a test
// distinguish between two events processed in the same cycle.
type selectiveDeleter struct {
	failFor map[string]bool
}

func (d *selectiveDeleter) DeleteFromIndex(ctx context.Context, collection string, prunedIDs []string) error {
	for _, id := range prunedIDs {
		if id == "b" {
			return errors.New("downstream unavailable for b")
		}
	}
	return nil
}

func TestDrainer_ProcessOnceNoPendingEventsPerformsNoDownstreamCall(t *testing.T) {
	store := newFakeStore()
	deleter := &flakyDeleter{}
	drainer := NewDrainer(store, deleter, DefaultDrainerConfig(), nil, true)

	completed, err := drainer.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, completed)
	assert.Equal(t, 0, deleter.calls)
}

func TestNewDrainerForMode_RefusesVolatileDrainerInProduction(t *testing.T) {
	store := newFakeStore()
	deleter := &flakyDeleter{}

	_, err := NewDrainerForMode(store, deleter, DefaultDrainerConfig(), nil, false, "production")
	require.Error(t, err)
	var cfgErr *domain.ConfigViolation
	assert.ErrorAs(t, err, &cfgErr)

	_, err = NewDrainerForMode(store, deleter, DefaultDrainerConfig(), nil, true, "production")
	assert.NoError(t, err)

	_, err = NewDrainerForMode(store, deleter, DefaultDrainerConfig(), nil, false, "dev")
	assert.NoError(t, err)
}
