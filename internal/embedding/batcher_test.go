package embedding

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphrag/orchestrator/domain"
)

type fakeProvider struct {
	mu         sync.Mutex
	calls      [][]string
	failTimes  int
	rateLimit  bool
	fixedErr   error
}

func (p *fakeProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	p.calls = append(p.calls, append([]string(nil), texts...))
	shouldFail := len(p.calls) <= p.failTimes
	p.mu.Unlock()

	if shouldFail {
		if p.rateLimit {
			return nil, &domain.RateLimitError{Provider: "fake"}
		}
		return nil, p.fixedErr
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i)}
	}
	return out, nil
}

func fastConfig() Config {
	return Config{
		MaxBatchSize:  10,
		FlushInterval: 20 * time.Millisecond,
		MaxRetries:    3,
		BaseBackoff:   5 * time.Millisecond,
		MaxBackoff:    50 * time.Millisecond,
	}
}

func TestBatcher_EmbedReturnsVectorOnSuccess(t *testing.T) {
	p := &fakeProvider{}
	b := NewBatcher(p, fastConfig())
	require.NoError(t, b.Start(context.Background()))
	defer b.Close()

	v, err := b.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0}, v)
}

func TestBatcher_CoalescesConcurrentSubmitsIntoOneBatch(t *testing.T) {
	p := &fakeProvider{}
	b := NewBatcher(p, fastConfig())
	require.NoError(t, b.Start(context.Background()))
	defer b.Close()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := b.Embed(context.Background(), "x")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	assert.LessOrEqual(t, len(p.calls), 5)
	total := 0
	for _, c := range p.calls {
		total += len(c)
	}
	assert.Equal(t, 5, total)
}

func TestBatcher_RetriesOnRateLimitThenSucceeds(t *testing.T) {
	p := &fakeProvider{failTimes: 2, rateLimit: true}
	b := NewBatcher(p, fastConfig())
	require.NoError(t, b.Start(context.Background()))
	defer b.Close()

	v, err := b.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0}, v)

	p.mu.Lock()
	defer p.mu.Unlock()
	assert.GreaterOrEqual(t, len(p.calls), 3)
}

func TestBatcher_NonRateLimitErrorPropagatesImmediatelyWithoutRetry(t *testing.T) {
	p := &fakeProvider{failTimes: 100, fixedErr: assert.AnError}
	b := NewBatcher(p, fastConfig())
	require.NoError(t, b.Start(context.Background()))
	defer b.Close()

	_, err := b.Embed(context.Background(), "hello")
	require.Error(t, err)

	p.mu.Lock()
	defer p.mu.Unlock()
	assert.Equal(t, 1, len(p.calls), "a non-rate-limit error must not be retried")
}

func TestBatcher_SubmitAfterCloseFails(t *testing.T) {
	p := &fakeProvider{}
	b := NewBatcher(p, fastConfig())
	require.NoError(t, b.Start(context.Background()))
	b.Close()

	_, err := b.Submit("too late")
	assert.ErrorIs(t, err, ErrBatcherClosed)
}
