package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphrag/orchestrator/domain"
	"github.com/graphrag/orchestrator/infrastructure/resilience"
)

type fakeProvider struct {
	name    string
	failN   int
	calls   int
	reply   string
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Invoke(ctx context.Context, prompt string) (string, error) {
	p.calls++
	if p.calls <= p.failN {
		return "", errors.New("backend error")
	}
	return p.reply, nil
}

func (p *fakeProvider) InvokeMessages(ctx context.Context, messages []Message) (string, error) {
	return p.Invoke(ctx, "")
}

func (p *fakeProvider) InvokeStructured(ctx context.Context, prompt string, schema interface{}) (interface{}, error) {
	return p.Invoke(ctx, prompt)
}

func TestProviderChain_FailsOverToNextProviderOnError(t *testing.T) {
	chain := NewProviderChain(nil)
	chain.AddProvider(&fakeProvider{name: "primary", failN: 100}, resilience.Config{MaxFailures: 5, Timeout: time.Minute})
	chain.AddProvider(&fakeProvider{name: "secondary", reply: "from secondary"}, resilience.Config{MaxFailures: 5, Timeout: time.Minute})

	result, err := chain.Invoke(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "from secondary", result)
}

func TestProviderChain_ReturnsLLMErrorWhenEveryBackendFails(t *testing.T) {
	chain := NewProviderChain(nil)
	chain.AddProvider(&fakeProvider{name: "only", failN: 100}, resilience.Config{MaxFailures: 5, Timeout: time.Minute})

	_, err := chain.Invoke(context.Background(), "hello")
	require.Error(t, err)
	var llmErr *domain.LLMError
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, []string{"only"}, llmErr.Attempted)
}

func TestProviderChain_OpenBreakerSkipsToNextProviderWithoutCalling(t *testing.T) {
	primary := &fakeProvider{name: "primary", failN: 100}
	secondary := &fakeProvider{name: "secondary", reply: "ok"}
	chain := NewProviderChain(nil)
	chain.AddProvider(primary, resilience.Config{MaxFailures: 1, Timeout: time.Hour})
	chain.AddProvider(secondary, resilience.Config{MaxFailures: 5, Timeout: time.Hour})

	_, _ = chain.Invoke(context.Background(), "x") // trips primary's breaker
	callsAfterFirst := primary.calls

	_, err := chain.Invoke(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, callsAfterFirst, primary.calls, "a tripped breaker must short-circuit without calling the provider again")
}

func TestProviderChain_OpenBreakerSurfacesProviderUnavailableError(t *testing.T) {
	primary := &fakeProvider{name: "primary", failN: 100}
	chain := NewProviderChain(nil)
	chain.AddProvider(primary, resilience.Config{MaxFailures: 1, Timeout: time.Hour})

	_, _ = chain.Invoke(context.Background(), "x") // trips the breaker
	callsAfterTrip := primary.calls

	_, err := chain.Invoke(context.Background(), "x")
	require.Error(t, err)
	var llmErr *domain.LLMError
	require.ErrorAs(t, err, &llmErr)
	var unavailable *domain.ProviderUnavailableError
	require.ErrorAs(t, llmErr.Cause, &unavailable, "an open breaker must surface as ProviderUnavailableError, not the breaker's own sentinel")
	assert.Equal(t, "primary", unavailable.Provider)
	assert.Equal(t, callsAfterTrip, primary.calls, "the open breaker must still fail fast without calling the provider")
}
