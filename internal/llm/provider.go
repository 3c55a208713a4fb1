// Package llm implements the fault-tolerant LLM provider chain (section
// 4.6): one circuit breaker per backend, tried in priority order, with
// failover to the next backend when one is open or erroring. The LLM wire
// protocol itself (the exact request/response shape per vendor) is out of
// scope; Provider is the seam.
package llm

import (
	"context"
	"errors"

	"github.com/graphrag/orchestrator/domain"
	"github.com/graphrag/orchestrator/infrastructure/logging"
	"github.com/graphrag/orchestrator/infrastructure/resilience"
)

// Message is a minimal chat message; the wire encoding for any given
// backend is that backend's own concern.
type Message struct {
	Role    string
	Content string
}

// Provider is one LLM backend. Structured() is used for the orchestrator's
// schema-constrained calls (e.g. extraction); its output shape validation
// is the caller's concern, not this package's.
type Provider interface {
	Name() string
	Invoke(ctx context.Context, prompt string) (string, error)
	InvokeMessages(ctx context.Context, messages []Message) (string, error)
	InvokeStructured(ctx context.Context, prompt string, schema interface{}) (interface{}, error)
}

// backend pairs a Provider with its own circuit breaker so one backend
// tripping never affects another's breaker state.
type backend struct {
	provider Provider
	breaker  *resilience.CircuitBreaker
}

// ProviderChain tries its backends in the order they were added, skipping
// any whose breaker is open, and returns the first success. If every
// backend fails or is unavailable, it returns a domain.LLMError recording
// every backend it attempted.
type ProviderChain struct {
	backends []backend
	logger   *logging.Logger
}

// NewProviderChain constructs an empty chain. Use AddProvider to populate
// it in priority order (first added is tried first).
func NewProviderChain(logger *logging.Logger) *ProviderChain {
	return &ProviderChain{logger: logger}
}

// AddProvider appends a backend to the chain with its own circuit breaker
// configured from cbCfg.
func (c *ProviderChain) AddProvider(p Provider, cbCfg resilience.Config) {
	c.backends = append(c.backends, backend{provider: p, breaker: resilience.New(cbCfg)})
}

// Len reports how many backends are configured.
func (c *ProviderChain) Len() int { return len(c.backends) }

func (c *ProviderChain) attempt(ctx context.Context, fn func(Provider) (interface{}, error)) (interface{}, error) {
	if len(c.backends) == 0 {
		return nil, &domain.LLMError{Cause: &domain.ProviderUnavailableError{Provider: "none configured"}}
	}

	var attempted []string
	var lastErr error
	for _, b := range c.backends {
		attempted = append(attempted, b.provider.Name())
		var result interface{}
		err := b.breaker.Execute(ctx, func() error {
			r, err := fn(b.provider)
			if err != nil {
				return err
			}
			result = r
			return nil
		})
		if err == nil {
			return result, nil
		}
		if errors.Is(err, resilience.ErrCircuitOpen) {
			// While a backend's breaker is open, Execute fails fast without
			// calling fn at all: section 4.6 requires that failure surface
			// as ProviderUnavailableError, not the breaker's own sentinel.
			err = &domain.ProviderUnavailableError{Provider: b.provider.Name()}
		}
		lastErr = err
		if c.logger != nil {
			c.logger.WithFields(map[string]interface{}{
				"provider": b.provider.Name(),
			}).WithError(err).Warn("llm provider failed, trying next")
		}
	}
	return nil, &domain.LLMError{Attempted: attempted, Cause: lastErr}
}

// Invoke runs prompt against the first available backend.
func (c *ProviderChain) Invoke(ctx context.Context, prompt string) (string, error) {
	v, err := c.attempt(ctx, func(p Provider) (interface{}, error) { return p.Invoke(ctx, prompt) })
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// InvokeMessages runs a chat-style call against the first available
// backend.
func (c *ProviderChain) InvokeMessages(ctx context.Context, messages []Message) (string, error) {
	v, err := c.attempt(ctx, func(p Provider) (interface{}, error) { return p.InvokeMessages(ctx, messages) })
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// InvokeStructured runs a schema-constrained call against the first
// available backend.
func (c *ProviderChain) InvokeStructured(ctx context.Context, prompt string, schema interface{}) (interface{}, error) {
	return c.attempt(ctx, func(p Provider) (interface{}, error) { return p.InvokeStructured(ctx, prompt, schema) })
}
