// Package vectorsync consumes graph mutation events off the mutation event
// bus and applies the corresponding vector-index deletions, grounded on
// mutation_publisher.py and vector_sync_consumer.py. The transport itself
// (Kafka in the original, pkg/pgnotify.Bus here per the topology-hash
// invalidation decision in DESIGN.md) is out of scope; Publisher/Consumer
// only care about domain.MutationEvent.
package vectorsync

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"github.com/graphrag/orchestrator/domain"
	"github.com/graphrag/orchestrator/infrastructure/fallback"
	"github.com/graphrag/orchestrator/infrastructure/logging"
	"github.com/graphrag/orchestrator/pkg/pgnotify"
)

// deleteRetryAttempts is how many additional attempts ProcessEvent makes
// after the first, matching fallback.DefaultConfig's MaxAttempts of 3.
const deleteRetryAttempts = 2

// MutationChannel is the pgnotify channel graph commits publish mutation
// events to, and VectorSyncConsumer subscribes on.
const MutationChannel = "graph_mutations"

// VectorDeleter removes vectors by entity id from the vector index. The
// vector math itself is out of scope; this is the seam.
type VectorDeleter interface {
	Delete(ctx context.Context, ids []string) error
}

// Publisher publishes a graph mutation to every listening replica.
type Publisher struct {
	bus   *pgnotify.Bus
}

// NewPublisher wraps a pgnotify.Bus as a mutation event publisher.
func NewPublisher(bus *pgnotify.Bus) *Publisher {
	return &Publisher{bus: bus}
}

// Publish broadcasts a batch of mutation events. A publish failure for one
// event does not block the others; each is attempted independently and the
// first error is returned after all have been attempted.
func (p *Publisher) Publish(ctx context.Context, events []domain.MutationEvent) error {
	var firstErr error
	for _, event := range events {
		if err := p.bus.Publish(ctx, MutationChannel, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Consumer applies the vector-index side effect of each mutation event:
// only MutationType.TriggersVectorDelete() events cause a delete.
type Consumer struct {
	deleter VectorDeleter
	logger  *logging.Logger
	retry   *fallback.Handler

	processed int64
}

// NewConsumer constructs a Consumer.
func NewConsumer(deleter VectorDeleter, logger *logging.Logger) *Consumer {
	return &Consumer{deleter: deleter, logger: logger, retry: fallback.NewHandler(fallback.DefaultConfig())}
}

// ProcessedCount reports how many events this consumer has handled.
func (c *Consumer) ProcessedCount() int64 {
	return atomic.LoadInt64(&c.processed)
}

// ProcessEvent applies one mutation event's vector-index effect.
func (c *Consumer) ProcessEvent(ctx context.Context, event domain.MutationEvent) error {
	if event.MutationType.TriggersVectorDelete() {
		if err := c.deleteWithRetry(ctx, event.EntityIDs); err != nil {
			return err
		}
	}
	atomic.AddInt64(&c.processed, 1)
	return nil
}

// deleteWithRetry retries a transient vector-index delete with jittered
// backoff before giving up. pgnotify delivers at-most-once with no
// redelivery (bus.go logs and drops a handler error), so a delete that
// fails here is otherwise lost for good.
func (c *Consumer) deleteWithRetry(ctx context.Context, ids []string) error {
	attempt := func(ctx context.Context) (interface{}, error) {
		return nil, c.deleter.Delete(ctx, ids)
	}
	retries := make([]fallback.Func, deleteRetryAttempts)
	for i := range retries {
		retries[i] = attempt
	}
	result := c.retry.Execute(ctx, attempt, retries...)
	return result.Err
}

// Handler adapts Consumer to pgnotify.Handler: a malformed payload is
// logged and dropped rather than propagated, matching process_raw's
// tolerance for a bad event on the wire.
func (c *Consumer) Handler() pgnotify.Handler {
	return func(ctx context.Context, event pgnotify.Event) error {
		var mutation domain.MutationEvent
		if err := json.Unmarshal(event.Payload, &mutation); err != nil {
			if c.logger != nil {
				c.logger.WithError(err).Warn("vectorsync: malformed mutation event, skipping")
			}
			return nil
		}
		return c.ProcessEvent(ctx, mutation)
	}
}

// Service wires Consumer into applications/system.Service so it is started
// and stopped by the central lifecycle Manager.
type Service struct {
	bus     *pgnotify.Bus
	consumer *Consumer
}

// NewService constructs a Service.
func NewService(bus *pgnotify.Bus, consumer *Consumer) *Service {
	return &Service{bus: bus, consumer: consumer}
}

// Name implements applications/system.Service.
func (s *Service) Name() string { return "vector-sync-consumer" }

// Start subscribes the consumer to the mutation channel.
func (s *Service) Start(ctx context.Context) error {
	return s.bus.Subscribe(MutationChannel, s.consumer.Handler())
}

// Stop unsubscribes from the mutation channel.
func (s *Service) Stop(ctx context.Context) error {
	return s.bus.Unsubscribe(MutationChannel)
}
