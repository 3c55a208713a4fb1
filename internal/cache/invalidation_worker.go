package cache

import (
	"context"
	"encoding/json"

	"github.com/graphrag/orchestrator/infrastructure/logging"
	"github.com/graphrag/orchestrator/pkg/pgnotify"
)

// NotifyBus is the capability subset of pkg/pgnotify.Bus this worker needs:
// subscribing to a channel. *pgnotify.Bus satisfies this directly.
type NotifyBus interface {
	Subscribe(channel string, handler pgnotify.Handler) error
	Unsubscribe(channel string) error
}

// InvalidationWorker subscribes to the shared invalidation channel and
// applies incoming node-set invalidations to a local SemanticCache so that
// replicas other than the one which performed the mutating write also
// evict the stale entries from their L1. A publish failure upstream (in
// SemanticCache.InvalidateByNodes) is tolerated as non-fatal; this worker
// only consumes.
type InvalidationWorker struct {
	cache  *SemanticCache
	bus    NotifyBus
	logger *logging.Logger
}

// NewInvalidationWorker constructs a worker. bus may be nil, in which case
// Start is a no-op (there is nothing to subscribe to).
func NewInvalidationWorker(cache *SemanticCache, bus NotifyBus, logger *logging.Logger) *InvalidationWorker {
	return &InvalidationWorker{cache: cache, bus: bus, logger: logger}
}

func (w *InvalidationWorker) Name() string { return "cache-invalidation-worker" }

func (w *InvalidationWorker) Start(ctx context.Context) error {
	if w.bus == nil {
		return nil
	}
	return w.bus.Subscribe(InvalidationChannel, func(ctx context.Context, event pgnotify.Event) error {
		var p invalidationPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return err
		}
		if len(p.NodeIDs) == 0 {
			return nil
		}
		nodeIDs := make(map[string]struct{}, len(p.NodeIDs))
		for _, id := range p.NodeIDs {
			nodeIDs[id] = struct{}{}
		}
		w.cache.ApplyRemoteInvalidation(nodeIDs)
		if w.logger != nil {
			w.logger.WithFields(map[string]interface{}{
				"node_count": len(nodeIDs),
			}).Debug("applied remote cache invalidation")
		}
		return nil
	})
}

func (w *InvalidationWorker) Stop(ctx context.Context) error {
	if w.bus == nil {
		return nil
	}
	return w.bus.Unsubscribe(InvalidationChannel)
}
