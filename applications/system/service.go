package system

import (
	"context"
)

// Service represents a lifecycle-managed component. All background workers in
// the orchestrator (outbox drainer, tombstone reaper, cache invalidation
// listener, embedding batcher flush loop, ...) implement this interface so the
// Manager can start and stop them deterministically.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// LifecycleService is the common contract for managed components that expose
// readiness, used for health checks at process startup.
type LifecycleService interface {
	Service
	Ready(ctx context.Context) error
}
