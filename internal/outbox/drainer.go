package outbox

import (
	"context"
	"fmt"

	"github.com/graphrag/orchestrator/domain"
	"github.com/graphrag/orchestrator/infrastructure/logging"
)

// VectorDeleter applies a downstream vector-index deletion for one outbox
// event. It is expected to be idempotent: exactly-once delivery is not
// guaranteed by the claim/lease protocol.
type VectorDeleter interface {
	DeleteFromIndex(ctx context.Context, collection string, prunedIDs []string) error
}

// DurableOutboxStore is the subset of Store's surface the Drainer needs,
// modeled as a capability interface so tests can substitute a fake.
type DurableOutboxStore interface {
	LoadPending(ctx context.Context) ([]domain.OutboxEvent, error)
	MarkCompleted(ctx context.Context, eventID string) error
	DeleteEvent(ctx context.Context, eventID string) error
	UpdateRetryCount(ctx context.Context, eventID string, retryCount int) error
}

// DrainerConfig configures bounded-retry behavior.
type DrainerConfig struct {
	MaxRetries int
}

// DefaultDrainerConfig returns the spec's default retry budget (3).
func DefaultDrainerConfig() DrainerConfig {
	return DrainerConfig{MaxRetries: 3}
}

// Drainer consumes pending outbox events and applies their downstream
// vector-store effect, retrying transient failures per-event up to
// MaxRetries before discarding the event as a poison pill.
type Drainer struct {
	store   DurableOutboxStore
	deleter VectorDeleter
	cfg     DrainerConfig
	logger  *logging.Logger
	durable bool
}

// NewDrainer constructs a Drainer backed by a durable store. durable=false
// marks a volatile (e.g. in-memory-backed) drainer, which NewDrainer itself
// does not refuse to build — that gate lives in NewDrainerForMode below,
// matching the spec's "factory must refuse" language.
func NewDrainer(store DurableOutboxStore, deleter VectorDeleter, cfg DrainerConfig, logger *logging.Logger, durable bool) *Drainer {
	if cfg.MaxRetries <= 0 {
		cfg = DefaultDrainerConfig()
	}
	return &Drainer{store: store, deleter: deleter, cfg: cfg, logger: logger, durable: durable}
}

// NewDrainerForMode is the factory referenced by section 4.2 and 6: it
// refuses to construct a volatile (non-durable) drainer when
// deploymentMode is "production".
func NewDrainerForMode(store DurableOutboxStore, deleter VectorDeleter, cfg DrainerConfig, logger *logging.Logger, durable bool, deploymentMode string) (*Drainer, error) {
	if deploymentMode == "production" && !durable {
		return nil, domain.NewConfigViolation("outbox_drainer", "production deployment requires a durable outbox store")
	}
	return NewDrainer(store, deleter, cfg, logger, durable), nil
}

// ProcessOnce loads pending events and attempts their downstream deletion.
// It returns the number of events successfully completed. A per-event
// failure does not block other events in the same cycle.
func (d *Drainer) ProcessOnce(ctx context.Context) (int, error) {
	events, err := d.store.LoadPending(ctx)
	if err != nil {
		return 0, fmt.Errorf("load pending outbox events: %w", err)
	}
	completed := 0
	for _, e := range events {
		if err := d.processEvent(ctx, e); err != nil {
			if d.logger != nil {
				d.logger.WithFields(map[string]interface{}{
					"event_id":    e.EventID,
					"collection":  e.Collection,
					"retry_count": e.RetryCount,
				}).WithError(err).Warn("outbox: event processing failed")
			}
			continue
		}
		completed++
	}
	return completed, nil
}

func (d *Drainer) processEvent(ctx context.Context, e domain.OutboxEvent) error {
	if err := d.deleter.DeleteFromIndex(ctx, e.Collection, e.PrunedIDs); err != nil {
		nextRetry := e.RetryCount + 1
		if nextRetry >= d.cfg.MaxRetries {
			if d.logger != nil {
				d.logger.WithFields(map[string]interface{}{
					"event_id": e.EventID,
					"cause":    err.Error(),
				}).Error("outbox: discarding event after exhausting retry budget")
			}
			if delErr := d.store.DeleteEvent(ctx, e.EventID); delErr != nil {
				return fmt.Errorf("%w: and failed to discard event: %v", domain.ErrDrainerPermanent, delErr)
			}
			return fmt.Errorf("%w: %v", domain.ErrDrainerPermanent, err)
		}
		if updErr := d.store.UpdateRetryCount(ctx, e.EventID, nextRetry); updErr != nil {
			return fmt.Errorf("update retry count: %w", updErr)
		}
		return fmt.Errorf("%w: %v", domain.ErrDrainerTransient, err)
	}

	if err := d.store.MarkCompleted(ctx, e.EventID); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	return nil
}

// Name returns the drainer's name. Drainer has no Start/Stop of its own;
// Worker is the applications/system.Service that runs it.
func (d *Drainer) Name() string { return "outbox-drainer" }
