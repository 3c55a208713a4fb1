package outbox

import (
	"context"
	"sync"
	"time"

	"github.com/graphrag/orchestrator/domain"
)

// SpilloverFunc persists overflowed events to the durable store when the
// coalescing buffer exceeds MaxEntries.
type SpilloverFunc func(ctx context.Context, events []domain.OutboxEvent) error

// CoalescingConfig configures the in-memory front-end outbox.
type CoalescingConfig struct {
	Window     time.Duration
	MaxEntries int
}

// DefaultCoalescingConfig returns sensible defaults.
func DefaultCoalescingConfig() CoalescingConfig {
	return CoalescingConfig{Window: 500 * time.Millisecond, MaxEntries: 1000}
}

// Coalescing buffers outbox events in memory within a time window, capping
// at MaxEntries. Overflow is handed to a spillover callback that persists
// it to the durable store instead of blocking the caller.
type Coalescing struct {
	mu         sync.Mutex
	cfg        CoalescingConfig
	buffer     []domain.OutboxEvent
	spillover  SpilloverFunc
	windowOpen time.Time
}

// NewCoalescing constructs a Coalescing outbox front-end.
func NewCoalescing(cfg CoalescingConfig, spillover SpilloverFunc) *Coalescing {
	if cfg.MaxEntries <= 0 {
		cfg = DefaultCoalescingConfig()
	}
	return &Coalescing{cfg: cfg, spillover: spillover}
}

// Add buffers an event. When the buffer exceeds MaxEntries, the oldest
// overflowed entries are flushed immediately through the spillover
// callback rather than dropped.
func (c *Coalescing) Add(ctx context.Context, e domain.OutboxEvent) error {
	c.mu.Lock()
	if c.windowOpen.IsZero() {
		c.windowOpen = time.Now()
	}
	c.buffer = append(c.buffer, e)

	var overflow []domain.OutboxEvent
	if len(c.buffer) > c.cfg.MaxEntries {
		excess := len(c.buffer) - c.cfg.MaxEntries
		overflow = append(overflow, c.buffer[:excess]...)
		c.buffer = c.buffer[excess:]
	}
	expired := time.Since(c.windowOpen) >= c.cfg.Window
	c.mu.Unlock()

	if len(overflow) > 0 && c.spillover != nil {
		if err := c.spillover(ctx, overflow); err != nil {
			return err
		}
	}
	if expired {
		return c.Flush(ctx)
	}
	return nil
}

// Flush persists everything currently buffered and resets the window.
func (c *Coalescing) Flush(ctx context.Context) error {
	c.mu.Lock()
	pending := c.buffer
	c.buffer = nil
	c.windowOpen = time.Time{}
	c.mu.Unlock()

	if len(pending) == 0 || c.spillover == nil {
		return nil
	}
	return c.spillover(ctx, pending)
}

// Len reports the number of events currently buffered.
func (c *Coalescing) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buffer)
}
