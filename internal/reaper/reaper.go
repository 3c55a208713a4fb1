// Package reaper implements the adaptive tombstone reaper (section 4.5): a
// background worker that permanently deletes entities tombstoned past a
// retention window, in batches that double while the graph store keeps
// returning full batches and shrink back to the floor once it doesn't.
package reaper

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/graphrag/orchestrator/infrastructure/logging"
)

// TombstoneStore is the capability interface over the graph store's
// tombstone bookkeeping. The graph query dialect itself is out of scope;
// this is the seam the reaper drives.
type TombstoneStore interface {
	// ReapBatch permanently deletes up to limit entities tombstoned before
	// olderThan, returning how many were actually deleted.
	ReapBatch(ctx context.Context, olderThan time.Time, limit int) (int, error)
	// CountPending reports how many tombstoned entities are currently
	// eligible for reaping.
	CountPending(ctx context.Context, olderThan time.Time) (int, error)
}

// Config controls the reaper's batching and scheduling behavior.
type Config struct {
	RetentionPeriod time.Duration
	MinBatchSize    int
	MaxBatchSize    int
	CronSpec        string // robfig/cron spec, e.g. "@every 5m"
}

// DefaultConfig returns the spec's defaults: a 7-day retention window,
// batches starting at 100 and doubling up to 2000, running every hour.
func DefaultConfig() Config {
	return Config{
		RetentionPeriod: 7 * 24 * time.Hour,
		MinBatchSize:    100,
		MaxBatchSize:    2000,
		CronSpec:        "@every 1h",
	}
}

// Metrics is a point-in-time snapshot of the reaper's counters.
type Metrics struct {
	ReapedTotal        int64
	Pending            int64
	LastEffectiveBatch int64
}

// TombstoneReaper adaptively batches deletion of tombstoned entities. A
// batch that comes back full suggests there is a backlog, so the next
// batch doubles (capped at MaxBatchSize); a batch that comes back short
// means the backlog has been drained, so the next batch resets to
// MinBatchSize. This tracks more load only when there is a load to track,
// instead of either scanning one row at a time or risking one giant
// transaction against an unbounded backlog.
type TombstoneReaper struct {
	store  TombstoneStore
	cfg    Config
	logger *logging.Logger

	currentBatch int64
	reapedTotal  int64
	pending      int64
	lastBatch    int64

	mu   sync.Mutex
	cron *cron.Cron
}

// NewTombstoneReaper constructs a reaper over store.
func NewTombstoneReaper(store TombstoneStore, cfg Config, logger *logging.Logger) *TombstoneReaper {
	if cfg.MinBatchSize <= 0 {
		cfg = DefaultConfig()
	}
	return &TombstoneReaper{store: store, cfg: cfg, logger: logger, currentBatch: int64(cfg.MinBatchSize)}
}

func (r *TombstoneReaper) Name() string { return "tombstone-reaper" }

// RunOnce executes one adaptive reaping pass: it keeps requesting batches,
// doubling the batch size after every full batch, until a batch comes back
// short (meaning the backlog has been drained) or an error occurs.
func (r *TombstoneReaper) RunOnce(ctx context.Context) error {
	cutoff := time.Now().Add(-r.cfg.RetentionPeriod)

	for {
		batchSize := int(atomic.LoadInt64(&r.currentBatch))
		deleted, err := r.store.ReapBatch(ctx, cutoff, batchSize)
		if err != nil {
			return err
		}
		// lastBatch records the requested batch size, not the reaped count:
		// it reports how far the doubling climbed before the backlog ran
		// out, the same value original_source/tombstone_reaper.py's
		// effective_batch holds once its loop exits.
		atomic.StoreInt64(&r.lastBatch, int64(batchSize))
		atomic.AddInt64(&r.reapedTotal, int64(deleted))

		if r.logger != nil && deleted > 0 {
			r.logger.WithFields(map[string]interface{}{
				"deleted":    deleted,
				"batch_size": batchSize,
			}).Info("reaped tombstoned entities")
		}

		if deleted < batchSize {
			r.resetBatch()
			if pending, err := r.store.CountPending(ctx, cutoff); err == nil {
				atomic.StoreInt64(&r.pending, int64(pending))
			}
			return nil
		}
		r.growBatch()

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

func (r *TombstoneReaper) growBatch() {
	next := atomic.LoadInt64(&r.currentBatch) * 2
	if next > int64(r.cfg.MaxBatchSize) {
		next = int64(r.cfg.MaxBatchSize)
	}
	atomic.StoreInt64(&r.currentBatch, next)
}

func (r *TombstoneReaper) resetBatch() {
	atomic.StoreInt64(&r.currentBatch, int64(r.cfg.MinBatchSize))
}

// Metrics returns a snapshot of the reaper's counters.
func (r *TombstoneReaper) Metrics() Metrics {
	return Metrics{
		ReapedTotal:        atomic.LoadInt64(&r.reapedTotal),
		Pending:            atomic.LoadInt64(&r.pending),
		LastEffectiveBatch: atomic.LoadInt64(&r.lastBatch),
	}
}

// Start implements applications/system.Service: it schedules RunOnce on
// Config.CronSpec. Start is idempotent — calling it twice without an
// intervening Stop is a no-op.
func (r *TombstoneReaper) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cron != nil {
		return nil
	}
	c := cron.New()
	_, err := c.AddFunc(r.cfg.CronSpec, func() {
		runCtx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := r.RunOnce(runCtx); err != nil && r.logger != nil {
			r.logger.Error(context.Background(), "tombstone reap pass failed", err, nil)
		}
	})
	if err != nil {
		return err
	}
	c.Start()
	r.cron = c
	return nil
}

// Stop implements applications/system.Service, idempotently.
func (r *TombstoneReaper) Stop(ctx context.Context) error {
	r.mu.Lock()
	c := r.cron
	r.cron = nil
	r.mu.Unlock()
	if c == nil {
		return nil
	}
	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	return nil
}
