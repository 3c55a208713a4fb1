package outbox

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/graphrag/orchestrator/infrastructure/logging"
	"github.com/graphrag/orchestrator/infrastructure/utils"
)

// WorkerConfig configures the background drain loop and the expired-claim
// sweep.
type WorkerConfig struct {
	DrainInterval        time.Duration
	WorkerID             string
	ClaimLimit           int
	LeaseSeconds         int
	ExpiredClaimCronSpec string // e.g. "@every 1m"
}

// DefaultWorkerConfig returns sensible defaults for a single-node drainer.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		DrainInterval:        5 * time.Second,
		WorkerID:             "drainer-1",
		ClaimLimit:           100,
		LeaseSeconds:         60,
		ExpiredClaimCronSpec: "@every 1m",
	}
}

// Worker runs the Drainer on a timer and periodically releases expired
// claims via a cron schedule, implementing applications/system.Service so
// it is started and stopped by the central lifecycle Manager.
type Worker struct {
	drainer *Drainer
	store   *Store
	cfg     WorkerConfig
	logger  *logging.Logger

	cron   *cron.Cron
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorker constructs a Worker. store may be nil if the caller does not
// want the expired-claim sweep (e.g. in tests using a fake DurableOutboxStore).
func NewWorker(drainer *Drainer, store *Store, cfg WorkerConfig, logger *logging.Logger) *Worker {
	if cfg.DrainInterval <= 0 {
		cfg = DefaultWorkerConfig()
	}
	return &Worker{drainer: drainer, store: store, cfg: cfg, logger: logger}
}

// Name implements applications/system.Service.
func (w *Worker) Name() string { return "outbox-worker" }

// Start launches the drain loop goroutine and, if a durable store is
// configured, the expired-claim cron job.
func (w *Worker) Start(ctx context.Context) error {
	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.wg.Add(1)
	utils.SafeGo(func() { w.loop(loopCtx) }, func(err error) {
		if w.logger != nil {
			w.logger.WithError(err).Error("outbox: drain loop panicked")
		}
	})

	if w.store != nil {
		w.cron = cron.New()
		if _, err := w.cron.AddFunc(w.cfg.ExpiredClaimCronSpec, func() {
			n, err := w.store.ReleaseExpiredClaims(context.Background())
			if err != nil && w.logger != nil {
				w.logger.WithError(err).Warn("outbox: release expired claims failed")
			} else if n > 0 && w.logger != nil {
				w.logger.WithFields(map[string]interface{}{"released": n}).Info("outbox: released expired claims")
			}
		}); err != nil {
			cancel()
			return err
		}
		w.cron.Start()
	}
	return nil
}

// Stop cancels the drain loop and stops the cron scheduler. Idempotent.
func (w *Worker) Stop(ctx context.Context) error {
	if w.cancel != nil {
		w.cancel()
	}
	if w.cron != nil {
		stopCtx := w.cron.Stop()
		select {
		case <-stopCtx.Done():
		case <-ctx.Done():
		}
	}
	w.wg.Wait()
	return nil
}

func (w *Worker) loop(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.cfg.DrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.drainer.ProcessOnce(ctx); err != nil && w.logger != nil {
				w.logger.WithError(err).Warn("outbox: drain cycle failed")
			}
		}
	}
}
