// Command orchestrator starts every background service this workspace
// owns: outbox draining, tombstone reaping, cache invalidation, and
// vector-sync consumption. HTTP/RPC scaffolding, CLI
// parsing beyond environment variables, and k8s manifests are out of
// scope; this process is meant to run behind whatever request-handling
// layer a deployment wires in front of it.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/graphrag/orchestrator/applications/system"
	"github.com/graphrag/orchestrator/infrastructure/config"
	"github.com/graphrag/orchestrator/infrastructure/logging"
	"github.com/graphrag/orchestrator/infrastructure/metrics"
	"github.com/graphrag/orchestrator/infrastructure/migrate"
	"github.com/graphrag/orchestrator/internal/audit"
	"github.com/graphrag/orchestrator/internal/cache"
	"github.com/graphrag/orchestrator/internal/graphstore"
	"github.com/graphrag/orchestrator/internal/outbox"
	"github.com/graphrag/orchestrator/internal/reaper"
	"github.com/graphrag/orchestrator/internal/vectorsync"
	"github.com/graphrag/orchestrator/pkg/pgnotify"
	"github.com/graphrag/orchestrator/pkg/version"
)

func main() {
	logger := logging.NewFromEnv("orchestrator")
	logger.WithFields(map[string]interface{}{"version": version.FullVersion()}).Info("starting orchestrator")

	postgresDSN, err := config.RequireEnv("POSTGRES_DSN")
	if err != nil {
		logger.WithError(err).Fatal("missing configuration")
	}

	if err := migrate.Up(postgresDSN); err != nil {
		logger.WithError(err).Fatal("apply migrations")
	}

	db, err := sqlx.Connect("postgres", postgresDSN)
	if err != nil {
		logger.WithError(err).Fatal("connect to postgres")
	}
	defer db.Close()

	auditLogger, err := audit.New(audit.ConfigFromEnv())
	if err != nil {
		logger.WithError(err).Fatal("construct audit logger")
	}

	bus, err := pgnotify.NewWithDB(db.DB, postgresDSN)
	if err != nil {
		logger.WithError(err).Fatal("construct notification bus")
	}
	defer bus.Close()

	var l2 cache.SharedStore
	if redisURL := config.GetEnv("REDIS_URL", ""); redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			logger.WithError(err).Fatal("parse REDIS_URL")
		}
		redisClient := redis.NewClient(opts)
		defer redisClient.Close()
		l2 = cache.NewRedisStore(redisClient)
	}

	var collector *metrics.Metrics
	if metrics.Enabled() {
		collector = metrics.Init("orchestrator")
	}
	store := graphstore.New(db, collector)

	manager := buildManager(db, bus, store, auditLogger, l2, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := manager.Start(ctx); err != nil {
		logger.WithError(err).Fatal("start services")
	}
	logger.WithFields(map[string]interface{}{"services": manager.Names()}).Info("orchestrator started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := manager.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Error("graceful shutdown encountered errors")
	}
}

// buildManager wires every background Service into one lifecycle manager
// in dependency order: outbox drain before the reaper (a pending delete
// event should apply before the entity it targets is physically reaped),
// cache invalidation and vector-sync subscribe independently of both.
func buildManager(db *sqlx.DB, bus *pgnotify.Bus, store *graphstore.Store, auditLogger *audit.SecurityAuditLogger, l2 cache.SharedStore, logger *logging.Logger) *system.Manager {
	manager := system.NewManager()

	outboxStore := outbox.NewStore(db, logger)
	drainer := outbox.NewDrainer(outboxStore, store, outbox.DefaultDrainerConfig(), logger, true)
	outboxWorker := outbox.NewWorker(drainer, outboxStore, outbox.DefaultWorkerConfig(), logger)
	mustRegister(manager, outboxWorker, logger)

	tombstoneReaper := reaper.NewTombstoneReaper(store, reaper.DefaultConfig(), logger)
	mustRegister(manager, tombstoneReaper, logger)

	semanticCache := cache.NewSemanticCache(cache.DefaultConfig(), l2, bus)
	invalidationWorker := cache.NewInvalidationWorker(semanticCache, bus, logger)
	mustRegister(manager, invalidationWorker, logger)

	vectorSyncConsumer := vectorsync.NewConsumer(store, logger)
	vectorSyncService := vectorsync.NewService(bus, vectorSyncConsumer)
	mustRegister(manager, vectorSyncService, logger)

	// internal/ratelimit and internal/tenant are request-time libraries
	// (AIMD bucket lookups, connection wrapping, tenant filter injection)
	// with no background lifecycle of their own; they're constructed
	// per-request by whatever request-handling layer a deployment places
	// in front of this process, not by this entrypoint. auditLogger is
	// that same layer's SecurityAuditLogger dependency, threaded through
	// here so one process owns its file handle lifecycle.
	return manager
}

func mustRegister(manager *system.Manager, svc system.Service, logger *logging.Logger) {
	if err := manager.Register(svc); err != nil {
		logger.WithError(err).WithField("service", svc.Name()).Fatal("register service")
	}
}
