package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/posledger-backend/internal/catalog"
	"github.com/angelmondragon/posledger-backend/internal/cron"
	"github.com/angelmondragon/posledger-backend/internal/inventory"
	"github.com/angelmondragon/posledger-backend/internal/ledger"
	"github.com/angelmondragon/posledger-backend/internal/lowstock"
	"github.com/angelmondragon/posledger-backend/internal/stores"
	"github.com/angelmondragon/posledger-backend/pkg/config"
	"github.com/angelmondragon/posledger-backend/pkg/db"
	"github.com/angelmondragon/posledger-backend/pkg/logger"
	"github.com/angelmondragon/posledger-backend/pkg/metrics"
	"github.com/angelmondragon/posledger-backend/pkg/migrate"
	"github.com/angelmondragon/posledger-backend/pkg/outbox"
	"github.com/angelmondragon/posledger-backend/pkg/redis"
)

const (
	lockNameFormat   = "cron-worker:%s"
	retentionCadence = 24 * time.Hour
)

const serviceName = "cron-worker"

func main() {
	once := flag.Bool("once", false, "run the due jobs a single time and exit")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		logger.New(logger.Options{ServiceName: serviceName}).
			Warn(context.Background(), ".env file not found, relying on environment")
	}
	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.Options{ServiceName: serviceName}).
			Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	logg := logger.ForApp(serviceName, cfg.App)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"interval": cfg.Cron.Interval.String(),
		"once":     *once,
	})

	if err := run(ctx, cfg, logg, *once); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shut down")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger, once bool) error {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer closeQuietly(ctx, logg, "database", dbClient.Close)

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	defer closeQuietly(ctx, logg, "redis", redisClient.Close)

	lock, err := cron.NewRedisLock(redisClient, lockName(cfg.App.Env), cfg.Cron.LockTTL)
	if err != nil {
		return fmt.Errorf("create cron lock: %w", err)
	}
	registry, err := buildRegistry(cfg, logg, dbClient, redisClient)
	if err != nil {
		return fmt.Errorf("wire cron jobs: %w", err)
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		return fmt.Errorf("create cron service: %w", err)
	}

	if once {
		logg.Info(ctx, "running cron jobs once")
		return service.RunOnce(ctx)
	}
	logg.Info(ctx, "starting cron worker")
	return service.Run(ctx)
}

func closeQuietly(ctx context.Context, logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(context.WithoutCancel(ctx), "error closing "+name, err)
	}
}

func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockNameFormat, env)
}

// buildRegistry wires the projection services the jobs delegate to. Reconcile
// and the low-stock scan run every cycle; outbox retention runs daily.
func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (*cron.Registry, error) {
	gdb := dbClient.DB()
	outboxRepo := outbox.NewRepository(gdb)
	outboxSvc := outbox.NewService(outboxRepo, logg)
	inventoryMetrics := metrics.NewInventoryMetrics(prometheus.DefaultRegisterer)

	storeSvc, err := stores.NewService(stores.NewRepository(gdb))
	if err != nil {
		return nil, err
	}
	catalogSvc, err := catalog.NewService(catalog.NewRepository(gdb))
	if err != nil {
		return nil, err
	}
	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{
		Repository:     ledger.NewRepository(gdb),
		Logger:         logg,
		NotesMaxLength: cfg.Stock.NotesMaxLength,
	})
	if err != nil {
		return nil, err
	}
	inventorySvc, err := inventory.NewService(inventory.ServiceParams{
		DB:         dbClient,
		Repository: inventory.NewRepository(gdb),
		Ledger:     ledgerSvc,
		Outbox:     outboxSvc,
		Metrics:    inventoryMetrics,
		Logger:     logg,
	})
	if err != nil {
		return nil, err
	}
	lowStockSvc, err := lowstock.NewService(lowstock.ServiceParams{
		DB:        dbClient,
		Inventory: inventorySvc,
		Stores:    storeSvc,
		Catalog:   catalogSvc,
		Outbox:    outboxSvc,
		Deduper:   redisClient,
		Metrics:   inventoryMetrics,
		Logger:    logg,
		AlertTTL:  cfg.Cron.LowStockAlertTTL,
	})
	if err != nil {
		return nil, err
	}

	reconcileJob, err := cron.NewReconcileJob(cron.ReconcileJobParams{
		Logger:    logg,
		Stores:    storeSvc,
		Inventory: inventorySvc,
		Metrics:   inventoryMetrics,
		Repair:    cfg.Cron.RepairDivergence,
	})
	if err != nil {
		return nil, err
	}
	scanJob, err := cron.NewLowStockScanJob(cron.LowStockScanJobParams{
		Logger:  logg,
		Stores:  storeSvc,
		Scanner: lowStockSvc,
	})
	if err != nil {
		return nil, err
	}
	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:      logg,
		Repository:  outboxRepo,
		Retention:   cfg.Outbox.Retention,
		MinAttempts: cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		return nil, err
	}

	registry := cron.NewRegistry(reconcileJob, scanJob)
	if err := registry.RegisterEvery(retentionJob, retentionCadence); err != nil {
		return nil, err
	}
	return registry, nil
}
