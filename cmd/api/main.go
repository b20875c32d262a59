package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/posledger-backend/api/routes"
	"github.com/angelmondragon/posledger-backend/internal/catalog"
	"github.com/angelmondragon/posledger-backend/internal/inventory"
	"github.com/angelmondragon/posledger-backend/internal/ledger"
	"github.com/angelmondragon/posledger-backend/internal/lowstock"
	"github.com/angelmondragon/posledger-backend/internal/orders"
	"github.com/angelmondragon/posledger-backend/internal/stock"
	"github.com/angelmondragon/posledger-backend/internal/stores"
	"github.com/angelmondragon/posledger-backend/pkg/config"
	"github.com/angelmondragon/posledger-backend/pkg/db"
	"github.com/angelmondragon/posledger-backend/pkg/logger"
	"github.com/angelmondragon/posledger-backend/pkg/metrics"
	"github.com/angelmondragon/posledger-backend/pkg/migrate"
	"github.com/angelmondragon/posledger-backend/pkg/outbox"
	"github.com/angelmondragon/posledger-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.ForApp("api", cfg.App)

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	services, err := buildServices(cfg, logg, dbClient, redisClient)
	if err != nil {
		logg.Error(context.Background(), "failed to wire services", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, dbClient, redisClient, services),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "api server shutdown failed", err)
		}
		logg.Info(shutdownCtx, "api server stopped")
	}
}

func buildServices(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (routes.Services, error) {
	gdb := dbClient.DB()
	outboxSvc := outbox.NewService(outbox.NewRepository(gdb), logg)

	storeSvc, err := stores.NewService(stores.NewRepository(gdb))
	if err != nil {
		return routes.Services{}, err
	}
	catalogSvc, err := catalog.NewService(catalog.NewRepository(gdb))
	if err != nil {
		return routes.Services{}, err
	}
	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{
		Repository:     ledger.NewRepository(gdb),
		Logger:         logg,
		NotesMaxLength: cfg.Stock.NotesMaxLength,
	})
	if err != nil {
		return routes.Services{}, err
	}

	inventoryMetrics := metrics.NewInventoryMetrics(prometheus.DefaultRegisterer)
	inventorySvc, err := inventory.NewService(inventory.ServiceParams{
		DB:         dbClient,
		Repository: inventory.NewRepository(gdb),
		Ledger:     ledgerSvc,
		Outbox:     outboxSvc,
		Metrics:    inventoryMetrics,
		Logger:     logg,
	})
	if err != nil {
		return routes.Services{}, err
	}

	stockSvc, err := stock.NewService(stock.ServiceParams{
		DB:             dbClient,
		Ledger:         ledgerSvc,
		Inventory:      inventorySvc,
		Stores:         storeSvc,
		Catalog:        catalogSvc,
		Outbox:         outboxSvc,
		Locker:         stock.NewKeyedLocker(),
		Metrics:        metrics.NewStockMetrics(prometheus.DefaultRegisterer),
		Logger:         logg,
		NotesMaxLength: cfg.Stock.NotesMaxLength,
	})
	if err != nil {
		return routes.Services{}, err
	}

	orderSvc, err := orders.NewService(orders.ServiceParams{
		DB:         dbClient,
		Repository: orders.NewRepository(gdb),
		Stores:     storeSvc,
		Catalog:    catalogSvc,
		Stock:      stockSvc,
		Outbox:     outboxSvc,
		Metrics:    metrics.NewOrderMetrics(prometheus.DefaultRegisterer),
		Logger:     logg,
		MaxLines:   cfg.Checkout.MaxLines,
	})
	if err != nil {
		return routes.Services{}, err
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
		return routes.Services{}, err
	}

	return routes.Services{
		Inventory: inventorySvc,
		Ledger:    ledgerSvc,
		Stock:     stockSvc,
		LowStock:  lowStockSvc,
		Orders:    orderSvc,
	}, nil
}
