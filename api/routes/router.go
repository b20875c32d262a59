package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/posledger-backend/api/controllers"
	"github.com/angelmondragon/posledger-backend/api/middleware"
	"github.com/angelmondragon/posledger-backend/pkg/config"
	"github.com/angelmondragon/posledger-backend/pkg/db"
	"github.com/angelmondragon/posledger-backend/pkg/logger"
	"github.com/angelmondragon/posledger-backend/pkg/redis"
)

// Cache is the Redis surface the router needs: readiness and idempotency.
type Cache interface {
	redis.Pinger
	redis.IdempotencyStore
}

// InventoryService serves the projection endpoints.
type InventoryService interface {
	controllers.InventoryReader
	controllers.InventoryWriter
}

// OrderService serves checkout and the order endpoints.
type OrderService interface {
	controllers.CheckoutService
	controllers.OrderReader
	controllers.OrderReverser
}

// Services groups the domain services mounted under /api/v1.
type Services struct {
	Inventory InventoryService
	Ledger    controllers.MovementLister
	Stock     controllers.StockMutator
	LowStock  controllers.LowStockLister
	Orders    OrderService
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	cache Cache,
	svc Services,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
		middleware.ActorContext(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, cache))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/stores/{storeId}", func(r chi.Router) {
		r.Use(middleware.StoreContext(logg))
		// checkout and reversals move money and keep their keys for the
		// configured checkout window; manual stock work uses the default
		money := middleware.Idempotency(cache, cfg.Checkout.IdempotencyTTL, logg)
		idem := middleware.Idempotency(cache, middleware.DefaultIdempotencyTTL, logg)

		r.Route("/inventory", func(r chi.Router) {
			r.Get("/", controllers.InventoryList(svc.Inventory, logg))
			r.Get("/{productId}", controllers.InventoryGet(svc.Inventory, logg))
			r.Patch("/{productId}/thresholds", controllers.InventoryUpdateThresholds(svc.Inventory, logg))
			r.With(idem).Post("/{productId}/rebuild", controllers.InventoryRebuild(svc.Inventory, logg))
			r.Get("/{productId}/movements", controllers.InventoryMovements(svc.Ledger, logg))
		})

		r.With(idem).Post("/stock/mutations", controllers.StockMutate(svc.Stock, logg))
		r.Get("/low-stock", controllers.LowStockList(svc.LowStock, logg))
		r.With(money).Post("/checkout", controllers.Checkout(svc.Orders, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.OrderList(svc.Orders, logg))
			r.Get("/{orderId}", controllers.OrderDetail(svc.Orders, logg))
			r.With(money).Post("/{orderId}/refund", controllers.OrderRefund(svc.Orders, logg))
			r.With(money).Post("/{orderId}/cancel", controllers.OrderCancel(svc.Orders, logg))
		})
	})

	return r
}
