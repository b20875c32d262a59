package lowstock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/posledger-backend/internal/catalog"
	"github.com/angelmondragon/posledger-backend/internal/inventory"
	"github.com/angelmondragon/posledger-backend/internal/stores"
	"github.com/angelmondragon/posledger-backend/pkg/db/models"
	"github.com/angelmondragon/posledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/posledger-backend/pkg/errors"
	"github.com/angelmondragon/posledger-backend/pkg/logger"
	"github.com/angelmondragon/posledger-backend/pkg/metrics"
	"github.com/angelmondragon/posledger-backend/pkg/outbox"
	"github.com/angelmondragon/posledger-backend/pkg/outbox/payloads"
)

const defaultAlertTTL = 24 * time.Hour

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// AlertDeduper remembers which alerts were already raised. pkg/redis.Client
// satisfies it.
type AlertDeduper interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	LowStockAlertKey(storeID, productID string, day time.Time) string
}

// Alert is one inventory record at or below its minimum.
type Alert struct {
	StoreID     uuid.UUID `json:"store_id"`
	ProductID   uuid.UUID `json:"product_id"`
	ProductName string    `json:"product_name"`
	SKU         string    `json:"sku"`
	Quantity    int       `json:"quantity"`
	MinQuantity int       `json:"min_quantity"`
	MaxQuantity *int      `json:"max_quantity,omitempty"`
}

// ScanResult summarizes one store scan.
type ScanResult struct {
	StoreID uuid.UUID
	Alerts  int
	Emitted int
}

// Service reads low-stock state from the projection and raises alerts.
type Service interface {
	List(ctx context.Context, storeID uuid.UUID) ([]Alert, error)
	Check(ctx context.Context, storeID, productID uuid.UUID) (Alert, bool, error)
	Scan(ctx context.Context, storeID uuid.UUID) (ScanResult, error)
}

// ServiceParams wires the low-stock monitor. Deduper and Metrics are optional.
type ServiceParams struct {
	DB        txRunner
	Inventory inventory.Service
	Stores    stores.Service
	Catalog   catalog.Service
	Outbox    outbox.Emitter
	Deduper   AlertDeduper
	Metrics   *metrics.InventoryMetrics
	Logger    *logger.Logger
	AlertTTL  time.Duration
}

type service struct {
	db        txRunner
	inventory inventory.Service
	stores    stores.Service
	catalog   catalog.Service
	outbox    outbox.Emitter
	deduper   AlertDeduper
	metrics   *metrics.InventoryMetrics
	logg      *logger.Logger
	alertTTL  time.Duration
	now       func() time.Time
}

// NewService builds the low-stock monitor.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.DB == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "database client required")
	case params.Inventory == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "inventory service required")
	case params.Stores == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "store service required")
	case params.Catalog == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "catalog service required")
	case params.Outbox == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Discard()
	}
	ttl := params.AlertTTL
	if ttl <= 0 {
		ttl = defaultAlertTTL
	}
	return &service{
		db:        params.DB,
		inventory: params.Inventory,
		stores:    params.Stores,
		catalog:   params.Catalog,
		outbox:    params.Outbox,
		deduper:   params.Deduper,
		metrics:   params.Metrics,
		logg:      logg,
		alertTTL:  ttl,
		now:       time.Now,
	}, nil
}

// List returns the store's low-stock records, lowest quantity first.
func (s *service) List(ctx context.Context, storeID uuid.UUID) ([]Alert, error) {
	if err := s.stores.Require(ctx, storeID); err != nil {
		return nil, err
	}
	records, err := s.inventory.ListLowStock(ctx, storeID)
	if err != nil {
		return nil, err
	}
	alerts := make([]Alert, 0, len(records))
	for _, record := range records {
		alerts = append(alerts, alertOf(record))
	}
	return alerts, nil
}

// Check reports whether one key is low on stock.
func (s *service) Check(ctx context.Context, storeID, productID uuid.UUID) (Alert, bool, error) {
	product, err := s.catalog.Get(ctx, productID)
	if err != nil {
		return Alert{}, false, err
	}
	snap, err := s.inventory.Get(ctx, storeID, productID)
	if err != nil {
		return Alert{}, false, err
	}
	alert := Alert{
		StoreID:     storeID,
		ProductID:   productID,
		ProductName: product.Name,
		SKU:         product.SKU,
		Quantity:    snap.Quantity,
		MinQuantity: snap.MinQuantity,
		MaxQuantity: snap.MaxQuantity,
	}
	return alert, snap.IsLowStock, nil
}

// Scan exports the store's low-stock gauge and queues one alert event per
// record per day. A failed emit clears its dedupe key so the next scan
// retries it.
func (s *service) Scan(ctx context.Context, storeID uuid.UUID) (ScanResult, error) {
	result := ScanResult{StoreID: storeID}
	records, err := s.inventory.ListLowStock(ctx, storeID)
	if err != nil {
		return result, err
	}
	result.Alerts = len(records)
	s.metrics.SetLowStock(storeID.String(), len(records))

	now := s.now().UTC()
	var errs error
	for _, record := range records {
		alert := alertOf(record)
		fresh, key, err := s.claim(ctx, alert, now)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if !fresh {
			continue
		}
		if err := s.emit(ctx, alert, now); err != nil {
			errs = multierr.Append(errs, err)
			if key != "" {
				if delErr := s.deduper.Del(ctx, key); delErr != nil {
					errs = multierr.Append(errs, delErr)
				}
			}
			continue
		}
		result.Emitted++
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"store_id":     alert.StoreID.String(),
			"product_id":   alert.ProductID.String(),
			"sku":          alert.SKU,
			"quantity":     alert.Quantity,
			"min_quantity": alert.MinQuantity,
		}), "inventory.low_stock")
	}
	return result, errs
}

func (s *service) claim(ctx context.Context, alert Alert, now time.Time) (bool, string, error) {
	if s.deduper == nil {
		return true, "", nil
	}
	key := s.deduper.LowStockAlertKey(alert.StoreID.String(), alert.ProductID.String(), now)
	ok, err := s.deduper.SetNX(ctx, key, alert.Quantity, s.alertTTL)
	if err != nil {
		return false, "", pkgerrors.Dependency(err, "claim low stock alert")
	}
	return ok, key, nil
}

func (s *service) emit(ctx context.Context, alert Alert, now time.Time) error {
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventLowStockDetected,
			AggregateType: enums.AggregateInventoryAlert,
			AggregateID:   alert.ProductID,
			Actor:         &outbox.ActorRef{StoreID: alert.StoreID, Source: "low_stock_scan"},
			OccurredAt:    now,
			Data: payloads.LowStockDetectedEvent{
				StoreID:     alert.StoreID,
				ProductID:   alert.ProductID,
				ProductName: alert.ProductName,
				SKU:         alert.SKU,
				Quantity:    alert.Quantity,
				MinQuantity: alert.MinQuantity,
				DetectedAt:  now,
			},
		})
	})
}

func alertOf(record models.StoreInventory) Alert {
	alert := Alert{
		StoreID:     record.StoreID,
		ProductID:   record.ProductID,
		Quantity:    record.Quantity,
		MinQuantity: record.MinQuantity,
		MaxQuantity: record.MaxQuantity,
	}
	if record.Product != nil {
		alert.ProductName = record.Product.Name
		alert.SKU = record.Product.SKU
	}
	return alert
}
