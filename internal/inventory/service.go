package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/posledger-backend/internal/ledger"
	"github.com/angelmondragon/posledger-backend/pkg/db"
	"github.com/angelmondragon/posledger-backend/pkg/db/models"
	"github.com/angelmondragon/posledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/posledger-backend/pkg/errors"
	"github.com/angelmondragon/posledger-backend/pkg/logger"
	"github.com/angelmondragon/posledger-backend/pkg/metrics"
	"github.com/angelmondragon/posledger-backend/pkg/outbox"
	"github.com/angelmondragon/posledger-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/posledger-backend/pkg/pagination"
)

const quantityConstraint = "chk_store_inventory_quantity_non_negative"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service owns the store_inventory projection. Quantity writes happen only
// through ApplyDelta (stock mutations) and Rebuild.
type Service interface {
	WithTx(tx *gorm.DB) Service
	CurrentQuantity(ctx context.Context, storeID, productID uuid.UUID) (int, error)
	Get(ctx context.Context, storeID, productID uuid.UUID) (Snapshot, error)
	IsLowStock(ctx context.Context, storeID, productID uuid.UUID) (bool, error)
	Lock(ctx context.Context, storeID, productID uuid.UUID) (*models.StoreInventory, error)
	ApplyDelta(ctx context.Context, record *models.StoreInventory, delta int) (int, error)
	Rebuild(ctx context.Context, storeID, productID uuid.UUID, actor *outbox.ActorRef) (RebuildResult, error)
	Verify(ctx context.Context, storeID uuid.UUID) ([]Divergence, error)
	List(ctx context.Context, storeID uuid.UUID, params ListParams) (pagination.Page[Item], error)
	ListLowStock(ctx context.Context, storeID uuid.UUID) ([]models.StoreInventory, error)
	UpdateThresholds(ctx context.Context, input ThresholdInput) (Snapshot, error)
}

// Snapshot is the read model for one (store, product) key. Keys never
// touched by the ledger read as zero with no thresholds.
type Snapshot struct {
	StoreID     uuid.UUID  `json:"store_id"`
	ProductID   uuid.UUID  `json:"product_id"`
	Quantity    int        `json:"quantity"`
	MinQuantity int        `json:"min_quantity"`
	MaxQuantity *int       `json:"max_quantity,omitempty"`
	IsLowStock  bool       `json:"is_low_stock"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

// RebuildResult reports what Rebuild wrote.
type RebuildResult struct {
	StoreID          uuid.UUID `json:"store_id"`
	ProductID        uuid.UUID `json:"product_id"`
	PreviousQuantity int       `json:"previous_quantity"`
	Quantity         int       `json:"quantity"`
	EntryCount       int       `json:"entry_count"`
	Changed          bool      `json:"changed"`
}

// Divergence is a key whose projection disagrees with its ledger sum.
type Divergence struct {
	StoreID    uuid.UUID `json:"store_id"`
	ProductID  uuid.UUID `json:"product_id"`
	Projection int       `json:"projection"`
	LedgerSum  int       `json:"ledger_sum"`
}

// ListParams filters the inventory listing.
type ListParams struct {
	Query        string
	LowStockOnly bool
	Pagination   pagination.Params
}

// Item is one row of the inventory listing.
type Item struct {
	Snapshot
	ProductName string `json:"product_name"`
	SKU         string `json:"sku"`
}

// ThresholdInput sets the advisory bounds of a key.
type ThresholdInput struct {
	StoreID     uuid.UUID
	ProductID   uuid.UUID
	MinQuantity int
	MaxQuantity *int
}

// ServiceParams wires the projection service.
type ServiceParams struct {
	DB         txRunner
	Repository *Repository
	Ledger     ledger.Service
	Outbox     outbox.Emitter
	Metrics    *metrics.InventoryMetrics
	Logger     *logger.Logger
}

type service struct {
	tx      txRunner
	bound   *gorm.DB
	repo    *Repository
	ledger  ledger.Service
	outbox  outbox.Emitter
	metrics *metrics.InventoryMetrics
	logg    *logger.Logger
}

// NewService builds the projection service.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "database client required")
	}
	if params.Repository == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "inventory repository required")
	}
	if params.Ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ledger service required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Discard()
	}
	return &service{
		tx:      params.DB,
		repo:    params.Repository,
		ledger:  params.Ledger,
		outbox:  params.Outbox,
		metrics: params.Metrics,
		logg:    logg,
	}, nil
}

func (s *service) WithTx(tx *gorm.DB) Service {
	if tx == nil {
		return s
	}
	clone := *s
	clone.bound = tx
	clone.repo = s.repo.WithTx(tx)
	clone.ledger = s.ledger.WithTx(tx)
	return &clone
}

// inTx runs fn in the bound transaction, or opens one.
func (s *service) inTx(ctx context.Context, fn func(svc *service, tx *gorm.DB) error) error {
	if s.bound != nil {
		return fn(s, s.bound)
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return fn(s.WithTx(tx).(*service), tx)
	})
}

func (s *service) CurrentQuantity(ctx context.Context, storeID, productID uuid.UUID) (int, error) {
	snap, err := s.Get(ctx, storeID, productID)
	if err != nil {
		return 0, err
	}
	return snap.Quantity, nil
}

func (s *service) Get(ctx context.Context, storeID, productID uuid.UUID) (Snapshot, error) {
	record, err := s.repo.Find(ctx, storeID, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Snapshot{StoreID: storeID, ProductID: productID, IsLowStock: LowStock(0, 0)}, nil
		}
		return Snapshot{}, pkgerrors.Dependency(err, "load inventory")
	}
	return snapshotOf(*record), nil
}

func (s *service) IsLowStock(ctx context.Context, storeID, productID uuid.UUID) (bool, error) {
	snap, err := s.Get(ctx, storeID, productID)
	if err != nil {
		return false, err
	}
	return snap.IsLowStock, nil
}

// Lock must be called on a transaction-bound service.
func (s *service) Lock(ctx context.Context, storeID, productID uuid.UUID) (*models.StoreInventory, error) {
	if s.bound == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "inventory lock requires a transaction")
	}
	record, err := s.repo.LockForUpdate(ctx, storeID, productID)
	if err != nil {
		return nil, pkgerrors.Dependency(err, "lock inventory row")
	}
	return record, nil
}

// ApplyDelta writes record.Quantity+delta to a row obtained from Lock and
// returns the new quantity. A negative result is rejected before the write.
func (s *service) ApplyDelta(ctx context.Context, record *models.StoreInventory, delta int) (int, error) {
	if record == nil {
		return 0, pkgerrors.New(pkgerrors.CodeInternal, "inventory record required")
	}
	next := record.Quantity + delta
	if next < 0 {
		return 0, InsufficientStock(record.Quantity, -delta)
	}
	if err := s.repo.SetQuantity(ctx, record.ID, next); err != nil {
		if db.IsCheckViolation(err, quantityConstraint) {
			return 0, InsufficientStock(record.Quantity, -delta)
		}
		return 0, pkgerrors.Dependency(err, "update inventory")
	}
	record.Quantity = next
	return next, nil
}

// InsufficientStock builds the error returned when a mutation would drive
// quantity below zero.
func InsufficientStock(available, requested int) error {
	return pkgerrors.Newf(pkgerrors.CodeInsufficientStock, "insufficient stock: %d available, %d requested", available, requested).
		WithDetails(map[string]any{"available": available, "requested": requested})
}

func (s *service) Rebuild(ctx context.Context, storeID, productID uuid.UUID, actor *outbox.ActorRef) (RebuildResult, error) {
	var result RebuildResult
	err := s.inTx(ctx, func(svc *service, tx *gorm.DB) error {
		record, err := svc.repo.LockForUpdate(ctx, storeID, productID)
		if err != nil {
			return pkgerrors.Dependency(err, "lock inventory row")
		}
		entries, err := svc.ledger.EntriesFor(ctx, storeID, productID)
		if err != nil {
			return err
		}
		total := Fold(entries)
		if total < 0 {
			return pkgerrors.Newf(pkgerrors.CodeInternal, "ledger sum %d is negative", total)
		}

		result = RebuildResult{
			StoreID:          storeID,
			ProductID:        productID,
			PreviousQuantity: record.Quantity,
			Quantity:         total,
			EntryCount:       len(entries),
			Changed:          record.Quantity != total,
		}
		if !result.Changed {
			return nil
		}
		if err := svc.repo.SetQuantity(ctx, record.ID, total); err != nil {
			return pkgerrors.Dependency(err, "write rebuilt quantity")
		}
		return svc.emitRebuilt(ctx, tx, record.ID, result, actor)
	})
	if err != nil {
		return RebuildResult{}, err
	}

	s.metrics.IncRebuild(result.Changed)
	if result.Changed {
		ctx = s.logg.WithFields(ctx, map[string]any{
			"store_id":          storeID.String(),
			"product_id":        productID.String(),
			"previous_quantity": result.PreviousQuantity,
			"quantity":          result.Quantity,
		})
		s.logg.Warn(ctx, "inventory.rebuild corrected projection")
	}
	return result, nil
}

func (s *service) emitRebuilt(ctx context.Context, tx *gorm.DB, recordID uuid.UUID, result RebuildResult, actor *outbox.ActorRef) error {
	if s.outbox == nil {
		return nil
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventInventoryRebuilt,
		AggregateType: enums.AggregateInventory,
		AggregateID:   recordID,
		Actor:         actor,
		Data: payloads.InventoryRebuiltEvent{
			StoreID:          result.StoreID,
			ProductID:        result.ProductID,
			PreviousQuantity: result.PreviousQuantity,
			Quantity:         result.Quantity,
			EntryCount:       result.EntryCount,
		},
	})
}

func (s *service) Verify(ctx context.Context, storeID uuid.UUID) ([]Divergence, error) {
	records, err := s.repo.ListByStore(ctx, storeID)
	if err != nil {
		return nil, pkgerrors.Dependency(err, "list inventory")
	}
	sums, err := s.ledger.SumDeltasByStore(ctx, storeID)
	if err != nil {
		return nil, err
	}

	divergences := []Divergence{}
	seen := make(map[uuid.UUID]struct{}, len(records))
	for _, record := range records {
		seen[record.ProductID] = struct{}{}
		if sum := sums[record.ProductID]; sum != record.Quantity {
			divergences = append(divergences, Divergence{
				StoreID:    storeID,
				ProductID:  record.ProductID,
				Projection: record.Quantity,
				LedgerSum:  sum,
			})
		}
	}
	for productID, sum := range sums {
		if _, ok := seen[productID]; ok || sum == 0 {
			continue
		}
		divergences = append(divergences, Divergence{
			StoreID:   storeID,
			ProductID: productID,
			LedgerSum: sum,
		})
	}
	return divergences, nil
}

func (s *service) List(ctx context.Context, storeID uuid.UUID, params ListParams) (pagination.Page[Item], error) {
	cursor, err := pagination.ParseKeyCursor(params.Pagination.Cursor)
	if err != nil {
		return pagination.Page[Item]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	records, err := s.repo.List(ctx, listQuery{
		storeID:      storeID,
		search:       params.Query,
		lowStockOnly: params.LowStockOnly,
		limit:        pagination.LimitWithBuffer(params.Pagination.Limit),
		cursor:       cursor,
	})
	if err != nil {
		return pagination.Page[Item]{}, pkgerrors.Dependency(err, "list inventory")
	}

	limit := pagination.NormalizeLimit(params.Pagination.Limit)
	page := pagination.Page[Item]{Items: make([]Item, 0, min(len(records), limit))}
	for i, record := range records {
		if i == limit {
			last := records[limit-1]
			page.NextCursor = pagination.EncodeKeyCursor(pagination.KeyCursor{Key: productName(last), ID: last.ID})
			break
		}
		page.Items = append(page.Items, itemOf(record))
	}
	return page, nil
}

func (s *service) ListLowStock(ctx context.Context, storeID uuid.UUID) ([]models.StoreInventory, error) {
	records, err := s.repo.ListLowStock(ctx, storeID)
	if err != nil {
		return nil, pkgerrors.Dependency(err, "list low stock")
	}
	return records, nil
}

func (s *service) UpdateThresholds(ctx context.Context, input ThresholdInput) (Snapshot, error) {
	if input.MinQuantity < 0 {
		return Snapshot{}, pkgerrors.New(pkgerrors.CodeValidation, "min_quantity must be >= 0")
	}
	if input.MaxQuantity != nil && *input.MaxQuantity < input.MinQuantity {
		return Snapshot{}, pkgerrors.New(pkgerrors.CodeValidation, "max_quantity must be >= min_quantity")
	}

	var snap Snapshot
	err := s.inTx(ctx, func(svc *service, _ *gorm.DB) error {
		record, err := svc.repo.LockForUpdate(ctx, input.StoreID, input.ProductID)
		if err != nil {
			return pkgerrors.Dependency(err, "lock inventory row")
		}
		if err := svc.repo.SetThresholds(ctx, record.ID, input.MinQuantity, input.MaxQuantity); err != nil {
			return pkgerrors.Dependency(err, "update thresholds")
		}
		record.MinQuantity = input.MinQuantity
		record.MaxQuantity = input.MaxQuantity
		snap = snapshotOf(*record)
		return nil
	})
	if err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

func snapshotOf(record models.StoreInventory) Snapshot {
	snap := Snapshot{
		StoreID:     record.StoreID,
		ProductID:   record.ProductID,
		Quantity:    record.Quantity,
		MinQuantity: record.MinQuantity,
		MaxQuantity: record.MaxQuantity,
		IsLowStock:  LowStock(record.Quantity, record.MinQuantity),
	}
	if !record.UpdatedAt.IsZero() {
		updated := record.UpdatedAt
		snap.UpdatedAt = &updated
	}
	return snap
}

func itemOf(record models.StoreInventory) Item {
	item := Item{Snapshot: snapshotOf(record)}
	if record.Product != nil {
		item.ProductName = record.Product.Name
		item.SKU = record.Product.SKU
	}
	return item
}

func productName(record models.StoreInventory) string {
	if record.Product == nil {
		return ""
	}
	return record.Product.Name
}
