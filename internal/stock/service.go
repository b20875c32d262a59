package stock

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/posledger-backend/internal/catalog"
	"github.com/angelmondragon/posledger-backend/internal/inventory"
	"github.com/angelmondragon/posledger-backend/internal/ledger"
	"github.com/angelmondragon/posledger-backend/internal/stores"
	"github.com/angelmondragon/posledger-backend/pkg/db/models"
	"github.com/angelmondragon/posledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/posledger-backend/pkg/errors"
	"github.com/angelmondragon/posledger-backend/pkg/logger"
	"github.com/angelmondragon/posledger-backend/pkg/metrics"
	"github.com/angelmondragon/posledger-backend/pkg/outbox"
	"github.com/angelmondragon/posledger-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// MutateInput describes one stock change.
type MutateInput struct {
	StoreID     uuid.UUID
	ProductID   uuid.UUID
	Kind        enums.LedgerEntryKind
	Delta       int
	ActorID     uuid.UUID
	ReferenceID *uuid.UUID
	Notes       *string
	// Source tags the outbox event (api, checkout, refund, ...).
	Source string
}

// Result is the committed ledger entry and the quantity it produced.
type Result struct {
	Entry    models.LedgerEntry `json:"entry"`
	Quantity int                `json:"quantity"`
	LowStock bool               `json:"low_stock"`
}

// Mutator is the surface orchestrators depend on.
type Mutator interface {
	Mutate(ctx context.Context, input MutateInput) (Result, error)
	MutateTx(ctx context.Context, tx *gorm.DB, input MutateInput) (Result, error)
	CompensateTx(ctx context.Context, tx *gorm.DB, input MutateInput) (Result, error)
}

// ServiceParams wires the stock service.
type ServiceParams struct {
	DB             txRunner
	Ledger         ledger.Service
	Inventory      inventory.Service
	Stores         stores.Service
	Catalog        catalog.Service
	Outbox         outbox.Emitter
	Locker         *KeyedLocker
	Metrics        *metrics.StockMetrics
	Logger         *logger.Logger
	NotesMaxLength int
}

// Service is the single write path for on-hand quantity.
type Service struct {
	db             txRunner
	ledger         ledger.Service
	inventory      inventory.Service
	stores         stores.Service
	catalog        catalog.Service
	outbox         outbox.Emitter
	locker         *KeyedLocker
	metrics        *metrics.StockMetrics
	logg           *logger.Logger
	notesMaxLength int
}

// NewService builds the stock mutation service.
func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.DB == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "database client required")
	case params.Ledger == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ledger service required")
	case params.Inventory == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "inventory service required")
	case params.Stores == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "store service required")
	case params.Catalog == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "catalog service required")
	case params.Outbox == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	}
	locker := params.Locker
	if locker == nil {
		locker = NewKeyedLocker()
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Discard()
	}
	notesMax := params.NotesMaxLength
	if notesMax <= 0 {
		notesMax = ledger.DefaultNotesMaxLength
	}
	return &Service{
		db:             params.DB,
		ledger:         params.Ledger,
		inventory:      params.Inventory,
		stores:         params.Stores,
		catalog:        params.Catalog,
		outbox:         params.Outbox,
		locker:         locker,
		metrics:        params.Metrics,
		logg:           logg,
		notesMaxLength: notesMax,
	}, nil
}

// Mutate applies one stock change in its own transaction.
func (s *Service) Mutate(ctx context.Context, input MutateInput) (Result, error) {
	start := time.Now()
	var result Result
	err := s.validate(input, false)
	if err == nil {
		err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
			var txErr error
			result, txErr = s.mutateTx(ctx, tx, input)
			return txErr
		})
	}
	s.metrics.ObserveMutation(string(input.Kind), input.Delta, time.Since(start), err)
	if err != nil {
		s.logFailure(ctx, input, err)
		return Result{}, err
	}
	return result, nil
}

// MutateTx applies one stock change inside the caller's transaction. The
// per-key section is released when this call returns; the row lock is held
// until the caller commits or rolls back.
func (s *Service) MutateTx(ctx context.Context, tx *gorm.DB, input MutateInput) (Result, error) {
	if tx == nil {
		return Result{}, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if err := s.validate(input, false); err != nil {
		return Result{}, err
	}
	return s.mutateTx(ctx, tx, input)
}

// CompensateTx appends a positive sale that reverses an earlier sale. It is
// the only way stock comes back through the sale kind; the reversing order
// owns the reference id and has already checked its own state.
func (s *Service) CompensateTx(ctx context.Context, tx *gorm.DB, input MutateInput) (Result, error) {
	if tx == nil {
		return Result{}, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if err := s.validate(input, true); err != nil {
		return Result{}, err
	}
	return s.mutateTx(ctx, tx, input)
}

func (s *Service) mutateTx(ctx context.Context, tx *gorm.DB, input MutateInput) (Result, error) {
	if err := s.stores.WithTx(tx).Require(ctx, input.StoreID); err != nil {
		return Result{}, err
	}
	if _, err := s.catalog.WithTx(tx).Get(ctx, input.ProductID); err != nil {
		return Result{}, err
	}

	release := s.locker.Lock(input.StoreID, input.ProductID)
	defer release()

	inv := s.inventory.WithTx(tx)
	record, err := inv.Lock(ctx, input.StoreID, input.ProductID)
	if err != nil {
		return Result{}, err
	}
	if record.Quantity+input.Delta < 0 {
		return Result{}, inventory.InsufficientStock(record.Quantity, -input.Delta)
	}

	entry, err := s.ledger.WithTx(tx).Append(ctx, ledger.AppendInput{
		StoreID:     input.StoreID,
		ProductID:   input.ProductID,
		Kind:        input.Kind,
		Delta:       input.Delta,
		ReferenceID: input.ReferenceID,
		Notes:       input.Notes,
		ActorID:     input.ActorID,
	})
	if err != nil {
		return Result{}, err
	}

	quantity, err := inv.ApplyDelta(ctx, record, input.Delta)
	if err != nil {
		return Result{}, err
	}
	lowStock := inventory.LowStock(quantity, record.MinQuantity)

	if err := s.emitStockChanged(ctx, tx, input, entry, quantity, lowStock); err != nil {
		return Result{}, pkgerrors.Dependency(err, "queue stock event")
	}

	return Result{Entry: entry, Quantity: quantity, LowStock: lowStock}, nil
}

func (s *Service) emitStockChanged(ctx context.Context, tx *gorm.DB, input MutateInput, entry models.LedgerEntry, quantity int, lowStock bool) error {
	actorID := input.ActorID
	source := input.Source
	if source == "" {
		source = "stock"
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventStockChanged,
		AggregateType: enums.AggregateLedgerEntry,
		AggregateID:   entry.ID,
		Actor:         &outbox.ActorRef{ActorID: &actorID, StoreID: input.StoreID, Source: source},
		Data: payloads.StockChangedEvent{
			LedgerEntryID: entry.ID,
			StoreID:       entry.StoreID,
			ProductID:     entry.ProductID,
			Kind:          entry.Kind,
			Delta:         entry.Delta,
			Quantity:      quantity,
			ReferenceID:   entry.ReferenceID,
			LowStock:      lowStock,
		},
	})
}

// validate enforces kind and sign rules before anything is written.
// validate checks shape only. compensating admits exactly one form: a
// positive sale carrying the reference of the sale it reverses.
func (s *Service) validate(input MutateInput, compensating bool) error {
	if compensating {
		if input.Kind != enums.LedgerEntryKindSale || input.Delta <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "compensation must be a positive sale")
		}
		if input.ReferenceID == nil || *input.ReferenceID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "compensation requires a reference id")
		}
	}
	if input.StoreID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "store id is required")
	}
	if input.ProductID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if input.ActorID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "actor id is required")
	}
	if !input.Kind.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid kind %q", input.Kind)
	}
	if input.Delta == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "delta must be non-zero")
	}
	if input.Notes != nil && utf8.RuneCountInString(*input.Notes) > s.notesMaxLength {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "notes exceed %d characters", s.notesMaxLength)
	}

	switch input.Kind {
	case enums.LedgerEntryKindReceive:
		if input.Delta < 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "receive delta must be positive")
		}
	case enums.LedgerEntryKindSale:
		if input.Delta > 0 && !compensating {
			return pkgerrors.New(pkgerrors.CodeValidation, "sale delta must be negative")
		}
	}
	return nil
}

func (s *Service) logFailure(ctx context.Context, input MutateInput, err error) {
	ctx = s.logg.WithFields(ctx, map[string]any{
		"store_id":   input.StoreID.String(),
		"product_id": input.ProductID.String(),
		"kind":       input.Kind,
		"delta":      input.Delta,
		"error_code": pkgerrors.CodeOf(err),
	})
	switch pkgerrors.CodeOf(err) {
	case pkgerrors.CodeValidation, pkgerrors.CodeNotFound, pkgerrors.CodeInsufficientStock:
		s.logg.Warn(ctx, "stock.mutate rejected")
	default:
		s.logg.Error(ctx, "stock.mutate failed", err)
	}
}
