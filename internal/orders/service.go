package orders

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/posledger-backend/internal/catalog"
	"github.com/angelmondragon/posledger-backend/internal/ledger"
	"github.com/angelmondragon/posledger-backend/internal/stock"
	"github.com/angelmondragon/posledger-backend/internal/stores"
	"github.com/angelmondragon/posledger-backend/pkg/db/models"
	"github.com/angelmondragon/posledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/posledger-backend/pkg/errors"
	"github.com/angelmondragon/posledger-backend/pkg/logger"
	"github.com/angelmondragon/posledger-backend/pkg/metrics"
	"github.com/angelmondragon/posledger-backend/pkg/outbox"
	"github.com/angelmondragon/posledger-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/posledger-backend/pkg/pagination"
)

// DefaultMaxLines caps the number of distinct products in one checkout.
const DefaultMaxLines = 200

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes checkout and the order lifecycle.
type Service interface {
	Checkout(ctx context.Context, input CheckoutInput) (*models.Order, error)
	Refund(ctx context.Context, input ReverseInput) (*models.Order, error)
	Cancel(ctx context.Context, input ReverseInput) (*models.Order, error)
	GetOrder(ctx context.Context, storeID, orderID uuid.UUID) (*models.Order, error)
	ListOrders(ctx context.Context, storeID uuid.UUID, params ListParams) (pagination.Page[models.Order], error)
}

// ServiceParams wires the order service.
type ServiceParams struct {
	DB         txRunner
	Repository Repository
	Stores     stores.Service
	Catalog    catalog.Service
	Stock      stock.Mutator
	Outbox     outbox.Emitter
	Metrics    *metrics.OrderMetrics
	Logger     *logger.Logger
	MaxLines   int
}

type service struct {
	tx       txRunner
	repo     Repository
	stores   stores.Service
	catalog  catalog.Service
	stock    stock.Mutator
	outbox   outbox.Emitter
	metrics  *metrics.OrderMetrics
	logg     *logger.Logger
	maxLines int
}

// NewService builds the checkout orchestrator.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.DB == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "database client required")
	case params.Repository == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order repository required")
	case params.Stores == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "store service required")
	case params.Catalog == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "catalog service required")
	case params.Stock == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stock mutator required")
	case params.Outbox == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Discard()
	}
	maxLines := params.MaxLines
	if maxLines <= 0 {
		maxLines = DefaultMaxLines
	}
	return &service{
		tx:       params.DB,
		repo:     params.Repository,
		stores:   params.Stores,
		catalog:  params.Catalog,
		stock:    params.Stock,
		outbox:   params.Outbox,
		metrics:  params.Metrics,
		logg:     logg,
		maxLines: maxLines,
	}, nil
}

// Checkout records a settled cart: one order, its items and one sale entry
// per line, all in a single transaction.
func (s *service) Checkout(ctx context.Context, input CheckoutInput) (*models.Order, error) {
	order, err := s.checkout(ctx, input)
	s.metrics.ObserveCheckout(err)

	ctx = s.logg.WithFields(ctx, map[string]any{
		"store_id":   input.StoreID.String(),
		"cashier_id": input.CashierID.String(),
		"lines":      len(input.Lines),
	})
	if err != nil {
		if pkgerrors.IsRetryable(err) || pkgerrors.CodeOf(err) == pkgerrors.CodeInternal {
			s.logg.Error(ctx, "checkout failed", err)
		} else {
			s.logg.Warn(s.logg.WithField(ctx, "error_code", pkgerrors.CodeOf(err)), "checkout rejected")
		}
		return nil, err
	}
	s.logg.Info(s.logg.WithOrderID(ctx, order.ID.String()), "checkout.completed")
	return order, nil
}

func (s *service) checkout(ctx context.Context, input CheckoutInput) (*models.Order, error) {
	lines, err := s.validateCheckout(input)
	if err != nil {
		return nil, err
	}

	var result *models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.stores.WithTx(tx).Require(ctx, input.StoreID); err != nil {
			return err
		}

		ids := make([]uuid.UUID, len(lines))
		for i, line := range lines {
			ids[i] = line.ProductID
		}
		products, err := s.catalog.WithTx(tx).GetMany(ctx, ids)
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				return pkgerrors.New(pkgerrors.CodeValidation, "unknown product in cart").
					WithDetails(pkgerrors.As(err).Details())
			}
			return err
		}

		orderID := uuid.New()
		items := make([]models.OrderItem, 0, len(lines))
		total := decimal.Zero
		for _, line := range lines {
			unit := products[line.ProductID].BasePrice.Round(2)
			lineTotal := unit.Mul(decimal.NewFromInt(int64(line.Quantity))).Round(2)
			total = total.Add(lineTotal)
			items = append(items, models.OrderItem{
				OrderID:    orderID,
				ProductID:  line.ProductID,
				Quantity:   line.Quantity,
				UnitPrice:  unit,
				TotalPrice: lineTotal,
			})
		}

		order := &models.Order{
			ID:            orderID,
			StoreID:       input.StoreID,
			CashierID:     input.CashierID,
			Status:        enums.OrderStatusPending,
			TotalAmount:   total,
			PaymentMethod: input.PaymentMethod,
			Notes:         input.Notes,
		}
		repo := s.repo.WithTx(tx)
		if err := repo.CreateOrder(ctx, order); err != nil {
			return pkgerrors.Dependency(err, "create order")
		}
		if err := repo.CreateItems(ctx, items); err != nil {
			return pkgerrors.Dependency(err, "create order items")
		}

		for _, line := range lines {
			ref := orderID
			if _, err := s.stock.MutateTx(ctx, tx, stock.MutateInput{
				StoreID:     input.StoreID,
				ProductID:   line.ProductID,
				Kind:        enums.LedgerEntryKindSale,
				Delta:       -line.Quantity,
				ActorID:     input.CashierID,
				ReferenceID: &ref,
				Source:      "checkout",
			}); err != nil {
				return err
			}
		}

		if !total.Equal(input.ExpectedTotal) {
			return pkgerrors.New(pkgerrors.CodeValidation, "cart total mismatch").
				WithDetails(map[string]any{
					"expected": input.ExpectedTotal.StringFixed(2),
					"computed": total.StringFixed(2),
				})
		}

		if !order.Status.CanTransitionTo(enums.OrderStatusCompleted) {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "order cannot move from %s to completed", order.Status)
		}
		if err := repo.UpdateStatus(ctx, orderID, enums.OrderStatusCompleted); err != nil {
			return pkgerrors.Dependency(err, "complete order")
		}
		order.Status = enums.OrderStatusCompleted
		order.Items = items

		cashierID := input.CashierID
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCompleted,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Actor:         &outbox.ActorRef{ActorID: &cashierID, StoreID: input.StoreID, Source: "checkout"},
			Data: payloads.OrderCompletedEvent{
				OrderID:       orderID,
				StoreID:       input.StoreID,
				CashierID:     input.CashierID,
				TotalAmount:   total.StringFixed(2),
				PaymentMethod: input.PaymentMethod,
				ItemCount:     len(items),
			},
		}); err != nil {
			return pkgerrors.Dependency(err, "queue order event")
		}

		result = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// validateCheckout checks the cart shape and returns lines merged by product
// in ascending product id order.
func (s *service) validateCheckout(input CheckoutInput) ([]CheckoutLine, error) {
	if input.StoreID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store id is required")
	}
	if input.CashierID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cashier id is required")
	}
	if len(input.Lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	if !input.PaymentMethod.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid payment method %q", input.PaymentMethod)
	}
	if input.ExpectedTotal.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "expected total must be non-negative")
	}
	if input.Notes != nil && utf8.RuneCountInString(*input.Notes) > ledger.DefaultNotesMaxLength {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "notes exceed %d characters", ledger.DefaultNotesMaxLength)
	}

	merged := make(map[uuid.UUID]int, len(input.Lines))
	for i, line := range input.Lines {
		if line.ProductID == uuid.Nil {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "line %d: product id is required", i)
		}
		if line.Quantity <= 0 {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "line %d: quantity must be positive", i)
		}
		merged[line.ProductID] += line.Quantity
	}
	if len(merged) > s.maxLines {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "cart exceeds %d lines", s.maxLines)
	}

	lines := make([]CheckoutLine, 0, len(merged))
	for id, qty := range merged {
		lines = append(lines, CheckoutLine{ProductID: id, Quantity: qty})
	}
	sort.Slice(lines, func(i, j int) bool {
		return bytes.Compare(lines[i].ProductID[:], lines[j].ProductID[:]) < 0
	})
	return lines, nil
}

// Refund reverses a completed order and restocks every item.
func (s *service) Refund(ctx context.Context, input ReverseInput) (*models.Order, error) {
	return s.reverse(ctx, input, enums.OrderStatusRefunded, enums.EventOrderRefunded)
}

// Cancel is the administrative reversal of a completed order.
func (s *service) Cancel(ctx context.Context, input ReverseInput) (*models.Order, error) {
	return s.reverse(ctx, input, enums.OrderStatusCancelled, enums.EventOrderCancelled)
}

func (s *service) reverse(ctx context.Context, input ReverseInput, target enums.OrderStatus, eventType enums.OutboxEventType) (*models.Order, error) {
	start := time.Now()
	order, err := s.reverseTx(ctx, input, target, eventType)
	s.metrics.ObserveTransition(string(target), err)

	ctx = s.logg.WithFields(s.logg.WithOrderID(ctx, input.OrderID.String()), map[string]any{
		"store_id":    input.StoreID.String(),
		"status":      target,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	if err != nil {
		if pkgerrors.IsRetryable(err) {
			s.logg.Error(ctx, "order.reverse failed", err)
		} else {
			s.logg.Warn(s.logg.WithField(ctx, "error_code", pkgerrors.CodeOf(err)), "order.reverse rejected")
		}
		return nil, err
	}
	s.logg.Info(ctx, "order.reversed")
	return order, nil
}

func (s *service) reverseTx(ctx context.Context, input ReverseInput, target enums.OrderStatus, eventType enums.OutboxEventType) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "actor id is required")
	}

	var result *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindForUpdate(ctx, input.OrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Dependency(err, "load order")
		}
		if input.StoreID != uuid.Nil && order.StoreID != input.StoreID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		if !order.Status.CanTransitionTo(target) {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "order is %s and cannot be %s", order.Status, target).
				WithDetails(map[string]any{"status": order.Status})
		}

		entryIDs := make([]uuid.UUID, 0, len(order.Items))
		restocked := 0
		for _, item := range order.Items {
			ref := order.ID
			res, err := s.stock.CompensateTx(ctx, tx, stock.MutateInput{
				StoreID:     order.StoreID,
				ProductID:   item.ProductID,
				Kind:        enums.LedgerEntryKindSale,
				Delta:       item.Quantity,
				ActorID:     input.ActorID,
				ReferenceID: &ref,
				Notes:       input.Notes,
				Source:      string(target),
			})
			if err != nil {
				return err
			}
			entryIDs = append(entryIDs, res.Entry.ID)
			restocked += item.Quantity
		}

		if err := repo.UpdateStatus(ctx, order.ID, target); err != nil {
			return pkgerrors.Dependency(err, "update order status")
		}
		order.Status = target

		actorID := input.ActorID
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     eventType,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{ActorID: &actorID, StoreID: order.StoreID, Source: string(target)},
			Data: payloads.OrderReversedEvent{
				OrderID:      order.ID,
				StoreID:      order.StoreID,
				Status:       target,
				ActorID:      input.ActorID,
				EntryIDs:     entryIDs,
				UnitsRestock: restocked,
			},
		}); err != nil {
			return pkgerrors.Dependency(err, "queue order event")
		}

		result = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetOrder returns one order with its items, scoped to the store.
func (s *service) GetOrder(ctx context.Context, storeID, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Dependency(err, "load order")
	}
	if order.StoreID != storeID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

// ListOrders returns the store's orders newest first.
func (s *service) ListOrders(ctx context.Context, storeID uuid.UUID, params ListParams) (pagination.Page[models.Order], error) {
	if params.Filters.Status != nil && !params.Filters.Status.IsValid() {
		return pagination.Page[models.Order]{}, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid status %q", *params.Filters.Status)
	}
	if err := s.stores.Require(ctx, storeID); err != nil {
		return pagination.Page[models.Order]{}, err
	}
	cursor, err := pagination.ParseCursor(params.Pagination.Cursor)
	if err != nil {
		return pagination.Page[models.Order]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	rows, err := s.repo.List(ctx, storeID, params.Filters, pagination.LimitWithBuffer(params.Pagination.Limit), cursor)
	if err != nil {
		return pagination.Page[models.Order]{}, pkgerrors.Dependency(err, "list orders")
	}
	return pagination.BuildPage(rows, params.Pagination.Limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	}), nil
}
