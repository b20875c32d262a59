package orders

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/posledger-backend/pkg/enums"
	"github.com/angelmondragon/posledger-backend/pkg/pagination"
)

// CheckoutLine is one cart line as submitted by the register.
type CheckoutLine struct {
	ProductID uuid.UUID
	Quantity  int
}

// CheckoutInput is a settled cart. Payment has already been collected.
type CheckoutInput struct {
	StoreID       uuid.UUID
	CashierID     uuid.UUID
	Lines         []CheckoutLine
	PaymentMethod enums.PaymentMethod
	ExpectedTotal decimal.Decimal
	Notes         *string
}

// ReverseInput identifies an order to refund or cancel.
type ReverseInput struct {
	StoreID uuid.UUID
	OrderID uuid.UUID
	ActorID uuid.UUID
	Notes   *string
}

// ListFilters narrows ListOrders.
type ListFilters struct {
	Status *enums.OrderStatus
}

// ListParams combines filters with cursor pagination.
type ListParams struct {
	Filters    ListFilters
	Pagination pagination.Params
}
