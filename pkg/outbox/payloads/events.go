package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/posledger-backend/pkg/enums"
)

// StockChangedEvent announces one committed ledger entry and the resulting
// projection quantity.
type StockChangedEvent struct {
	LedgerEntryID uuid.UUID             `json:"ledger_entry_id"`
	StoreID       uuid.UUID             `json:"store_id"`
	ProductID     uuid.UUID             `json:"product_id"`
	Kind          enums.LedgerEntryKind `json:"kind"`
	Delta         int                   `json:"delta"`
	Quantity      int                   `json:"quantity"`
	ReferenceID   *uuid.UUID            `json:"reference_id,omitempty"`
	LowStock      bool                  `json:"low_stock"`
}

// InventoryRebuiltEvent reports a projection row rewritten from the ledger.
type InventoryRebuiltEvent struct {
	StoreID          uuid.UUID `json:"store_id"`
	ProductID        uuid.UUID `json:"product_id"`
	PreviousQuantity int       `json:"previous_quantity"`
	Quantity         int       `json:"quantity"`
	EntryCount       int       `json:"entry_count"`
}

// LowStockDetectedEvent is raised by the low-stock scan at most once per
// (store, product, day).
type LowStockDetectedEvent struct {
	StoreID     uuid.UUID `json:"store_id"`
	ProductID   uuid.UUID `json:"product_id"`
	ProductName string    `json:"product_name"`
	SKU         string    `json:"sku"`
	Quantity    int       `json:"quantity"`
	MinQuantity int       `json:"min_quantity"`
	DetectedAt  time.Time `json:"detected_at"`
}

// OrderCompletedEvent is emitted when checkout commits.
type OrderCompletedEvent struct {
	OrderID       uuid.UUID           `json:"order_id"`
	StoreID       uuid.UUID           `json:"store_id"`
	CashierID     uuid.UUID           `json:"cashier_id"`
	TotalAmount   string              `json:"total_amount"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	ItemCount     int                 `json:"item_count"`
}

// OrderReversedEvent is emitted for refunds and cancellations. Every item was
// returned to stock through a compensating ledger entry.
type OrderReversedEvent struct {
	OrderID      uuid.UUID         `json:"order_id"`
	StoreID      uuid.UUID         `json:"store_id"`
	Status       enums.OrderStatus `json:"status"`
	ActorID      uuid.UUID         `json:"actor_id"`
	EntryIDs     []uuid.UUID       `json:"ledger_entry_ids"`
	UnitsRestock int               `json:"units_restocked"`
}
