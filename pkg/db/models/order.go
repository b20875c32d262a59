package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/posledger-backend/pkg/enums"
)

// Order is a point-of-sale checkout. Items are written with the order and are
// immutable afterwards.
type Order struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	StoreID       uuid.UUID           `gorm:"column:store_id;type:uuid;not null;index:idx_orders_store_created,priority:1" json:"store_id"`
	CashierID     uuid.UUID           `gorm:"column:cashier_id;type:uuid;not null" json:"cashier_id"`
	Status        enums.OrderStatus   `gorm:"column:status;type:order_status;not null;default:'pending'" json:"status"`
	TotalAmount   decimal.Decimal     `gorm:"column:total_amount;type:numeric(12,2);not null" json:"total_amount"`
	PaymentMethod enums.PaymentMethod `gorm:"column:payment_method;type:payment_method;not null" json:"payment_method"`
	Notes         *string             `gorm:"column:notes" json:"notes,omitempty"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime;index:idx_orders_store_created,priority:2" json:"created_at"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`

	Items []OrderItem `gorm:"foreignKey:OrderID;references:ID" json:"items"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}
