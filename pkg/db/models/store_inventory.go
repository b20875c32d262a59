package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StoreInventory is the projection row for one (store, product) pair. Quantity
// always equals the sum of ledger deltas for the pair.
type StoreInventory struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	StoreID     uuid.UUID `gorm:"column:store_id;type:uuid;not null;uniqueIndex:idx_store_inventory_store_product,priority:1"`
	ProductID   uuid.UUID `gorm:"column:product_id;type:uuid;not null;uniqueIndex:idx_store_inventory_store_product,priority:2"`
	Quantity    int       `gorm:"column:quantity;not null;default:0;check:chk_store_inventory_quantity_non_negative,quantity >= 0"`
	MinQuantity int       `gorm:"column:min_quantity;not null;default:0"`
	MaxQuantity *int      `gorm:"column:max_quantity"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`

	Product *Product `gorm:"foreignKey:ProductID;references:ID"`
}

func (StoreInventory) TableName() string {
	return "store_inventory"
}

func (i *StoreInventory) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}
