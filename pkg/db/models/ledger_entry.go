package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/posledger-backend/pkg/enums"
)

// LedgerEntry records one immutable stock quantity change. Entries are never
// updated or deleted; corrections are new compensating entries.
type LedgerEntry struct {
	ID          uuid.UUID             `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	StoreID     uuid.UUID             `gorm:"column:store_id;type:uuid;not null;index:idx_ledger_entries_store_product,priority:1" json:"store_id"`
	ProductID   uuid.UUID             `gorm:"column:product_id;type:uuid;not null;index:idx_ledger_entries_store_product,priority:2" json:"product_id"`
	Kind        enums.LedgerEntryKind `gorm:"column:kind;type:ledger_entry_kind;not null" json:"kind"`
	Delta       int                   `gorm:"column:delta;not null" json:"delta"`
	ReferenceID *uuid.UUID            `gorm:"column:reference_id;type:uuid;index:idx_ledger_entries_reference" json:"reference_id,omitempty"`
	Notes       *string               `gorm:"column:notes" json:"notes,omitempty"`
	ActorID     uuid.UUID             `gorm:"column:actor_id;type:uuid;not null" json:"actor_id"`
	CreatedAt   time.Time             `gorm:"column:created_at;autoCreateTime;index:idx_ledger_entries_store_product,priority:3" json:"created_at"`
}

func (LedgerEntry) TableName() string {
	return "inventory_ledger_entries"
}

func (e *LedgerEntry) BeforeCreate(*gorm.DB) error {
	ensureID(&e.ID)
	return nil
}
