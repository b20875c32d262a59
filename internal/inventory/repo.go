package inventory

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/posledger-backend/pkg/db/models"
	"github.com/angelmondragon/posledger-backend/pkg/pagination"
)

const lowStockPredicate = "store_inventory.quantity <= store_inventory.min_quantity"

// Repository persists store_inventory projection rows.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a GORM DB to projection operations.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// Find loads the projection row for a key without locking it.
func (r *Repository) Find(ctx context.Context, storeID, productID uuid.UUID) (*models.StoreInventory, error) {
	var record models.StoreInventory
	if err := r.db.WithContext(ctx).
		Where("store_id = ? AND product_id = ?", storeID, productID).
		First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// LockForUpdate returns the projection row for a key under SELECT ... FOR
// UPDATE, inserting a zero row first when the key has never been touched.
// Must run inside a transaction.
func (r *Repository) LockForUpdate(ctx context.Context, storeID, productID uuid.UUID) (*models.StoreInventory, error) {
	record, err := r.selectForUpdate(ctx, storeID, productID)
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	seed := models.StoreInventory{StoreID: storeID, ProductID: productID}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&seed).Error; err != nil {
		return nil, err
	}
	return r.selectForUpdate(ctx, storeID, productID)
}

func (r *Repository) selectForUpdate(ctx context.Context, storeID, productID uuid.UUID) (*models.StoreInventory, error) {
	var record models.StoreInventory
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("store_id = ? AND product_id = ?", storeID, productID).
		First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// SetQuantity overwrites the cached running total of a locked row.
func (r *Repository) SetQuantity(ctx context.Context, id uuid.UUID, quantity int) error {
	return r.db.WithContext(ctx).
		Model(&models.StoreInventory{}).
		Where("id = ?", id).
		Update("quantity", quantity).Error
}

// SetThresholds overwrites the advisory bounds of a locked row.
func (r *Repository) SetThresholds(ctx context.Context, id uuid.UUID, minQuantity int, maxQuantity *int) error {
	return r.db.WithContext(ctx).
		Model(&models.StoreInventory{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"min_quantity": minQuantity,
			"max_quantity": maxQuantity,
		}).Error
}

// ListByStore returns every projection row of a store.
func (r *Repository) ListByStore(ctx context.Context, storeID uuid.UUID) ([]models.StoreInventory, error) {
	var records []models.StoreInventory
	if err := r.db.WithContext(ctx).
		Where("store_id = ?", storeID).
		Order("product_id ASC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// ListLowStock returns rows at or below their minimum, lowest quantity first.
// The comparison is column-to-column so the database evaluates it.
func (r *Repository) ListLowStock(ctx context.Context, storeID uuid.UUID) ([]models.StoreInventory, error) {
	var records []models.StoreInventory
	if err := r.db.WithContext(ctx).
		Preload("Product").
		Where("store_inventory.store_id = ?", storeID).
		Where(lowStockPredicate).
		Order("store_inventory.quantity ASC").
		Order("store_inventory.product_id ASC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

type listQuery struct {
	storeID      uuid.UUID
	search       string
	lowStockOnly bool
	limit        int
	cursor       *pagination.KeyCursor
}

// List pages projection rows joined to their product, ordered by product
// name then row id.
func (r *Repository) List(ctx context.Context, q listQuery) ([]models.StoreInventory, error) {
	query := r.db.WithContext(ctx).
		Model(&models.StoreInventory{}).
		Select("store_inventory.*").
		Joins("JOIN products ON products.id = store_inventory.product_id").
		Where("store_inventory.store_id = ?", q.storeID)

	if term := strings.ToLower(strings.TrimSpace(q.search)); term != "" {
		like := "%" + term + "%"
		query = query.Where("LOWER(products.name) LIKE ? OR LOWER(products.sku) LIKE ?", like, like)
	}
	if q.lowStockOnly {
		query = query.Where(lowStockPredicate)
	}
	if q.cursor != nil {
		query = query.Where(
			"products.name > ? OR (products.name = ? AND store_inventory.id > ?)",
			q.cursor.Key, q.cursor.Key, q.cursor.ID,
		)
	}

	var records []models.StoreInventory
	if err := query.
		Preload("Product").
		Order("products.name ASC").
		Order("store_inventory.id ASC").
		Limit(q.limit).
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}
