package ledger

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/posledger-backend/pkg/db/models"
	"github.com/angelmondragon/posledger-backend/pkg/pagination"
)

// Repository persists ledger entries. It exposes no update or delete.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, entry *models.LedgerEntry) error
	ListFor(ctx context.Context, storeID, productID uuid.UUID) ([]models.LedgerEntry, error)
	SumDeltas(ctx context.Context, storeID, productID uuid.UUID) (int, error)
	SumDeltasByStore(ctx context.Context, storeID uuid.UUID) (map[uuid.UUID]int, error)
	ListByReference(ctx context.Context, referenceID uuid.UUID) ([]models.LedgerEntry, error)
	ListMovements(ctx context.Context, storeID, productID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.LedgerEntry, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, entry *models.LedgerEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) ListFor(ctx context.Context, storeID, productID uuid.UUID) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	if err := r.db.WithContext(ctx).
		Where("store_id = ? AND product_id = ?", storeID, productID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) SumDeltas(ctx context.Context, storeID, productID uuid.UUID) (int, error) {
	var total int64
	if err := r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Where("store_id = ? AND product_id = ?", storeID, productID).
		Select("COALESCE(SUM(delta), 0)").
		Scan(&total).Error; err != nil {
		return 0, err
	}
	return int(total), nil
}

type productSum struct {
	ProductID uuid.UUID
	Total     int64
}

func (r *repository) SumDeltasByStore(ctx context.Context, storeID uuid.UUID) (map[uuid.UUID]int, error) {
	var rows []productSum
	if err := r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Select("product_id, COALESCE(SUM(delta), 0) AS total").
		Where("store_id = ?", storeID).
		Group("product_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	sums := make(map[uuid.UUID]int, len(rows))
	for _, row := range rows {
		sums[row.ProductID] = int(row.Total)
	}
	return sums, nil
}

func (r *repository) ListByReference(ctx context.Context, referenceID uuid.UUID) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	if err := r.db.WithContext(ctx).
		Where("reference_id = ?", referenceID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) ListMovements(ctx context.Context, storeID, productID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.LedgerEntry, error) {
	query := r.db.WithContext(ctx).
		Where("store_id = ? AND product_id = ?", storeID, productID)
	if cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var entries []models.LedgerEntry
	if err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
