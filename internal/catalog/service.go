// Package catalog is the read-only product lookup used by stock mutations and
// checkout.
package catalog

import (
	"context"
	"errors"
	"slices"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/posledger-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/posledger-backend/pkg/errors"
)

type Service interface {
	WithTx(tx *gorm.DB) Service
	Get(ctx context.Context, id uuid.UUID) (*models.Product, error)
	GetMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
}

type service struct {
	repo *Repository
}

func NewService(repo *Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "catalog repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) WithTx(tx *gorm.DB) Service {
	return &service{repo: s.repo.WithTx(tx)}
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	product, err := s.repo.FindByID(ctx, id)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
			WithDetails(map[string]any{"product_ids": []string{id.String()}})
	case err != nil:
		return nil, pkgerrors.Dependency(err, "load product")
	}
	return product, nil
}

// GetMany returns the products keyed by id. Repeated ids are looked up once.
// If any id is unknown the lookup fails with NOT_FOUND listing every missing
// id, so a cart with several bad lines is reported in one response.
func (s *service) GetMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	unique := slices.Compact(slices.SortedFunc(slices.Values(ids), func(a, b uuid.UUID) int {
		return slices.Compare(a[:], b[:])
	}))
	products, err := s.repo.FindByIDs(ctx, unique)
	if err != nil {
		return nil, pkgerrors.Dependency(err, "load products")
	}

	byID := make(map[uuid.UUID]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	var missing []string
	for _, id := range unique {
		if _, ok := byID[id]; !ok {
			missing = append(missing, id.String())
		}
	}
	if len(missing) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
			WithDetails(map[string]any{"product_ids": missing})
	}
	return byID, nil
}
