package stores

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/posledger-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/posledger-backend/pkg/errors"
)

// Service exposes read-only store lookups to the ledger core.
type Service interface {
	WithTx(tx *gorm.DB) Service
	Get(ctx context.Context, id uuid.UUID) (*models.Store, error)
	Require(ctx context.Context, id uuid.UUID) error
	ListIDs(ctx context.Context) ([]uuid.UUID, error)
}

type service struct {
	repo *Repository
}

// NewService builds a store service.
func NewService(repo *Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "store repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) WithTx(tx *gorm.DB) Service {
	return &service{repo: s.repo.WithTx(tx)}
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Store, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store id is required")
	}
	store, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "store not found")
		}
		return nil, pkgerrors.Dependency(err, "load store")
	}
	return store, nil
}

// Require returns NOT_FOUND unless the store exists.
func (s *service) Require(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "store id is required")
	}
	ok, err := s.repo.Exists(ctx, id)
	if err != nil {
		return pkgerrors.Dependency(err, "check store")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeNotFound, "store not found")
	}
	return nil
}

func (s *service) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	ids, err := s.repo.ListIDs(ctx)
	if err != nil {
		return nil, pkgerrors.Dependency(err, "list stores")
	}
	return ids, nil
}
