package ledger

import (
	"context"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/posledger-backend/pkg/db/models"
	"github.com/angelmondragon/posledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/posledger-backend/pkg/errors"
	"github.com/angelmondragon/posledger-backend/pkg/logger"
	"github.com/angelmondragon/posledger-backend/pkg/pagination"
)

// DefaultNotesMaxLength bounds free-form notes on an entry, in runes.
const DefaultNotesMaxLength = 500

// Service is the append-only ledger store. Append is the only mutation.
type Service interface {
	WithTx(tx *gorm.DB) Service
	Append(ctx context.Context, input AppendInput) (models.LedgerEntry, error)
	EntriesFor(ctx context.Context, storeID, productID uuid.UUID) ([]models.LedgerEntry, error)
	SumDeltas(ctx context.Context, storeID, productID uuid.UUID) (int, error)
	SumDeltasByStore(ctx context.Context, storeID uuid.UUID) (map[uuid.UUID]int, error)
	ListByReference(ctx context.Context, referenceID uuid.UUID) ([]models.LedgerEntry, error)
	ListMovements(ctx context.Context, storeID, productID uuid.UUID, params pagination.Params) (pagination.Page[models.LedgerEntry], error)
}

// AppendInput is one stock change to record. Sign and kind rules belong to
// the stock service; the ledger only checks shape.
type AppendInput struct {
	StoreID     uuid.UUID
	ProductID   uuid.UUID
	Kind        enums.LedgerEntryKind
	Delta       int
	ReferenceID *uuid.UUID
	Notes       *string
	ActorID     uuid.UUID
}

type service struct {
	repo           Repository
	logg           *logger.Logger
	notesMaxLength int
}

// ServiceParams wires the ledger store.
type ServiceParams struct {
	Repository     Repository
	Logger         *logger.Logger
	NotesMaxLength int
}

// NewService wires a ledger service with the provided repository.
func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ledger repository required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Discard()
	}
	maxLen := params.NotesMaxLength
	if maxLen <= 0 {
		maxLen = DefaultNotesMaxLength
	}
	return &service{repo: params.Repository, logg: logg, notesMaxLength: maxLen}, nil
}

func (s *service) WithTx(tx *gorm.DB) Service {
	if tx == nil {
		return s
	}
	return &service{repo: s.repo.WithTx(tx), logg: s.logg, notesMaxLength: s.notesMaxLength}
}

func (s *service) Append(ctx context.Context, input AppendInput) (models.LedgerEntry, error) {
	if err := s.validate(input); err != nil {
		return models.LedgerEntry{}, err
	}

	entry := models.LedgerEntry{
		StoreID:     input.StoreID,
		ProductID:   input.ProductID,
		Kind:        input.Kind,
		Delta:       input.Delta,
		ReferenceID: input.ReferenceID,
		Notes:       input.Notes,
		ActorID:     input.ActorID,
	}
	if err := s.repo.Create(ctx, &entry); err != nil {
		ctx = s.logg.WithFields(ctx, map[string]any{
			"store_id":   input.StoreID.String(),
			"product_id": input.ProductID.String(),
			"kind":       input.Kind,
		})
		s.logg.Error(ctx, "ledger.append failed", err)
		return models.LedgerEntry{}, pkgerrors.Dependency(err, "append ledger entry")
	}
	return entry, nil
}

func (s *service) validate(input AppendInput) error {
	if input.StoreID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "store id is required")
	}
	if input.ProductID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if input.ActorID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "actor id is required")
	}
	if !input.Kind.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid ledger entry kind %q", input.Kind)
	}
	if input.Delta == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "delta must be non-zero")
	}
	if input.Notes != nil && utf8.RuneCountInString(*input.Notes) > s.notesMaxLength {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "notes exceed %d characters", s.notesMaxLength)
	}
	return nil
}

func (s *service) EntriesFor(ctx context.Context, storeID, productID uuid.UUID) ([]models.LedgerEntry, error) {
	entries, err := s.repo.ListFor(ctx, storeID, productID)
	if err != nil {
		return nil, pkgerrors.Dependency(err, "list ledger entries")
	}
	return entries, nil
}

func (s *service) SumDeltas(ctx context.Context, storeID, productID uuid.UUID) (int, error) {
	total, err := s.repo.SumDeltas(ctx, storeID, productID)
	if err != nil {
		return 0, pkgerrors.Dependency(err, "sum ledger deltas")
	}
	return total, nil
}

func (s *service) SumDeltasByStore(ctx context.Context, storeID uuid.UUID) (map[uuid.UUID]int, error) {
	sums, err := s.repo.SumDeltasByStore(ctx, storeID)
	if err != nil {
		return nil, pkgerrors.Dependency(err, "sum ledger deltas by store")
	}
	return sums, nil
}

func (s *service) ListByReference(ctx context.Context, referenceID uuid.UUID) ([]models.LedgerEntry, error) {
	if referenceID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reference id is required")
	}
	entries, err := s.repo.ListByReference(ctx, referenceID)
	if err != nil {
		return nil, pkgerrors.Dependency(err, "list ledger entries by reference")
	}
	return entries, nil
}

func (s *service) ListMovements(ctx context.Context, storeID, productID uuid.UUID, params pagination.Params) (pagination.Page[models.LedgerEntry], error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return pagination.Page[models.LedgerEntry]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListMovements(ctx, storeID, productID, pagination.LimitWithBuffer(params.Limit), cursor)
	if err != nil {
		return pagination.Page[models.LedgerEntry]{}, pkgerrors.Dependency(err, "list stock movements")
	}
	return pagination.BuildPage(rows, params.Limit, func(e models.LedgerEntry) pagination.Cursor {
		return pagination.Cursor{CreatedAt: e.CreatedAt, ID: e.ID}
	}), nil
}
