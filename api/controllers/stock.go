package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/posledger-backend/api/responses"
	"github.com/angelmondragon/posledger-backend/api/validators"
	"github.com/angelmondragon/posledger-backend/internal/stock"
	"github.com/angelmondragon/posledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/posledger-backend/pkg/errors"
	"github.com/angelmondragon/posledger-backend/pkg/logger"
)

// StockMutator applies a single ledger-backed stock change.
type StockMutator interface {
	Mutate(ctx context.Context, input stock.MutateInput) (stock.Result, error)
}

type stockMutationRequest struct {
	ProductID   uuid.UUID  `json:"product_id" validate:"required"`
	Kind        string     `json:"kind" validate:"required"`
	Delta       int        `json:"delta" validate:"ne=0"`
	ReferenceID *uuid.UUID `json:"reference_id"`
	Notes       *string    `json:"notes"`
}

func (p stockMutationRequest) toInput(storeID, actorID uuid.UUID) (stock.MutateInput, error) {
	kind, err := enums.ParseLedgerEntryKind(p.Kind)
	if err != nil {
		return stock.MutateInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid kind").
			WithDetails(map[string]any{"kind": p.Kind})
	}
	// stock only comes back through a sale when an order is refunded or cancelled
	if kind == enums.LedgerEntryKindSale && p.Delta > 0 {
		return stock.MutateInput{}, pkgerrors.New(pkgerrors.CodeValidation, "sale delta must be negative").
			WithDetails(map[string]any{"delta": "must be negative for sale"})
	}
	return stock.MutateInput{
		StoreID:     storeID,
		ProductID:   p.ProductID,
		Kind:        kind,
		Delta:       p.Delta,
		ActorID:     actorID,
		ReferenceID: p.ReferenceID,
		Notes:       trimmedNotes(p.Notes),
		Source:      "api",
	}, nil
}

// StockMutate records a receive, adjustment, transfer or manual sale.
func StockMutate(svc StockMutator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		storeID, err := requireStore(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		actorID, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload stockMutationRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := payload.toInput(storeID, actorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Mutate(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}
