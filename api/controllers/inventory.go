package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/posledger-backend/api/responses"
	"github.com/angelmondragon/posledger-backend/api/validators"
	"github.com/angelmondragon/posledger-backend/internal/inventory"
	"github.com/angelmondragon/posledger-backend/pkg/db/models"
	"github.com/angelmondragon/posledger-backend/pkg/logger"
	"github.com/angelmondragon/posledger-backend/pkg/outbox"
	"github.com/angelmondragon/posledger-backend/pkg/pagination"
)

// InventoryReader is the projection surface the read endpoints need.
type InventoryReader interface {
	List(ctx context.Context, storeID uuid.UUID, params inventory.ListParams) (pagination.Page[inventory.Item], error)
	Get(ctx context.Context, storeID, productID uuid.UUID) (inventory.Snapshot, error)
}

// InventoryWriter covers the projection maintenance endpoints.
type InventoryWriter interface {
	UpdateThresholds(ctx context.Context, input inventory.ThresholdInput) (inventory.Snapshot, error)
	Rebuild(ctx context.Context, storeID, productID uuid.UUID, actor *outbox.ActorRef) (inventory.RebuildResult, error)
}

// MovementLister pages through a key's ledger history.
type MovementLister interface {
	ListMovements(ctx context.Context, storeID, productID uuid.UUID, params pagination.Params) (pagination.Page[models.LedgerEntry], error)
}

// InventoryList returns the store's projection rows ordered by product name.
func InventoryList(svc InventoryReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		storeID, err := requireStore(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := paginationParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		lowStock, err := validators.ParseQueryBool(r, "low_stock")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.List(r.Context(), storeID, inventory.ListParams{
			Query:        strings.TrimSpace(r.URL.Query().Get("q")),
			LowStockOnly: lowStock,
			Pagination:   page,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// InventoryGet returns one key. Products never stocked read as zero.
func InventoryGet(svc InventoryReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		storeID, productID, err := storeAndProduct(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		snapshot, err := svc.Get(r.Context(), storeID, productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, snapshot)
	}
}

type thresholdRequest struct {
	MinQuantity *int `json:"min_quantity" validate:"required,min=0"`
	MaxQuantity *int `json:"max_quantity" validate:"omitempty,min=0"`
}

// InventoryUpdateThresholds sets min/max for a key.
func InventoryUpdateThresholds(svc InventoryWriter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		storeID, productID, err := storeAndProduct(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if _, err := requireActor(r); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload thresholdRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		snapshot, err := svc.UpdateThresholds(r.Context(), inventory.ThresholdInput{
			StoreID:     storeID,
			ProductID:   productID,
			MinQuantity: *payload.MinQuantity,
			MaxQuantity: payload.MaxQuantity,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, snapshot)
	}
}

// InventoryRebuild recomputes a key from its ledger.
func InventoryRebuild(svc InventoryWriter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		storeID, productID, err := storeAndProduct(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		actorID, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Rebuild(r.Context(), storeID, productID, &outbox.ActorRef{
			ActorID: &actorID,
			StoreID: storeID,
			Source:  "api",
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// InventoryMovements pages through the ledger of a key, newest first.
func InventoryMovements(svc MovementLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		storeID, productID, err := storeAndProduct(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := paginationParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ListMovements(r.Context(), storeID, productID, page)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func storeAndProduct(r *http.Request) (uuid.UUID, uuid.UUID, error) {
	storeID, err := requireStore(r)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	productID, err := validators.ParseUUIDParam(r, "productId")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return storeID, productID, nil
}
