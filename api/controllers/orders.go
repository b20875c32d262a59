package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/posledger-backend/api/responses"
	"github.com/angelmondragon/posledger-backend/api/validators"
	"github.com/angelmondragon/posledger-backend/internal/orders"
	"github.com/angelmondragon/posledger-backend/pkg/db/models"
	"github.com/angelmondragon/posledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/posledger-backend/pkg/errors"
	"github.com/angelmondragon/posledger-backend/pkg/logger"
	"github.com/angelmondragon/posledger-backend/pkg/pagination"
)

// OrderReader serves the order history endpoints.
type OrderReader interface {
	GetOrder(ctx context.Context, storeID, orderID uuid.UUID) (*models.Order, error)
	ListOrders(ctx context.Context, storeID uuid.UUID, params orders.ListParams) (pagination.Page[models.Order], error)
}

// OrderReverser restocks a completed order.
type OrderReverser interface {
	Refund(ctx context.Context, input orders.ReverseInput) (*models.Order, error)
	Cancel(ctx context.Context, input orders.ReverseInput) (*models.Order, error)
}

// OrderList returns the store's orders, newest first.
func OrderList(svc OrderReader, logg *logger.Logger) http.HandlerFunc {
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

		var filters orders.ListFilters
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseOrderStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter").
					WithDetails(map[string]any{"field": "status"}))
				return
			}
			filters.Status = &status
		}

		result, err := svc.ListOrders(r.Context(), storeID, orders.ListParams{Filters: filters, Pagination: page})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func OrderDetail(svc OrderReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		storeID, err := requireStore(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.GetOrder(r.Context(), storeID, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

type reverseRequest struct {
	Notes *string `json:"notes"`
}

// OrderRefund restocks a completed order and marks it refunded.
func OrderRefund(svc OrderReverser, logg *logger.Logger) http.HandlerFunc {
	return reverseHandler(svc.Refund, logg)
}

// OrderCancel restocks a completed order and marks it cancelled.
func OrderCancel(svc OrderReverser, logg *logger.Logger) http.HandlerFunc {
	return reverseHandler(svc.Cancel, logg)
}

func reverseHandler(reverse func(context.Context, orders.ReverseInput) (*models.Order, error), logg *logger.Logger) http.HandlerFunc {
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
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		// The body is optional; an empty request carries no notes.
		var payload reverseRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		order, err := reverse(r.Context(), orders.ReverseInput{
			StoreID: storeID,
			OrderID: orderID,
			ActorID: actorID,
			Notes:   trimmedNotes(payload.Notes),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}
