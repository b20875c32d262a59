package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/posledger-backend/api/responses"
	"github.com/angelmondragon/posledger-backend/api/validators"
	"github.com/angelmondragon/posledger-backend/internal/orders"
	"github.com/angelmondragon/posledger-backend/pkg/db/models"
	"github.com/angelmondragon/posledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/posledger-backend/pkg/errors"
	"github.com/angelmondragon/posledger-backend/pkg/logger"
)

// CheckoutService turns a settled cart into a completed order.
type CheckoutService interface {
	Checkout(ctx context.Context, input orders.CheckoutInput) (*models.Order, error)
}

type checkoutRequest struct {
	Lines         []checkoutLineRequest `json:"lines" validate:"required,min=1,dive"`
	PaymentMethod string                `json:"payment_method" validate:"required"`
	ExpectedTotal *decimal.Decimal      `json:"expected_total" validate:"required,money"`
	Notes         *string               `json:"notes"`
}

type checkoutLineRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"gt=0"`
}

func (p checkoutRequest) toInput(storeID, cashierID uuid.UUID) (orders.CheckoutInput, error) {
	method, err := enums.ParsePaymentMethod(p.PaymentMethod)
	if err != nil {
		return orders.CheckoutInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method").
			WithDetails(map[string]any{"payment_method": p.PaymentMethod})
	}
	lines := make([]orders.CheckoutLine, len(p.Lines))
	for i, line := range p.Lines {
		lines[i] = orders.CheckoutLine{ProductID: line.ProductID, Quantity: line.Quantity}
	}
	return orders.CheckoutInput{
		StoreID:       storeID,
		CashierID:     cashierID,
		Lines:         lines,
		PaymentMethod: method,
		ExpectedTotal: *p.ExpectedTotal,
		Notes:         trimmedNotes(p.Notes),
	}, nil
}

// Checkout commits a cart. The cashier is the request actor.
func Checkout(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		storeID, err := requireStore(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cashierID, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := payload.toInput(storeID, cashierID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Checkout(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, order)
	}
}
