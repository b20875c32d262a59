package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/posledger-backend/api/responses"
	"github.com/angelmondragon/posledger-backend/internal/lowstock"
	"github.com/angelmondragon/posledger-backend/pkg/logger"
)

// LowStockLister reads the current alerts of a store.
type LowStockLister interface {
	List(ctx context.Context, storeID uuid.UUID) ([]lowstock.Alert, error)
}

func LowStockList(svc LowStockLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		storeID, err := requireStore(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		alerts, err := svc.List(r.Context(), storeID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if alerts == nil {
			alerts = []lowstock.Alert{}
		}
		responses.WriteSuccess(w, alerts)
	}
}
