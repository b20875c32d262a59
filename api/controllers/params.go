package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/posledger-backend/api/middleware"
	"github.com/angelmondragon/posledger-backend/api/validators"
	pkgerrors "github.com/angelmondragon/posledger-backend/pkg/errors"
	"github.com/angelmondragon/posledger-backend/pkg/pagination"
)

func requireStore(r *http.Request) (uuid.UUID, error) {
	storeID := middleware.StoreIDFromContext(r.Context())
	if storeID == uuid.Nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "store context missing")
	}
	return storeID, nil
}

// requireActor returns the caller recorded by ActorContext. Every write is
// attributed, so a missing actor is a client error.
func requireActor(r *http.Request) (uuid.UUID, error) {
	actorID := middleware.ActorIDFromContext(r.Context())
	if actorID == uuid.Nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "actor id is required").
			WithDetails(map[string]any{"header": middleware.ActorHeader})
	}
	return actorID, nil
}

func paginationParams(r *http.Request) (pagination.Params, error) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, err
	}
	return pagination.Params{
		Limit:  limit,
		Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
	}, nil
}

func trimmedNotes(notes *string) *string {
	if notes == nil {
		return nil
	}
	value := strings.TrimSpace(*notes)
	if value == "" {
		return nil
	}
	return &value
}
