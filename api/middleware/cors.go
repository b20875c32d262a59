package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS lets the register front end call the API from the configured origins.
// Credentials are not allowed; the actor travels in a header.
func CORS(origins []string) func(http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", ActorHeader, IdempotencyHeader, RequestIDHeader},
		ExposedHeaders: []string{RequestIDHeader, ReplayedHeader},
		MaxAge:         300,
	}).Handler
}
