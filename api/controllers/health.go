package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/posledger-backend/api/responses"
	"github.com/angelmondragon/posledger-backend/pkg/config"
	"github.com/angelmondragon/posledger-backend/pkg/db"
	pkgerrors "github.com/angelmondragon/posledger-backend/pkg/errors"
	"github.com/angelmondragon/posledger-backend/pkg/logger"
	"github.com/angelmondragon/posledger-backend/pkg/redis"
)

const (
	envHeader        = "X-Posledger-Env"
	readinessTimeout = 2 * time.Second
)

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings Postgres and Redis. Either failing reports 503.
func HealthReady(cfg *config.Config, logg *logger.Logger, database db.Pinger, cache redis.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		if database != nil {
			if err := database.Ping(ctx); err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Dependency(err, "database not ready"))
				return
			}
		}
		if cache != nil {
			if err := cache.Ping(ctx); err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Dependency(err, "redis not ready"))
				return
			}
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
