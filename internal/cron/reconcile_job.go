package cron

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/posledger-backend/internal/inventory"
	"github.com/angelmondragon/posledger-backend/pkg/logger"
	"github.com/angelmondragon/posledger-backend/pkg/metrics"
	"github.com/angelmondragon/posledger-backend/pkg/outbox"
)

type projectionVerifier interface {
	Verify(ctx context.Context, storeID uuid.UUID) ([]inventory.Divergence, error)
	Rebuild(ctx context.Context, storeID, productID uuid.UUID, actor *outbox.ActorRef) (inventory.RebuildResult, error)
}

// ReconcileJobParams configure the projection reconcile job.
type ReconcileJobParams struct {
	Logger      *logger.Logger
	Stores      storeLister
	Inventory   projectionVerifier
	Metrics     *metrics.InventoryMetrics
	Repair      bool
	Parallelism int
}

// NewReconcileJob checks every store's projection against its ledger and,
// when Repair is set, rebuilds the divergent keys.
func NewReconcileJob(params ReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Stores == nil {
		return nil, fmt.Errorf("store lister required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	return &reconcileJob{
		logg:        params.Logger,
		stores:      params.Stores,
		inventory:   params.Inventory,
		metrics:     params.Metrics,
		repair:      params.Repair,
		parallelism: params.Parallelism,
	}, nil
}

type reconcileJob struct {
	logg        *logger.Logger
	stores      storeLister
	inventory   projectionVerifier
	metrics     *metrics.InventoryMetrics
	repair      bool
	parallelism int
}

func (j *reconcileJob) Name() string { return "inventory-reconcile" }

func (j *reconcileJob) Run(ctx context.Context) error {
	var found, repaired atomic.Int64
	err := forEachStore(ctx, j.stores, j.parallelism, func(ctx context.Context, storeID uuid.UUID) error {
		divergences, err := j.inventory.Verify(ctx, storeID)
		if err != nil {
			return err
		}
		j.metrics.AddDivergences(storeID.String(), len(divergences))
		found.Add(int64(len(divergences)))

		var errs error
		for _, d := range divergences {
			logCtx := j.logg.WithFields(ctx, map[string]any{
				"store_id":   d.StoreID.String(),
				"product_id": d.ProductID.String(),
				"projection": d.Projection,
				"ledger_sum": d.LedgerSum,
			})
			j.logg.Warn(logCtx, "projection diverged from ledger")
			if !j.repair {
				continue
			}
			if _, err := j.inventory.Rebuild(ctx, d.StoreID, d.ProductID, &outbox.ActorRef{StoreID: d.StoreID, Source: "reconcile"}); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("rebuild %s: %w", d.ProductID, err))
				continue
			}
			repaired.Add(1)
		}
		return errs
	})

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"divergences": found.Load(),
		"repaired":    repaired.Load(),
		"repair":      j.repair,
	}), "inventory reconcile complete")
	return err
}
