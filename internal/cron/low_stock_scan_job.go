package cron

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/angelmondragon/posledger-backend/internal/lowstock"
	"github.com/angelmondragon/posledger-backend/pkg/logger"
)

type lowStockScanner interface {
	Scan(ctx context.Context, storeID uuid.UUID) (lowstock.ScanResult, error)
}

// LowStockScanJobParams configure the low-stock scan.
type LowStockScanJobParams struct {
	Logger      *logger.Logger
	Stores      storeLister
	Scanner     lowStockScanner
	Parallelism int
}

// NewLowStockScanJob raises low-stock alerts for every store.
func NewLowStockScanJob(params LowStockScanJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Stores == nil {
		return nil, fmt.Errorf("store lister required")
	}
	if params.Scanner == nil {
		return nil, fmt.Errorf("low stock scanner required")
	}
	return &lowStockScanJob{
		logg:        params.Logger,
		stores:      params.Stores,
		scanner:     params.Scanner,
		parallelism: params.Parallelism,
	}, nil
}

type lowStockScanJob struct {
	logg        *logger.Logger
	stores      storeLister
	scanner     lowStockScanner
	parallelism int
}

func (j *lowStockScanJob) Name() string { return "low-stock-scan" }

func (j *lowStockScanJob) Run(ctx context.Context) error {
	var alerts, emitted atomic.Int64
	err := forEachStore(ctx, j.stores, j.parallelism, func(ctx context.Context, storeID uuid.UUID) error {
		result, err := j.scanner.Scan(ctx, storeID)
		alerts.Add(int64(result.Alerts))
		emitted.Add(int64(result.Emitted))
		return err
	})
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"alerts":  alerts.Load(),
		"emitted": emitted.Load(),
	}), "low stock scan complete")
	return err
}
