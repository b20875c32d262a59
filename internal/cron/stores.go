package cron

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

const defaultStoreParallelism = 4

type storeLister interface {
	ListIDs(ctx context.Context) ([]uuid.UUID, error)
}

// forEachStore runs fn for every store with bounded parallelism. One store
// failing does not stop the others; all failures are combined.
func forEachStore(ctx context.Context, stores storeLister, parallelism int, fn func(ctx context.Context, storeID uuid.UUID) error) error {
	ids, err := stores.ListIDs(ctx)
	if err != nil {
		return fmt.Errorf("list stores: %w", err)
	}
	if parallelism <= 0 {
		parallelism = defaultStoreParallelism
	}

	var (
		mu   sync.Mutex
		errs error
	)
	var g errgroup.Group
	g.SetLimit(parallelism)
	for _, id := range ids {
		g.Go(func() error {
			if err := fn(ctx, id); err != nil {
				mu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("store %s: %w", id, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errs
}
