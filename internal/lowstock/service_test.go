package lowstock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/posledger-backend/internal/catalog"
	"github.com/angelmondragon/posledger-backend/internal/inventory"
	"github.com/angelmondragon/posledger-backend/internal/ledger"
	"github.com/angelmondragon/posledger-backend/internal/stock"
	"github.com/angelmondragon/posledger-backend/internal/stores"
	"github.com/angelmondragon/posledger-backend/pkg/db"
	"github.com/angelmondragon/posledger-backend/pkg/db/dbtest"
	"github.com/angelmondragon/posledger-backend/pkg/db/models"
	"github.com/angelmondragon/posledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/posledger-backend/pkg/errors"
	"github.com/angelmondragon/posledger-backend/pkg/metrics"
	"github.com/angelmondragon/posledger-backend/pkg/outbox"
)

type fakeDeduper struct {
	mu     sync.Mutex
	keys   map[string]bool
	setErr error
}

func newFakeDeduper() *fakeDeduper { return &fakeDeduper{keys: map[string]bool{}} }

func (f *fakeDeduper) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return false, f.setErr
	}
	if f.keys[key] {
		return false, nil
	}
	f.keys[key] = true
	return true, nil
}

func (f *fakeDeduper) Del(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.keys, k)
	}
	return nil
}

func (f *fakeDeduper) LowStockAlertKey(storeID, productID string, day time.Time) string {
	return fmt.Sprintf("alert:%s:%s:%s", storeID, productID, day.Format("2006-01-02"))
}

type harness struct {
	client    *db.Client
	svc       *service
	stock     *stock.Service
	inventory inventory.Service
	outbox    *outbox.Repository
	deduper   *fakeDeduper
	registry  *prometheus.Registry
	store     models.Store
	actor     uuid.UUID
}

func newHarness(t *testing.T) harness {
	t.Helper()
	client := dbtest.Open(t)
	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{Repository: ledger.NewRepository(client.DB())})
	require.NoError(t, err)
	outboxRepo := outbox.NewRepository(client.DB())
	emitter := outbox.NewService(outboxRepo, nil)
	invSvc, err := inventory.NewService(inventory.ServiceParams{
		DB:         client,
		Repository: inventory.NewRepository(client.DB()),
		Ledger:     ledgerSvc,
		Outbox:     emitter,
	})
	require.NoError(t, err)
	storeSvc, err := stores.NewService(stores.NewRepository(client.DB()))
	require.NoError(t, err)
	catalogSvc, err := catalog.NewService(catalog.NewRepository(client.DB()))
	require.NoError(t, err)
	stockSvc, err := stock.NewService(stock.ServiceParams{
		DB:        client,
		Ledger:    ledgerSvc,
		Inventory: invSvc,
		Stores:    storeSvc,
		Catalog:   catalogSvc,
		Outbox:    emitter,
	})
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	deduper := newFakeDeduper()
	svc, err := NewService(ServiceParams{
		DB:        client,
		Inventory: invSvc,
		Stores:    storeSvc,
		Catalog:   catalogSvc,
		Outbox:    emitter,
		Deduper:   deduper,
		Metrics:   metrics.NewInventoryMetrics(reg),
	})
	require.NoError(t, err)

	return harness{
		client:    client,
		svc:       svc.(*service),
		stock:     stockSvc,
		inventory: invSvc,
		outbox:    outboxRepo,
		deduper:   deduper,
		registry:  reg,
		store:     dbtest.SeedStore(t, client, "Harbor"),
		actor:     uuid.New(),
	}
}

// stocked seeds a product with qty on hand and the given minimum.
func (h harness) stocked(t *testing.T, name string, qty, minQty int) models.Product {
	t.Helper()
	p := dbtest.SeedProduct(t, h.client, name, "1.00")
	_, err := h.stock.Mutate(context.Background(), stock.MutateInput{
		StoreID:   h.store.ID,
		ProductID: p.ID,
		Kind:      enums.LedgerEntryKindReceive,
		Delta:     qty,
		ActorID:   h.actor,
	})
	require.NoError(t, err)
	_, err = h.inventory.UpdateThresholds(context.Background(), inventory.ThresholdInput{
		StoreID:     h.store.ID,
		ProductID:   p.ID,
		MinQuantity: minQty,
	})
	require.NoError(t, err)
	return p
}

func TestListOrdersByQuantityAndIncludesBoundary(t *testing.T) {
	h := newHarness(t)
	low := h.stocked(t, "Oat Milk", 2, 5)
	boundary := h.stocked(t, "Almond Milk", 5, 5)
	h.stocked(t, "Whole Milk", 20, 5)

	alerts, err := h.svc.List(context.Background(), h.store.ID)
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.Equal(t, low.ID, alerts[0].ProductID)
	assert.Equal(t, "Oat Milk", alerts[0].ProductName)
	assert.Equal(t, boundary.ID, alerts[1].ProductID)
}

func TestListUnknownStoreIsNotFound(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.List(context.Background(), uuid.New())
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))
}

func TestCheckDelegatesToProjection(t *testing.T) {
	h := newHarness(t)
	low := h.stocked(t, "Cups", 1, 3)
	ok := h.stocked(t, "Lids", 10, 3)

	alert, isLow, err := h.svc.Check(context.Background(), h.store.ID, low.ID)
	require.NoError(t, err)
	assert.True(t, isLow)
	assert.Equal(t, 1, alert.Quantity)
	assert.Equal(t, 3, alert.MinQuantity)

	_, isLow, err = h.svc.Check(context.Background(), h.store.ID, ok.ID)
	require.NoError(t, err)
	assert.False(t, isLow)
}

func TestScanEmitsOncePerDay(t *testing.T) {
	h := newHarness(t)
	low := h.stocked(t, "Straws", 1, 4)
	h.stocked(t, "Napkins", 50, 4)
	day := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	h.svc.now = func() time.Time { return day }

	result, err := h.svc.Scan(context.Background(), h.store.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Alerts)
	assert.Equal(t, 1, result.Emitted)

	result, err = h.svc.Scan(context.Background(), h.store.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Alerts)
	assert.Zero(t, result.Emitted)

	h.svc.now = func() time.Time { return day.Add(24 * time.Hour) }
	result, err = h.svc.Scan(context.Background(), h.store.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Emitted)

	events, err := h.outbox.ListByAggregate(nil, low.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	for _, e := range events {
		assert.Equal(t, enums.EventLowStockDetected, e.EventType)
		assert.Equal(t, enums.AggregateInventoryAlert, e.AggregateType)
	}

	mfs, err := h.registry.Gather()
	require.NoError(t, err)
	var gauge float64
	for _, mf := range mfs {
		if mf.GetName() == "posledger_low_stock_items" {
			gauge = mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	assert.Equal(t, float64(1), gauge)
}

func TestScanSurfacesDedupeFailure(t *testing.T) {
	h := newHarness(t)
	h.stocked(t, "Sleeves", 1, 2)
	h.deduper.setErr = errors.New("redis down")

	result, err := h.svc.Scan(context.Background(), h.store.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsRetryable(err))
	assert.Zero(t, result.Emitted)
}
