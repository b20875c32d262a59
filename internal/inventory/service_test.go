package inventory

import (
	"context"
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/posledger-backend/internal/ledger"
	"github.com/angelmondragon/posledger-backend/pkg/db"
	"github.com/angelmondragon/posledger-backend/pkg/db/dbtest"
	"github.com/angelmondragon/posledger-backend/pkg/db/models"
	"github.com/angelmondragon/posledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/posledger-backend/pkg/errors"
	"github.com/angelmondragon/posledger-backend/pkg/outbox"
	"github.com/angelmondragon/posledger-backend/pkg/pagination"
)

type fixture struct {
	client  *db.Client
	svc     Service
	ledger  ledger.Service
	outbox  *outbox.Repository
	store   models.Store
	product models.Product
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	client := dbtest.Open(t)
	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{Repository: ledger.NewRepository(client.DB())})
	require.NoError(t, err)
	outboxRepo := outbox.NewRepository(client.DB())
	svc, err := NewService(ServiceParams{
		DB:         client,
		Repository: NewRepository(client.DB()),
		Ledger:     ledgerSvc,
		Outbox:     outbox.NewService(outboxRepo, nil),
	})
	require.NoError(t, err)
	return fixture{
		client:  client,
		svc:     svc,
		ledger:  ledgerSvc,
		outbox:  outboxRepo,
		store:   dbtest.SeedStore(t, client, "Main"),
		product: dbtest.SeedProduct(t, client, "Oat Milk", "3.49"),
	}
}

// appendRaw writes ledger entries without touching the projection so tests
// can construct divergent states.
func (f fixture) appendRaw(t *testing.T, productID uuid.UUID, deltas ...int) {
	t.Helper()
	for _, delta := range deltas {
		kind := enums.LedgerEntryKindAdjustment
		if delta > 0 {
			kind = enums.LedgerEntryKindReceive
		}
		_, err := f.ledger.Append(context.Background(), ledger.AppendInput{
			StoreID:   f.store.ID,
			ProductID: productID,
			Kind:      kind,
			Delta:     delta,
			ActorID:   uuid.New(),
		})
		require.NoError(t, err)
	}
}

func (f fixture) apply(t *testing.T, productID uuid.UUID, delta int) (int, error) {
	t.Helper()
	var out int
	err := f.client.WithTx(context.Background(), func(tx *gorm.DB) error {
		bound := f.svc.WithTx(tx)
		record, err := bound.Lock(context.Background(), f.store.ID, productID)
		if err != nil {
			return err
		}
		out, err = bound.ApplyDelta(context.Background(), record, delta)
		return err
	})
	return out, err
}

func TestFoldIsOrderIndependent(t *testing.T) {
	entries := []models.LedgerEntry{{Delta: 10}, {Delta: 20}, {Delta: -25}, {Delta: 25}, {Delta: -5}, {Delta: 5}}
	want := Fold(entries)
	require.Equal(t, 30, want)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := append([]models.LedgerEntry(nil), entries...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		assert.Equal(t, want, Fold(shuffled))
	}
	assert.Equal(t, 0, Fold(nil))
}

func TestLowStockPredicate(t *testing.T) {
	assert.True(t, LowStock(0, 0))
	assert.True(t, LowStock(5, 5))
	assert.False(t, LowStock(6, 5))
}

func TestCurrentQuantityDefaultsToZero(t *testing.T) {
	f := newFixture(t)
	qty, err := f.svc.CurrentQuantity(context.Background(), f.store.ID, f.product.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, qty)
}

func TestApplyDeltaCreatesRowAndRejectsNegative(t *testing.T) {
	f := newFixture(t)

	got, err := f.apply(t, f.product.ID, 30)
	require.NoError(t, err)
	assert.Equal(t, 30, got)

	_, err = f.apply(t, f.product.ID, -31)
	require.Error(t, err)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock))
	details := pkgerrors.As(err).Details().(map[string]any)
	assert.Equal(t, 30, details["available"])
	assert.Equal(t, 31, details["requested"])

	qty, err := f.svc.CurrentQuantity(context.Background(), f.store.ID, f.product.ID)
	require.NoError(t, err)
	assert.Equal(t, 30, qty)
}

func TestLockRequiresTransaction(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Lock(context.Background(), f.store.ID, f.product.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInternal))
}

func TestQuantityCheckConstraint(t *testing.T) {
	f := newFixture(t)
	_, err := f.apply(t, f.product.ID, 1)
	require.NoError(t, err)

	record, err := NewRepository(f.client.DB()).Find(context.Background(), f.store.ID, f.product.ID)
	require.NoError(t, err)
	err = NewRepository(f.client.DB()).SetQuantity(context.Background(), record.ID, -1)
	require.Error(t, err)
	assert.True(t, db.IsCheckViolation(err, quantityConstraint))
}

func TestRebuildRepairsDivergenceAndIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.appendRaw(t, f.product.ID, 10, 20, -5)

	result, err := f.svc.Rebuild(ctx, f.store.ID, f.product.ID, &outbox.ActorRef{StoreID: f.store.ID, Source: "test"})
	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Equal(t, 0, result.PreviousQuantity)
	assert.Equal(t, 25, result.Quantity)
	assert.Equal(t, 3, result.EntryCount)

	again, err := f.svc.Rebuild(ctx, f.store.ID, f.product.ID, nil)
	require.NoError(t, err)
	assert.False(t, again.Changed)
	assert.Equal(t, 25, again.Quantity)

	qty, err := f.svc.CurrentQuantity(ctx, f.store.ID, f.product.ID)
	require.NoError(t, err)
	assert.Equal(t, 25, qty)

	record, err := NewRepository(f.client.DB()).Find(ctx, f.store.ID, f.product.ID)
	require.NoError(t, err)
	events, err := f.outbox.ListByAggregate(nil, record.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventInventoryRebuilt, events[0].EventType)
}

func TestVerifyReportsDivergences(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	other := dbtest.SeedProduct(t, f.client, "Croissant", "2.75")

	_, err := f.apply(t, f.product.ID, 4)
	require.NoError(t, err)
	f.appendRaw(t, f.product.ID, 4)
	f.appendRaw(t, other.ID, 9)

	divergences, err := f.svc.Verify(ctx, f.store.ID)
	require.NoError(t, err)
	require.Len(t, divergences, 1)
	assert.Equal(t, other.ID, divergences[0].ProductID)
	assert.Equal(t, 0, divergences[0].Projection)
	assert.Equal(t, 9, divergences[0].LedgerSum)
}

func TestUpdateThresholdsAndLowStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	max := 2

	_, err := f.svc.UpdateThresholds(ctx, ThresholdInput{StoreID: f.store.ID, ProductID: f.product.ID, MinQuantity: -1})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = f.svc.UpdateThresholds(ctx, ThresholdInput{StoreID: f.store.ID, ProductID: f.product.ID, MinQuantity: 5, MaxQuantity: &max})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.apply(t, f.product.ID, 8)
	require.NoError(t, err)
	snap, err := f.svc.UpdateThresholds(ctx, ThresholdInput{StoreID: f.store.ID, ProductID: f.product.ID, MinQuantity: 5})
	require.NoError(t, err)
	assert.Equal(t, 8, snap.Quantity)
	assert.False(t, snap.IsLowStock)

	_, err = f.apply(t, f.product.ID, -3)
	require.NoError(t, err)
	low, err := f.svc.IsLowStock(ctx, f.store.ID, f.product.ID)
	require.NoError(t, err)
	assert.True(t, low)

	records, err := f.svc.ListLowStock(ctx, f.store.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.NotNil(t, records[0].Product)
	assert.Equal(t, "Oat Milk", records[0].Product.Name)
}

func TestListSearchesAndPaginatesByName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	names := []string{"Almond Milk", "Brownie", "Cold Brew", "Dark Roast"}
	for _, name := range names {
		p := dbtest.SeedProduct(t, f.client, name, "1.00")
		_, err := f.apply(t, p.ID, 3)
		require.NoError(t, err)
	}

	first, err := f.svc.List(ctx, f.store.ID, ListParams{Pagination: pagination.Params{Limit: 2}})
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	assert.Equal(t, "Almond Milk", first.Items[0].ProductName)
	require.NotEmpty(t, first.NextCursor)

	second, err := f.svc.List(ctx, f.store.ID, ListParams{Pagination: pagination.Params{Limit: 2, Cursor: first.NextCursor}})
	require.NoError(t, err)
	require.Len(t, second.Items, 2)
	assert.Equal(t, "Cold Brew", second.Items[0].ProductName)
	assert.Empty(t, second.NextCursor)

	search, err := f.svc.List(ctx, f.store.ID, ListParams{Query: "milk"})
	require.NoError(t, err)
	require.Len(t, search.Items, 1)
	assert.Equal(t, "Almond Milk", search.Items[0].ProductName)

	_, err = f.svc.UpdateThresholds(ctx, ThresholdInput{StoreID: f.store.ID, ProductID: search.Items[0].ProductID, MinQuantity: 3})
	require.NoError(t, err)
	low, err := f.svc.List(ctx, f.store.ID, ListParams{LowStockOnly: true})
	require.NoError(t, err)
	require.Len(t, low.Items, 1)
	assert.True(t, low.Items[0].IsLowStock)
}
