package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/posledger-backend/api/middleware"
	"github.com/angelmondragon/posledger-backend/internal/inventory"
	"github.com/angelmondragon/posledger-backend/internal/lowstock"
	"github.com/angelmondragon/posledger-backend/internal/orders"
	"github.com/angelmondragon/posledger-backend/internal/stock"
	"github.com/angelmondragon/posledger-backend/pkg/config"
	"github.com/angelmondragon/posledger-backend/pkg/db/models"
	"github.com/angelmondragon/posledger-backend/pkg/enums"
	"github.com/angelmondragon/posledger-backend/pkg/outbox"
	"github.com/angelmondragon/posledger-backend/pkg/pagination"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type memoryCache struct {
	mu     sync.Mutex
	values map[string]string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{values: map[string]string{}}
}

func (c *memoryCache) Ping(context.Context) error { return nil }

func (c *memoryCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	value, ok := c.values[key]
	if !ok {
		return "", goredis.Nil
	}
	return value, nil
}

func (c *memoryCache) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.values[key]; ok {
		return false, nil
	}
	c.values[key] = value.(string)
	return true, nil
}

func (c *memoryCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value.(string)
	return nil
}

func (c *memoryCache) IdempotencyKey(scope, id string) string {
	return "idem:" + scope + ":" + id
}

func (c *memoryCache) CompareAndDelete(_ context.Context, key, expected string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.values[key] != expected {
		return false, nil
	}
	delete(c.values, key)
	return true, nil
}

type stubInventory struct{}

func (stubInventory) List(context.Context, uuid.UUID, inventory.ListParams) (pagination.Page[inventory.Item], error) {
	return pagination.Page[inventory.Item]{Items: []inventory.Item{}}, nil
}

func (stubInventory) Get(_ context.Context, storeID, productID uuid.UUID) (inventory.Snapshot, error) {
	return inventory.Snapshot{StoreID: storeID, ProductID: productID}, nil
}

func (stubInventory) UpdateThresholds(_ context.Context, input inventory.ThresholdInput) (inventory.Snapshot, error) {
	return inventory.Snapshot{StoreID: input.StoreID, ProductID: input.ProductID}, nil
}

func (stubInventory) Rebuild(_ context.Context, storeID, productID uuid.UUID, _ *outbox.ActorRef) (inventory.RebuildResult, error) {
	return inventory.RebuildResult{StoreID: storeID, ProductID: productID}, nil
}

type stubLedger struct{}

func (stubLedger) ListMovements(context.Context, uuid.UUID, uuid.UUID, pagination.Params) (pagination.Page[models.LedgerEntry], error) {
	return pagination.Page[models.LedgerEntry]{Items: []models.LedgerEntry{}}, nil
}

type stubStock struct{}

func (stubStock) Mutate(context.Context, stock.MutateInput) (stock.Result, error) {
	return stock.Result{}, nil
}

type stubLowStock struct{}

func (stubLowStock) List(context.Context, uuid.UUID) ([]lowstock.Alert, error) {
	return nil, nil
}

type countingOrders struct {
	mu        sync.Mutex
	checkouts int
}

func (s *countingOrders) Checkout(_ context.Context, input orders.CheckoutInput) (*models.Order, error) {
	s.mu.Lock()
	s.checkouts++
	s.mu.Unlock()
	return &models.Order{ID: uuid.New(), StoreID: input.StoreID, Status: enums.OrderStatusCompleted}, nil
}

func (s *countingOrders) Refund(_ context.Context, input orders.ReverseInput) (*models.Order, error) {
	return &models.Order{ID: input.OrderID, Status: enums.OrderStatusRefunded}, nil
}

func (s *countingOrders) Cancel(_ context.Context, input orders.ReverseInput) (*models.Order, error) {
	return &models.Order{ID: input.OrderID, Status: enums.OrderStatusCancelled}, nil
}

func (s *countingOrders) GetOrder(_ context.Context, _, orderID uuid.UUID) (*models.Order, error) {
	return &models.Order{ID: orderID}, nil
}

func (s *countingOrders) ListOrders(context.Context, uuid.UUID, orders.ListParams) (pagination.Page[models.Order], error) {
	return pagination.Page[models.Order]{Items: []models.Order{}}, nil
}

func newTestRouter(t *testing.T) (http.Handler, *countingOrders) {
	t.Helper()
	cfg := &config.Config{
		App:      config.AppConfig{Env: "dev"},
		Checkout: config.CheckoutConfig{IdempotencyTTL: time.Hour},
	}
	ordersSvc := &countingOrders{}
	router := NewRouter(cfg, nil, stubPinger{}, newMemoryCache(), Services{
		Inventory: stubInventory{},
		Ledger:    stubLedger{},
		Stock:     stubStock{},
		LowStock:  stubLowStock{},
		Orders:    ordersSvc,
	})
	return router, ordersSvc
}

func TestHealthRoutes(t *testing.T) {
	router, _ := newTestRouter(t)
	for _, path := range []string{"/health/live", "/health/ready", "/metrics"} {
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
		if resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 got %d", path, resp.Code)
		}
	}
}

func TestStoreRoutesRejectMalformedStoreID(t *testing.T) {
	router, _ := newTestRouter(t)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/stores/not-a-uuid/inventory", nil))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestStoreRoutesRejectMalformedActor(t *testing.T) {
	router, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/stores/"+uuid.NewString()+"/low-stock", nil)
	req.Header.Set(middleware.ActorHeader, "bob")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestReadRoutesResolve(t *testing.T) {
	router, _ := newTestRouter(t)
	base := "/api/v1/stores/" + uuid.NewString()
	productID := uuid.NewString()
	for _, path := range []string{
		base + "/inventory",
		base + "/inventory/" + productID,
		base + "/inventory/" + productID + "/movements",
		base + "/low-stock",
		base + "/orders",
		base + "/orders/" + uuid.NewString(),
	} {
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
		if resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 got %d: %s", path, resp.Code, resp.Body.String())
		}
	}
}

func checkoutRequest(storeID, actorID string, key string) *http.Request {
	body := `{"lines":[{"product_id":"` + uuid.NewString() + `","quantity":1}],"payment_method":"cash","expected_total":"2.00"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/stores/"+storeID+"/checkout", strings.NewReader(body))
	req.Header.Set(middleware.ActorHeader, actorID)
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	return req
}

func TestCheckoutRequiresIdempotencyKey(t *testing.T) {
	router, ordersSvc := newTestRouter(t)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, checkoutRequest(uuid.NewString(), uuid.NewString(), ""))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if ordersSvc.checkouts != 0 {
		t.Fatalf("checkout should not run without a key")
	}
}

func TestCheckoutReplaysStoredResponse(t *testing.T) {
	router, ordersSvc := newTestRouter(t)
	storeID, actorID := uuid.NewString(), uuid.NewString()

	body := `{"lines":[{"product_id":"` + uuid.NewString() + `","quantity":1}],"payment_method":"cash","expected_total":"2.00"}`
	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/stores/"+storeID+"/checkout", strings.NewReader(body))
		req.Header.Set(middleware.ActorHeader, actorID)
		req.Header.Set("Idempotency-Key", "register-7-sale-42")
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		return resp
	}

	first := send()
	second := send()
	if first.Code != http.StatusCreated || second.Code != http.StatusCreated {
		t.Fatalf("expected 201 twice got %d and %d", first.Code, second.Code)
	}
	if first.Body.String() != second.Body.String() {
		t.Fatalf("expected replayed body")
	}
	if ordersSvc.checkouts != 1 {
		t.Fatalf("expected one checkout got %d", ordersSvc.checkouts)
	}
}

func TestReadRoutesIgnoreIdempotency(t *testing.T) {
	router, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/stores/"+uuid.NewString()+"/orders", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}
