package dbtest

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/posledger-backend/pkg/db"
	"github.com/angelmondragon/posledger-backend/pkg/db/models"
)

// SeedStore inserts a store and returns it.
func SeedStore(t testing.TB, client *db.Client, name string) models.Store {
	t.Helper()
	store := models.Store{Name: name, Timezone: "UTC"}
	if err := client.DB().Create(&store).Error; err != nil {
		t.Fatalf("seed store: %v", err)
	}
	return store
}

// SeedProduct inserts a product with the given base price, e.g. "4.99".
func SeedProduct(t testing.TB, client *db.Client, name, price string) models.Product {
	t.Helper()
	product := models.Product{
		Name:      name,
		SKU:       "SKU-" + uuid.NewString()[:8],
		BasePrice: decimal.RequireFromString(price),
	}
	if err := client.DB().Create(&product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return product
}
