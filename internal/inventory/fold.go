package inventory

import "github.com/angelmondragon/posledger-backend/pkg/db/models"

// Fold sums ledger deltas. Addition commutes, so entry order is irrelevant.
func Fold(entries []models.LedgerEntry) int {
	total := 0
	for _, entry := range entries {
		total += entry.Delta
	}
	return total
}

// LowStock is the low-stock predicate: quantity at or below the minimum.
func LowStock(quantity, minQuantity int) bool {
	return quantity <= minQuantity
}
