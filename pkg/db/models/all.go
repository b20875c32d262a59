package models

// All lists every persisted model in dependency order. Used by sqlite
// auto-migration in dev and in tests; Postgres schemas come from goose.
func All() []any {
	return []any{
		&Store{},
		&Category{},
		&Product{},
		&StoreInventory{},
		&LedgerEntry{},
		&Order{},
		&OrderItem{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
