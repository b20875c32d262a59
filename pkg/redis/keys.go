package redis

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

const (
	keyNamespace = "posledger"

	idempotencyPrefix = "idempotency"
	lockPrefix        = "lock"
	alertPrefix       = "alert"
)

// Keyspace builds every key the service writes so they share one namespace
// and can be listed with a single SCAN pattern.
type Keyspace struct{}

// IdempotencyKey hashes the request scope; scopes embed paths and ids and
// would otherwise make keys unbounded.
func (Keyspace) IdempotencyKey(scope, id string) string {
	id = strings.TrimSpace(id)
	if scope == "" {
		return join(idempotencyPrefix, id)
	}
	sum := sha256.Sum256([]byte(scope))
	return join(idempotencyPrefix, hex.EncodeToString(sum[:12]), id)
}

// LockKey names a distributed job lease.
func (Keyspace) LockKey(name string) string {
	return join(lockPrefix, name)
}

// LowStockAlertKey allows one low-stock alert per store, product and UTC day.
func (Keyspace) LowStockAlertKey(storeID, productID string, day time.Time) string {
	return join(alertPrefix, "low_stock", storeID, productID, day.UTC().Format(time.DateOnly))
}

func join(parts ...string) string {
	var b strings.Builder
	b.WriteString(keyNamespace)
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			b.WriteByte(':')
			b.WriteString(part)
		}
	}
	return b.String()
}
