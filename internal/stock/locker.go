package stock

import (
	"sync"

	"github.com/google/uuid"
)

// KeyedLocker hands out one mutex per (store, product) key. Entries are
// reference counted and dropped when the last holder unlocks, so the map
// only holds keys that are in use.
type KeyedLocker struct {
	mu    sync.Mutex
	locks map[lockKey]*keyedMutex
}

type lockKey struct {
	storeID   uuid.UUID
	productID uuid.UUID
}

type keyedMutex struct {
	mu   sync.Mutex
	refs int
}

// NewKeyedLocker returns an empty locker.
func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{locks: make(map[lockKey]*keyedMutex)}
}

// Lock blocks until the key is free and returns its release func. The
// release func must be called exactly once.
func (l *KeyedLocker) Lock(storeID, productID uuid.UUID) func() {
	key := lockKey{storeID: storeID, productID: productID}

	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &keyedMutex{}
		l.locks[key] = m
	}
	m.refs++
	l.mu.Unlock()

	m.mu.Lock()

	return func() {
		m.mu.Unlock()

		l.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}

// Len reports how many keys are currently held or awaited.
func (l *KeyedLocker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
