package cron

import (
	"context"
	"testing"
	"time"
)

type memoryLockStore struct {
	values map[string]string
}

func newMemoryLockStore() *memoryLockStore {
	return &memoryLockStore{values: map[string]string{}}
}

func (m *memoryLockStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	return true, nil
}

func (m *memoryLockStore) CompareAndDelete(_ context.Context, key, expected string) (bool, error) {
	if m.values[key] != expected {
		return false, nil
	}
	delete(m.values, key)
	return true, nil
}

func (m *memoryLockStore) LockKey(name string) string {
	return "posledger:lock:" + name
}

func TestRedisLockIsExclusive(t *testing.T) {
	store := newMemoryLockStore()
	first, err := NewRedisLock(store, "cron-worker:dev", time.Minute)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}
	second, _ := NewRedisLock(store, "cron-worker:dev", time.Minute)

	ctx := context.Background()
	if ok, err := first.Acquire(ctx); err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	if ok, _ := second.Acquire(ctx); ok {
		t.Fatalf("second replica must not acquire a held lock")
	}
	if err := first.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ := second.Acquire(ctx); !ok {
		t.Fatalf("expected second replica to acquire after release")
	}
	if _, held := store.values["posledger:lock:cron-worker:dev"]; !held {
		t.Fatalf("expected namespaced lock key")
	}
}

func TestRedisLockDoesNotReleaseForeignLease(t *testing.T) {
	store := newMemoryLockStore()
	lock, _ := NewRedisLock(store, "cron-worker:dev", time.Minute)
	ctx := context.Background()
	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatalf("expected acquire")
	}

	// Simulate lease expiry followed by another replica claiming the key.
	store.values["posledger:lock:cron-worker:dev"] = "other-replica"
	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if store.values["posledger:lock:cron-worker:dev"] != "other-replica" {
		t.Fatalf("foreign lease was released")
	}
}

func TestNewRedisLockValidation(t *testing.T) {
	if _, err := NewRedisLock(nil, "x", time.Minute); err == nil {
		t.Fatalf("expected nil store error")
	}
	if _, err := NewRedisLock(newMemoryLockStore(), "", time.Minute); err == nil {
		t.Fatalf("expected name error")
	}
	lock, _ := NewRedisLock(newMemoryLockStore(), "x", 0)
	if lock.TTL() != defaultLockTTL {
		t.Fatalf("expected default ttl, got %s", lock.TTL())
	}
}
