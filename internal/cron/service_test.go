package cron

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/posledger-backend/pkg/logger"
	"github.com/angelmondragon/posledger-backend/pkg/metrics"
)

type fakeLock struct {
	held     bool
	acquires int
	releases int
	err      error
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	f.acquires++
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.releases++
	f.held = false
	return nil
}

func (f *fakeLock) TTL() time.Duration { return time.Minute }

type testJob struct {
	name     string
	err      error
	runs     int
	deadline bool
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(ctx context.Context) error {
	t.runs++
	_, t.deadline = ctx.Deadline()
	return t.err
}

func newTestService(t *testing.T, registry *Registry, lock Lock) *Service {
	t.Helper()
	service, err := NewService(ServiceParams{
		Logger:   logger.Discard(),
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.NewRegistry()),
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	return service
}

func TestServiceRunOnceRunsAllJobsEvenOnFailure(t *testing.T) {
	ok := &testJob{name: "inventory-reconcile"}
	failing := &testJob{name: "low-stock-scan", err: errors.New("redis down")}
	lock := &fakeLock{}
	service := newTestService(t, NewRegistry(failing, ok), lock)

	err := service.RunOnce(context.Background())
	if err == nil || !strings.Contains(err.Error(), "low-stock-scan: redis down") {
		t.Fatalf("expected aggregated job error, got %v", err)
	}
	if ok.runs != 1 || failing.runs != 1 {
		t.Fatalf("expected both jobs to run once, got %d and %d", ok.runs, failing.runs)
	}
	if !ok.deadline {
		t.Fatalf("expected job context bounded by lock ttl")
	}
	if lock.releases != 1 || lock.held {
		t.Fatalf("expected lock released after cycle")
	}
}

func TestServiceRunOnceSkipsWhenLockHeld(t *testing.T) {
	job := &testJob{name: "inventory-reconcile"}
	lock := &fakeLock{held: true}
	service := newTestService(t, NewRegistry(job), lock)

	if err := service.RunOnce(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("job should not run without the lock")
	}
	if lock.releases != 0 {
		t.Fatalf("lock held elsewhere must not be released")
	}
}

func TestServiceRunOnceSurfacesLockError(t *testing.T) {
	service := newTestService(t, NewRegistry(&testJob{name: "a"}), &fakeLock{err: errors.New("timeout")})
	if err := service.RunOnce(context.Background()); err == nil {
		t.Fatalf("expected lock error")
	}
}

func TestServiceRunOnceHonoursCadence(t *testing.T) {
	retention := &testJob{name: "outbox-retention"}
	reconcile := &testJob{name: "inventory-reconcile"}
	registry := NewRegistry(reconcile)
	if err := registry.RegisterEvery(retention, 24*time.Hour); err != nil {
		t.Fatalf("register: %v", err)
	}
	lock := &fakeLock{}
	service := newTestService(t, registry, lock)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return now }

	for range 3 {
		if err := service.RunOnce(context.Background()); err != nil {
			t.Fatalf("run cycle: %v", err)
		}
		now = now.Add(15 * time.Minute)
	}
	if reconcile.runs != 3 {
		t.Fatalf("expected reconcile every cycle, got %d", reconcile.runs)
	}
	if retention.runs != 1 {
		t.Fatalf("expected retention once per day, got %d", retention.runs)
	}

	now = now.Add(24 * time.Hour)
	if err := service.RunOnce(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if retention.runs != 2 {
		t.Fatalf("expected retention to run again after a day, got %d", retention.runs)
	}
}

func TestServiceRetriesFailedCadencedJob(t *testing.T) {
	retention := &testJob{name: "outbox-retention", err: errors.New("db down")}
	registry := NewRegistry()
	if err := registry.RegisterEvery(retention, 24*time.Hour); err != nil {
		t.Fatalf("register: %v", err)
	}
	service := newTestService(t, registry, &fakeLock{})

	_ = service.RunOnce(context.Background())
	retention.err = nil
	if err := service.RunOnce(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if retention.runs != 2 {
		t.Fatalf("expected failed job to be retried next cycle, got %d runs", retention.runs)
	}
}

func TestServiceRunStopsOnCancel(t *testing.T) {
	job := &testJob{name: "inventory-reconcile"}
	service := newTestService(t, NewRegistry(job), &fakeLock{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := service.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if job.runs != 1 {
		t.Fatalf("expected the startup cycle to run once, got %d", job.runs)
	}
}

type panickyJob struct{}

func (panickyJob) Name() string { return "broken" }

func (panickyJob) Run(context.Context) error { panic("nil map") }

func TestServiceRunOnceIsolatesPanickingJob(t *testing.T) {
	after := &testJob{name: "inventory-reconcile"}
	lock := &fakeLock{}
	service := newTestService(t, NewRegistry(panickyJob{}, after), lock)

	err := service.RunOnce(context.Background())
	if err == nil || !strings.Contains(err.Error(), "broken: panic: nil map") {
		t.Fatalf("expected panic surfaced as job error, got %v", err)
	}
	if after.runs != 1 {
		t.Fatalf("jobs after a panic must still run")
	}
	if lock.held {
		t.Fatalf("lock must be released after a panic")
	}
}
