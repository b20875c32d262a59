package cron

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Job is one unit of scheduled inventory maintenance.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type entry struct {
	job     Job
	every   time.Duration
	lastRun time.Time
}

// Registry holds the worker's jobs and when each last succeeded. A job
// registered with a zero cadence is due on every cycle.
type Registry struct {
	mu      sync.Mutex
	entries []*entry
	byName  map[string]*entry
}

// NewRegistry builds a registry whose jobs run on every cycle. Nil jobs and
// duplicate names are skipped.
func NewRegistry(jobs ...Job) *Registry {
	registry := &Registry{byName: map[string]*entry{}}
	for _, job := range jobs {
		_ = registry.RegisterEvery(job, 0)
	}
	return registry
}

// Register adds a job that runs on every cycle.
func (r *Registry) Register(job Job) error {
	return r.RegisterEvery(job, 0)
}

// RegisterEvery adds a job that runs at most once per cadence.
func (r *Registry) RegisterEvery(job Job, every time.Duration) error {
	if job == nil {
		return fmt.Errorf("job required")
	}
	if every < 0 {
		return fmt.Errorf("job %s: cadence must not be negative", job.Name())
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[job.Name()]; exists {
		return fmt.Errorf("job %s already registered", job.Name())
	}
	e := &entry{job: job, every: every}
	r.entries = append(r.entries, e)
	r.byName[job.Name()] = e
	return nil
}

// Jobs returns every registered job in registration order.
func (r *Registry) Jobs() []Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	jobs := make([]Job, 0, len(r.entries))
	for _, e := range r.entries {
		jobs = append(jobs, e.job)
	}
	return jobs
}

// Due returns the jobs whose cadence has elapsed at now.
func (r *Registry) Due(now time.Time) []Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	var jobs []Job
	for _, e := range r.entries {
		if e.every == 0 || e.lastRun.IsZero() || !now.Before(e.lastRun.Add(e.every)) {
			jobs = append(jobs, e.job)
		}
	}
	return jobs
}

// MarkRun records a successful run so cadenced jobs wait out their interval.
func (r *Registry) MarkRun(name string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.byName[name]; ok {
		e.lastRun = at
	}
}
