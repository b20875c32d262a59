package main

import (
	"context"
	"math/rand/v2"
	"time"
)

const (
	jitterWindow = 250 * time.Millisecond

	retryBase = 2 * time.Second
	retryCap  = 5 * time.Minute
)

// retryDelay is how long a row sits out after failing attempt number attempt
// (zero based).
func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 16 {
		return retryCap
	}
	return min(retryBase<<attempt, retryCap)
}

// pacer decides how long the relay idles between drains. Failures double the
// wait up to ceiling; any successful drain resets it.
type pacer struct {
	base    time.Duration
	ceiling time.Duration
	current time.Duration
}

func newPacer(base, ceiling time.Duration) *pacer {
	if ceiling < base {
		ceiling = base
	}
	return &pacer{base: base, ceiling: ceiling, current: base}
}

func (p *pacer) failed() time.Duration {
	p.current = min(p.current*2, p.ceiling)
	return p.current
}

func (p *pacer) idle() time.Duration {
	p.current = p.base
	return p.current
}

func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + rand.N(jitterWindow)
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
