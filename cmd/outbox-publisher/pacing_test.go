package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacerDoublesUntilCeiling(t *testing.T) {
	p := newPacer(100*time.Millisecond, time.Second)

	assert.Equal(t, 200*time.Millisecond, p.failed())
	assert.Equal(t, 400*time.Millisecond, p.failed())
	assert.Equal(t, 800*time.Millisecond, p.failed())
	assert.Equal(t, time.Second, p.failed())
	assert.Equal(t, time.Second, p.failed())
	assert.Equal(t, 100*time.Millisecond, p.idle())
}

func TestJitterStaysWithinWindow(t *testing.T) {
	for range 50 {
		got := jitter(time.Second)
		assert.GreaterOrEqual(t, got, time.Second)
		assert.Less(t, got, time.Second+jitterWindow)
	}
	assert.Zero(t, jitter(0))
}

func TestWaitReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, wait(ctx, time.Hour), context.Canceled)
}

func TestRetryDelayGrowsToCap(t *testing.T) {
	assert.Equal(t, retryBase, retryDelay(0))
	assert.Equal(t, retryBase, retryDelay(-1))
	assert.Equal(t, 4*retryBase, retryDelay(2))
	assert.Equal(t, retryCap, retryDelay(10))
	assert.Equal(t, retryCap, retryDelay(1000))
}
