package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRunScheduledInvalidSpec(t *testing.T) {
	err := RunScheduled(context.Background(), "not a schedule", zap.NewNop(), func(context.Context) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid schedule")
}

func TestRunScheduledRunsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2500*time.Millisecond)
	defer cancel()

	var runs atomic.Int32
	err := RunScheduled(ctx, "@every 1s", nil, func(context.Context) {
		runs.Add(1)
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, runs.Load(), int32(1))
}

func TestRunScheduledSkipsOverlappingTicks(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3500*time.Millisecond)
	defer cancel()

	var runs, concurrent, maxConcurrent atomic.Int32
	err := RunScheduled(ctx, "@every 1s", nil, func(ctx context.Context) {
		runs.Add(1)
		n := concurrent.Add(1)
		if n > maxConcurrent.Load() {
			maxConcurrent.Store(n)
		}
		select {
		case <-time.After(2500 * time.Millisecond):
		case <-ctx.Done():
		}
		concurrent.Add(-1)
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), maxConcurrent.Load())
	assert.GreaterOrEqual(t, runs.Load(), int32(1))
}
