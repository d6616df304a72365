package notifier

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntervalLimiter_PacesParts(t *testing.T) {
	// Arrange
	limiter := NewIntervalLimiter(50 * time.Millisecond)
	ctx := context.Background()

	// Act
	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, limiter.Allow(ctx))
	}
	elapsed := time.Since(start)

	// Assert: the first part is immediate, the next two wait one interval each
	assert.GreaterOrEqual(t, elapsed, 90*time.Millisecond)
	assert.Less(t, elapsed, time.Second)
}

func TestIntervalLimiter_Disabled(t *testing.T) {
	for _, interval := range []time.Duration{0, -time.Second} {
		limiter := NewIntervalLimiter(interval)

		start := time.Now()
		for i := 0; i < 20; i++ {
			require.NoError(t, limiter.Allow(context.Background()))
		}

		assert.Less(t, time.Since(start), 50*time.Millisecond, "interval %v", interval)
	}
}

func TestRateLimiter_Burst(t *testing.T) {
	limiter := NewRateLimiter(1.0, 3)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, limiter.Allow(ctx))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	deadline, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	assert.Error(t, limiter.Allow(deadline), "fourth part must wait past the deadline")
}

func TestRateLimiter_ContextCanceled(t *testing.T) {
	// Arrange
	limiter := NewIntervalLimiter(time.Hour)
	require.NoError(t, limiter.Allow(context.Background()))
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- limiter.Allow(ctx) }()

	// Act
	cancel()

	// Assert
	select {
	case err := <-errCh:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("Allow did not return after cancellation")
	}
}
