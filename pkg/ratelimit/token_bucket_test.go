package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced Clock. Timers fire only on Advance.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []fakeTimer
}

type fakeTimer struct {
	at time.Time
	ch chan time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- c.now
		return ch
	}
	c.timers = append(c.timers, fakeTimer{at: c.now.Add(d), ch: ch})
	return ch
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
	pending := c.timers[:0]
	for _, timer := range c.timers {
		if timer.at.After(c.now) {
			pending = append(pending, timer)
			continue
		}
		timer.ch <- c.now
	}
	c.timers = pending
}

func (c *fakeClock) PendingTimers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

func newTestBucket(t *testing.T, capacity int, rate float64, clock Clock) *TokenBucket {
	t.Helper()
	bucket, err := NewTokenBucket(Config{Name: "test", Capacity: capacity, RefillRate: rate}, WithClock(clock))
	require.NoError(t, err)
	return bucket
}

const (
	waitFor = 2 * time.Second
	tick    = time.Millisecond
)

func TestNewTokenBucket_InvalidConfig(t *testing.T) {
	_, err := NewTokenBucket(Config{Name: "bad", Capacity: 0, RefillRate: 1})
	assert.Error(t, err)

	_, err = NewTokenBucket(Config{Name: "bad", Capacity: 1, RefillRate: 0})
	assert.Error(t, err)
}

func TestTokenBucket_StartsFull(t *testing.T) {
	clock := newFakeClock()
	bucket := newTestBucket(t, 10, 1, clock)

	assert.InDelta(t, 10.0, bucket.Tokens(), 1e-9)
	assert.Equal(t, "test", bucket.Name())
}

func TestTokenBucket_RejectsImpossibleRequests(t *testing.T) {
	clock := newFakeClock()
	bucket := newTestBucket(t, 5, 1, clock)

	tests := []struct {
		name string
		n    int
	}{
		{"zero tokens", 0},
		{"negative tokens", -3},
		{"more than capacity", 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := bucket.Acquire(context.Background(), tt.n)
			assert.ErrorIs(t, err, ErrExceedsCapacity)
		})
	}

	// rejected requests must not consume tokens
	assert.InDelta(t, 5.0, bucket.Tokens(), 1e-9)
}

func TestTokenBucket_TokensNeverExceedCapacity(t *testing.T) {
	clock := newFakeClock()
	bucket := newTestBucket(t, 5, 2, clock)

	require.NoError(t, bucket.Acquire(context.Background(), 3))
	assert.InDelta(t, 2.0, bucket.Tokens(), 1e-9)

	clock.Advance(500 * time.Millisecond)
	assert.InDelta(t, 3.0, bucket.Tokens(), 1e-9)

	clock.Advance(time.Hour)
	assert.InDelta(t, 5.0, bucket.Tokens(), 1e-9)

	require.NoError(t, bucket.Acquire(context.Background(), 5))
	tokens := bucket.Tokens()
	assert.GreaterOrEqual(t, tokens, 0.0)
	assert.LessOrEqual(t, tokens, 5.0)
}

func TestTokenBucket_FIFOUnderSaturation(t *testing.T) {
	// capacity 100 refilling at 100/s: 100 immediate grants, then one every 10ms.
	clock := newFakeClock()
	bucket := newTestBucket(t, 100, 100, clock)

	var (
		granted atomic.Int64
		orderMu sync.Mutex
		order   []int
		wg      sync.WaitGroup
	)

	for i := 0; i < 150; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if err := bucket.Acquire(context.Background(), 1); err != nil {
				t.Errorf("request %d: unexpected error: %v", id, err)
				return
			}
			orderMu.Lock()
			order = append(order, id)
			orderMu.Unlock()
			granted.Add(1)
		}(i)

		// Launch strictly in sequence so arrival order is known.
		want := int64(i + 1)
		require.Eventually(t, func() bool {
			return granted.Load()+int64(bucket.Waiting()) == want
		}, waitFor, tick)
	}

	assert.Equal(t, int64(100), granted.Load())
	assert.Equal(t, 50, bucket.Waiting())

	for k := 0; k < 50; k++ {
		require.Eventually(t, func() bool { return clock.PendingTimers() == 1 }, waitFor, tick)
		clock.Advance(10 * time.Millisecond)

		want := int64(101 + k)
		require.Eventually(t, func() bool { return granted.Load() == want }, waitFor, tick)
	}

	wg.Wait()
	assert.Equal(t, 0, bucket.Waiting())

	expected := make([]int, 150)
	for i := range expected {
		expected[i] = i
	}
	assert.Equal(t, expected, order)
}

func TestTokenBucket_NoBarging(t *testing.T) {
	clock := newFakeClock()
	bucket := newTestBucket(t, 2, 1, clock)
	require.NoError(t, bucket.Acquire(context.Background(), 2))

	bigDone := make(chan error, 1)
	go func() { bigDone <- bucket.Acquire(context.Background(), 2) }()
	require.Eventually(t, func() bool { return bucket.Waiting() == 1 }, waitFor, tick)

	// one token is available now, but the queued request for two comes first
	clock.Advance(time.Second)

	smallDone := make(chan error, 1)
	go func() { smallDone <- bucket.Acquire(context.Background(), 1) }()
	require.Eventually(t, func() bool { return bucket.Waiting() == 2 }, waitFor, tick)

	select {
	case err := <-smallDone:
		t.Fatalf("later request overtook the queue: err=%v", err)
	default:
	}

	clock.Advance(time.Second)
	require.NoError(t, <-bigDone)

	require.Eventually(t, func() bool { return clock.PendingTimers() == 1 }, waitFor, tick)
	clock.Advance(time.Second)
	require.NoError(t, <-smallDone)
	assert.Equal(t, 0, bucket.Waiting())
}

func TestTokenBucket_CanceledWaiterLeavesQueue(t *testing.T) {
	clock := newFakeClock()
	bucket := newTestBucket(t, 1, 1, clock)
	require.NoError(t, bucket.Acquire(context.Background(), 1))

	ctx, cancel := context.WithCancel(context.Background())
	firstDone := make(chan error, 1)
	go func() { firstDone <- bucket.Acquire(ctx, 1) }()
	require.Eventually(t, func() bool { return bucket.Waiting() == 1 }, waitFor, tick)

	secondDone := make(chan error, 1)
	go func() { secondDone <- bucket.Acquire(context.Background(), 1) }()
	require.Eventually(t, func() bool { return bucket.Waiting() == 2 }, waitFor, tick)

	cancel()
	err := <-firstDone
	assert.True(t, errors.Is(err, context.Canceled), "expected context.Canceled, got %v", err)
	require.Eventually(t, func() bool { return bucket.Waiting() == 1 }, waitFor, tick)

	// the canceled head's timer is still registered alongside the new head's
	require.Eventually(t, func() bool { return clock.PendingTimers() == 2 }, waitFor, tick)
	clock.Advance(time.Second)

	require.NoError(t, <-secondDone)
	assert.Equal(t, 0, bucket.Waiting())
}

func TestTokenBucket_AlreadyCanceledContext(t *testing.T) {
	clock := newFakeClock()
	bucket := newTestBucket(t, 1, 1, clock)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := bucket.Acquire(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.InDelta(t, 1.0, bucket.Tokens(), 1e-9)
}

func TestTokenBucket_DeadlineWhileWaiting(t *testing.T) {
	bucket, err := NewTokenBucket(Config{Name: "slow", Capacity: 1, RefillRate: 0.001})
	require.NoError(t, err)
	require.NoError(t, bucket.Acquire(context.Background(), 1))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err = bucket.Acquire(ctx, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, bucket.Waiting())
}

func TestTokenBucket_ConcurrentCallersWithSystemClock(t *testing.T) {
	bucket, err := NewTokenBucket(Config{Name: "fast", Capacity: 10, RefillRate: 1000})
	require.NoError(t, err)

	var wg sync.WaitGroup
	var granted atomic.Int64
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := bucket.Acquire(context.Background(), 1); err == nil {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), granted.Load())
	assert.LessOrEqual(t, bucket.Tokens(), 10.0)
}
