package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
)

// ErrExceedsCapacity is returned when a caller asks for fewer than one token
// or for more tokens than the bucket can ever hold.
var ErrExceedsCapacity = errors.New("requested tokens exceed bucket capacity")

// epsilon absorbs float rounding in refill arithmetic.
const epsilon = 1e-9

// waiter is a queued Acquire call. wake is signalled when it becomes the head.
type waiter struct {
	n    float64
	wake chan struct{}
}

// TokenBucket is a token-bucket rate limiter.
//
// Tokens refill lazily on every call: elapsed time since the last refill is
// converted into tokens and capped at capacity. A caller that cannot be served
// immediately joins a FIFO queue. Only the head of the queue sleeps on a timer,
// computed from its deficit and the refill rate; the others sleep until they
// become the head. New callers never overtake queued ones.
//
// All state is guarded by mu. The zero value is not usable; use NewTokenBucket.
type TokenBucket struct {
	name     string
	capacity float64
	rate     float64
	clock    Clock
	metrics  Metrics

	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
	queue      []*waiter
}

// Option configures a TokenBucket.
type Option func(*TokenBucket)

// WithClock overrides the clock used for refill and wait timers.
func WithClock(clock Clock) Option {
	return func(b *TokenBucket) { b.clock = clock }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m Metrics) Option {
	return func(b *TokenBucket) { b.metrics = m }
}

// NewTokenBucket creates a full bucket from cfg.
func NewTokenBucket(cfg Config, opts ...Option) (*TokenBucket, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid token bucket %q: %w", cfg.Name, err)
	}

	b := &TokenBucket{
		name:     cfg.Name,
		capacity: float64(cfg.Capacity),
		rate:     cfg.RefillRate,
		clock:    &SystemClock{},
		metrics:  NewNoOpMetrics(),
		tokens:   float64(cfg.Capacity),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.lastRefill = b.clock.Now()
	return b, nil
}

// Name returns the limiter name.
func (b *TokenBucket) Name() string {
	return b.name
}

// Acquire blocks until n tokens are granted or ctx is done.
//
// The only errors are ErrExceedsCapacity for an impossible request and
// ctx.Err() when the caller gives up; a canceled waiter is removed from the
// queue and the next waiter is woken.
func (b *TokenBucket) Acquire(ctx context.Context, n int) error {
	if n < 1 || float64(n) > b.capacity {
		return fmt.Errorf("%w: requested %d, capacity %v", ErrExceedsCapacity, n, b.capacity)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	need := float64(n)
	start := b.clock.Now()

	b.mu.Lock()
	b.refill(start)
	if len(b.queue) == 0 && b.tokens+epsilon >= need {
		b.take(need)
		b.mu.Unlock()
		b.metrics.ObserveWait(b.name, 0)
		return nil
	}

	w := &waiter{n: need, wake: make(chan struct{}, 1)}
	b.queue = append(b.queue, w)
	b.metrics.SetWaiting(b.name, len(b.queue))

	for {
		var timer <-chan time.Time
		if b.queue[0] == w {
			now := b.clock.Now()
			b.refill(now)
			if b.tokens+epsilon >= need {
				b.take(need)
				b.dequeueHead()
				b.mu.Unlock()
				b.metrics.ObserveWait(b.name, now.Sub(start))
				return nil
			}
			timer = b.clock.After(b.waitFor(need - b.tokens))
		}
		b.mu.Unlock()

		// timer is nil unless w is the head, so only the head wakes on refill.
		select {
		case <-ctx.Done():
			b.mu.Lock()
			b.remove(w)
			b.mu.Unlock()
			b.metrics.RecordCanceled(b.name)
			return ctx.Err()
		case <-w.wake:
		case <-timer:
		}

		b.mu.Lock()
	}
}

// Tokens returns the number of tokens that would be available now.
func (b *TokenBucket) Tokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	elapsed := b.clock.Now().Sub(b.lastRefill)
	if elapsed <= 0 {
		return b.tokens
	}
	return math.Min(b.capacity, b.tokens+elapsed.Seconds()*b.rate)
}

// Waiting returns the number of queued callers.
func (b *TokenBucket) Waiting() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// refill must be called with mu held.
func (b *TokenBucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastRefill)
	if elapsed <= 0 {
		return
	}
	b.tokens = math.Min(b.capacity, b.tokens+elapsed.Seconds()*b.rate)
	b.lastRefill = now
}

// take must be called with mu held and enough tokens available.
func (b *TokenBucket) take(n float64) {
	b.tokens -= n
	if b.tokens < 0 {
		b.tokens = 0
	}
}

// waitFor converts a token deficit into the time needed to refill it.
func (b *TokenBucket) waitFor(deficit float64) time.Duration {
	d := time.Duration(math.Round(deficit / b.rate * float64(time.Second)))
	if d < time.Nanosecond {
		d = time.Nanosecond
	}
	return d
}

// dequeueHead pops the head and wakes the new head. mu must be held.
func (b *TokenBucket) dequeueHead() {
	b.queue[0] = nil
	b.queue = b.queue[1:]
	b.wakeHead()
	b.metrics.SetWaiting(b.name, len(b.queue))
}

// remove drops w from the queue, waking the next head if w was the head.
// mu must be held.
func (b *TokenBucket) remove(w *waiter) {
	for i, q := range b.queue {
		if q != w {
			continue
		}
		b.queue = append(b.queue[:i], b.queue[i+1:]...)
		if i == 0 {
			b.wakeHead()
		}
		break
	}
	b.metrics.SetWaiting(b.name, len(b.queue))
}

func (b *TokenBucket) wakeHead() {
	if len(b.queue) == 0 {
		return
	}
	select {
	case b.queue[0].wake <- struct{}{}:
	default:
	}
}
