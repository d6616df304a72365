package ratelimit

import (
	"fmt"
	"time"
)

// Config describes a token bucket.
type Config struct {
	// Name identifies the limiter in logs and metrics (e.g. "oura", "telegram").
	Name string

	// Capacity is the maximum number of tokens the bucket holds.
	// The bucket starts full.
	Capacity int

	// RefillRate is the number of tokens added per second.
	RefillRate float64
}

// PerWindow builds a Config that allows limit requests per window,
// e.g. PerWindow("oura", 100, time.Minute).
func PerWindow(name string, limit int, window time.Duration) Config {
	return Config{
		Name:       name,
		Capacity:   limit,
		RefillRate: float64(limit) / window.Seconds(),
	}
}

// Validate checks that the bucket can ever grant a token.
func (c Config) Validate() error {
	if c.Capacity < 1 {
		return fmt.Errorf("capacity must be at least 1, got %d", c.Capacity)
	}
	if c.RefillRate <= 0 {
		return fmt.Errorf("refill rate must be positive, got %v", c.RefillRate)
	}
	return nil
}
