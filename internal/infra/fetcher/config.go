package fetcher

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// DefaultOuraBaseURL is the Oura API v2 user collection root.
const DefaultOuraBaseURL = "https://api.ouraring.com/v2/usercollection"

// OuraConfig holds the HTTP settings shared by every tenant's Oura fetcher.
// Credentials are per tenant and passed to NewOuraFetcher separately.
type OuraConfig struct {
	// BaseURL is the API root. Overridden in tests.
	// Default: DefaultOuraBaseURL
	BaseURL string

	// Timeout is the maximum duration for a single HTTP request.
	// Default: 30s
	Timeout time.Duration

	// MaxBodySize is the maximum HTTP response body size in bytes.
	// Intraday heart rate responses are the largest payload.
	// Default: 10485760 (10MB)
	MaxBodySize int64

	// RequestsPerMinute limits requests per access token.
	// Default: 100
	RequestsPerMinute int
}

// DefaultConfig returns the default Oura client configuration.
//
// Example:
//
//	config := DefaultConfig()
//	config.Timeout = 10 * time.Second
//	f, err := NewOuraFetcher(token, config)
func DefaultConfig() OuraConfig {
	return OuraConfig{
		BaseURL:           DefaultOuraBaseURL,
		Timeout:           30 * time.Second,
		MaxBodySize:       10 * 1024 * 1024, // 10MB
		RequestsPerMinute: 100,
	}
}

// Validate checks if the configuration values are valid.
//
// Validation rules:
//   - BaseURL: non-empty
//   - Timeout: > 0
//   - MaxBodySize: 1KB-100MB
//   - RequestsPerMinute: 1-5000
func (c *OuraConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL must not be empty")
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", c.Timeout)
	}

	minBodySize := int64(1024)              // 1KB
	maxBodySize := int64(100 * 1024 * 1024) // 100MB
	if c.MaxBodySize < minBodySize || c.MaxBodySize > maxBodySize {
		return fmt.Errorf("max body size must be between %d and %d bytes, got %d", minBodySize, maxBodySize, c.MaxBodySize)
	}

	if c.RequestsPerMinute < 1 || c.RequestsPerMinute > 5000 {
		return fmt.Errorf("requests per minute must be between 1 and 5000, got %d", c.RequestsPerMinute)
	}

	return nil
}

// LoadConfigFromEnv loads configuration from environment variables.
// If a variable is not set, the default value is used; a malformed value is an error.
//
// Environment variables:
//   - OURA_API_BASE_URL: URL (default: DefaultOuraBaseURL)
//   - OURA_REQUEST_TIMEOUT: duration string, e.g., "30s" (default: 30s)
//   - OURA_MAX_BODY_SIZE: integer in bytes (default: 10485760)
//   - OURA_REQUESTS_PER_MINUTE: integer (default: 100)
func LoadConfigFromEnv() (OuraConfig, error) {
	cfg := DefaultConfig()

	if val := os.Getenv("OURA_API_BASE_URL"); val != "" {
		cfg.BaseURL = val
	}

	if val := os.Getenv("OURA_REQUEST_TIMEOUT"); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			cfg.Timeout = parsed
		} else {
			return cfg, fmt.Errorf("invalid OURA_REQUEST_TIMEOUT: %v (expected format: '10s', '1m')", err)
		}
	}

	if val := os.Getenv("OURA_MAX_BODY_SIZE"); val != "" {
		if parsed, err := strconv.ParseInt(val, 10, 64); err == nil {
			cfg.MaxBodySize = parsed
		} else {
			return cfg, fmt.Errorf("invalid OURA_MAX_BODY_SIZE: %v", err)
		}
	}

	if val := os.Getenv("OURA_REQUESTS_PER_MINUTE"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			cfg.RequestsPerMinute = parsed
		} else {
			return cfg, fmt.Errorf("invalid OURA_REQUESTS_PER_MINUTE: %v", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}
