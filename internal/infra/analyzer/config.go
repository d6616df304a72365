// Package analyzer turns one day of health data into a narrative summary
// using a hosted LLM.
//
// Analyzers are shared by every tenant and hold no per-call state. Each one
// owns its retry policy and circuit breaker; failures surface as
// *entity.AnalysisError once those are spent.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"health-assistant/internal/domain/entity"
	"health-assistant/internal/resilience/retry"
)

// Supported providers.
const (
	ProviderAzureOpenAI = "azure_openai"
	ProviderOpenAI      = "openai"
	ProviderClaude      = "claude"
	ProviderNoOp        = "noop"
)

const (
	// DefaultMaxSummaryRunes keeps a summary within one Telegram message
	// after the header is prepended.
	DefaultMaxSummaryRunes = 3500

	DefaultTemperature     = 0.7
	DefaultMaxTokens       = 1500
	DefaultAzureAPIVersion = "2024-02-01"
	DefaultOpenAIModel     = "gpt-4o-mini"
	DefaultClaudeModel     = "claude-sonnet-4-5-20250929"
	DefaultTimeout         = 60 * time.Second
)

// ErrEmptySummary is wrapped when the provider answers without any text.
var ErrEmptySummary = errors.New("analyzer returned an empty summary")

// Analyzer produces a summary for one health record.
type Analyzer interface {
	Analyze(ctx context.Context, record *entity.HealthRecord) (string, error)
}

// Config selects and configures an analyzer.
type Config struct {
	// Provider is one of azure_openai, openai, claude or noop.
	Provider string

	// Endpoint is the Azure resource endpoint. For openai and claude it
	// overrides the public API base URL when set.
	Endpoint string

	APIKey string

	// Deployment is the Azure deployment name. Required for azure_openai.
	Deployment string

	// APIVersion is the Azure REST API version.
	APIVersion string

	Model       string
	Temperature float64
	MaxTokens   int

	// Timeout bounds a single provider call. Retries get a fresh timeout.
	Timeout time.Duration

	// MaxSummaryRunes caps the returned summary.
	MaxSummaryRunes int

	// Policy is the retry policy. The zero value means retry.AnalyzePolicy().
	Policy retry.Policy
}

// WithDefaults fills unset fields.
func (c Config) WithDefaults() Config {
	if c.Temperature == 0 {
		c.Temperature = DefaultTemperature
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxSummaryRunes == 0 {
		c.MaxSummaryRunes = DefaultMaxSummaryRunes
	}
	if c.Policy == (retry.Policy{}) {
		c.Policy = retry.AnalyzePolicy()
	}
	switch c.Provider {
	case ProviderAzureOpenAI:
		if c.APIVersion == "" {
			c.APIVersion = DefaultAzureAPIVersion
		}
		if c.Model == "" {
			c.Model = c.Deployment
		}
	case ProviderOpenAI:
		if c.Model == "" {
			c.Model = DefaultOpenAIModel
		}
	case ProviderClaude:
		if c.Model == "" {
			c.Model = DefaultClaudeModel
		}
	}
	return c
}

// Validate checks the configuration for the selected provider.
func (c Config) Validate() error {
	var errs []error
	switch c.Provider {
	case ProviderNoOp:
		return nil
	case ProviderAzureOpenAI:
		if c.Endpoint == "" {
			errs = append(errs, errors.New("endpoint is required for azure_openai"))
		} else if err := entity.ValidateHTTPSURL("endpoint", c.Endpoint, ""); err != nil {
			errs = append(errs, err)
		}
		if c.Deployment == "" {
			errs = append(errs, errors.New("deployment is required for azure_openai"))
		}
	case ProviderOpenAI, ProviderClaude:
	default:
		return fmt.Errorf("unknown analyzer provider %q", c.Provider)
	}

	if c.APIKey == "" {
		errs = append(errs, errors.New("api key is required"))
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		errs = append(errs, fmt.Errorf("temperature must be between 0 and 2, got %v", c.Temperature))
	}
	if c.MaxTokens < 1 {
		errs = append(errs, fmt.Errorf("max tokens must be positive, got %d", c.MaxTokens))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive, got %v", c.Timeout))
	}
	if c.MaxSummaryRunes < 100 {
		errs = append(errs, fmt.Errorf("max summary runes must be at least 100, got %d", c.MaxSummaryRunes))
	}
	if err := c.Policy.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("retry policy: %w", err))
	}
	return errors.Join(errs...)
}

// New builds the analyzer selected by cfg.Provider.
func New(cfg Config, opts ...Option) (Analyzer, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid analyzer config: %w", err)
	}

	switch cfg.Provider {
	case ProviderAzureOpenAI, ProviderOpenAI:
		return NewOpenAI(cfg, opts...)
	case ProviderClaude:
		return NewClaude(cfg, opts...)
	default:
		return NewNoOp(cfg.MaxSummaryRunes), nil
	}
}
