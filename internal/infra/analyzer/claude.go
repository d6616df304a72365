package analyzer

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"health-assistant/internal/domain/entity"
	"health-assistant/internal/resilience/circuitbreaker"
)

// Claude analyzes health records with Anthropic's Messages API.
type Claude struct {
	client anthropic.Client
	model  string
	exec   *executor
}

// NewClaude creates a Claude analyzer.
// The SDK's own retries are disabled; the executor owns the retry policy.
func NewClaude(cfg Config, opts ...Option) (*Claude, error) {
	cfg.Provider = ProviderClaude
	cfg = cfg.WithDefaults()
	if cfg.APIKey == "" {
		return nil, errors.New("claude analyzer: api key is required")
	}

	o := buildOptions(ProviderClaude, cfg, opts, circuitbreaker.ClaudeAPIConfig())

	clientOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(o.httpClient),
		option.WithMaxRetries(0),
	}
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.Endpoint))
	}

	c := &Claude{
		client: anthropic.NewClient(clientOpts...),
		model:  cfg.Model,
	}
	c.exec = &executor{
		provider: ProviderClaude,
		cfg:      cfg,
		complete: c.complete,
		classify: classifyClaudeError,
		options:  o,
	}

	o.logger.Info("initialized analyzer",
		slog.String("model", cfg.Model),
		slog.Int("max_tokens", cfg.MaxTokens),
		slog.Int("max_summary_runes", cfg.MaxSummaryRunes))
	return c, nil
}

// Analyze implements pipeline.Analyzer.
func (c *Claude) Analyze(ctx context.Context, record *entity.HealthRecord) (string, error) {
	return c.exec.analyze(ctx, record)
}

func (c *Claude) complete(ctx context.Context, system, prompt string) (completion, error) {
	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   int64(c.exec.cfg.MaxTokens),
		Temperature: anthropic.Float(c.exec.cfg.Temperature),
		System:      []anthropic.TextBlockParam{{Text: system}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return completion{}, err
	}

	var b strings.Builder
	for _, block := range message.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(tb.Text)
		}
	}
	return completion{
		text:     b.String(),
		filtered: string(message.StopReason) == "refusal",
	}, nil
}

// classifyClaudeError maps anthropic-sdk-go errors onto analysis error kinds.
// An exhausted credit balance is reported as a 400.
func classifyClaudeError(err error) *attemptError {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		if strings.Contains(strings.ToLower(apiErr.Error()), "credit balance") {
			return fatal(entity.AnalysisQuotaExceeded, err)
		}
		return statusAttempt(apiErr.StatusCode, err)
	}
	return retryable(entity.AnalysisTransient, err)
}
