package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"

	"health-assistant/internal/domain/entity"
	"health-assistant/internal/resilience/circuitbreaker"
)

// OpenAI analyzes health records with the Chat Completions API, either on
// Azure OpenAI (Provider azure_openai) or on api.openai.com.
type OpenAI struct {
	client *openai.Client
	model  string
	exec   *executor
}

// NewOpenAI creates an OpenAI or Azure OpenAI analyzer.
func NewOpenAI(cfg Config, opts ...Option) (*OpenAI, error) {
	if cfg.Provider != ProviderAzureOpenAI {
		cfg.Provider = ProviderOpenAI
	}
	cfg = cfg.WithDefaults()
	if cfg.APIKey == "" {
		return nil, errors.New("openai analyzer: api key is required")
	}

	o := buildOptions(cfg.Provider, cfg, opts, circuitbreaker.OpenAIAPIConfig())

	var clientCfg openai.ClientConfig
	if cfg.Provider == ProviderAzureOpenAI {
		if cfg.Endpoint == "" || cfg.Deployment == "" {
			return nil, errors.New("azure openai analyzer: endpoint and deployment are required")
		}
		clientCfg = openai.DefaultAzureConfig(cfg.APIKey, cfg.Endpoint)
		clientCfg.APIVersion = cfg.APIVersion
		deployment := cfg.Deployment
		clientCfg.AzureModelMapperFunc = func(string) string { return deployment }
	} else {
		clientCfg = openai.DefaultConfig(cfg.APIKey)
		if cfg.Endpoint != "" {
			clientCfg.BaseURL = cfg.Endpoint
		}
	}
	clientCfg.HTTPClient = o.httpClient

	a := &OpenAI{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
	}
	a.exec = &executor{
		provider: cfg.Provider,
		cfg:      cfg,
		complete: a.complete,
		classify: classifyOpenAIError,
		options:  o,
	}

	o.logger.Info("initialized analyzer",
		slog.String("model", cfg.Model),
		slog.Int("max_tokens", cfg.MaxTokens),
		slog.Int("max_summary_runes", cfg.MaxSummaryRunes))
	return a, nil
}

// Analyze implements pipeline.Analyzer.
func (a *OpenAI) Analyze(ctx context.Context, record *entity.HealthRecord) (string, error) {
	return a.exec.analyze(ctx, record)
}

func (a *OpenAI) complete(ctx context.Context, system, prompt string) (completion, error) {
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: float32(a.exec.cfg.Temperature),
		MaxTokens:   a.exec.cfg.MaxTokens,
	})
	if err != nil {
		return completion{}, err
	}
	if len(resp.Choices) == 0 {
		return completion{}, nil
	}

	choice := resp.Choices[0]
	return completion{
		text:     choice.Message.Content,
		filtered: choice.FinishReason == openai.FinishReasonContentFilter,
	}, nil
}

// classifyOpenAIError maps go-openai errors onto analysis error kinds.
// Azure reports prompt filtering as a 400 with code content_filter.
func classifyOpenAIError(err error) *attemptError {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code := fmt.Sprint(apiErr.Code)
		switch {
		case code == "insufficient_quota" || apiErr.Type == "insufficient_quota":
			return fatal(entity.AnalysisQuotaExceeded, err)
		case code == "content_filter" ||
			(apiErr.InnerError != nil && apiErr.InnerError.Code == "ResponsibleAIPolicyViolation"):
			return fatal(entity.AnalysisContentFiltered, err)
		default:
			return statusAttempt(apiErr.HTTPStatusCode, err)
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return statusAttempt(reqErr.HTTPStatusCode, err)
	}

	// network failures
	return retryable(entity.AnalysisTransient, err)
}
