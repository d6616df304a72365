package worker

import (
	"fmt"
	"log/slog"
	"net/http"

	appconfig "health-assistant/internal/config"
	"health-assistant/internal/infra/analyzer"
	"health-assistant/internal/infra/fetcher"
	"health-assistant/internal/infra/notifier"
	"health-assistant/internal/usecase/pipeline"
	"health-assistant/pkg/ratelimit"
)

// TenantOptions holds what BuildTenants shares between tenants.
// Zero values fall back to defaults.
type TenantOptions struct {
	// Oura is the base fetcher config; the rate limit comes from the
	// rate_limits.oura section.
	Oura fetcher.OuraConfig

	// TelegramBaseURL overrides the Bot API URL.
	TelegramBaseURL string

	// HTTPClient replaces the Oura client, mainly for tests.
	HTTPClient *http.Client

	// LimiterMetrics observes the per-token Oura buckets.
	LimiterMetrics ratelimit.Metrics

	Logger *slog.Logger
}

// BuildTenants creates one pipeline tenant per configured user, in
// configuration order. Users sharing an Oura access token share one bucket.
func BuildTenants(cfg *appconfig.Config, opts TenantOptions) ([]pipeline.Tenant, error) {
	if opts.Oura.BaseURL == "" {
		opts.Oura = fetcher.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.LimiterMetrics == nil {
		opts.LimiterMetrics = ratelimit.NewNoOpMetrics()
	}

	buckets := make(map[string]*ratelimit.TokenBucket)
	tenants := make([]pipeline.Tenant, 0, len(cfg.Users))
	for _, u := range cfg.Users {
		logger := opts.Logger.With(slog.String("tenant_id", u.ID))

		bucket, ok := buckets[u.Oura.AccessToken]
		if !ok {
			var err error
			limit := cfg.RateLimits.Oura
			bucket, err = ratelimit.NewTokenBucket(
				ratelimit.PerWindow("oura:"+u.ID, limit.Requests, limit.Period),
				ratelimit.WithMetrics(opts.LimiterMetrics),
			)
			if err != nil {
				return nil, fmt.Errorf("user %s: oura rate limit: %w", u.ID, err)
			}
			buckets[u.Oura.AccessToken] = bucket
		}

		fetchOpts := []fetcher.OuraOption{
			fetcher.WithLimiter(bucket),
			fetcher.WithLogger(logger),
		}
		if opts.HTTPClient != nil {
			fetchOpts = append(fetchOpts, fetcher.WithHTTPClient(opts.HTTPClient))
		}
		f, err := fetcher.NewOuraFetcher(u.Oura.AccessToken, opts.Oura, fetchOpts...)
		if err != nil {
			return nil, fmt.Errorf("user %s: %w", u.ID, err)
		}

		n, err := NewNotifier(u.EffectiveNotifier(), opts.TelegramBaseURL, logger)
		if err != nil {
			return nil, fmt.Errorf("user %s: %w", u.ID, err)
		}

		tenants = append(tenants, pipeline.Tenant{
			ID:       u.ID,
			Name:     u.DisplayName(),
			Enabled:  u.IsEnabled(),
			Fetcher:  f,
			Notifier: n,
		})
	}
	return tenants, nil
}

// NewNotifier builds the delivery channel for one tenant.
func NewNotifier(cfg appconfig.NotifierConfig, telegramBaseURL string, logger *slog.Logger) (pipeline.Notifier, error) {
	switch cfg.Type {
	case appconfig.NotifierTelegram:
		return notifier.NewTelegramNotifier(notifier.TelegramConfig{
			BotToken: cfg.BotToken,
			ChatID:   cfg.ChatID,
			BaseURL:  telegramBaseURL,
			Logger:   logger,
		}), nil
	case appconfig.NotifierDiscord:
		return notifier.NewDiscordNotifier(notifier.DiscordConfig{
			WebhookURL: cfg.WebhookURL,
			Logger:     logger,
		}), nil
	case appconfig.NotifierSlack:
		return notifier.NewSlackNotifier(notifier.SlackConfig{
			WebhookURL: cfg.WebhookURL,
			Logger:     logger,
		}), nil
	case appconfig.NotifierNoOp:
		return notifier.NewNoOpNotifier(logger), nil
	default:
		return nil, fmt.Errorf("unsupported notifier type %q", cfg.Type)
	}
}

// AnalyzerConfig maps the analyzer section and the analyze retry policy onto
// the analyzer package's config.
func AnalyzerConfig(cfg *appconfig.Config) analyzer.Config {
	a := cfg.Analyzer
	return analyzer.Config{
		Provider:        a.Provider,
		Endpoint:        a.Endpoint,
		APIKey:          a.APIKey,
		Deployment:      a.Deployment,
		APIVersion:      a.APIVersion,
		Model:           a.Model,
		Temperature:     a.Temperature,
		MaxTokens:       a.MaxTokens,
		Timeout:         a.Timeout,
		MaxSummaryRunes: a.MaxSummaryRunes,
		Policy:          cfg.Retry.AnalyzePolicy(),
	}
}
