package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"health-assistant/internal/domain/entity"
	"health-assistant/internal/utils/text"
)

// DiscordConfig contains configuration for Discord webhook notifications.
type DiscordConfig struct {
	// WebhookURL is the Discord webhook URL (includes authentication token)
	WebhookURL string

	// Timeout is the HTTP request timeout for Discord API calls
	Timeout time.Duration

	Logger *slog.Logger
}

// DiscordNotifier sends messages to a Discord channel as webhook embeds.
// Telegram-style HTML is converted to Discord markdown.
type DiscordNotifier struct {
	config      DiscordConfig
	httpClient  *http.Client
	rateLimiter *RateLimiter
	logger      *slog.Logger
	now         func() time.Time
}

// NewDiscordNotifier creates a new DiscordNotifier.
//
// Requests are paced at 0.5 requests/second with a burst of 3
// (Discord webhook limit: 30 requests per minute).
func NewDiscordNotifier(config DiscordConfig) *DiscordNotifier {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &DiscordNotifier{
		config:      config,
		httpClient:  newHTTPClient(ChannelDiscord, config.Timeout),
		rateLimiter: NewRateLimiter(0.5, 3),
		logger:      logger.With(slog.String("channel", ChannelDiscord)),
		now:         time.Now,
	}
}

// DiscordWebhookPayload represents the JSON payload sent to Discord webhook.
type DiscordWebhookPayload struct {
	Embeds []DiscordEmbed `json:"embeds"`
}

// DiscordEmbed represents a Discord embed message.
type DiscordEmbed struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description"`
	Color       int    `json:"color"`
	Timestamp   string `json:"timestamp,omitempty"`
}

// DiscordErrorResponse represents the error response from Discord API.
type DiscordErrorResponse struct {
	Message    string  `json:"message"`
	Code       int     `json:"code"`
	RetryAfter float64 `json:"retry_after"` // In seconds
}

const (
	maxDescriptionLength = 4096
	discordEmbedTitle    = "Health Assistant"

	// Discord blue color (#5865F2)
	discordBlueColor = 5793266
)

// buildEmbedPayloads renders msg into one payload per part. Only the first
// part carries the title.
func (d *DiscordNotifier) buildEmbedPayloads(msg entity.Message) []DiscordWebhookPayload {
	body := bodyFor(msg.Body, msg.Format == entity.FormatHTML, discordMarkup)
	parts := text.SplitMessage(body, maxDescriptionLength)
	timestamp := d.now().UTC().Format(time.RFC3339)

	payloads := make([]DiscordWebhookPayload, 0, len(parts))
	for i, part := range parts {
		embed := DiscordEmbed{
			Description: part,
			Color:       discordBlueColor,
			Timestamp:   timestamp,
		}
		if i == 0 {
			embed.Title = discordEmbedTitle
		}
		payloads = append(payloads, DiscordWebhookPayload{Embeds: []DiscordEmbed{embed}})
	}
	return payloads
}

// Send delivers msg as one or more embeds.
func (d *DiscordNotifier) Send(ctx context.Context, msg entity.Message) (err error) {
	start := time.Now()
	requestID := uuid.NewString()
	logger := d.logger.With(slog.String("request_id", requestID))

	payloads := d.buildEmbedPayloads(msg)
	defer func() { recordSend(ChannelDiscord, len(payloads), err, time.Since(start)) }()

	for i, payload := range payloads {
		if err := d.rateLimiter.Allow(ctx); err != nil {
			return fmt.Errorf("discord rate limiter: %w", err)
		}
		if err := d.sendWebhookRequest(ctx, payload); err != nil {
			logger.Error("Discord notification failed",
				slog.Int("part", i+1),
				slog.Int("parts", len(payloads)),
				slog.Any("error", err))
			return err
		}
	}

	logger.Info("Discord notification successful", slog.Int("parts", len(payloads)))
	return nil
}

// sendWebhookRequest posts one payload.
//
// Error types:
//   - 429: transient, wraps *RateLimitError with retry_after
//   - 4xx (non-429): invalid target, wraps *ClientError
//   - 5xx: transient, wraps *ServerError
//   - network error: transient
func (d *DiscordNotifier) sendWebhookRequest(ctx context.Context, payload DiscordWebhookPayload) error {
	resp, body, err := postJSON(ctx, d.httpClient, d.config.WebhookURL, payload)
	if err != nil {
		return transportError(ctx, ChannelDiscord, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	detail := abbreviate(body)
	var discordErr DiscordErrorResponse
	if json.Unmarshal(body, &discordErr) == nil && discordErr.Message != "" {
		detail = discordErr.Message
	}
	return statusError(ChannelDiscord, resp.StatusCode, detail, extractRetryAfter(resp, body))
}

// extractRetryAfter extracts retry_after duration from Discord error response.
// It tries to parse from JSON body first, then falls back to Retry-After header.
//
// Returns:
//   - time.Duration: Retry after duration (default 5s if not found)
func extractRetryAfter(resp *http.Response, body []byte) time.Duration {
	var discordErr DiscordErrorResponse
	if err := json.Unmarshal(body, &discordErr); err == nil && discordErr.RetryAfter > 0 {
		return time.Duration(discordErr.RetryAfter * float64(time.Second))
	}
	return retryAfterHeader(resp, 5*time.Second)
}
