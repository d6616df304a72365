package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"health-assistant/internal/domain/entity"
	"health-assistant/internal/utils/text"
)

// SlackConfig contains configuration for Slack webhook notifications.
type SlackConfig struct {
	// WebhookURL is the Slack Incoming Webhook URL (includes authentication token)
	WebhookURL string

	// Timeout is the HTTP request timeout for Slack API calls
	Timeout time.Duration

	Logger *slog.Logger
}

// SlackNotifier sends messages to Slack via Incoming Webhook using Block Kit.
// Telegram-style HTML is converted to Slack mrkdwn.
type SlackNotifier struct {
	config      SlackConfig
	httpClient  *http.Client
	rateLimiter *RateLimiter
	logger      *slog.Logger
}

// NewSlackNotifier creates a new SlackNotifier.
//
// Requests are paced at 1 request/second with burst of 1
// (Slack webhook limit: 1 message per second).
func NewSlackNotifier(config SlackConfig) *SlackNotifier {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SlackNotifier{
		config:      config,
		httpClient:  newHTTPClient(ChannelSlack, config.Timeout),
		rateLimiter: NewRateLimiter(1.0, 1),
		logger:      logger.With(slog.String("channel", ChannelSlack)),
	}
}

// SlackWebhookPayload represents the JSON payload sent to Slack webhook using Block Kit.
type SlackWebhookPayload struct {
	Text   string       `json:"text"`   // Fallback text (required)
	Blocks []SlackBlock `json:"blocks"` // Rich formatting blocks
}

// SlackBlock represents a Slack Block Kit block.
type SlackBlock struct {
	Type string           `json:"type"`
	Text *SlackTextObject `json:"text,omitempty"`
}

// SlackTextObject represents a text object in Slack Block Kit.
type SlackTextObject struct {
	Type string `json:"type"` // "mrkdwn" or "plain_text"
	Text string `json:"text"`
}

const (
	// Slack Block Kit limits
	maxSectionTextLength = 3000
	maxBlocksPerMessage  = 50
	maxFallbackLength    = 150

	slackTruncationSuffix = "..."
)

// buildBlockKitPayloads renders msg as section blocks, at most
// maxBlocksPerMessage per payload.
func (s *SlackNotifier) buildBlockKitPayloads(msg entity.Message) []SlackWebhookPayload {
	body := bodyFor(msg.Body, msg.Format == entity.FormatHTML, slackMarkup)
	sections := text.SplitMessage(body, maxSectionTextLength)
	if len(sections) == 0 {
		return nil
	}

	fallback := plainText(msg.Body)
	if msg.Format != entity.FormatHTML {
		fallback = msg.Body
	}
	if i := strings.IndexByte(fallback, '\n'); i >= 0 {
		fallback = fallback[:i]
	}
	fallback = text.Truncate(fallback, maxFallbackLength, slackTruncationSuffix)

	var payloads []SlackWebhookPayload
	for len(sections) > 0 {
		n := min(len(sections), maxBlocksPerMessage)
		blocks := make([]SlackBlock, 0, n)
		for _, section := range sections[:n] {
			blocks = append(blocks, SlackBlock{
				Type: "section",
				Text: &SlackTextObject{Type: "mrkdwn", Text: section},
			})
		}
		payloads = append(payloads, SlackWebhookPayload{Text: fallback, Blocks: blocks})
		sections = sections[n:]
	}
	return payloads
}

// Send delivers msg as one or more webhook posts.
func (s *SlackNotifier) Send(ctx context.Context, msg entity.Message) (err error) {
	start := time.Now()
	requestID := uuid.NewString()
	logger := s.logger.With(slog.String("request_id", requestID))

	payloads := s.buildBlockKitPayloads(msg)
	defer func() { recordSend(ChannelSlack, len(payloads), err, time.Since(start)) }()

	for i, payload := range payloads {
		if err := s.rateLimiter.Allow(ctx); err != nil {
			return fmt.Errorf("slack rate limiter: %w", err)
		}
		if err := s.sendWebhookRequest(ctx, payload); err != nil {
			logger.Error("Slack notification failed",
				slog.Int("part", i+1),
				slog.Int("parts", len(payloads)),
				slog.Any("error", err))
			return err
		}
	}

	logger.Info("Slack notification successful", slog.Int("parts", len(payloads)))
	return nil
}

// sendWebhookRequest posts one payload. Slack answers errors with a short
// plain-text code such as "invalid_payload" or "channel_is_archived".
func (s *SlackNotifier) sendWebhookRequest(ctx context.Context, payload SlackWebhookPayload) error {
	resp, body, err := postJSON(ctx, s.httpClient, s.config.WebhookURL, payload)
	if err != nil {
		return transportError(ctx, ChannelSlack, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return statusError(ChannelSlack, resp.StatusCode, abbreviate(body), retryAfterHeader(resp, 30*time.Second))
}
