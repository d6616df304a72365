package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"health-assistant/internal/domain/entity"
	"health-assistant/internal/utils/text"
)

const (
	// DefaultTelegramBaseURL is the Bot API root.
	DefaultTelegramBaseURL = "https://api.telegram.org"

	// MaxTelegramMessageLength is the Bot API limit for one message.
	MaxTelegramMessageLength = 4096

	// DefaultTelegramPartInterval spaces the parts of a split message.
	DefaultTelegramPartInterval = 500 * time.Millisecond

	telegramParseModeHTML = "HTML"
)

// TelegramConfig contains configuration for a Telegram bot chat.
type TelegramConfig struct {
	// BotToken is the token issued by @BotFather
	BotToken string

	// ChatID is the target chat
	ChatID string

	// BaseURL overrides DefaultTelegramBaseURL, mainly for tests
	BaseURL string

	// Timeout is the HTTP request timeout per part
	Timeout time.Duration

	// PartInterval overrides DefaultTelegramPartInterval; negative disables pacing
	PartInterval time.Duration

	Logger *slog.Logger
}

// TelegramNotifier sends messages with the Bot API sendMessage method.
//
// HTML messages are sent with parse_mode HTML. When Telegram rejects the
// markup ("can't parse entities"), the part is resent once as plain text.
type TelegramNotifier struct {
	config     TelegramConfig
	endpoint   string
	httpClient *http.Client
	pacer      *RateLimiter
	logger     *slog.Logger
}

// NewTelegramNotifier creates a notifier for one chat.
func NewTelegramNotifier(config TelegramConfig) *TelegramNotifier {
	if config.BaseURL == "" {
		config.BaseURL = DefaultTelegramBaseURL
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	interval := config.PartInterval
	if interval == 0 {
		interval = DefaultTelegramPartInterval
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &TelegramNotifier{
		config:     config,
		endpoint:   strings.TrimRight(config.BaseURL, "/") + "/bot" + config.BotToken + "/sendMessage",
		httpClient: newHTTPClient(ChannelTelegram, config.Timeout),
		pacer:      NewIntervalLimiter(interval),
		logger:     logger.With(slog.String("channel", ChannelTelegram)),
	}
}

type telegramSendRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

// telegramResponse is the Bot API response envelope.
type telegramResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// Send delivers msg, split into parts of at most MaxTelegramMessageLength.
// A failed part stops the remaining ones.
func (t *TelegramNotifier) Send(ctx context.Context, msg entity.Message) (err error) {
	start := time.Now()
	requestID := uuid.NewString()
	logger := t.logger.With(slog.String("request_id", requestID))

	parts := text.SplitMessage(msg.Body, MaxTelegramMessageLength)
	defer func() { recordSend(ChannelTelegram, len(parts), err, time.Since(start)) }()

	if len(parts) > 1 {
		logger.Warn("message exceeds Telegram limit, splitting",
			slog.Int("length", text.CountRunes(msg.Body)),
			slog.Int("parts", len(parts)))
	}

	for i, part := range parts {
		if err := t.pacer.Allow(ctx); err != nil {
			return fmt.Errorf("telegram pacing: %w", err)
		}
		if err := t.sendPart(ctx, logger, part, msg.Format); err != nil {
			logger.Error("failed to send message part",
				slog.Int("part", i+1),
				slog.Int("parts", len(parts)),
				slog.Any("error", err))
			return err
		}
	}

	logger.Info("message sent", slog.Int("parts", len(parts)))
	return nil
}

func (t *TelegramNotifier) sendPart(ctx context.Context, logger *slog.Logger, part string, format entity.MessageFormat) error {
	if format != entity.FormatHTML {
		return t.sendMessage(ctx, part, "")
	}

	err := t.sendMessage(ctx, part, telegramParseModeHTML)
	if !isParseError(err) {
		return err
	}

	logger.Warn("HTML parsing failed, sending as plain text", slog.Any("error", err))
	notificationPlainFallbackTotal.WithLabelValues(ChannelTelegram).Inc()
	return t.sendMessage(ctx, plainText(part), "")
}

func (t *TelegramNotifier) sendMessage(ctx context.Context, body, parseMode string) error {
	payload := telegramSendRequest{
		ChatID:                t.config.ChatID,
		Text:                  body,
		ParseMode:             parseMode,
		DisableWebPagePreview: true,
	}

	resp, raw, err := postJSON(ctx, t.httpClient, t.endpoint, payload)
	if err != nil {
		return transportError(ctx, ChannelTelegram, err)
	}

	var result telegramResponse
	_ = json.Unmarshal(raw, &result)
	if resp.StatusCode >= 200 && resp.StatusCode < 300 && (result.OK || len(raw) == 0) {
		return nil
	}

	detail := result.Description
	if detail == "" {
		detail = abbreviate(raw)
	}
	retryAfter := retryAfterHeader(resp, 5*time.Second)
	if result.Parameters != nil && result.Parameters.RetryAfter > 0 {
		retryAfter = time.Duration(result.Parameters.RetryAfter) * time.Second
	}
	return statusError(ChannelTelegram, resp.StatusCode, detail, retryAfter)
}

// isParseError reports whether Telegram rejected the message markup.
func isParseError(err error) bool {
	var clientErr *ClientError
	if !errors.As(err, &clientErr) {
		return false
	}
	return strings.Contains(strings.ToLower(clientErr.Message), "can't parse")
}
