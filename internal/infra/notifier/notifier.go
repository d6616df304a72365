// Package notifier delivers daily health summaries to a tenant's messaging
// channel: a Telegram chat, a Discord webhook or a Slack incoming webhook.
//
// Notifiers report failures as *entity.DeliveryError so the pipeline can tell
// a retryable outage from a misconfigured target. They do not retry on their
// own; the caller owns the retry policy.
package notifier

import (
	"context"

	"health-assistant/internal/domain/entity"
)

// Channel names, used for logging and metrics labels.
const (
	ChannelTelegram = "telegram"
	ChannelDiscord  = "discord"
	ChannelSlack    = "slack"
	ChannelNoOp     = "noop"
)

// Notifier sends one message to a single tenant.
//
// A message longer than the channel allows is split into several parts and
// sent in order. Implementations must respect context cancellation.
type Notifier interface {
	Send(ctx context.Context, msg entity.Message) error
}
