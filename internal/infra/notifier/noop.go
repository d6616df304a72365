package notifier

import (
	"context"
	"log/slog"

	"health-assistant/internal/domain/entity"
)

// NoOpNotifier discards messages. It backs tenants whose delivery is
// disabled and dry runs.
type NoOpNotifier struct {
	logger *slog.Logger
}

// NewNoOpNotifier creates a new NoOpNotifier. A nil logger discards silently.
func NewNoOpNotifier(logger *slog.Logger) *NoOpNotifier {
	return &NoOpNotifier{logger: logger}
}

// Send logs the message size and returns nil.
func (n *NoOpNotifier) Send(ctx context.Context, msg entity.Message) error {
	if n.logger != nil {
		n.logger.Debug("notification discarded",
			slog.String("channel", ChannelNoOp),
			slog.String("format", string(msg.Format)),
			slog.Int("length", len(msg.Body)))
	}
	return nil
}
