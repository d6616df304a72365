package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"health-assistant/internal/domain/entity"
)

func TestSlackNotifier_buildBlockKitPayloads(t *testing.T) {
	notifier := NewSlackNotifier(SlackConfig{WebhookURL: "https://hooks.slack.com/services/T/B/X"})

	t.Run("TC-1: should convert HTML to mrkdwn with a plain fallback", func(t *testing.T) {
		payloads := notifier.buildBlockKitPayloads(entity.HTMLMessage("🏥 <b>Daily Health Summary</b>\n📅 Monday, March 10, 2025\n\n<i>Well rested.</i>"))

		require.Len(t, payloads, 1)
		assert.Equal(t, "🏥 Daily Health Summary", payloads[0].Text)
		require.Len(t, payloads[0].Blocks, 1)
		block := payloads[0].Blocks[0]
		assert.Equal(t, "section", block.Type)
		assert.Equal(t, "mrkdwn", block.Text.Type)
		assert.Equal(t, "🏥 *Daily Health Summary*\n📅 Monday, March 10, 2025\n\n_Well rested._", block.Text.Text)
	})

	t.Run("TC-2: should split long text into several sections", func(t *testing.T) {
		long := strings.Repeat("Activity: 9,120 steps, 410 active calories.\n", 200)

		payloads := notifier.buildBlockKitPayloads(entity.PlainMessage(long))

		require.Len(t, payloads, 1)
		require.Greater(t, len(payloads[0].Blocks), 1)
		for i, block := range payloads[0].Blocks {
			if n := len([]rune(block.Text.Text)); n > maxSectionTextLength {
				t.Errorf("section %d has %d runes", i, n)
			}
		}
		assert.LessOrEqual(t, len([]rune(payloads[0].Text)), maxFallbackLength)
	})

	t.Run("TC-3: should produce nothing for an empty message", func(t *testing.T) {
		assert.Empty(t, notifier.buildBlockKitPayloads(entity.PlainMessage("")))
	})
}

func TestSlackNotifier_Send(t *testing.T) {
	t.Run("TC-1: should post blocks", func(t *testing.T) {
		var received SlackWebhookPayload
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
				t.Errorf("decode payload: %v", err)
			}
			_, _ = w.Write([]byte("ok"))
		}))
		defer srv.Close()

		notifier := NewSlackNotifier(SlackConfig{WebhookURL: srv.URL, Timeout: 5 * time.Second})
		err := notifier.Send(context.Background(), entity.PlainMessage("hello"))

		require.NoError(t, err)
		require.Len(t, received.Blocks, 1)
		assert.Equal(t, "hello", received.Blocks[0].Text.Text)
	})

	tests := []struct {
		name     string
		status   int
		body     string
		wantKind entity.DeliveryErrorKind
	}{
		{name: "no service", status: http.StatusNotFound, body: "no_service", wantKind: entity.DeliveryInvalidTarget},
		{name: "archived channel", status: http.StatusGone, body: "channel_is_archived", wantKind: entity.DeliveryInvalidTarget},
		{name: "invalid payload", status: http.StatusBadRequest, body: "invalid_payload", wantKind: entity.DeliveryInvalidTarget},
		{name: "rate limited", status: http.StatusTooManyRequests, body: "rate_limited", wantKind: entity.DeliveryTransient},
		{name: "server error", status: http.StatusInternalServerError, body: "", wantKind: entity.DeliveryTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			notifier := NewSlackNotifier(SlackConfig{WebhookURL: srv.URL, Timeout: 5 * time.Second})
			err := notifier.Send(context.Background(), entity.PlainMessage("hello"))

			var deliveryErr *entity.DeliveryError
			require.ErrorAs(t, err, &deliveryErr)
			assert.Equal(t, tt.wantKind, deliveryErr.Kind)
			if tt.body != "" {
				assert.Contains(t, err.Error(), tt.body)
			}
		})
	}
}
