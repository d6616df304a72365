package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "health-assistant/internal/config"
	"health-assistant/internal/domain/entity"
	"health-assistant/internal/infra/analyzer"
	"health-assistant/internal/infra/fetcher"
	"health-assistant/internal/infra/notifier"
)

const tenantsYAML = `
analyzer:
  provider: claude
  api_key: sk-test
  model: claude-test
  max_summary_length: 2000
scheduler:
  hour: 8
  minute: 0
retry:
  analyze:
    max_attempts: 5
users:
  - id: alice
    name: Alice
    oura:
      access_token: shared-token
    notifier:
      type: telegram
      bot_token: "123:abc"
      chat_id: "4242"
  - id: bob
    enabled: false
    oura:
      access_token: shared-token
    notifier:
      type: discord
      webhook_url: https://discord.com/api/webhooks/1/x
  - id: carol
    oura:
      access_token: carol-token
    notifier:
      type: slack
      webhook_url: https://hooks.slack.com/services/T/B/X
  - id: dave
    oura:
      access_token: dave-token
    notifier:
      type: noop
`

func TestBuildTenants(t *testing.T) {
	// Arrange
	cfg, err := appconfig.Parse([]byte(tenantsYAML))
	require.NoError(t, err)

	// Act
	tenants, err := BuildTenants(cfg, TenantOptions{Logger: slog.New(slog.DiscardHandler)})

	// Assert
	require.NoError(t, err)
	require.Len(t, tenants, 4)

	ids := make([]string, 0, len(tenants))
	for _, tn := range tenants {
		ids = append(ids, tn.ID)
		assert.IsType(t, &fetcher.OuraFetcher{}, tn.Fetcher)
	}
	assert.Equal(t, []string{"alice", "bob", "carol", "dave"}, ids)

	assert.Equal(t, "Alice", tenants[0].Name)
	assert.Equal(t, "bob", tenants[1].DisplayName())
	assert.True(t, tenants[0].Enabled)
	assert.False(t, tenants[1].Enabled)

	assert.IsType(t, &notifier.TelegramNotifier{}, tenants[0].Notifier)
	assert.IsType(t, &notifier.DiscordNotifier{}, tenants[1].Notifier)
	assert.IsType(t, &notifier.SlackNotifier{}, tenants[2].Notifier)
	assert.IsType(t, &notifier.NoOpNotifier{}, tenants[3].Notifier)
}

func TestBuildTenants_TelegramTarget(t *testing.T) {
	// Arrange
	var (
		mu    sync.Mutex
		paths []string
		chats []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ChatID string `json:"chat_id"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		mu.Lock()
		paths = append(paths, r.URL.Path)
		chats = append(chats, req.ChatID)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
	}))
	defer srv.Close()

	cfg, err := appconfig.Parse([]byte(tenantsYAML))
	require.NoError(t, err)

	tenants, err := BuildTenants(cfg, TenantOptions{
		TelegramBaseURL: srv.URL,
		Logger:          slog.New(slog.DiscardHandler),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Act
	err = tenants[0].Notifier.Send(ctx, entity.HTMLMessage("<b>hello</b>"))

	// Assert
	require.NoError(t, err)
	assert.Equal(t, []string{"/bot123:abc/sendMessage"}, paths)
	assert.Equal(t, []string{"4242"}, chats)
}

func TestNewNotifier_Unsupported(t *testing.T) {
	_, err := NewNotifier(appconfig.NotifierConfig{Type: "pager"}, "", slog.New(slog.DiscardHandler))
	assert.ErrorContains(t, err, `unsupported notifier type "pager"`)
}

func TestAnalyzerConfig(t *testing.T) {
	cfg, err := appconfig.Parse([]byte(tenantsYAML))
	require.NoError(t, err)

	got := AnalyzerConfig(cfg)

	assert.Equal(t, analyzer.ProviderClaude, got.Provider)
	assert.Equal(t, "sk-test", got.APIKey)
	assert.Equal(t, "claude-test", got.Model)
	assert.Equal(t, 2000, got.MaxSummaryRunes)
	assert.Equal(t, 5, got.Policy.MaxAttempts)

	a, err := analyzer.New(got)
	require.NoError(t, err)
	assert.IsType(t, &analyzer.Claude{}, a)
}
