// Package config loads the health-assistant YAML configuration.
//
// Secrets are referenced as ${VAR} (or ${VAR:-default}) and expanded from the
// environment before parsing. The legacy single-user layout, with top-level
// oura and telegram sections, is migrated in memory to a single
// "default_user" tenant.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"health-assistant/internal/resilience/retry"
)

// Notifier types.
const (
	NotifierTelegram = "telegram"
	NotifierDiscord  = "discord"
	NotifierSlack    = "slack"
	NotifierNoOp     = "noop"
)

// Analyzer providers.
const (
	ProviderAzureOpenAI = "azure_openai"
	ProviderOpenAI      = "openai"
	ProviderClaude      = "claude"
	ProviderNoOp        = "noop"
)

const (
	// LegacyUserID and LegacyUserName identify the tenant created from a
	// legacy single-user file.
	LegacyUserID   = "default_user"
	LegacyUserName = "Default User"

	DefaultLogLevel = "INFO"
	DefaultLogFile  = "health_assistant.log"
	DefaultTimezone = "UTC"
)

// Config is the whole configuration file.
type Config struct {
	Analyzer   AnalyzerConfig  `yaml:"analyzer"`
	Scheduler  SchedulerConfig `yaml:"scheduler"`
	Logging    LoggingConfig   `yaml:"logging"`
	RateLimits RateLimitConfig `yaml:"rate_limits"`
	Retry      RetryConfig     `yaml:"retry"`
	Users      []UserConfig    `yaml:"users"`

	// Azure is the legacy analyzer section, read when analyzer is absent.
	Azure *AnalyzerConfig `yaml:"azure,omitempty"`

	// Oura and Telegram are the legacy single-user sections.
	Oura     *OuraConfig     `yaml:"oura,omitempty"`
	Telegram *TelegramConfig `yaml:"telegram,omitempty"`

	// Migrated reports that the file used the legacy single-user layout.
	Migrated bool `yaml:"-"`

	// MissingEnv lists ${VAR} references that were unset and had no default.
	MissingEnv []string `yaml:"-"`
}

// AnalyzerConfig selects the LLM provider shared by all tenants.
type AnalyzerConfig struct {
	Provider        string        `yaml:"provider"`
	Endpoint        string        `yaml:"endpoint,omitempty"`
	APIKey          string        `yaml:"api_key"`
	Deployment      string        `yaml:"deployment_name,omitempty"`
	APIVersion      string        `yaml:"api_version,omitempty"`
	Model           string        `yaml:"model,omitempty"`
	Temperature     float64       `yaml:"temperature,omitempty"`
	MaxTokens       int           `yaml:"max_tokens,omitempty"`
	Timeout         time.Duration `yaml:"timeout,omitempty"`
	MaxSummaryRunes int           `yaml:"max_summary_length,omitempty"`
}

// SchedulerConfig is the daily trigger time.
type SchedulerConfig struct {
	Hour     *int   `yaml:"hour"`
	Minute   *int   `yaml:"minute"`
	Timezone string `yaml:"timezone"`
}

// CronSpec returns the five-field cron expression for the daily trigger.
func (s SchedulerConfig) CronSpec() string {
	var hour, minute int
	if s.Hour != nil {
		hour = *s.Hour
	}
	if s.Minute != nil {
		minute = *s.Minute
	}
	return fmt.Sprintf("%d %d * * *", minute, hour)
}

// Location loads the scheduler timezone.
func (s SchedulerConfig) Location() (*time.Location, error) {
	tz := s.Timezone
	if tz == "" {
		tz = DefaultTimezone
	}
	return time.LoadLocation(tz)
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
	Format  string `yaml:"format,omitempty"`
}

// RateLimit allows Requests per Period.
type RateLimit struct {
	Requests int           `yaml:"requests"`
	Period   time.Duration `yaml:"period"`
}

// RateLimitConfig holds the provider rate limits.
type RateLimitConfig struct {
	// Oura applies per access token.
	Oura RateLimit `yaml:"oura"`
	// Fetch and Send are shared by every tenant.
	Fetch RateLimit `yaml:"fetch"`
	Send  RateLimit `yaml:"send"`
}

// PolicyConfig overrides fields of a retry policy. Zero fields keep the default.
type PolicyConfig struct {
	MaxAttempts int           `yaml:"max_attempts,omitempty"`
	BaseDelay   time.Duration `yaml:"base_delay,omitempty"`
	MaxDelay    time.Duration `yaml:"max_delay,omitempty"`
	Multiplier  float64       `yaml:"multiplier,omitempty"`
}

// Apply overlays the configured fields onto base.
func (p PolicyConfig) Apply(base retry.Policy) retry.Policy {
	if p.MaxAttempts != 0 {
		base.MaxAttempts = p.MaxAttempts
	}
	if p.BaseDelay != 0 {
		base.BaseDelay = p.BaseDelay
	}
	if p.MaxDelay != 0 {
		base.MaxDelay = p.MaxDelay
	}
	if p.Multiplier != 0 {
		base.Multiplier = p.Multiplier
	}
	return base
}

// RetryConfig holds the per-stage retry policies.
type RetryConfig struct {
	Fetch   PolicyConfig `yaml:"fetch"`
	Analyze PolicyConfig `yaml:"analyze"`
	Send    PolicyConfig `yaml:"send"`
}

// FetchPolicy returns the effective fetch policy.
func (r RetryConfig) FetchPolicy() retry.Policy { return r.Fetch.Apply(retry.FetchPolicy()) }

// AnalyzePolicy returns the effective analyzer policy.
func (r RetryConfig) AnalyzePolicy() retry.Policy { return r.Analyze.Apply(retry.AnalyzePolicy()) }

// SendPolicy returns the effective delivery policy.
func (r RetryConfig) SendPolicy() retry.Policy { return r.Send.Apply(retry.SendPolicy()) }

// UserConfig is one tenant.
type UserConfig struct {
	ID       string         `yaml:"id"`
	Name     string         `yaml:"name,omitempty"`
	Enabled  *bool          `yaml:"enabled,omitempty"`
	Oura     OuraConfig     `yaml:"oura"`
	Notifier NotifierConfig `yaml:"notifier,omitempty"`

	// Telegram is the legacy per-user notifier section.
	Telegram *TelegramConfig `yaml:"telegram,omitempty"`
}

// IsEnabled reports whether the tenant takes part in cycles. Defaults to true.
func (u UserConfig) IsEnabled() bool {
	return u.Enabled == nil || *u.Enabled
}

// DisplayName returns Name, falling back to ID.
func (u UserConfig) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.ID
}

// EffectiveNotifier resolves the notifier, honoring the legacy telegram section.
func (u UserConfig) EffectiveNotifier() NotifierConfig {
	if u.Notifier.Type == "" && u.Telegram != nil {
		return NotifierConfig{
			Type:     NotifierTelegram,
			BotToken: u.Telegram.BotToken,
			ChatID:   u.Telegram.ChatID,
		}
	}
	return u.Notifier
}

// OuraConfig holds a tenant's Oura credentials.
type OuraConfig struct {
	AccessToken string `yaml:"access_token"`
}

// TelegramConfig is the legacy telegram section.
type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

// NotifierConfig selects a tenant's delivery channel.
type NotifierConfig struct {
	Type       string `yaml:"type"`
	BotToken   string `yaml:"bot_token,omitempty"`
	ChatID     string `yaml:"chat_id,omitempty"`
	WebhookURL string `yaml:"webhook_url,omitempty"`
}

// EnabledUsers returns enabled tenants in configuration order.
func (c *Config) EnabledUsers() []UserConfig {
	users := make([]UserConfig, 0, len(c.Users))
	for _, u := range c.Users {
		if u.IsEnabled() {
			users = append(users, u)
		}
	}
	return users
}

// User returns the tenant with id.
func (c *Config) User(id string) (UserConfig, bool) {
	for _, u := range c.Users {
		if u.ID == id {
			return u, true
		}
	}
	return UserConfig{}, false
}

// Load reads, expands, migrates and validates the file at path.
func Load(path string) (*Config, error) {
	// #nosec G304 -- path comes from the -config flag
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		var cerr *ConfigError
		if errors.As(err, &cerr) {
			cerr.Path = path
		}
		return nil, err
	}
	return cfg, nil
}

// Parse decodes and validates a configuration document.
// Unknown keys are rejected so typos do not silently fall back to defaults.
func Parse(data []byte) (*Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader([]byte(ExpandEnv(string(data)))))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.MissingEnv = MissingEnv(string(data))
	cfg.migrateLegacy()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// migrateLegacy moves the single-user sections into Users.
func (c *Config) migrateLegacy() {
	if c.Analyzer.Provider == "" && c.Azure != nil {
		c.Analyzer = *c.Azure
		c.Analyzer.Provider = ProviderAzureOpenAI
	}
	c.Azure = nil

	if c.Oura == nil || len(c.Users) > 0 {
		return
	}
	enabled := true
	user := UserConfig{
		ID:       LegacyUserID,
		Name:     LegacyUserName,
		Enabled:  &enabled,
		Oura:     *c.Oura,
		Telegram: c.Telegram,
	}
	c.Users = []UserConfig{user}
	c.Oura = nil
	c.Telegram = nil
	c.Migrated = true
}

func (c *Config) applyDefaults() {
	if c.Logging == (LoggingConfig{}) {
		c.Logging.LogFile = DefaultLogFile
	}
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Scheduler.Timezone == "" {
		c.Scheduler.Timezone = DefaultTimezone
	}
	c.RateLimits.Oura = c.RateLimits.Oura.withDefault(RateLimit{Requests: 100, Period: time.Minute})
	c.RateLimits.Fetch = c.RateLimits.Fetch.withDefault(RateLimit{Requests: 100, Period: time.Minute})
	c.RateLimits.Send = c.RateLimits.Send.withDefault(RateLimit{Requests: 30, Period: time.Second})
	for i := range c.Users {
		if c.Users[i].Name == "" {
			c.Users[i].Name = c.Users[i].ID
		}
	}
}

func (r RateLimit) withDefault(def RateLimit) RateLimit {
	if r.Requests == 0 {
		r.Requests = def.Requests
	}
	if r.Period == 0 {
		r.Period = def.Period
	}
	return r
}
