package config

import (
	"fmt"
	"strings"

	"health-assistant/internal/domain/entity"
)

// ConfigError lists every problem found in a configuration file.
type ConfigError struct {
	Path     string
	Problems []string
}

func (e *ConfigError) Error() string {
	where := "config"
	if e.Path != "" {
		where = "config " + e.Path
	}
	if len(e.Problems) == 1 {
		return fmt.Sprintf("invalid %s: %s", where, e.Problems[0])
	}
	return fmt.Sprintf("invalid %s: %d problems:\n  - %s",
		where, len(e.Problems), strings.Join(e.Problems, "\n  - "))
}

type problems []string

func (p *problems) addf(format string, args ...any) {
	*p = append(*p, fmt.Sprintf(format, args...))
}

// Validate checks the whole configuration and reports all problems at once.
func (c *Config) Validate() error {
	var p problems
	c.validateAnalyzer(&p)
	c.validateScheduler(&p)
	c.validateLogging(&p)
	c.validateLimits(&p)
	c.validateUsers(&p)
	if len(p) > 0 {
		return &ConfigError{Problems: p}
	}
	return nil
}

func (c *Config) validateAnalyzer(p *problems) {
	a := c.Analyzer
	switch a.Provider {
	case "":
		p.addf("analyzer.provider is required (azure_openai, openai, claude or noop)")
		return
	case ProviderNoOp:
		return
	case ProviderAzureOpenAI:
		if a.Endpoint == "" {
			p.addf("analyzer.endpoint is required for azure_openai")
		} else if err := entity.ValidateHTTPSURL("analyzer.endpoint", a.Endpoint, ""); err != nil {
			p.addf("%v", err)
		}
		if a.Deployment == "" {
			p.addf("analyzer.deployment_name is required for azure_openai")
		}
	case ProviderOpenAI, ProviderClaude:
	default:
		p.addf("analyzer.provider %q is not supported", a.Provider)
		return
	}
	if a.APIKey == "" {
		p.addf("analyzer.api_key is required")
	}
	if a.Temperature < 0 || a.Temperature > 2 {
		p.addf("analyzer.temperature must be between 0 and 2, got %v", a.Temperature)
	}
	if a.MaxTokens < 0 {
		p.addf("analyzer.max_tokens must not be negative, got %d", a.MaxTokens)
	}
	if a.Timeout < 0 {
		p.addf("analyzer.timeout must not be negative, got %s", a.Timeout)
	}
	if a.MaxSummaryRunes != 0 && a.MaxSummaryRunes < 100 {
		p.addf("analyzer.max_summary_length must be at least 100, got %d", a.MaxSummaryRunes)
	}
}

func (c *Config) validateScheduler(p *problems) {
	s := c.Scheduler
	if s.Hour == nil {
		p.addf("scheduler.hour is required")
	} else if *s.Hour < 0 || *s.Hour > 23 {
		p.addf("scheduler.hour must be between 0 and 23, got %d", *s.Hour)
	}
	if s.Minute == nil {
		p.addf("scheduler.minute is required")
	} else if *s.Minute < 0 || *s.Minute > 59 {
		p.addf("scheduler.minute must be between 0 and 59, got %d", *s.Minute)
	}
	if _, err := s.Location(); err != nil {
		p.addf("scheduler.timezone %q is not a valid IANA timezone", s.Timezone)
	}
}

func (c *Config) validateLogging(p *problems) {
	switch strings.ToUpper(c.Logging.Level) {
	case "DEBUG", "INFO", "WARN", "WARNING", "ERROR", "CRITICAL":
	default:
		p.addf("logging.level %q is not one of DEBUG, INFO, WARNING, ERROR, CRITICAL", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "json", "text":
	default:
		p.addf("logging.format %q must be json or text", c.Logging.Format)
	}
}

func (c *Config) validateLimits(p *problems) {
	limits := []struct {
		name string
		rl   RateLimit
	}{
		{"oura", c.RateLimits.Oura},
		{"fetch", c.RateLimits.Fetch},
		{"send", c.RateLimits.Send},
	}
	for _, l := range limits {
		if l.rl.Requests < 1 || l.rl.Period <= 0 {
			p.addf("rate_limits.%s must allow at least one request per positive period", l.name)
		}
	}

	policies := []struct {
		name   string
		policy PolicyConfig
	}{
		{"fetch", c.Retry.Fetch},
		{"analyze", c.Retry.Analyze},
		{"send", c.Retry.Send},
	}
	for _, r := range policies {
		if r.policy.MaxAttempts < 0 || r.policy.BaseDelay < 0 || r.policy.MaxDelay < 0 ||
			(r.policy.Multiplier != 0 && r.policy.Multiplier <= 1) {
			p.addf("retry.%s has out-of-range values", r.name)
		}
	}
}

func (c *Config) validateUsers(p *problems) {
	if len(c.Users) == 0 {
		p.addf("at least one user is required in users")
		return
	}

	seen := make(map[string]int, len(c.Users))
	for i, u := range c.Users {
		where := fmt.Sprintf("users[%d]", i)
		if u.ID != "" {
			where = fmt.Sprintf("users[%d] (%s)", i, u.ID)
		}

		if err := entity.ValidateTenantID(u.ID); err != nil {
			p.addf("%s: %v", where, err)
		} else if first, dup := seen[u.ID]; dup {
			p.addf("%s: duplicate user id, first defined at users[%d]", where, first)
		} else {
			seen[u.ID] = i
		}

		if u.Oura.AccessToken == "" {
			p.addf("%s: oura.access_token is required", where)
		}

		n := u.EffectiveNotifier()
		switch n.Type {
		case NotifierTelegram:
			if n.BotToken == "" {
				p.addf("%s: telegram bot_token is required", where)
			}
			if n.ChatID == "" {
				p.addf("%s: telegram chat_id is required", where)
			}
		case NotifierDiscord, NotifierSlack:
			if err := entity.ValidateHTTPSURL("webhook_url", n.WebhookURL, ""); err != nil {
				p.addf("%s: %s %v", where, n.Type, err)
			}
		case NotifierNoOp:
		case "":
			p.addf("%s: notifier.type is required (telegram, discord, slack or noop)", where)
		default:
			p.addf("%s: notifier.type %q is not supported", where, n.Type)
		}
	}
}
