package entity

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateTenantID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{name: "simple id", id: "alice", wantErr: false},
		{name: "legacy default id", id: "default_user", wantErr: false},
		{name: "dots and dashes", id: "team-a.bob", wantErr: false},
		{name: "empty", id: "", wantErr: true},
		{name: "leading dash", id: "-alice", wantErr: true},
		{name: "whitespace", id: "alice smith", wantErr: true},
		{name: "too long", id: strings.Repeat("a", 65), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTenantID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTenantID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
			if err != nil {
				var validationErr *ValidationError
				if !errors.As(err, &validationErr) {
					t.Errorf("expected ValidationError, got %T", err)
				}
			}
		})
	}
}

func TestValidateHTTPSURL(t *testing.T) {
	tests := []struct {
		name        string
		url         string
		allowedHost string
		wantErr     bool
	}{
		{name: "valid discord webhook", url: "https://discord.com/api/webhooks/1/abc", allowedHost: "discord.com"},
		{name: "no host restriction", url: "https://example.com/hook"},
		{name: "http scheme", url: "http://discord.com/api/webhooks/1/abc", allowedHost: "discord.com", wantErr: true},
		{name: "wrong host", url: "https://evil.example.com/api/webhooks", allowedHost: "discord.com", wantErr: true},
		{name: "empty", url: "", wantErr: true},
		{name: "missing host", url: "https:///path", wantErr: true},
		{name: "too long", url: "https://example.com/" + strings.Repeat("a", 2100), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateHTTPSURL("webhook_url", tt.url, tt.allowedHost)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateHTTPSURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}
