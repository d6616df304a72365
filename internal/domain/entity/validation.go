package entity

import (
	"fmt"
	"net/url"
	"regexp"
)

const (
	// maxTenantIDLength keeps tenant ids usable as metric label values.
	maxTenantIDLength = 64

	maxURLLength = 2048
)

var tenantIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// ValidateTenantID checks that id is non-empty and uses a restricted charset.
func ValidateTenantID(id string) error {
	if id == "" {
		return &ValidationError{Field: "id", Message: "tenant id is required"}
	}
	if len(id) > maxTenantIDLength {
		return &ValidationError{
			Field:   "id",
			Message: fmt.Sprintf("tenant id must not exceed %d characters", maxTenantIDLength),
		}
	}
	if !tenantIDPattern.MatchString(id) {
		return &ValidationError{
			Field:   "id",
			Message: "tenant id may only contain letters, digits, '_', '-' and '.'",
		}
	}
	return nil
}

// ValidateHTTPSURL validates that rawURL is a well-formed https URL with a host.
// The allowedHost check is skipped when allowedHost is empty.
func ValidateHTTPSURL(field, rawURL, allowedHost string) error {
	if rawURL == "" {
		return &ValidationError{Field: field, Message: "URL is required"}
	}
	if len(rawURL) > maxURLLength {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("url must not exceed %d characters", maxURLLength),
		}
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return &ValidationError{Field: field, Message: fmt.Sprintf("invalid URL: %v", err)}
	}
	if u.Scheme != "https" {
		return &ValidationError{Field: field, Message: "URL must use https scheme"}
	}
	if u.Host == "" {
		return &ValidationError{Field: field, Message: "URL must have a valid host"}
	}
	if allowedHost != "" && u.Hostname() != allowedHost {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("URL host must be %s, got %s", allowedHost, u.Hostname()),
		}
	}
	return nil
}
