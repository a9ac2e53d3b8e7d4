package model

import (
	"net/url"
	"strings"
	"time"
)

// DefaultMaxPetitionsPerUser applies when no settings row exists yet.
const DefaultMaxPetitionsPerUser = 5

// Settings is the single-row portal configuration edited by administrators.
type Settings struct {
	WebhookURL          string    `json:"webhook_url"            db:"webhook_url"`
	MaxPetitionsPerUser int       `json:"max_petitions_per_user" db:"max_petitions_per_user"`
	WebhookBodyExpr     string    `json:"webhook_body_expr"      db:"webhook_body_expr"`
	UpdatedAt           time.Time `json:"updated_at"             db:"updated_at"`
}

// DefaultSettings returns the settings used before an administrator saves any.
func DefaultSettings() Settings {
	return Settings{MaxPetitionsPerUser: DefaultMaxPetitionsPerUser}
}

// UpdateSettingsRequest represents an administrator's settings change.
type UpdateSettingsRequest struct {
	WebhookURL          string `json:"webhook_url"`
	MaxPetitionsPerUser int    `json:"max_petitions_per_user"`
	WebhookBodyExpr     string `json:"webhook_body_expr"`
}

// Validate normalizes and validates UpdateSettingsRequest.
// JMESPath compilation of WebhookBodyExpr is checked by the service.
func (r *UpdateSettingsRequest) Validate() error {
	r.WebhookURL = strings.TrimSpace(r.WebhookURL)
	r.WebhookBodyExpr = strings.TrimSpace(r.WebhookBodyExpr)
	if r.MaxPetitionsPerUser < 1 {
		return fieldErr("max_petitions_per_user", "max_petitions_per_user must be >= 1")
	}
	if r.WebhookURL == "" {
		return nil
	}
	return ValidateWebhookURL(r.WebhookURL)
}

// ValidateWebhookURL requires an absolute http(s) URL with a host.
func ValidateWebhookURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fieldErr("webhook_url", "webhook_url is not a valid URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fieldErr("webhook_url", "webhook_url must use http or https")
	}
	if strings.TrimSpace(u.Host) == "" {
		return fieldErr("webhook_url", "webhook_url is missing a host")
	}
	return nil
}
