package config

import "time"

// PortalConfig tunes the petition workflow and the change feed.
type PortalConfig struct {
	// WebhookTimeout bounds a single call to the analysis workflow webhook.
	WebhookTimeout time.Duration `env:"PORTAL_WEBHOOK_TIMEOUT" envDefault:"10s"`

	// ChangeWaitMax caps the ?wait= parameter of the change feed long-poll.
	ChangeWaitMax time.Duration `env:"PORTAL_CHANGE_WAIT_MAX" envDefault:"30s"`

	// ChangeWaitWindow is how long one LISTEN round blocks before it is renewed.
	ChangeWaitWindow time.Duration `env:"PORTAL_CHANGE_WAIT_WINDOW" envDefault:"1m"`

	// SettingsCacheTTL is how long settings stay cached in Redis. Zero disables the cache.
	SettingsCacheTTL time.Duration `env:"PORTAL_SETTINGS_CACHE_TTL" envDefault:"30s"`

	// CachePrefix namespaces every portal key in Redis.
	CachePrefix string `env:"PORTAL_CACHE_PREFIX" envDefault:"tribunal:"`
}

// Sanitize applies guardrails to portal configuration values.
func (c *PortalConfig) Sanitize() {
	c.WebhookTimeout = clampDuration(c.WebhookTimeout, time.Second, 2*time.Minute)
	c.ChangeWaitMax = clampDuration(c.ChangeWaitMax, time.Second, 2*time.Minute)
	if c.ChangeWaitWindow <= 0 {
		c.ChangeWaitWindow = time.Minute
	}
	if c.SettingsCacheTTL < 0 {
		c.SettingsCacheTTL = 0
	}
	c.SettingsCacheTTL = min(c.SettingsCacheTTL, 10*time.Minute)
}
