package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// AuthMode represents the credential provider used for sign-in.
type AuthMode string

const (
	// AuthModeSupabase signs in with email and password against the hosted auth service.
	AuthModeSupabase AuthMode = "supabase"
	// AuthModeDev signs in against accounts listed in DEV_AUTH_USERS (for development only).
	AuthModeDev AuthMode = "dev"
	// AuthModeOIDC adds single sign-on through an OIDC provider on top of the hosted service.
	AuthModeOIDC AuthMode = "oidc"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "supabase", "dev", "oidc":
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: supabase, dev, oidc)", v)
	}
}

// SupabaseConfig points at the hosted auth service.
// Missing values are tolerated at startup; sign-in then fails until they are set.
type SupabaseConfig struct {
	URL     string `env:"URL"`
	AnonKey string `env:"ANON_KEY"`
}

// OIDCConfig contains OIDC single sign-on configuration (used when AUTH_MODE=oidc).
type OIDCConfig struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	RedirectURL  string `env:"REDIRECT_URL"  envDefault:"http://localhost:8080/auth/callback"`
	Scope        string `env:"SCOPE"         envDefault:"openid profile email"`
	DiscoveryURL string `env:"DISCOVERY_URL"`
}

// DevUser is one development account, written as id|email|full name|bcrypt hash.
type DevUser struct {
	ID           string
	Email        string
	FullName     string
	PasswordHash string
}

// UnmarshalText implements encoding.TextUnmarshaler for DevUser.
func (u *DevUser) UnmarshalText(text []byte) error {
	parts := strings.Split(string(text), "|")
	if len(parts) != 4 {
		return fmt.Errorf("invalid dev user %q: want id|email|full name|bcrypt hash", text)
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if parts[0] == "" || parts[1] == "" || parts[3] == "" {
		return errors.New("invalid dev user: id, email and hash are required")
	}
	*u = DevUser{ID: parts[0], Email: parts[1], FullName: parts[2], PasswordHash: parts[3]}
	return nil
}

// DevAuthConfig lists the accounts accepted when AUTH_MODE=dev.
type DevAuthConfig struct {
	Users    []DevUser     `env:"USERS"     envSeparator:";"`
	TokenTTL time.Duration `env:"TOKEN_TTL" envDefault:"1h"`
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// Mode determines which credential provider to use.
	Mode AuthMode `env:"AUTH_MODE" envDefault:"supabase"`

	Supabase SupabaseConfig `envPrefix:"SUPABASE_"`
	OIDC     OIDCConfig     `envPrefix:"OIDC_"`
	DevAuth  DevAuthConfig  `envPrefix:"DEV_AUTH_"`

	// LoginSettle bounds how long login waits for the new session's profile before redirecting.
	LoginSettle time.Duration `env:"AUTH_LOGIN_SETTLE" envDefault:"3s"`

	// GateSettle bounds how long a gated request waits on a loading auth context.
	GateSettle time.Duration `env:"AUTH_GATE_SETTLE" envDefault:"2s"`

	// RefreshSkew refreshes access tokens this long before they expire.
	RefreshSkew time.Duration `env:"AUTH_REFRESH_SKEW" envDefault:"1m"`

	// ContextIdleTTL evicts auth contexts that have not been used for this long.
	ContextIdleTTL time.Duration `env:"AUTH_CONTEXT_IDLE_TTL" envDefault:"30m"`

	// SessionLifetime caps how long a refreshable session is kept in Redis.
	SessionLifetime time.Duration `env:"AUTH_SESSION_LIFETIME" envDefault:"168h"`

	// EventsChannel is the Redis pub/sub channel that relays auth events between instances.
	// Empty disables the relay.
	EventsChannel string `env:"AUTH_EVENTS_CHANNEL" envDefault:"auth:events"`
}

// Sanitize applies guardrails to auth configuration values.
func (c *AuthConfig) Sanitize() {
	c.Supabase.URL = strings.TrimRight(strings.TrimSpace(c.Supabase.URL), "/")
	c.Supabase.AnonKey = strings.TrimSpace(c.Supabase.AnonKey)
	c.EventsChannel = strings.TrimSpace(c.EventsChannel)

	c.LoginSettle = clampDuration(c.LoginSettle, 100*time.Millisecond, 30*time.Second)
	c.GateSettle = clampDuration(c.GateSettle, 0, 30*time.Second)
	c.RefreshSkew = clampDuration(c.RefreshSkew, 0, 10*time.Minute)
	c.ContextIdleTTL = clampDuration(c.ContextIdleTTL, time.Minute, 24*time.Hour)
	if c.SessionLifetime <= 0 {
		c.SessionLifetime = 7 * 24 * time.Hour
	}
	if c.DevAuth.TokenTTL <= 0 {
		c.DevAuth.TokenTTL = time.Hour
	}
}

// Validate reports missing settings for the selected mode.
func (c *AuthConfig) Validate() error {
	switch c.Mode {
	case AuthModeDev:
		if len(c.DevAuth.Users) == 0 {
			return errors.New("AUTH_MODE=dev requires DEV_AUTH_USERS")
		}
	case AuthModeOIDC:
		if c.OIDC.ClientID == "" || c.OIDC.ClientSecret == "" || c.OIDC.DiscoveryURL == "" {
			return errors.New("AUTH_MODE=oidc requires OIDC_CLIENT_ID, OIDC_CLIENT_SECRET and OIDC_DISCOVERY_URL")
		}
	case AuthModeSupabase, "":
	default:
		return fmt.Errorf("unknown AUTH_MODE %q", c.Mode)
	}
	return nil
}

func clampDuration(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}
