package ports

// Package ports defines interfaces (hexagonal ports) for auth-related behavior.
// Implementations live in internal/adapters; orchestration in internal/service.

import (
	"context"
	"errors"

	domainauth "github.com/tribunal-ia/portal/internal/domain/auth"
)

// BeginInput carries inputs for initiating an SSO flow.
type BeginInput struct {
	RedirectURL string
}

// AuthProvider initiates and completes a redirect-based SSO flow against an IdP.
type AuthProvider interface {
	// Begin starts the login flow and returns the provider auth URL, an opaque state, and a nonce.
	Begin(ctx context.Context, in BeginInput) (authURL, state, nonce string, err error)

	// Exchange completes the login flow, verifying state and nonce, and returns the authenticated identity.
	Exchange(ctx context.Context, in ExchangeInput) (domainauth.Identity, error)
}

// ExchangeInput groups parameters for the code/token exchange.
type ExchangeInput struct {
	Code  string
	State string
	Nonce string
}

// PasswordAuthenticator verifies email/password credentials against the hosted credential provider.
// Implementations return *domainauth.AuthError so callers can classify failures.
type PasswordAuthenticator interface {
	SignInWithPassword(ctx context.Context, email, password string) (domainauth.Grant, error)
	Refresh(ctx context.Context, refreshToken string) (domainauth.Grant, error)
	// Revoke ends the remote session for accessToken. Providers without remote sessions return nil.
	Revoke(ctx context.Context, accessToken string) error
	Name() string
}

// ErrSessionNotFound is matched (errors.Is) by SessionStore.Get errors for missing or expired sessions.
var ErrSessionNotFound = errors.New("session not found")

// SessionStore persists and retrieves credential sessions.
type SessionStore interface {
	Save(ctx context.Context, sess domainauth.Session) error
	Get(ctx context.Context, id string) (domainauth.Session, error)
	Delete(ctx context.Context, id string) error
}

// CredentialStore is the only way the rest of the system talks to the credential provider.
type CredentialStore interface {
	SignIn(ctx context.Context, email, password string) (domainauth.Session, error)
	SignOut(ctx context.Context, sessionID string) error
	// CurrentSession returns nil with a nil error when the browser session has no credentials.
	CurrentSession(ctx context.Context, sessionID string) (*domainauth.Session, error)
	// Subscribe registers fn for every auth state change and returns its unsubscribe func.
	// fn is called synchronously by the publisher and must not block.
	Subscribe(fn func(domainauth.Event)) (unsubscribe func())
}

// EventBus relays auth events between application instances.
type EventBus interface {
	Publish(ctx context.Context, ev domainauth.Event) error
	// Listen delivers events to fn until ctx is canceled.
	Listen(ctx context.Context, fn func(domainauth.Event)) error
}
