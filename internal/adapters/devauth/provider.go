package devauth

// Package devauth provides a config-driven PasswordAuthenticator for local development.
// Accounts are configured with bcrypt password hashes; tokens are opaque and held in memory.

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	domainauth "github.com/tribunal-ia/portal/internal/domain/auth"
	"golang.org/x/crypto/bcrypt"
)

// User is one configured development account.
type User struct {
	ID           string
	Email        string
	FullName     string
	PasswordHash string // bcrypt
}

// Config controls the dev auth provider behavior.
type Config struct {
	Users    []User
	TokenTTL time.Duration // default 1h when zero
}

type grantRecord struct {
	identity domainauth.Identity
	access   string
}

// Provider implements ports.PasswordAuthenticator for local development.
type Provider struct {
	users    map[string]User // keyed by lower-cased email
	tokenTTL time.Duration
	now      func() time.Time

	mu        sync.Mutex
	byRefresh map[string]grantRecord
}

// NewProvider constructs a dev auth provider from Config.
func NewProvider(cfg Config) (*Provider, error) {
	if len(cfg.Users) == 0 {
		return nil, errors.New("dev auth: at least one user is required")
	}
	users := make(map[string]User, len(cfg.Users))
	for _, u := range cfg.Users {
		if u.ID == "" {
			return nil, errors.New("dev auth: user ID is required")
		}
		if u.Email == "" {
			return nil, fmt.Errorf("dev auth: email is required for user %s", u.ID)
		}
		if _, err := bcrypt.Cost([]byte(u.PasswordHash)); err != nil {
			return nil, fmt.Errorf("dev auth: invalid bcrypt hash for %s: %w", u.Email, err)
		}
		users[strings.ToLower(u.Email)] = u
	}
	ttl := cfg.TokenTTL
	if ttl == 0 {
		ttl = time.Hour
	}
	return &Provider{
		users:     users,
		tokenTTL:  ttl,
		now:       time.Now,
		byRefresh: make(map[string]grantRecord),
	}, nil
}

// Name identifies the provider in stored sessions.
func (p *Provider) Name() string { return "dev" }

// SignInWithPassword checks the password against the configured hash.
func (p *Provider) SignInWithPassword(_ context.Context, email, password string) (domainauth.Grant, error) {
	u, ok := p.users[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		// Burn comparable time for unknown emails.
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return domainauth.Grant{}, domainauth.NewAuthError(domainauth.KindInvalidCredentials, domainauth.ErrInvalidCredentials)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return domainauth.Grant{}, domainauth.NewAuthError(domainauth.KindInvalidCredentials, domainauth.ErrInvalidCredentials)
	}
	return p.issue(domainauth.Identity{UserID: u.ID, Email: u.Email, FullName: u.FullName})
}

// Refresh rotates the refresh token and issues a new access token.
func (p *Provider) Refresh(_ context.Context, refreshToken string) (domainauth.Grant, error) {
	p.mu.Lock()
	rec, ok := p.byRefresh[refreshToken]
	delete(p.byRefresh, refreshToken)
	p.mu.Unlock()
	if !ok || refreshToken == "" {
		return domainauth.Grant{}, domainauth.NewAuthError(domainauth.KindSessionExpired, errors.New("unknown refresh token"))
	}
	return p.issue(rec.identity)
}

// Revoke forgets every refresh token issued alongside accessToken.
func (p *Provider) Revoke(_ context.Context, accessToken string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for rt, rec := range p.byRefresh {
		if rec.access == accessToken {
			delete(p.byRefresh, rt)
		}
	}
	return nil
}

func (p *Provider) issue(id domainauth.Identity) (domainauth.Grant, error) {
	access, err := randomString(32)
	if err != nil {
		return domainauth.Grant{}, fmt.Errorf("generate access token: %w", err)
	}
	refresh, err := randomString(32)
	if err != nil {
		return domainauth.Grant{}, fmt.Errorf("generate refresh token: %w", err)
	}
	exp := p.now().Add(p.tokenTTL)
	id.ExpiresAt = exp

	p.mu.Lock()
	p.byRefresh[refresh] = grantRecord{identity: id, access: access}
	p.mu.Unlock()

	return domainauth.Grant{Identity: id, AccessToken: access, RefreshToken: refresh, ExpiresAt: exp}, nil
}

// HashPassword returns a bcrypt hash suitable for Config.Users.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// dummyHash is the bcrypt hash of an unguessable value.
var dummyHash = []byte("$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5BWX4Z1S5Q8pG6R1G0F1z5h6uYx5e")

func randomString(n int) (string, error) {
	if n <= 0 {
		return "", nil
	}
	bLen := (n*3 + 3) / 4
	b := make([]byte, bLen)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b)[:n], nil
}
