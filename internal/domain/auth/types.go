package auth

// Package auth contains domain-level types for authentication, profiles and role gating.
// It is pure and free of framework/adapter concerns.

import (
	"fmt"
	"strings"
	"time"
)

// Role represents an application's authorization role.
// Keep string form for easy persistence and cookies.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// ParseRole parses a role name case-insensitively.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("invalid role: %q (valid options: admin, user)", s)
	}
	return r, nil
}

// Identity represents the authenticated principal as known to the credential provider.
// Adapters map provider-specific claims into this shape.
type Identity struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name,omitempty"` // from provider metadata, may be empty
	ExpiresAt time.Time `json:"expires_at"`
}

// Session is the server-side credential record persisted for a browser session.
// ID is the opaque value carried by the session cookie.
type Session struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	FullName     string    `json:"full_name,omitempty"`
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Provider     string    `json:"provider"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Identity returns the identity carried by the session.
func (s Session) Identity() Identity {
	return Identity{
		UserID:    s.UserID,
		Email:     s.Email,
		FullName:  s.FullName,
		ExpiresAt: s.ExpiresAt,
	}
}

// Grant is the result of a successful password or refresh exchange with a credential provider.
type Grant struct {
	Identity     Identity
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}
