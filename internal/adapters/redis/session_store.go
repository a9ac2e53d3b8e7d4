package redis

// Package redis provides Redis-based adapters for the portal.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	domainauth "github.com/tribunal-ia/portal/internal/domain/auth"
	"github.com/tribunal-ia/portal/internal/ports"
)

// DefaultSessionLifetime bounds how long a refreshable session is kept without activity.
const DefaultSessionLifetime = 7 * 24 * time.Hour

// SessionStore is a Redis-based credential session store.
// Sessions holding a refresh token live for the configured lifetime; others expire with their access token.
type SessionStore struct {
	client   redis.UniversalClient
	prefix   string
	lifetime time.Duration
	now      func() time.Time
}

// SessionStoreOptions configures a SessionStore.
type SessionStoreOptions struct {
	Prefix   string        // default "session:"
	Lifetime time.Duration // default DefaultSessionLifetime
}

// NewSessionStore creates a Redis-based session store.
func NewSessionStore(client redis.UniversalClient, opts SessionStoreOptions) *SessionStore {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "session:"
	}
	lifetime := opts.Lifetime
	if lifetime <= 0 {
		lifetime = DefaultSessionLifetime
	}
	return &SessionStore{client: client, prefix: prefix, lifetime: lifetime, now: time.Now}
}

func (s *SessionStore) ttlFor(sess domainauth.Session) time.Duration {
	if sess.RefreshToken != "" {
		return s.lifetime
	}
	return sess.ExpiresAt.Sub(s.now())
}

func (s *SessionStore) Save(ctx context.Context, sess domainauth.Session) error {
	if sess.ID == "" {
		return errors.New("session ID cannot be empty")
	}
	ttl := s.ttlFor(sess)
	if ttl <= 0 {
		return errors.New("session is expired")
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := s.client.Set(ctx, s.prefix+sess.ID, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, id string) (domainauth.Session, error) {
	if id == "" {
		return domainauth.Session{}, ErrNotFound
	}

	data, err := s.client.Get(ctx, s.prefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domainauth.Session{}, ErrNotFound
		}
		return domainauth.Session{}, fmt.Errorf("redis get: %w", err)
	}

	var sess domainauth.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return domainauth.Session{}, fmt.Errorf("unmarshal session: %w", err)
	}

	// A session without a refresh token cannot outlive its access token.
	if sess.RefreshToken == "" && s.now().After(sess.ExpiresAt) {
		if err := s.Delete(ctx, id); err != nil {
			return domainauth.Session{}, fmt.Errorf("cleanup expired session: %w", err)
		}
		return domainauth.Session{}, ErrNotFound
	}
	return sess, nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	return s.client.Del(ctx, s.prefix+id).Err()
}

type notFoundError struct{}

func (notFoundError) Error() string { return "session not found" }

func (notFoundError) Is(target error) bool { return target == ports.ErrSessionNotFound }

// ErrNotFound is returned when a session is missing or expired.
var ErrNotFound error = notFoundError{}
