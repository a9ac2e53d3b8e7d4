package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	domainauth "github.com/tribunal-ia/portal/internal/domain/auth"
	"github.com/tribunal-ia/portal/internal/ports"
	"golang.org/x/sync/singleflight"
)

// DefaultRefreshSkew is how close to expiry an access token may get before it is refreshed on read.
const DefaultRefreshSkew = time.Minute

// ErrSSODisabled is returned by the SSO methods when no SSO provider is configured.
var ErrSSODisabled = errors.New("sso login is not configured")

// CredentialServiceOptions groups dependencies for CredentialService.
type CredentialServiceOptions struct {
	Authenticator ports.PasswordAuthenticator // required
	Sessions      ports.SessionStore          // required
	Config        CredentialServiceConfig
}

// CredentialServiceConfig holds optional collaborators and tuning.
type CredentialServiceConfig struct {
	SSO         ports.AuthProvider // optional; enables BeginSSO/CompleteSSO
	Events      ports.EventBus     // optional; relays events between instances
	Logger      *slog.Logger
	RefreshSkew time.Duration
	Now         func() time.Time
}

// CredentialService is the credential store used by the rest of the portal.
// It signs users in through the configured authenticator, keeps their sessions in the
// session store, refreshes tokens on read and fans state changes out to subscribers.
type CredentialService struct {
	auth     ports.PasswordAuthenticator
	sessions ports.SessionStore
	sso      ports.AuthProvider
	events   ports.EventBus
	logger   *slog.Logger
	skew     time.Duration
	now      func() time.Time
	origin   string

	refreshes singleflight.Group

	mu     sync.RWMutex
	subs   map[uint64]func(domainauth.Event)
	nextID uint64
}

var _ ports.CredentialStore = (*CredentialService)(nil)

// NewCredentialService constructs a CredentialService. It panics when a required dependency is nil.
func NewCredentialService(opts CredentialServiceOptions) *CredentialService {
	if opts.Authenticator == nil {
		panic("Authenticator is required")
	}
	if opts.Sessions == nil {
		panic("Sessions is required")
	}
	cfg := opts.Config
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	skew := cfg.RefreshSkew
	if skew <= 0 {
		skew = DefaultRefreshSkew
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &CredentialService{
		auth:     opts.Authenticator,
		sessions: opts.Sessions,
		sso:      cfg.SSO,
		events:   cfg.Events,
		logger:   logger.With("component", "credentials", "provider", opts.Authenticator.Name()),
		skew:     skew,
		now:      now,
		origin:   uuid.NewString(),
		subs:     make(map[uint64]func(domainauth.Event)),
	}
}

// SignIn verifies the credentials and starts a new session.
// Authenticator failures are returned unchanged so callers can classify them.
func (s *CredentialService) SignIn(ctx context.Context, email, password string) (domainauth.Session, error) {
	grant, err := s.auth.SignInWithPassword(ctx, email, password)
	if err != nil {
		return domainauth.Session{}, err
	}
	sess := sessionFromGrant(generateSessionID(), s.auth.Name(), grant)
	if err := s.sessions.Save(ctx, sess); err != nil {
		return domainauth.Session{}, domainauth.NewAuthError(domainauth.KindUnavailable, fmt.Errorf("save session: %w", err))
	}
	s.publish(ctx, domainauth.EventSignedIn, sess)
	return sess, nil
}

// SignOut ends the session remotely and locally. The local session is removed and the
// signed_out event published even when remote revocation fails; the errors are joined.
func (s *CredentialService) SignOut(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}

	var errs []error
	sess, err := s.sessions.Get(ctx, sessionID)
	switch {
	case err == nil:
		if sess.AccessToken != "" {
			if rerr := s.auth.Revoke(ctx, sess.AccessToken); rerr != nil {
				errs = append(errs, fmt.Errorf("revoke session: %w", rerr))
			}
		}
	case errors.Is(err, ports.ErrSessionNotFound):
		sess = domainauth.Session{ID: sessionID}
	default:
		sess = domainauth.Session{ID: sessionID}
		errs = append(errs, fmt.Errorf("get session: %w", err))
	}

	if derr := s.sessions.Delete(ctx, sessionID); derr != nil {
		errs = append(errs, fmt.Errorf("delete session: %w", derr))
	}
	s.publish(ctx, domainauth.EventSignedOut, sess)
	return errors.Join(errs...)
}

// CurrentSession returns the live session for sessionID, or nil when there is none.
// Tokens close to expiry are refreshed and a token_refreshed event is published.
func (s *CredentialService) CurrentSession(ctx context.Context, sessionID string) (*domainauth.Session, error) {
	if sessionID == "" {
		return nil, nil
	}
	sess, err := s.sessions.Get(ctx, sessionID)
	if errors.Is(err, ports.ErrSessionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, domainauth.NewAuthError(domainauth.KindUnavailable, fmt.Errorf("get session: %w", err))
	}

	now := s.now()
	if now.Add(s.skew).Before(sess.ExpiresAt) {
		return &sess, nil
	}
	if sess.RefreshToken == "" {
		if now.Before(sess.ExpiresAt) {
			return &sess, nil
		}
		s.expire(ctx, sess)
		return nil, nil
	}

	v, err, _ := s.refreshes.Do(sessionID, func() (any, error) {
		return s.refresh(ctx, sess)
	})
	if err != nil {
		return nil, err
	}
	refreshed, _ := v.(*domainauth.Session)
	if refreshed == nil {
		return nil, nil
	}
	out := *refreshed
	return &out, nil
}

func (s *CredentialService) refresh(ctx context.Context, sess domainauth.Session) (*domainauth.Session, error) {
	grant, err := s.auth.Refresh(ctx, sess.RefreshToken)
	if err != nil {
		var ae *domainauth.AuthError
		if errors.As(err, &ae) && (ae.Kind == domainauth.KindSessionExpired || ae.Kind == domainauth.KindInvalidCredentials) {
			s.logger.InfoContext(ctx, "refresh token rejected, ending session", "user_id", sess.UserID)
			s.expire(ctx, sess)
			return nil, nil
		}
		if s.now().Before(sess.ExpiresAt) {
			s.logger.WarnContext(ctx, "token refresh failed, serving current token", "user_id", sess.UserID, "error", err)
			return &sess, nil
		}
		return nil, domainauth.NewAuthError(domainauth.KindUnavailable, fmt.Errorf("refresh session: %w", err))
	}

	next := sessionFromGrant(sess.ID, sess.Provider, grant)
	if next.FullName == "" {
		next.FullName = sess.FullName
	}
	if err := s.sessions.Save(ctx, next); err != nil {
		return nil, domainauth.NewAuthError(domainauth.KindUnavailable, fmt.Errorf("save refreshed session: %w", err))
	}
	s.publish(ctx, domainauth.EventTokenRefreshed, next)
	return &next, nil
}

func (s *CredentialService) expire(ctx context.Context, sess domainauth.Session) {
	if err := s.sessions.Delete(ctx, sess.ID); err != nil {
		s.logger.WarnContext(ctx, "failed to delete expired session", "error", err)
	}
	s.publish(ctx, domainauth.EventSignedOut, sess)
}

// Subscribe registers fn for every auth state change. fn runs on the publisher's
// goroutine and must not block.
func (s *CredentialService) Subscribe(fn func(domainauth.Event)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// SubscriberCount reports the number of registered subscribers.
func (s *CredentialService) SubscriberCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// Relay delivers events published by other instances to local subscribers until ctx is canceled.
// It returns immediately when no event bus is configured.
func (s *CredentialService) Relay(ctx context.Context) error {
	if s.events == nil {
		return nil
	}
	return s.events.Listen(ctx, func(ev domainauth.Event) {
		if ev.Origin == s.origin {
			return
		}
		s.deliver(ev)
	})
}

// UserUpdated announces that the profile of userID changed. Subscribers here and on every
// instance reached by the event bus re-read it, so role changes take effect everywhere.
func (s *CredentialService) UserUpdated(ctx context.Context, userID string) {
	if userID == "" {
		return
	}
	s.publish(ctx, domainauth.EventUserUpdated, domainauth.Session{UserID: userID})
}

func (s *CredentialService) publish(ctx context.Context, kind domainauth.EventKind, sess domainauth.Session) {
	ev := domainauth.Event{
		Kind:      kind,
		SessionID: sess.ID,
		UserID:    sess.UserID,
		At:        s.now().UTC(),
		Origin:    s.origin,
	}
	s.deliver(ev)
	if s.events == nil {
		return
	}
	if err := s.events.Publish(context.WithoutCancel(ctx), ev); err != nil {
		s.logger.WarnContext(ctx, "failed to relay auth event", "kind", ev.Kind, "error", err)
	}
}

func (s *CredentialService) deliver(ev domainauth.Event) {
	s.mu.RLock()
	fns := make([]func(domainauth.Event), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// BeginLoginResult contains the result of beginning an SSO flow.
type BeginLoginResult struct {
	AuthURL string
	State   string
	Nonce   string
}

// BeginSSO initiates an SSO flow and returns the provider auth URL with state and nonce.
func (s *CredentialService) BeginSSO(ctx context.Context, redirectURL string) (*BeginLoginResult, error) {
	if s.sso == nil {
		return nil, ErrSSODisabled
	}
	if redirectURL == "" {
		return nil, errors.New("redirect URL is required")
	}

	authURL, state, nonce, err := s.sso.Begin(ctx, ports.BeginInput{RedirectURL: redirectURL})
	if err != nil {
		return nil, fmt.Errorf("begin auth flow: %w", err)
	}
	return &BeginLoginResult{AuthURL: authURL, State: state, Nonce: nonce}, nil
}

// CompleteLoginInput groups parameters for completing an SSO flow.
type CompleteLoginInput struct {
	Code  string
	State string
	Nonce string
}

// CompleteSSO exchanges the authorization code for an identity and starts a session for it.
func (s *CredentialService) CompleteSSO(ctx context.Context, input CompleteLoginInput) (domainauth.Session, error) {
	if s.sso == nil {
		return domainauth.Session{}, ErrSSODisabled
	}
	if input.Code == "" {
		return domainauth.Session{}, errors.New("authorization code is required")
	}
	if input.State == "" {
		return domainauth.Session{}, errors.New("state parameter is required")
	}
	if input.Nonce == "" {
		return domainauth.Session{}, errors.New("nonce parameter is required")
	}

	identity, err := s.sso.Exchange(ctx, ports.ExchangeInput(input))
	if err != nil {
		return domainauth.Session{}, fmt.Errorf("exchange authorization code: %w", err)
	}

	sess := sessionFromGrant(generateSessionID(), "oidc", domainauth.Grant{
		Identity:  identity,
		ExpiresAt: identity.ExpiresAt,
	})
	if err := s.sessions.Save(ctx, sess); err != nil {
		return domainauth.Session{}, fmt.Errorf("save session: %w", err)
	}
	s.publish(ctx, domainauth.EventSignedIn, sess)
	return sess, nil
}

func sessionFromGrant(id, provider string, g domainauth.Grant) domainauth.Session {
	expires := g.ExpiresAt
	if expires.IsZero() {
		expires = g.Identity.ExpiresAt
	}
	return domainauth.Session{
		ID:           id,
		UserID:       g.Identity.UserID,
		Email:        g.Identity.Email,
		FullName:     g.Identity.FullName,
		AccessToken:  g.AccessToken,
		RefreshToken: g.RefreshToken,
		Provider:     provider,
		ExpiresAt:    expires,
	}
}

// generateSessionID creates a random, URL-safe session ID.
func generateSessionID() string {
	return uuid.New().String()
}
