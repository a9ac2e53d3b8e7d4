package auth

// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	domainauth "github.com/tribunal-ia/portal/internal/domain/auth"
	"github.com/tribunal-ia/portal/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.AuthProvider          = (*MockAuthProvider)(nil)
	_ ports.SessionStore          = (*MemorySessionStore)(nil)
	_ ports.PasswordAuthenticator = (*FakeAuthenticator)(nil)
	_ ports.CredentialStore       = (*FakeCredentialStore)(nil)
)

// MockAuthProvider simulates an IdP for tests with deterministic state/nonce handling.
type MockAuthProvider struct {
	BeginFunc    func(ctx context.Context, in ports.BeginInput) (authURL, state, nonce string, err error)
	ExchangeFunc func(ctx context.Context, in ports.ExchangeInput) (domainauth.Identity, error)

	// Deterministic values for predictable testing
	AuthURL     string
	StatePrefix string
	NoncePrefix string
	DefaultUser domainauth.Identity

	callCount int
}

// NewMockAuthProvider creates a MockAuthProvider with sensible defaults.
func NewMockAuthProvider() *MockAuthProvider {
	return &MockAuthProvider{
		AuthURL:     "https://mock-idp/auth",
		StatePrefix: "state",
		NoncePrefix: "nonce",
		DefaultUser: defaultIdentity(),
	}
}

func defaultIdentity() domainauth.Identity {
	return domainauth.Identity{
		UserID:   "mock-user-1",
		Email:    "mock.user@example.com",
		FullName: "Mock User",
	}
}

func (m *MockAuthProvider) Begin(ctx context.Context, in ports.BeginInput) (string, string, string, error) {
	if m.BeginFunc != nil {
		return m.BeginFunc(ctx, in)
	}

	m.callCount++
	authURL := m.AuthURL
	if authURL == "" {
		authURL = "https://mock-idp/auth"
	}
	statePrefix := m.StatePrefix
	if statePrefix == "" {
		statePrefix = "state"
	}
	noncePrefix := m.NoncePrefix
	if noncePrefix == "" {
		noncePrefix = "nonce"
	}

	return authURL, fmt.Sprintf("%s-%d", statePrefix, m.callCount), fmt.Sprintf("%s-%d", noncePrefix, m.callCount), nil
}

func (m *MockAuthProvider) Exchange(ctx context.Context, in ports.ExchangeInput) (domainauth.Identity, error) {
	if m.ExchangeFunc != nil {
		return m.ExchangeFunc(ctx, in)
	}

	user := m.DefaultUser
	if user.UserID == "" {
		user = defaultIdentity()
	}
	user.ExpiresAt = time.Now().Add(time.Hour)
	return user, nil
}

// MemorySessionStore is an in-memory session store for unit tests.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]domainauth.Session
}

// NewMemorySessionStore creates a new in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]domainauth.Session),
	}
}

func (m *MemorySessionStore) Save(_ context.Context, sess domainauth.Session) error {
	if sess.ID == "" {
		return errors.New("session ID cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.ID] = sess
	return nil
}

func (m *MemorySessionStore) Get(_ context.Context, id string) (domainauth.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return domainauth.Session{}, ErrNotFound
	}
	return sess, nil
}

func (m *MemorySessionStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// Len reports the number of stored sessions.
func (m *MemorySessionStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

type notFoundError struct{}

func (notFoundError) Error() string { return "not found" }

func (notFoundError) Is(target error) bool { return target == ports.ErrSessionNotFound }

// ErrNotFound is returned by mocks when an entity is not present.
var ErrNotFound error = notFoundError{}

// FakeAuthenticator is a PasswordAuthenticator backed by a map of email to password.
// Func fields override the default behavior.
type FakeAuthenticator struct {
	SignInFunc  func(ctx context.Context, email, password string) (domainauth.Grant, error)
	RefreshFunc func(ctx context.Context, refreshToken string) (domainauth.Grant, error)
	RevokeFunc  func(ctx context.Context, accessToken string) error

	Passwords map[string]string
	TokenTTL  time.Duration

	mu      sync.Mutex
	issued  int
	revoked []string
}

// NewFakeAuthenticator creates a FakeAuthenticator that accepts the given email/password pairs.
func NewFakeAuthenticator(passwords map[string]string) *FakeAuthenticator {
	return &FakeAuthenticator{Passwords: passwords, TokenTTL: time.Hour}
}

func (f *FakeAuthenticator) Name() string { return "fake" }

func (f *FakeAuthenticator) SignInWithPassword(ctx context.Context, email, password string) (domainauth.Grant, error) {
	if f.SignInFunc != nil {
		return f.SignInFunc(ctx, email, password)
	}
	if want, ok := f.Passwords[email]; !ok || want != password {
		return domainauth.Grant{}, domainauth.NewAuthError(domainauth.KindInvalidCredentials, domainauth.ErrInvalidCredentials)
	}
	return f.grant(IdentityForEmail(email)), nil
}

func (f *FakeAuthenticator) Refresh(ctx context.Context, refreshToken string) (domainauth.Grant, error) {
	if f.RefreshFunc != nil {
		return f.RefreshFunc(ctx, refreshToken)
	}
	if refreshToken == "" {
		return domainauth.Grant{}, domainauth.NewAuthError(domainauth.KindSessionExpired, nil)
	}
	return f.grant(domainauth.Identity{UserID: "refreshed"}), nil
}

func (f *FakeAuthenticator) Revoke(ctx context.Context, accessToken string) error {
	f.mu.Lock()
	f.revoked = append(f.revoked, accessToken)
	f.mu.Unlock()
	if f.RevokeFunc != nil {
		return f.RevokeFunc(ctx, accessToken)
	}
	return nil
}

// Revoked returns the access tokens passed to Revoke.
func (f *FakeAuthenticator) Revoked() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.revoked...)
}

func (f *FakeAuthenticator) grant(id domainauth.Identity) domainauth.Grant {
	f.mu.Lock()
	f.issued++
	n := f.issued
	f.mu.Unlock()

	ttl := f.TokenTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	exp := time.Now().Add(ttl)
	id.ExpiresAt = exp
	return domainauth.Grant{
		Identity:     id,
		AccessToken:  fmt.Sprintf("access-%d", n),
		RefreshToken: fmt.Sprintf("refresh-%d", n),
		ExpiresAt:    exp,
	}
}

// IdentityForEmail derives a stable identity from an email address.
func IdentityForEmail(email string) domainauth.Identity {
	return domainauth.Identity{UserID: "uid-" + email, Email: email}
}

// FakeCredentialStore is a CredentialStore whose sessions and events are driven by the test.
type FakeCredentialStore struct {
	SignInFunc         func(ctx context.Context, email, password string) (domainauth.Session, error)
	SignOutFunc        func(ctx context.Context, sessionID string) error
	CurrentSessionFunc func(ctx context.Context, sessionID string) (*domainauth.Session, error)

	mu             sync.Mutex
	sessions       map[string]domainauth.Session
	subs           map[int]func(domainauth.Event)
	nextSub        int
	subscribeCalls int
	signOutCalls   int
}

// NewFakeCredentialStore creates an empty FakeCredentialStore.
func NewFakeCredentialStore() *FakeCredentialStore {
	return &FakeCredentialStore{
		sessions: make(map[string]domainauth.Session),
		subs:     make(map[int]func(domainauth.Event)),
	}
}

// Put makes sess the current session for its ID.
func (f *FakeCredentialStore) Put(sess domainauth.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[sess.ID] = sess
}

// Remove drops the session without emitting an event.
func (f *FakeCredentialStore) Remove(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, id)
}

func (f *FakeCredentialStore) SignIn(ctx context.Context, email, password string) (domainauth.Session, error) {
	if f.SignInFunc != nil {
		return f.SignInFunc(ctx, email, password)
	}
	id := IdentityForEmail(email)
	sess := domainauth.Session{
		ID:        "sess-" + email,
		UserID:    id.UserID,
		Email:     email,
		Provider:  "fake",
		ExpiresAt: time.Now().Add(time.Hour),
	}
	f.Put(sess)
	f.Emit(domainauth.Event{Kind: domainauth.EventSignedIn, SessionID: sess.ID, UserID: sess.UserID})
	return sess, nil
}

func (f *FakeCredentialStore) SignOut(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	f.signOutCalls++
	f.mu.Unlock()
	if f.SignOutFunc != nil {
		return f.SignOutFunc(ctx, sessionID)
	}
	f.Remove(sessionID)
	f.Emit(domainauth.Event{Kind: domainauth.EventSignedOut, SessionID: sessionID})
	return nil
}

func (f *FakeCredentialStore) CurrentSession(ctx context.Context, sessionID string) (*domainauth.Session, error) {
	if f.CurrentSessionFunc != nil {
		return f.CurrentSessionFunc(ctx, sessionID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	sess, ok := f.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	return &sess, nil
}

func (f *FakeCredentialStore) Subscribe(fn func(domainauth.Event)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribeCalls++
	id := f.nextSub
	f.nextSub++
	f.subs[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs, id)
	}
}

// Emit delivers ev to every subscriber synchronously.
func (f *FakeCredentialStore) Emit(ev domainauth.Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	f.mu.Lock()
	fns := make([]func(domainauth.Event), 0, len(f.subs))
	for _, fn := range f.subs {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// SubscribeCalls reports how many times Subscribe was called.
func (f *FakeCredentialStore) SubscribeCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribeCalls
}

// Subscribers reports the number of active subscriptions.
func (f *FakeCredentialStore) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// SignOutCalls reports how many times SignOut was called.
func (f *FakeCredentialStore) SignOutCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signOutCalls
}
