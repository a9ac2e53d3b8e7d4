package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/tribunal-ia/portal/internal/domain/auth"
	"github.com/tribunal-ia/portal/internal/ports"
)

func TestMockAuthProvider_Begin_Defaults(t *testing.T) {
	provider := NewMockAuthProvider()
	ctx := context.Background()

	input := ports.BeginInput{RedirectURL: "http://localhost:8080/auth/callback"}
	authURL, state, nonce, err := provider.Begin(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, "https://mock-idp/auth", authURL)
	assert.Equal(t, "state-1", state)
	assert.Equal(t, "nonce-1", nonce)

	// Second call should increment counters
	_, state2, nonce2, err := provider.Begin(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, "state-2", state2)
	assert.Equal(t, "nonce-2", nonce2)
}

func TestMockAuthProvider_Exchange_Defaults(t *testing.T) {
	provider := NewMockAuthProvider()

	identity, err := provider.Exchange(context.Background(), ports.ExchangeInput{Code: "c", State: "s", Nonce: "n"})
	require.NoError(t, err)
	assert.Equal(t, "mock-user-1", identity.UserID)
	assert.Equal(t, "Mock User", identity.FullName)
	assert.Equal(t, "mock.user@example.com", identity.Email)
	assert.True(t, identity.ExpiresAt.After(time.Now()))
}

func TestMockAuthProvider_Exchange_CustomFunc(t *testing.T) {
	provider := &MockAuthProvider{
		ExchangeFunc: func(_ context.Context, _ ports.ExchangeInput) (domainauth.Identity, error) {
			return domainauth.Identity{UserID: "func-user", Email: "func@example.com"}, nil
		},
	}

	identity, err := provider.Exchange(context.Background(), ports.ExchangeInput{})
	require.NoError(t, err)
	assert.Equal(t, "func-user", identity.UserID)
}

func TestMemorySessionStore_Lifecycle(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()

	session := domainauth.Session{
		ID:        "test-session-1",
		UserID:    "user-123",
		Email:     "user@example.com",
		ExpiresAt: time.Now().Add(30 * time.Minute),
	}
	require.NoError(t, store.Save(ctx, session))
	assert.Equal(t, 1, store.Len())

	got, err := store.Get(ctx, "test-session-1")
	require.NoError(t, err)
	assert.Equal(t, session.UserID, got.UserID)

	require.NoError(t, store.Delete(ctx, "test-session-1"))
	_, err = store.Get(ctx, "test-session-1")
	assert.Equal(t, ErrNotFound, err)
	assert.ErrorIs(t, err, ports.ErrSessionNotFound)

	err = store.Save(ctx, domainauth.Session{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session ID cannot be empty")
}

func TestFakeAuthenticator(t *testing.T) {
	auth := NewFakeAuthenticator(map[string]string{"ana@example.com": "secret"})
	ctx := context.Background()

	g, err := auth.SignInWithPassword(ctx, "ana@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "uid-ana@example.com", g.Identity.UserID)
	assert.Equal(t, "access-1", g.AccessToken)

	_, err = auth.SignInWithPassword(ctx, "ana@example.com", "wrong")
	assert.Equal(t, domainauth.KindInvalidCredentials, domainauth.LoginReason(err))

	require.NoError(t, auth.Revoke(ctx, "access-1"))
	assert.Equal(t, []string{"access-1"}, auth.Revoked())
}

func TestFakeCredentialStore_Events(t *testing.T) {
	store := NewFakeCredentialStore()
	var got []domainauth.EventKind
	unsubscribe := store.Subscribe(func(ev domainauth.Event) { got = append(got, ev.Kind) })

	sess, err := store.SignIn(context.Background(), "ana@example.com", "x")
	require.NoError(t, err)
	cur, err := store.CurrentSession(context.Background(), sess.ID)
	require.NoError(t, err)
	require.NotNil(t, cur)

	require.NoError(t, store.SignOut(context.Background(), sess.ID))
	cur, err = store.CurrentSession(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Nil(t, cur)

	unsubscribe()
	store.Emit(domainauth.Event{Kind: domainauth.EventUserUpdated})
	assert.Equal(t, []domainauth.EventKind{domainauth.EventSignedIn, domainauth.EventSignedOut}, got)
	assert.Equal(t, 1, store.SubscribeCalls())
	assert.Equal(t, 0, store.Subscribers())
}
