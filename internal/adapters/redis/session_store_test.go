package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/tribunal-ia/portal/internal/domain/auth"
	"github.com/tribunal-ia/portal/internal/ports"
	"github.com/tribunal-ia/portal/internal/testutil"
)

func testSession(id string) domainauth.Session {
	return domainauth.Session{
		ID:           id,
		UserID:       "user-123",
		Email:        "user@example.com",
		FullName:     "Maria Souza",
		AccessToken:  "access",
		RefreshToken: "refresh",
		Provider:     "supabase",
		ExpiresAt:    time.Now().Add(30 * time.Minute),
	}
}

func TestSessionStore_SaveAndGet(t *testing.T) {
	_, client := testutil.SetupMiniRedis(t)
	store := NewSessionStore(client, SessionStoreOptions{})
	ctx := context.Background()

	session := testSession("test-session-1")
	require.NoError(t, store.Save(ctx, session))

	retrieved, err := store.Get(ctx, "test-session-1")
	require.NoError(t, err)
	assert.Equal(t, session.UserID, retrieved.UserID)
	assert.Equal(t, session.Email, retrieved.Email)
	assert.Equal(t, session.RefreshToken, retrieved.RefreshToken)
	assert.WithinDuration(t, session.ExpiresAt, retrieved.ExpiresAt, time.Second)
}

func TestSessionStore_GetNonExistent(t *testing.T) {
	_, client := testutil.SetupMiniRedis(t)
	store := NewSessionStore(client, SessionStoreOptions{})

	_, err := store.Get(context.Background(), "non-existent")
	assert.Equal(t, ErrNotFound, err)
	assert.ErrorIs(t, err, ports.ErrSessionNotFound)

	_, err = store.Get(context.Background(), "")
	assert.Equal(t, ErrNotFound, err)
}

func TestSessionStore_Delete(t *testing.T) {
	_, client := testutil.SetupMiniRedis(t)
	store := NewSessionStore(client, SessionStoreOptions{})
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testSession("test-session-delete")))
	require.NoError(t, store.Delete(ctx, "test-session-delete"))

	_, err := store.Get(ctx, "test-session-delete")
	assert.Equal(t, ErrNotFound, err)
	assert.NoError(t, store.Delete(ctx, ""))
}

func TestSessionStore_TTL(t *testing.T) {
	mr, client := testutil.SetupMiniRedis(t)
	store := NewSessionStore(client, SessionStoreOptions{Lifetime: time.Hour})
	ctx := context.Background()

	t.Run("refreshable session uses lifetime", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, testSession("refreshable")))
		assert.Equal(t, time.Hour, mr.TTL("session:refreshable"))
	})

	t.Run("session without refresh token expires with access token", func(t *testing.T) {
		sess := testSession("access-only")
		sess.RefreshToken = ""
		sess.ExpiresAt = time.Now().Add(10 * time.Minute)
		require.NoError(t, store.Save(ctx, sess))
		ttl := mr.TTL("session:access-only")
		assert.LessOrEqual(t, ttl, 10*time.Minute)
		assert.Greater(t, ttl, 9*time.Minute)

		mr.FastForward(11 * time.Minute)
		_, err := store.Get(ctx, "access-only")
		assert.Equal(t, ErrNotFound, err)
	})

	t.Run("expired session is rejected", func(t *testing.T) {
		sess := testSession("expired")
		sess.RefreshToken = ""
		sess.ExpiresAt = time.Now().Add(-time.Minute)
		assert.Error(t, store.Save(ctx, sess))
	})

	t.Run("empty id is rejected", func(t *testing.T) {
		assert.Error(t, store.Save(ctx, testSession("")))
	})
}

func TestSessionStore_CustomPrefix(t *testing.T) {
	mr, client := testutil.SetupMiniRedis(t)
	store := NewSessionStore(client, SessionStoreOptions{Prefix: "tribunal:sess:"})

	require.NoError(t, store.Save(context.Background(), testSession("abc")))
	assert.True(t, mr.Exists("tribunal:sess:abc"))
	assert.False(t, mr.Exists("session:abc"))
}

func TestEventBus_PublishListenFromSessionStore(t *testing.T) {
	_, client := testutil.SetupMiniRedis(t)
	bus := NewEventBus(client, "", nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var got []domainauth.Event
	done := make(chan error, 1)
	go func() {
		done <- bus.Listen(ctx, func(ev domainauth.Event) {
			mu.Lock()
			got = append(got, ev)
			mu.Unlock()
		})
	}()

	// Wait until the subscription is registered before publishing.
	require.Eventually(t, func() bool {
		n, err := client.PubSubNumSub(ctx, DefaultEventChannel).Result()
		return err == nil && n[DefaultEventChannel] == 1
	}, 2*time.Second, 10*time.Millisecond)

	ev := domainauth.Event{Kind: domainauth.EventSignedOut, SessionID: "s1", UserID: "u1", At: time.Now().UTC()}
	require.NoError(t, bus.Publish(ctx, ev))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, domainauth.EventSignedOut, got[0].Kind)
	assert.Equal(t, "s1", got[0].SessionID)
	mu.Unlock()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Listen did not return after cancel")
	}
}

func TestEventBus_SkipsMalformedPayload(t *testing.T) {
	_, client := testutil.SetupMiniRedis(t)
	bus := NewEventBus(client, "test:events", nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan domainauth.Event, 2)
	go func() { _ = bus.Listen(ctx, func(ev domainauth.Event) { received <- ev }) }()

	require.Eventually(t, func() bool {
		n, err := client.PubSubNumSub(ctx, "test:events").Result()
		return err == nil && n["test:events"] == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, client.Publish(ctx, "test:events", "not-json").Err())
	require.NoError(t, bus.Publish(ctx, domainauth.Event{Kind: domainauth.EventSignedIn, SessionID: "s2"}))

	select {
	case ev := <-received:
		assert.Equal(t, "s2", ev.SessionID)
	case <-time.After(2 * time.Second):
		t.Fatal("expected event after malformed payload")
	}
}
