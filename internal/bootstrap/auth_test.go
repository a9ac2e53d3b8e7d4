package bootstrap

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tribunal-ia/portal/config"
	domainauth "github.com/tribunal-ia/portal/internal/domain/auth"
	"github.com/tribunal-ia/portal/internal/mocks"
	"github.com/tribunal-ia/portal/internal/testutil"
	"go.uber.org/mock/gomock"
	"golang.org/x/crypto/bcrypt"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func devAuthConfig(t *testing.T) config.AuthConfig {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("senha-forte"), bcrypt.MinCost)
	require.NoError(t, err)
	return config.AuthConfig{
		Mode: config.AuthModeDev,
		DevAuth: config.DevAuthConfig{
			Users: []config.DevUser{
				{ID: "u-1", Email: "ana@example.com", FullName: "Ana", PasswordHash: string(hash)},
			},
			TokenTTL: time.Hour,
		},
		SessionLifetime: time.Hour,
		ContextIdleTTL:  time.Minute,
	}
}

func TestBuildAuthStack_RequiresDependencies(t *testing.T) {
	ctrl := gomock.NewController(t)
	_, client := testutil.SetupMiniRedis(t)
	profiles := mocks.NewMockProfileRepository(ctrl)

	tests := []struct {
		name string
		cfg  AuthConfig
	}{
		{name: "without redis", cfg: AuthConfig{Auth: devAuthConfig(t), Profiles: profiles}},
		{name: "without profiles", cfg: AuthConfig{Auth: devAuthConfig(t), RedisClient: client}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.Logger = discardLogger()
			stack, err := BuildAuthStack(tt.cfg)
			require.Error(t, err)
			assert.Nil(t, stack)
		})
	}
}

func TestBuildAuthStack_DevModeSignsIn(t *testing.T) {
	ctrl := gomock.NewController(t)
	mr, client := testutil.SetupMiniRedis(t)

	stack, err := BuildAuthStack(AuthConfig{
		Auth:        devAuthConfig(t),
		RedisClient: client,
		Profiles:    mocks.NewMockProfileRepository(ctrl),
		Logger:      discardLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(stack.Close)

	assert.Nil(t, stack.SSO, "dev mode has no single sign-on")
	require.NotNil(t, stack.Contexts)

	sess, err := stack.Credentials.SignIn(context.Background(), "ana@example.com", "senha-forte")
	require.NoError(t, err)
	assert.Equal(t, "u-1", sess.UserID)
	assert.True(t, mr.Exists("session:"+sess.ID), "session must be persisted in redis")

	_, err = stack.Credentials.SignIn(context.Background(), "ana@example.com", "errada")
	assert.Error(t, err)
}

func TestBuildAuthStack_DevModeRejectsInvalidHash(t *testing.T) {
	ctrl := gomock.NewController(t)
	_, client := testutil.SetupMiniRedis(t)

	cfg := devAuthConfig(t)
	cfg.DevAuth.Users[0].PasswordHash = "plain"

	_, err := BuildAuthStack(AuthConfig{
		Auth:        cfg,
		RedisClient: client,
		Profiles:    mocks.NewMockProfileRepository(ctrl),
		Logger:      discardLogger(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dev auth provider")
}

func TestBuildAuthStack_SupabaseIsDefault(t *testing.T) {
	ctrl := gomock.NewController(t)
	_, client := testutil.SetupMiniRedis(t)

	stack, err := BuildAuthStack(AuthConfig{
		Auth: config.AuthConfig{
			Supabase:        config.SupabaseConfig{URL: "https://abc.supabase.co", AnonKey: "anon"},
			EventsChannel:   "auth:events",
			SessionLifetime: time.Hour,
		},
		RedisClient: client,
		Profiles:    mocks.NewMockProfileRepository(ctrl),
		Logger:      discardLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(stack.Close)

	assert.Nil(t, stack.SSO)
	assert.NotNil(t, stack.Resolver)
}

func TestNewLogger_Format(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		logger := newLogger(&buf, config.ObservabilityLoggingConfig{Level: "info", Format: "json"})
		logger.Info("hello", "case_id", "CASO_1")

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "hello", entry["msg"])
		assert.Equal(t, "CASO_1", entry["case_id"])
	})

	t.Run("text drops entries below level", func(t *testing.T) {
		var buf bytes.Buffer
		logger := newLogger(&buf, config.ObservabilityLoggingConfig{Level: "warn", Format: "text"})
		logger.Info("quiet")
		logger.Warn("loud")

		assert.NotContains(t, buf.String(), "quiet")
		assert.Contains(t, buf.String(), "msg=loud")
	})
}

// A role change made through one instance reaches sessions held by another over the Redis bus.
func TestBuildAuthStack_ProfileChangesReachOtherInstances(t *testing.T) {
	ctrl := gomock.NewController(t)
	_, client := testutil.SetupMiniRedis(t)

	var mu sync.Mutex
	role := domainauth.RoleAdmin
	profiles := mocks.NewMockProfileRepository(ctrl)
	profiles.EXPECT().GetByID(gomock.Any(), "u-1").DoAndReturn(
		func(context.Context, string) (*domainauth.Profile, error) {
			mu.Lock()
			defer mu.Unlock()
			return &domainauth.Profile{ID: "u-1", Email: "ana@example.com", DisplayName: "Ana", Role: role}, nil
		}).AnyTimes()

	cfg := devAuthConfig(t)
	cfg.EventsChannel = "auth:events"
	build := func() *AuthStack {
		stack, err := BuildAuthStack(AuthConfig{Auth: cfg, RedisClient: client, Profiles: profiles, Logger: discardLogger()})
		require.NoError(t, err)
		t.Cleanup(stack.Close)
		return stack
	}
	a, b := build(), build()

	ctx, cancel := context.WithCancel(context.Background())
	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		_ = b.Credentials.Relay(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-relayDone
	})

	sess, err := a.Credentials.SignIn(context.Background(), "ana@example.com", "senha-forte")
	require.NoError(t, err)

	onB := b.Contexts.Context(sess.ID)
	st := onB.WaitSettled(context.Background(), 2*time.Second)
	require.NotNil(t, st.Profile)
	require.Equal(t, domainauth.RoleAdmin, st.Profile.Role)

	mu.Lock()
	role = domainauth.RoleUser
	mu.Unlock()

	// Publish until B's relay has subscribed; each event only triggers a re-read.
	require.Eventually(t, func() bool {
		a.Credentials.UserUpdated(context.Background(), "u-1")
		p := onB.State().Profile
		return p != nil && p.Role == domainauth.RoleUser
	}, 3*time.Second, 50*time.Millisecond, "demotion on instance A never reached instance B")

	assert.Equal(t, domainauth.OutcomeRedirect,
		domainauth.Decide(onB.State(), []domainauth.Role{domainauth.RoleAdmin}).Outcome)
}
