package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/tribunal-ia/portal/config"
	"github.com/tribunal-ia/portal/internal/adapters/devauth"
	"github.com/tribunal-ia/portal/internal/adapters/gotrue"
	"github.com/tribunal-ia/portal/internal/adapters/oidc"
	redisadapter "github.com/tribunal-ia/portal/internal/adapters/redis"
	"github.com/tribunal-ia/portal/internal/core"
	"github.com/tribunal-ia/portal/internal/observability/metrics"
	"github.com/tribunal-ia/portal/internal/ports"
	"github.com/tribunal-ia/portal/internal/service"
)

// AuthConfig contains the dependencies of the auth stack.
type AuthConfig struct {
	Auth        config.AuthConfig
	RedisClient redis.UniversalClient
	Profiles    core.ProfileRepository
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

// AuthStack is the credential store, resolver and per-session auth contexts.
type AuthStack struct {
	Credentials *service.CredentialService
	Resolver    *service.SessionResolver
	Contexts    *service.AuthContextManager
	// SSO is set only when single sign-on is configured.
	SSO *service.CredentialService
}

// Close stops the auth context consumer and sweeper.
func (s *AuthStack) Close() {
	if s != nil && s.Contexts != nil {
		s.Contexts.Close()
	}
}

// BuildAuthStack wires the password authenticator selected by AUTH_MODE to a Redis session store.
func BuildAuthStack(cfg AuthConfig) (*AuthStack, error) {
	if cfg.RedisClient == nil {
		return nil, errors.New("auth: redis client is required for the session store")
	}
	if cfg.Profiles == nil {
		return nil, errors.New("auth: profile repository is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	authn, sso, err := buildAuthenticators(cfg.Auth, logger)
	if err != nil {
		return nil, err
	}

	credCfg := service.CredentialServiceConfig{
		SSO:         sso,
		Logger:      logger,
		RefreshSkew: cfg.Auth.RefreshSkew,
	}
	if cfg.Auth.EventsChannel != "" {
		credCfg.Events = redisadapter.NewEventBus(cfg.RedisClient, cfg.Auth.EventsChannel, logger)
	}
	creds := service.NewCredentialService(service.CredentialServiceOptions{
		Authenticator: authn,
		Sessions: redisadapter.NewSessionStore(cfg.RedisClient, redisadapter.SessionStoreOptions{
			Lifetime: cfg.Auth.SessionLifetime,
		}),
		Config: credCfg,
	})

	resolver := service.NewSessionResolver(service.SessionResolverOptions{
		Credentials: creds,
		Profiles:    cfg.Profiles,
		Config:      service.SessionResolverConfig{Logger: logger, Metrics: cfg.Metrics},
	})
	contexts := service.NewAuthContextManager(service.AuthContextManagerOptions{
		Credentials: creds,
		Resolver:    resolver,
		Config: service.AuthContextManagerConfig{
			Logger:  logger,
			Metrics: cfg.Metrics,
			IdleTTL: cfg.Auth.ContextIdleTTL,
		},
	})

	stack := &AuthStack{Credentials: creds, Resolver: resolver, Contexts: contexts}
	if sso != nil {
		stack.SSO = creds
	}
	logger.Info("auth stack ready", "mode", cfg.Auth.Mode, "authenticator", authn.Name(), "sso", sso != nil)
	return stack, nil
}

//nolint:ireturn // the authenticator is chosen at runtime from AUTH_MODE.
func buildAuthenticators(cfg config.AuthConfig, logger *slog.Logger) (ports.PasswordAuthenticator, ports.AuthProvider, error) {
	switch cfg.Mode {
	case config.AuthModeDev:
		users := make([]devauth.User, 0, len(cfg.DevAuth.Users))
		for _, u := range cfg.DevAuth.Users {
			users = append(users, devauth.User{ID: u.ID, Email: u.Email, FullName: u.FullName, PasswordHash: u.PasswordHash})
		}
		p, err := devauth.NewProvider(devauth.Config{Users: users, TokenTTL: cfg.DevAuth.TokenTTL})
		if err != nil {
			return nil, nil, fmt.Errorf("dev auth provider: %w", err)
		}
		logger.Warn("dev auth mode enabled; do not use in production", "users", len(users))
		return p, nil, nil

	case config.AuthModeOIDC:
		p, err := oidc.NewProvider(oidc.ProviderConfig{
			ClientID:     cfg.OIDC.ClientID,
			ClientSecret: cfg.OIDC.ClientSecret,
			RedirectURL:  cfg.OIDC.RedirectURL,
			Scope:        cfg.OIDC.Scope,
			DiscoveryURL: cfg.OIDC.DiscoveryURL,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("oidc provider: %w", err)
		}
		return newGoTrue(cfg, logger), p, nil

	default:
		return newGoTrue(cfg, logger), nil, nil
	}
}

func newGoTrue(cfg config.AuthConfig, logger *slog.Logger) *gotrue.Client {
	return gotrue.NewClient(gotrue.Options{
		BaseURL: cfg.Supabase.URL,
		AnonKey: cfg.Supabase.AnonKey,
		Logger:  logger,
	})
}
