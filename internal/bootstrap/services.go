package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tribunal-ia/portal/config"
	"github.com/tribunal-ia/portal/internal/core"
	"github.com/tribunal-ia/portal/internal/data"
	"github.com/tribunal-ia/portal/internal/observability/metrics"
	"github.com/tribunal-ia/portal/internal/observability/notify/pagerduty"
	"github.com/tribunal-ia/portal/internal/observability/notify/slack"
	"github.com/tribunal-ia/portal/internal/service"
	"github.com/tribunal-ia/portal/internal/service/failurenotifier"
)

const shutdownWaitTimeout = 15 * time.Second

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Auth      *AuthStack
	Petitions *service.PetitionService
	Cases     *service.CaseService
	Users     *service.UserAdminService
	Settings  *service.SettingsService
	Logs      *service.UsageLogService
	Changes   *service.ChangeNotifier
	Webhook   *service.WebhookDispatcher
	Alerts    *failurenotifier.Service
	Metrics   *metrics.Metrics
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	DB     *sql.DB
	Redis  redis.UniversalClient
	Config *config.AppConfig
	Logger *slog.Logger
}

type serviceRepositories struct {
	cases    *data.CaseRepo
	profiles *data.ProfileRepo
	settings core.SettingsRepository
	logs     *data.UsageLogRepo
	changes  *data.ChangeWaiter
}

func buildRepositories(db *sql.DB, rdb redis.UniversalClient, cfg config.PortalConfig, logger *slog.Logger) serviceRepositories {
	tp := data.RealTimeProvider{}
	repos := serviceRepositories{
		cases:    data.NewCaseRepo(db, tp),
		profiles: data.NewProfileRepo(db, tp),
		settings: data.NewSettingsRepo(db, tp),
		logs:     data.NewUsageLogRepo(db, tp),
		changes:  data.NewChangeWaiter(db),
	}
	if rdb != nil && cfg.SettingsCacheTTL > 0 {
		repos.settings = core.NewSettingsCache(core.SettingsCacheOptions{
			Repo:   repos.settings,
			Cache:  data.NewRedisCacheRepo(rdb, cfg.CachePrefix),
			TTL:    cfg.SettingsCacheTTL,
			Logger: logger,
		})
	}
	return repos
}

// BuildServices wires repositories, the auth stack and the portal services.
func BuildServices(deps ServiceDeps) (ServiceContainer, error) {
	if deps.DB == nil {
		return ServiceContainer{}, errors.New("services: database is required")
	}
	if deps.Config == nil {
		return ServiceContainer{}, errors.New("services: config is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config

	var m *metrics.Metrics
	if cfg.Observability.Metrics.Enabled {
		m = metrics.New(cfg.Observability.Metrics.Runtime)
	}

	repos := buildRepositories(deps.DB, deps.Redis, cfg.Portal, logger)

	stack, err := BuildAuthStack(AuthConfig{
		Auth:        cfg.Auth,
		RedisClient: deps.Redis,
		Profiles:    repos.profiles,
		Metrics:     m,
		Logger:      logger,
	})
	if err != nil {
		return ServiceContainer{}, err
	}

	webhook := service.NewWebhookDispatcher(service.WebhookDispatcherOptions{
		Config: service.WebhookDispatcherConfig{
			Timeout: cfg.Portal.WebhookTimeout,
			Logger:  logger,
			Metrics: m,
		},
	})
	alerts := buildFailureNotifier(logger, cfg.Observability.Notifications, cfg.HTTP.BaseURL)

	petitionCfg := service.PetitionServiceConfig{Logger: logger, Metrics: m}
	if alerts.Enabled() {
		petitionCfg.Alerts = alerts
	}

	return ServiceContainer{
		Auth: stack,
		Petitions: service.NewPetitionService(service.PetitionServiceOptions{
			Repos: service.PetitionRepos{
				Cases:     repos.cases,
				Profiles:  repos.profiles,
				Settings:  repos.settings,
				UsageLogs: repos.logs,
			},
			Webhook: webhook,
			Config:  petitionCfg,
		}),
		Cases: service.NewCaseService(service.CaseServiceOptions{
			Cases:     repos.cases,
			UsageLogs: repos.logs,
			Logger:    logger,
		}),
		Users: service.NewUserAdminService(service.UserAdminServiceOptions{
			Profiles:  repos.profiles,
			UsageLogs: repos.logs,
			Config: service.UserAdminServiceConfig{
				Logger:           logger,
				OnProfileChanged: stack.Credentials.UserUpdated,
			},
		}),
		Settings: service.NewSettingsService(service.SettingsServiceOptions{
			Settings:  repos.settings,
			UsageLogs: repos.logs,
			Config:    service.SettingsServiceConfig{Webhook: webhook, Logger: logger},
		}),
		Logs: service.NewUsageLogService(repos.logs),
		Changes: service.NewChangeNotifier(service.ChangeNotifierOptions{
			Waiter:     repos.changes,
			WaitWindow: cfg.Portal.ChangeWaitWindow,
			Logger:     logger,
		}),
		Webhook: webhook,
		Alerts:  alerts,
		Metrics: m,
	}, nil
}

func buildFailureNotifier(
	logger *slog.Logger,
	cfg config.ObservabilityNotificationsConfig,
	portalURL string,
) *failurenotifier.Service {
	baseLogger := logger
	if baseLogger == nil {
		baseLogger = slog.Default()
	}

	if !cfg.Enabled {
		return failurenotifier.NewService(failurenotifier.Options{
			Logger: baseLogger.With("component", "failure_notifier"),
		})
	}

	sinks := make([]failurenotifier.SinkRegistration, 0, 2)

	if cfg.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL: cfg.Slack.WebhookURL,
			Channel:    cfg.Slack.Channel,
			Username:   cfg.Slack.Username,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
			PortalURL:  portalURL,
		})
		if err != nil {
			baseLogger.Error("failed to initialise slack notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{Name: "slack", Sink: client})
		}
	}

	if cfg.PagerDuty.Enabled {
		client, err := pagerduty.NewClient(pagerduty.Config{
			RoutingKey: cfg.PagerDuty.RoutingKey,
			Source:     cfg.PagerDuty.Source,
			Component:  cfg.PagerDuty.Component,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			baseLogger.Error("failed to initialise pagerduty notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{Name: "pagerduty", Sink: client})
		}
	}

	return failurenotifier.NewService(failurenotifier.Options{
		Logger: baseLogger.With("component", "failure_notifier"),
		Sinks:  sinks,
	})
}

// ServiceOrchestrationConfig contains everything RunServicesWithShutdown needs.
type ServiceOrchestrationConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	DB       *sql.DB
	Redis    redis.UniversalClient
	Logger   *slog.Logger
}

// backgroundService describes a startable background component.
type backgroundService struct {
	name  string
	start func(context.Context) error
}

// backgroundServiceHandle tracks a running background service.
type backgroundServiceHandle struct {
	name string
	done <-chan struct{}
}

func launchBackground(ctx context.Context, logger *slog.Logger, errCh chan<- error, descriptor backgroundService) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := descriptor.start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errMsg := fmt.Errorf("%s failed: %w", descriptor.name, err)
			select {
			case errCh <- errMsg:
			case <-ctx.Done():
			default:
				logger.WarnContext(ctx, "dropping background service error", "service", descriptor.name, "error", errMsg)
			}
		}
	}()

	logger.InfoContext(ctx, "background service started", "service", descriptor.name)
	return done
}

func buildBackgroundServices(services ServiceContainer) []backgroundService {
	var out []backgroundService
	if services.Auth != nil && services.Auth.Credentials != nil {
		out = append(out, backgroundService{
			name:  "auth event relay",
			start: services.Auth.Credentials.Relay,
		})
	}
	return out
}

// RunServicesWithShutdown starts the HTTP server and background services and blocks until a
// shutdown signal arrives or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}
	serviceCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	background := buildBackgroundServices(cfg.Services)
	errCh := make(chan error, len(background)+1)

	server, err := StartHTTPServer(&HTTPServerConfig{
		Config:   cfg.Config,
		Services: cfg.Services,
		DB:       cfg.DB,
		Redis:    cfg.Redis,
		Logger:   logger,
		ErrCh:    errCh,
	})
	if err != nil {
		return err
	}

	handles := make([]backgroundServiceHandle, 0, len(background))
	for _, svc := range background {
		handles = append(handles, backgroundServiceHandle{
			name: svc.name,
			done: launchBackground(serviceCtx, logger, errCh, svc),
		})
	}

	return waitForShutdown(shutdownConfig{
		cancel:      cancel,
		errCh:       errCh,
		httpServer:  server,
		services:    cfg.Services,
		logger:      logger,
		backgrounds: handles,
	})
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	cancel      context.CancelFunc
	errCh       <-chan error
	httpServer  *http.Server
	services    ServiceContainer
	logger      *slog.Logger
	backgrounds []backgroundServiceHandle
}

// waitForShutdown waits for shutdown signal or service error.
func waitForShutdown(cfg shutdownConfig) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		cfg.logger.Info("shutting down services...")
		cfg.cancel()
		return gracefulStop(cfg)
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel()
		if stopErr := gracefulStop(cfg); stopErr != nil {
			cfg.logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}
}

// gracefulStop drains HTTP, releases long-poll waiters and stops the auth contexts.
// The shutdown context is detached from the canceled service context.
func gracefulStop(cfg shutdownConfig) error {
	var stopErr error
	if cfg.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWaitTimeout)
		defer cancel()

		stopErr = ShutdownHTTPServer(ShutdownConfig{
			Context: shutdownCtx,
			Server:  cfg.httpServer,
			Changes: cfg.services.Changes,
			Logger:  cfg.logger,
		})
	}

	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.logger)
	}
	cfg.services.Auth.Close()

	return stopErr
}

// waitForService waits for a service to finish with timeout.
func waitForService(done <-chan struct{}, name string, logger *slog.Logger) {
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info(name + " stopped")
	case <-time.After(shutdownWaitTimeout):
		logger.Warn("timeout waiting for " + name + " to stop")
	}
}
