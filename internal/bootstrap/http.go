package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tribunal-ia/portal/config"
	httpx "github.com/tribunal-ia/portal/internal/http"
	"github.com/tribunal-ia/portal/internal/service"
)

// writeTimeoutSlack is added to the change-feed cap so long-poll responses are not cut off.
const writeTimeoutSlack = 15 * time.Second

// HTTPServerConfig contains configuration for HTTP server.
type HTTPServerConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	DB       *sql.DB
	Redis    redis.UniversalClient
	Logger   *slog.Logger
	// ErrCh receives a listen failure; optional.
	ErrCh chan<- error
}

// StartHTTPServer builds the router and starts serving in the background.
// Returns the server instance for graceful shutdown.
func StartHTTPServer(cfg *HTTPServerConfig) (*http.Server, error) {
	if cfg == nil {
		return nil, errors.New("http server config is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	appCfg := cfg.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	handler, err := buildHTTPHandler(httpHandlerConfig{
		Logger:   logger,
		Services: routerServices(cfg, appCfg, logger),
		HTTP:     appCfg.HTTP,
	})
	if err != nil {
		return nil, err
	}

	return startServer(serverParams{
		logger:       logger,
		handler:      handler,
		addr:         appCfg.HTTP.Addr,
		writeTimeout: appCfg.Portal.ChangeWaitMax + writeTimeoutSlack,
		errCh:        cfg.ErrCh,
	}), nil
}

func routerServices(cfg *HTTPServerConfig, appCfg *config.AppConfig, logger *slog.Logger) httpx.RouterServices {
	svc := cfg.Services
	rs := httpx.RouterServices{
		Petitions:    svc.Petitions,
		Cases:        svc.Cases,
		Users:        svc.Users,
		Settings:     svc.Settings,
		Logs:         svc.Logs,
		Metrics:      svc.Metrics,
		MetricsPath:  appCfg.Observability.Metrics.Path,
		HealthChecks: healthChecks(cfg.DB, cfg.Redis),
		Cookies: httpx.CookieConfig{
			Domain:        appCfg.HTTP.CookieDomain,
			Secure:        appCfg.HTTP.CookieSecure,
			SessionMaxAge: appCfg.Auth.SessionLifetime,
		},
		GateSettle:    appCfg.Auth.GateSettle,
		LoginSettle:   appCfg.Auth.LoginSettle,
		ChangeWaitMax: appCfg.Portal.ChangeWaitMax,
		IsDev:         appCfg.IsDev,
		Logger:        logger,
	}
	if svc.Auth != nil {
		rs.Contexts = svc.Auth.Contexts
		if svc.Auth.SSO != nil {
			rs.SSO = svc.Auth.SSO
		}
	}
	if svc.Changes != nil {
		rs.Changes = svc.Changes
	}
	return rs
}

func healthChecks(db *sql.DB, rdb redis.UniversalClient) map[string]httpx.HealthCheck {
	checks := map[string]httpx.HealthCheck{}
	if db != nil {
		checks["postgres"] = db.PingContext
	}
	if rdb != nil {
		checks["redis"] = func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}
	}
	return checks
}

type httpHandlerConfig struct {
	Logger   *slog.Logger
	Services httpx.RouterServices
	HTTP     config.HTTPConfig
}

func buildHTTPHandler(cfg httpHandlerConfig) (http.Handler, error) {
	router, err := httpx.NewRouter(cfg.Services)
	if err != nil {
		return nil, fmt.Errorf("build router: %w", err)
	}

	// Order: Recover -> Logging -> Compression -> Router
	h := router
	if cfg.HTTP.CompressionEnabled {
		cfg.Logger.Info("HTTP compression enabled", "level", cfg.HTTP.CompressionLevel)
		h = httpx.Compression(httpx.CompressionConfig{Level: cfg.HTTP.CompressionLevel})(h)
	}

	h = httpx.Logging(cfg.Logger)(h)
	h = httpx.Recover(cfg.Logger)(h)

	return h, nil
}

type serverParams struct {
	logger       *slog.Logger
	handler      http.Handler
	addr         string
	writeTimeout time.Duration
	errCh        chan<- error
}

func startServer(p serverParams) *http.Server {
	addr := p.addr
	if addr == "" {
		addr = ":8080"
	}
	writeTimeout := p.writeTimeout
	if writeTimeout < 30*time.Second {
		writeTimeout = 30 * time.Second
	}

	server := &http.Server{
		Addr:         addr,
		Handler:      p.handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		p.logger.Info("starting HTTP server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.logger.Error("HTTP server failed", "error", err)
			if p.errCh != nil {
				select {
				case p.errCh <- fmt.Errorf("http server: %w", err):
				default:
				}
			}
		}
	}()

	return server
}

// ShutdownConfig contains dependencies for HTTP server shutdown.
type ShutdownConfig struct {
	Context context.Context
	Server  *http.Server
	Changes *service.ChangeNotifier
	Logger  *slog.Logger
}

// ShutdownHTTPServer releases change-feed waiters and gracefully shuts down the HTTP server.
func ShutdownHTTPServer(cfg ShutdownConfig) error {
	if cfg.Server == nil {
		return nil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("shutting down HTTP server")

	// Long-poll handlers would otherwise hold Shutdown until their wait elapses.
	if cfg.Changes != nil {
		cfg.Changes.StopAll()
	}

	ctx := cfg.Context
	if ctx == nil {
		ctx = context.Background()
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := cfg.Server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	logger.Info("HTTP server stopped")
	return nil
}
