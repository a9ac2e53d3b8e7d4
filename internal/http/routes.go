package httpx

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"time"

	portal "github.com/tribunal-ia/portal"
	domainauth "github.com/tribunal-ia/portal/internal/domain/auth"
	"github.com/tribunal-ia/portal/internal/observability/metrics"
	"github.com/tribunal-ia/portal/internal/service"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Contexts  AuthContexts // required
	SSO       SSOService   // optional
	Petitions *service.PetitionService
	Cases     *service.CaseService
	Users     *service.UserAdminService
	Settings  *service.SettingsService
	Logs      *service.UsageLogService
	Changes   ChangeFeed

	Metrics      *metrics.Metrics
	MetricsPath  string
	HealthChecks map[string]HealthCheck

	Cookies       CookieConfig
	GateSettle    time.Duration
	LoginSettle   time.Duration
	ChangeWaitMax time.Duration

	// TemplateFS and StaticFS override the embedded (or, in dev mode, on-disk) assets.
	TemplateFS fs.FS
	StaticFS   fs.FS
	IsDev      bool
	Logger     *slog.Logger
}

// NewRouter creates the HTTP router with browser detection and CSRF middleware applied.
func NewRouter(services RouterServices) (http.Handler, error) {
	if services.Contexts == nil {
		return nil, errors.New("router: Contexts is required")
	}
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	templateFS, staticFS, err := assetFS(services)
	if err != nil {
		return nil, err
	}
	renderer, err := NewTemplateRenderer(TemplateRendererConfig{
		TemplateFS: templateFS,
		DevMode:    services.IsDev,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("router: create template renderer: %w", err)
	}

	errs := ErrorResponder{Renderer: renderer, Logger: logger}
	gate := NewGate(GateConfig{
		Contexts: services.Contexts,
		Settle:   services.GateSettle,
		Cookies:  services.Cookies,
		Renderer: renderer,
		Metrics:  services.Metrics,
	})

	mux := http.NewServeMux()
	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("GET /readyz", readyHandler(services.HealthChecks, logger))
	if services.Metrics != nil {
		path := services.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		mux.Handle("GET "+path, services.Metrics.Handler())
	}
	mux.Handle("GET /static/", staticHandler(staticFS))

	authHandlers := &AuthHandlers{
		Contexts:    services.Contexts,
		SSO:         services.SSO,
		Cookies:     services.Cookies,
		Renderer:    renderer,
		LoginSettle: services.LoginSettle,
		Logger:      logger,
	}
	registerAuthRoutes(mux, authHandlers, gate)

	mux.Handle("GET /{$}", gate.Optional(http.HandlerFunc(homeHandler)))

	if services.Petitions != nil && services.Cases != nil && services.Settings != nil {
		registerPortalRoutes(mux, &PortalHandlers{
			Petitions: services.Petitions,
			Cases:     services.Cases,
			Settings:  services.Settings,
			Contexts:  services.Contexts,
			Renderer:  renderer,
			Errors:    errs,
			Logger:    logger,
		}, gate)
	}
	if services.Users != nil && services.Cases != nil && services.Settings != nil && services.Logs != nil {
		registerAdminRoutes(mux, &AdminHandlers{
			Users:    services.Users,
			Cases:    services.Cases,
			Settings: services.Settings,
			Logs:     services.Logs,
			Renderer: renderer,
			Errors:   errs,
		}, gate)
	}
	if services.Changes != nil {
		ch := &ChangeHandlers{Feed: services.Changes, MaxWait: services.ChangeWaitMax}
		mux.Handle("GET /api/changes/{table}", gate.Require()(http.HandlerFunc(ch.Wait)))
	}

	mux.Handle("/", notFoundHandler(errs))

	var h http.Handler = mux
	h = CSRFProtection(CSRFConfig{
		Cookies:     services.Cookies,
		ExemptPaths: []string{"/healthz", "/readyz"},
	})(h)
	return BrowserDetection()(h), nil
}

func registerAuthRoutes(mux *http.ServeMux, h *AuthHandlers, gate *Gate) {
	mux.Handle("GET /login", gate.Optional(http.HandlerFunc(h.LoginPage)))
	mux.HandleFunc("POST /login", h.LoginSubmit)
	mux.HandleFunc("POST /logout", h.Logout)
	mux.HandleFunc("POST /api/auth/login", h.APILogin)
	mux.HandleFunc("POST /api/auth/logout", h.Logout)
	mux.Handle("GET /api/auth/me", gate.Optional(http.HandlerFunc(h.Status)))
	mux.HandleFunc("GET /auth/sso", h.SSOBegin)
	mux.HandleFunc("GET /auth/callback", h.SSOCallback)
}

func registerPortalRoutes(mux *http.ServeMux, h *PortalHandlers, gate *Gate) {
	member := gate.Require(domainauth.RoleUser, domainauth.RoleAdmin)
	mux.Handle("GET /dashboard", member(http.HandlerFunc(h.Dashboard)))
	mux.Handle("POST /petitions", member(http.HandlerFunc(h.SubmitPetition)))
	mux.Handle("GET /case/{caseID}", member(http.HandlerFunc(h.CaseDetail)))
	mux.Handle("POST /api/petitions", member(http.HandlerFunc(h.APISubmitPetition)))
	mux.Handle("GET /api/cases", member(http.HandlerFunc(h.History)))
	mux.Handle("GET /api/cases/{caseID}", member(http.HandlerFunc(h.CaseDetail)))
}

func registerAdminRoutes(mux *http.ServeMux, h *AdminHandlers, gate *Gate) {
	admin := gate.Require(domainauth.RoleAdmin)
	routes := map[string]http.HandlerFunc{
		"GET /admin":                           h.Overview,
		"GET /admin/users":                     h.ListUsers,
		"POST /admin/users/{userID}/role":      h.SetRole,
		"POST /admin/users/{userID}/reset":     h.ResetCounter,
		"POST /admin/users/{userID}/delete":    h.DeleteUser,
		"GET /admin/cases":                     h.ListCases,
		"POST /admin/cases/{caseID}/delete":    h.DeleteCase,
		"GET /admin/settings":                  h.SettingsPage,
		"POST /admin/settings":                 h.UpdateSettings,
		"POST /admin/settings/test":            h.TestWebhook,
		"GET /admin/logs":                      h.ListLogs,
		"GET /api/admin/users":                 h.ListUsers,
		"PUT /api/admin/users/{userID}/role":   h.SetRole,
		"POST /api/admin/users/{userID}/reset": h.ResetCounter,
		"DELETE /api/admin/users/{userID}":     h.DeleteUser,
		"GET /api/admin/cases":                 h.ListCases,
		"DELETE /api/admin/cases/{caseID}":     h.DeleteCase,
		"GET /api/admin/settings":              h.SettingsPage,
		"PUT /api/admin/settings":              h.UpdateSettings,
		"POST /api/admin/settings/test":        h.TestWebhook,
		"GET /api/admin/logs":                  h.ListLogs,
	}
	for pattern, fn := range routes {
		mux.Handle(pattern, admin(fn))
	}
}

// homeHandler sends signed-in users to their landing page and everyone else to the login form.
func homeHandler(w http.ResponseWriter, r *http.Request) {
	st, _ := GetAuthStateFromContext(r.Context())
	if st.Profile != nil {
		http.Redirect(w, r, domainauth.LandingPath(st.Profile.Role), http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, domainauth.LoginPath, http.StatusSeeOther)
}

func notFoundHandler(errs ErrorResponder) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !IsBrowserRequest(r) {
			WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "not_found", Err: errors.New("not found")})
			return
		}
		errs.Respond(w, r, errNotFoundPage)
	})
}

// assetFS picks the template and static filesystems: explicit overrides first, then disk in dev
// mode, then the embedded copies.
func assetFS(services RouterServices) (fs.FS, fs.FS, error) {
	templateFS, staticFS := services.TemplateFS, services.StaticFS
	if services.IsDev {
		if templateFS == nil {
			templateFS = os.DirFS(TemplatePathFromRoot)
		}
		if staticFS == nil {
			staticFS = os.DirFS("frontend/static")
		}
	}
	if templateFS == nil {
		sub, err := fs.Sub(portal.TemplateFS, TemplatePathFromRoot)
		if err != nil {
			return nil, nil, fmt.Errorf("router: template filesystem: %w", err)
		}
		templateFS = sub
	}
	if staticFS == nil {
		sub, err := fs.Sub(portal.StaticFS, "frontend/static")
		if err != nil {
			return nil, nil, fmt.Errorf("router: static filesystem: %w", err)
		}
		staticFS = sub
	}
	return templateFS, staticFS, nil
}

// staticHandler serves /static/* with short-lived caching; assets are not content-hashed.
func staticHandler(fsys fs.FS) http.Handler {
	files := http.StripPrefix("/static/", http.FileServer(http.FS(fsys)))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=300")
		files.ServeHTTP(w, r)
	})
}
