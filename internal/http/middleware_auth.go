package httpx

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	domainauth "github.com/tribunal-ia/portal/internal/domain/auth"
	"github.com/tribunal-ia/portal/internal/observability/metrics"
	"github.com/tribunal-ia/portal/internal/service"
)

// AuthContexts is the part of the auth context manager the HTTP layer depends on.
type AuthContexts interface {
	Context(sessionID string) *service.AuthContext
	Login(ctx context.Context, email, password string) service.LoginResult
	Logout(ctx context.Context, sessionID string) error
	RefreshProfile(ctx context.Context, sessionID string) error
}

// GateConfig configures the role gate middleware.
type GateConfig struct {
	Contexts AuthContexts // required
	// Settle bounds how long a request waits for an in-flight resolution before the
	// gate answers "wait".
	Settle   time.Duration
	Cookies  CookieConfig
	Renderer *TemplateRenderer
	Metrics  *metrics.Metrics
}

// Gate guards routes with the role gate decision table.
type Gate struct {
	contexts AuthContexts
	settle   time.Duration
	cookies  CookieConfig
	renderer *TemplateRenderer
	metrics  *metrics.Metrics
}

// NewGate constructs a Gate. It panics when Contexts is nil.
func NewGate(cfg GateConfig) *Gate {
	if cfg.Contexts == nil {
		panic("Contexts is required")
	}
	return &Gate{
		contexts: cfg.Contexts,
		settle:   cfg.Settle,
		cookies:  cfg.Cookies,
		renderer: cfg.Renderer,
		metrics:  cfg.Metrics,
	}
}

func (g *Gate) state(r *http.Request) (string, domainauth.State) {
	sid := sessionIDFromRequest(r)
	return sid, g.contexts.Context(sid).WaitSettled(r.Context(), g.settle)
}

// Optional attaches the session's auth state to the request without enforcing anything.
func (g *Gate) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sid, st := g.state(r)
		next.ServeHTTP(w, r.WithContext(SetAuthStateInContext(r.Context(), sid, st)))
	})
}

// Require returns a middleware admitting only signed-in users whose profile role is one of roles.
// No roles means any signed-in user with a profile.
func (g *Gate) Require(roles ...domainauth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sid, st := g.state(r)
			d := domainauth.Decide(st, roles)
			g.metrics.ObserveGate(string(d.Outcome))

			switch d.Outcome {
			case domainauth.OutcomeRender:
				next.ServeHTTP(w, r.WithContext(SetAuthStateInContext(r.Context(), sid, st)))
			case domainauth.OutcomeWait:
				g.respondWait(w, r)
			case domainauth.OutcomeLogin:
				if sid != "" && st.Identity == nil {
					g.cookies.Clear(w, r, SessionCookieName)
				}
				g.respondLogin(w, r)
			case domainauth.OutcomeRedirect:
				if !IsBrowserRequest(r) {
					WriteJSON(w, http.StatusForbidden, map[string]string{
						"error":    "insufficient_permissions",
						"message":  "insufficient permissions",
						"redirect": d.Location,
					})
					return
				}
				Redirect(w, r, d.Location)
			}
		})
	}
}

func (g *Gate) respondWait(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Retry-After", strconv.Itoa(1))
	if !IsBrowserRequest(r) || g.renderer == nil {
		WriteError(w, ErrorParams{
			Code:    http.StatusServiceUnavailable,
			ErrCode: "auth_loading",
			Err:     errors.New("session is still being resolved"),
		})
		return
	}
	data := NewTemplateData(r, PageMeta{Title: "Carregando", CurrentPage: PageLoading}).Build()
	_ = g.renderer.Render(w, r, http.StatusServiceUnavailable, data)
}

func (g *Gate) respondLogin(w http.ResponseWriter, r *http.Request) {
	if !IsBrowserRequest(r) {
		WriteError(w, ErrorParams{
			Code:    http.StatusUnauthorized,
			ErrCode: "authentication_required",
			Err:     errors.New("authentication required"),
		})
		return
	}
	back := redirectPathForRequest(r)
	if back == "/" {
		back = ""
	}
	Redirect(w, r, loginURL(back))
}

// redirectPathForRequest returns where to send the user after login. For htmx requests this
// is the page they were on rather than the fragment endpoint.
func redirectPathForRequest(r *http.Request) string {
	if IsHTMX(r) {
		if u, err := url.Parse(r.Header.Get("Hx-Current-Url")); err == nil && u.Path != "" {
			return safeRedirectPath(u.RequestURI())
		}
	}
	if r.Method != http.MethodGet {
		return ""
	}
	return safeRedirectPath(r.URL.RequestURI())
}
