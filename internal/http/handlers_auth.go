package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	domainauth "github.com/tribunal-ia/portal/internal/domain/auth"
	"github.com/tribunal-ia/portal/internal/service"
)

// Login form messages.
const (
	msgFillAllFields      = "Por favor, preencha todos os campos"
	msgInvalidCredentials = "Credenciais inválidas"
	msgNetworkError       = "Erro de conexão. Verifique sua internet e tente novamente."
	msgUnexpectedLogin    = "Erro inesperado no login"
	msgProfileUnavailable = "Não foi possível carregar seu perfil. Tente novamente."
	msgSSOFailed          = "Falha no login"
)

// SSOService begins and completes redirect-based logins.
type SSOService interface {
	BeginSSO(ctx context.Context, redirectURL string) (*service.BeginLoginResult, error)
	CompleteSSO(ctx context.Context, input service.CompleteLoginInput) (domainauth.Session, error)
}

// AuthHandlers serves login, logout and session status.
type AuthHandlers struct {
	Contexts AuthContexts
	SSO      SSOService // nil disables /auth/sso
	Cookies  CookieConfig
	Renderer *TemplateRenderer
	// LoginSettle bounds how long a successful login waits for the profile before redirecting.
	LoginSettle time.Duration
	Logger      *slog.Logger
}

func (h *AuthHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// LoginMessage maps a login failure reason to the message shown on the form.
func LoginMessage(reason domainauth.ErrorKind) string {
	switch reason {
	case domainauth.KindInvalidCredentials:
		return msgInvalidCredentials
	case domainauth.KindNetwork:
		return msgNetworkError
	default:
		return msgUnexpectedLogin
	}
}

// LoginPage renders the login form, or sends signed-in users to their landing page.
// GET /login?redirect_uri=<path>.
func (h *AuthHandlers) LoginPage(w http.ResponseWriter, r *http.Request) {
	st, _ := GetAuthStateFromContext(r.Context())
	redirectURI := safeRedirectPath(r.URL.Query().Get("redirect_uri"))
	if st.Profile != nil {
		http.Redirect(w, r, h.landing(st.Profile, redirectURI), http.StatusSeeOther)
		return
	}

	msg := ""
	if st.Identity != nil && !st.IsLoading {
		msg = msgProfileUnavailable
	}
	h.renderLogin(w, r, loginForm{RedirectURI: redirectURI, Message: msg}, http.StatusOK)
}

type loginForm struct {
	Email       string
	RedirectURI string
	Message     string
}

func (h *AuthHandlers) renderLogin(w http.ResponseWriter, r *http.Request, f loginForm, status int) {
	b := NewTemplateData(r, PageMeta{Title: "Entrar", CurrentPage: PageLogin}).
		With("Email", f.Email).
		With("RedirectURI", f.RedirectURI).
		With("SSOEnabled", h.SSO != nil)
	if f.Message != "" {
		b.WithError(f.Message)
	}
	_ = h.Renderer.Render(w, r, status, b.Build())
}

// LoginSubmit handles the login form. A failed attempt re-renders the form keeping the email
// and clearing the password.
// POST /login.
func (h *AuthHandlers) LoginSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderLogin(w, r, loginForm{Message: msgFillAllFields}, http.StatusBadRequest)
		return
	}
	email := strings.TrimSpace(r.PostFormValue("email"))
	password := r.PostFormValue("password")
	redirectURI := safeRedirectPath(r.PostFormValue("redirect_uri"))
	form := loginForm{Email: email, RedirectURI: redirectURI}

	if email == "" || password == "" {
		form.Message = msgFillAllFields
		h.renderLogin(w, r, form, http.StatusBadRequest)
		return
	}

	res := h.Contexts.Login(r.Context(), email, password)
	if !res.OK() {
		form.Message = LoginMessage(res.Reason)
		h.renderLogin(w, r, form, http.StatusUnauthorized)
		return
	}

	h.Cookies.SetSession(w, r, res.SessionID)
	st := h.Contexts.Context(res.SessionID).WaitSettled(r.Context(), h.LoginSettle)
	Redirect(w, r, h.landing(st.Profile, redirectURI))
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// APILogin is the JSON variant of the login form.
// POST /api/auth/login.
func (h *AuthHandlers) APILogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "validation", Err: errors.New(msgFillAllFields)})
		return
	}

	res := h.Contexts.Login(r.Context(), req.Email, req.Password)
	if !res.OK() {
		WriteError(w, ErrorParams{
			Code:    http.StatusUnauthorized,
			ErrCode: string(res.Reason),
			Err:     errors.New(LoginMessage(res.Reason)),
		})
		return
	}

	h.Cookies.SetSession(w, r, res.SessionID)
	st := h.Contexts.Context(res.SessionID).WaitSettled(r.Context(), h.LoginSettle)
	WriteJSON(w, http.StatusOK, statusPayload(st))
}

// Logout signs the session out. The cookie and local state are always cleared, even when the
// credential provider cannot be reached.
// POST /logout, POST /api/auth/logout.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	if sid := sessionIDFromRequest(r); sid != "" {
		if err := h.Contexts.Logout(r.Context(), sid); err != nil {
			h.logger().WarnContext(r.Context(), "logout failed", "error", err)
		}
	}
	h.Cookies.Clear(w, r, SessionCookieName)

	if !IsBrowserRequest(r) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "signed_out", "redirect_to": domainauth.LoginPath})
		return
	}
	Redirect(w, r, domainauth.LoginPath)
}

// Status reports the session's auth state.
// GET /api/auth/me.
func (h *AuthHandlers) Status(w http.ResponseWriter, r *http.Request) {
	st, _ := GetAuthStateFromContext(r.Context())
	if st.Identity == nil && sessionIDFromRequest(r) != "" && !st.IsLoading {
		h.Cookies.Clear(w, r, SessionCookieName)
	}
	WriteJSON(w, http.StatusOK, statusPayload(st))
}

func statusPayload(st domainauth.State) map[string]any {
	return map[string]any{
		"authenticated": st.Identity != nil && st.Profile != nil,
		"identity":      st.Identity,
		"profile":       st.Profile,
		"is_loading":    st.IsLoading,
	}
}

// landing picks where a signed-in user goes: the requested page when their role may see it,
// otherwise the role's landing page.
func (h *AuthHandlers) landing(p *domainauth.Profile, redirectURI string) string {
	if p == nil {
		return domainauth.UserLandingPath
	}
	if redirectURI != "" && redirectURI != "/" && (p.IsAdmin() || !strings.HasPrefix(redirectURI, "/admin")) {
		return redirectURI
	}
	return domainauth.LandingPath(p.Role)
}

// SSOBegin redirects to the identity provider.
// GET /auth/sso?redirect_uri=<path>.
func (h *AuthHandlers) SSOBegin(w http.ResponseWriter, r *http.Request) {
	if h.SSO == nil {
		http.NotFound(w, r)
		return
	}
	redirectURI := safeRedirectPath(r.URL.Query().Get("redirect_uri"))
	if redirectURI == "" {
		redirectURI = "/"
	}

	result, err := h.SSO.BeginSSO(r.Context(), redirectURI)
	if err != nil {
		if errors.Is(err, service.ErrSSODisabled) {
			http.NotFound(w, r)
			return
		}
		h.logger().ErrorContext(r.Context(), "begin sso failed", "error", err)
		h.renderLogin(w, r, loginForm{Message: msgSSOFailed}, http.StatusBadGateway)
		return
	}

	h.Cookies.set(w, r, SSOStateCookie, result.State, ssoCookieMaxAge)
	h.Cookies.set(w, r, SSONonceCookie, result.Nonce, ssoCookieMaxAge)
	h.Cookies.set(w, r, SSORedirectCookie, redirectURI, ssoCookieMaxAge)
	http.Redirect(w, r, result.AuthURL, http.StatusFound)
}

// SSOCallback completes the provider round trip and starts the session.
// GET /auth/callback?code=<code>&state=<state>.
func (h *AuthHandlers) SSOCallback(w http.ResponseWriter, r *http.Request) {
	if h.SSO == nil {
		http.NotFound(w, r)
		return
	}
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		h.logger().WarnContext(r.Context(), "identity provider returned an error", "error", e)
		h.renderLogin(w, r, loginForm{Message: msgSSOFailed}, http.StatusUnauthorized)
		return
	}

	state := q.Get("state")
	stateCookie, err := r.Cookie(SSOStateCookie)
	if err != nil || state == "" || stateCookie.Value != state {
		h.renderLogin(w, r, loginForm{Message: msgSSOFailed}, http.StatusBadRequest)
		return
	}
	nonceCookie, err := r.Cookie(SSONonceCookie)
	if err != nil {
		h.renderLogin(w, r, loginForm{Message: msgSSOFailed}, http.StatusBadRequest)
		return
	}

	sess, err := h.SSO.CompleteSSO(r.Context(), service.CompleteLoginInput{
		Code:  q.Get("code"),
		State: state,
		Nonce: nonceCookie.Value,
	})
	if err != nil {
		h.logger().WarnContext(r.Context(), "complete sso failed", "error", err)
		h.renderLogin(w, r, loginForm{Message: msgSSOFailed}, http.StatusUnauthorized)
		return
	}

	redirectURI := ""
	if c, err := r.Cookie(SSORedirectCookie); err == nil {
		redirectURI = safeRedirectPath(c.Value)
	}
	h.Cookies.Clear(w, r, SSOStateCookie)
	h.Cookies.Clear(w, r, SSONonceCookie)
	h.Cookies.Clear(w, r, SSORedirectCookie)
	h.Cookies.SetSession(w, r, sess.ID)

	st := h.Contexts.Context(sess.ID).WaitSettled(r.Context(), h.LoginSettle)
	http.Redirect(w, r, h.landing(st.Profile, redirectURI), http.StatusSeeOther)
}

// loginURL builds the login path carrying a post-login destination.
func loginURL(redirectURI string) string {
	if redirectURI == "" {
		return domainauth.LoginPath
	}
	return domainauth.LoginPath + "?redirect_uri=" + url.QueryEscape(redirectURI)
}
