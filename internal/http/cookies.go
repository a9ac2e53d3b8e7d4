package httpx

import (
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ssoCookieMaxAge bounds how long an SSO round trip may take.
const ssoCookieMaxAge = 600

// CookieConfig controls the attributes of the cookies set by the portal.
type CookieConfig struct {
	Domain string
	// Secure forces the Secure attribute; requests over TLS get it regardless.
	Secure bool
	// SessionMaxAge is the lifetime of the session cookie. Zero makes it a browser-session cookie.
	SessionMaxAge time.Duration
}

func (c CookieConfig) secure(r *http.Request) bool {
	return c.Secure || r.TLS != nil || isForwardedHTTPS(r)
}

func (c CookieConfig) set(w http.ResponseWriter, r *http.Request, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   c.Domain,
		HttpOnly: true,
		Secure:   c.secure(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}

// SetSession writes the session cookie.
func (c CookieConfig) SetSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	c.set(w, r, SessionCookieName, sessionID, int(c.SessionMaxAge.Seconds()))
}

// Clear expires a cookie, mirroring the attributes used when it was set so every browser drops it.
func (c CookieConfig) Clear(w http.ResponseWriter, r *http.Request, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   c.Domain,
		HttpOnly: true,
		Secure:   c.secure(r),
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
		SameSite: http.SameSiteLaxMode,
	})
}

// sessionIDFromRequest returns the session cookie value or "".
func sessionIDFromRequest(r *http.Request) string {
	c, err := r.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(c.Value)
}

// safeRedirectPath ensures the provided redirect is a same-origin relative path
// starting with "/" and not an absolute URL. Returns "" when invalid.
func safeRedirectPath(candidate string) string {
	if candidate == "" {
		return ""
	}
	if strings.HasPrefix(candidate, "//") || strings.Contains(candidate, "\\") {
		return ""
	}
	u, err := url.Parse(candidate)
	if err != nil || u.IsAbs() || u.Host != "" || !strings.HasPrefix(u.Path, "/") {
		return ""
	}
	return candidate
}

// isForwardedHTTPS checks if the request was forwarded over HTTPS.
// Handles comma-separated values in X-Forwarded-Proto header.
func isForwardedHTTPS(r *http.Request) bool {
	xfProto := r.Header.Get("X-Forwarded-Proto")
	if xfProto == "" {
		return false
	}
	for _, proto := range strings.Split(xfProto, ",") {
		if strings.EqualFold(strings.TrimSpace(proto), "https") {
			return true
		}
	}
	return false
}
