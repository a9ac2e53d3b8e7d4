// Package gotrue implements ports.PasswordAuthenticator against a hosted GoTrue
// (Supabase Auth) endpoint.
package gotrue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	domainauth "github.com/tribunal-ia/portal/internal/domain/auth"
)

const (
	// PlaceholderURL is used when no project URL is configured.
	PlaceholderURL = "https://placeholder.supabase.co"
	// PlaceholderKey is used when no anon key is configured.
	PlaceholderKey = "placeholder-key"

	defaultTimeout   = 10 * time.Second
	maxResponseBytes = 1 << 20
)

// ErrNotConfigured is returned by every call when the client runs on placeholder credentials.
var ErrNotConfigured = errors.New("gotrue: auth provider is not configured")

// Options configures a Client.
type Options struct {
	BaseURL    string
	AnonKey    string
	HTTPClient *http.Client // Optional, defaults to a client with a 10s timeout
	Logger     *slog.Logger
	Now        func() time.Time
}

// Client talks to the /auth/v1 endpoints of a hosted auth service.
type Client struct {
	baseURL    string
	anonKey    string
	configured bool
	http       *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

// NewClient builds a client. Missing URL or key fall back to placeholders so the
// process still starts; calls then fail with ErrNotConfigured.
func NewClient(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "gotrue")

	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	key := strings.TrimSpace(opts.AnonKey)
	configured := true
	if base == "" || key == "" {
		logger.Warn("auth provider URL or key missing; using placeholders")
		configured = false
		if base == "" {
			base = PlaceholderURL
		}
		if key == "" {
			key = PlaceholderKey
		}
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: defaultTimeout}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Client{baseURL: base, anonKey: key, configured: configured, http: hc, logger: logger, now: now}
}

// Name identifies the provider in stored sessions.
func (c *Client) Name() string { return "supabase" }

// Configured reports whether real credentials were supplied.
func (c *Client) Configured() bool { return c.configured }

// SignInWithPassword performs the password grant.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (domainauth.Grant, error) {
	body := map[string]string{"email": strings.TrimSpace(email), "password": password}
	g, err := c.tokenGrant(ctx, "password", body)
	if err != nil {
		var ae *domainauth.AuthError
		if errors.As(err, &ae) && ae.Kind == domainauth.KindSessionExpired {
			// A rejected password grant means bad credentials, not an expired session.
			return domainauth.Grant{}, domainauth.NewAuthError(domainauth.KindInvalidCredentials, domainauth.ErrInvalidCredentials)
		}
		return domainauth.Grant{}, err
	}
	return g, nil
}

// Refresh exchanges a refresh token for a new grant.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (domainauth.Grant, error) {
	if refreshToken == "" {
		return domainauth.Grant{}, domainauth.NewAuthError(domainauth.KindSessionExpired, errors.New("no refresh token"))
	}
	return c.tokenGrant(ctx, "refresh_token", map[string]string{"refresh_token": refreshToken})
}

// Revoke ends the remote session for accessToken.
func (c *Client) Revoke(ctx context.Context, accessToken string) error {
	if !c.configured {
		return domainauth.NewAuthError(domainauth.KindUnknown, ErrNotConfigured)
	}
	if accessToken == "" {
		return nil
	}
	req, err := c.newRequest(ctx, "/auth/v1/logout", nil, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return domainauth.NewAuthError(domainauth.KindNetwork, err)
	}
	defer c.closeBody(resp)

	// 401/404 mean the token is already gone remotely.
	switch {
	case resp.StatusCode < 300, resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusNotFound:
		return nil
	default:
		return classifyStatus(resp.StatusCode, readError(resp.Body))
	}
}

func (c *Client) tokenGrant(ctx context.Context, grantType string, body any) (domainauth.Grant, error) {
	if !c.configured {
		return domainauth.Grant{}, domainauth.NewAuthError(domainauth.KindUnknown, ErrNotConfigured)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return domainauth.Grant{}, fmt.Errorf("marshal token request: %w", err)
	}
	req, err := c.newRequest(ctx, "/auth/v1/token", url.Values{"grant_type": {grantType}}, payload)
	if err != nil {
		return domainauth.Grant{}, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return domainauth.Grant{}, domainauth.NewAuthError(domainauth.KindNetwork, err)
	}
	defer c.closeBody(resp)

	if resp.StatusCode != http.StatusOK {
		return domainauth.Grant{}, classifyStatus(resp.StatusCode, readError(resp.Body))
	}

	var tr tokenResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&tr); err != nil {
		return domainauth.Grant{}, domainauth.NewAuthError(domainauth.KindUnknown, fmt.Errorf("decode token response: %w", err))
	}
	return tr.grant(c.now())
}

func (c *Client) newRequest(ctx context.Context, path string, query url.Values, body []byte) (*http.Request, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, rdr)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) closeBody(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
	if err := resp.Body.Close(); err != nil {
		c.logger.Debug("close response body", "error", err)
	}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	User         struct {
		ID           string         `json:"id"`
		Email        string         `json:"email"`
		UserMetadata map[string]any `json:"user_metadata"`
	} `json:"user"`
}

func (tr tokenResponse) grant(now time.Time) (domainauth.Grant, error) {
	if tr.AccessToken == "" || tr.User.ID == "" {
		return domainauth.Grant{}, domainauth.NewAuthError(domainauth.KindUnknown, errors.New("token response missing access token or user"))
	}
	exp := now.Add(time.Hour)
	switch {
	case tr.ExpiresAt > 0:
		exp = time.Unix(tr.ExpiresAt, 0)
	case tr.ExpiresIn > 0:
		exp = now.Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	fullName, _ := tr.User.UserMetadata["full_name"].(string)
	return domainauth.Grant{
		Identity: domainauth.Identity{
			UserID:    tr.User.ID,
			Email:     tr.User.Email,
			FullName:  fullName,
			ExpiresAt: exp,
		},
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresAt:    exp,
	}, nil
}

// errorBody covers both the legacy OAuth-style and the current error shapes.
type errorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
}

func (e errorBody) message() string {
	for _, s := range []string{e.Msg, e.ErrorDescription, e.Error, e.ErrorCode} {
		if s != "" {
			return s
		}
	}
	return "no error detail"
}

func readError(r io.Reader) errorBody {
	var eb errorBody
	_ = json.NewDecoder(io.LimitReader(r, maxResponseBytes)).Decode(&eb)
	return eb
}

func classifyStatus(status int, eb errorBody) error {
	err := fmt.Errorf("status %d: %s", status, eb.message())
	switch {
	case status == http.StatusBadRequest || status == http.StatusUnauthorized:
		if eb.ErrorCode == "invalid_credentials" ||
			(eb.Error == "invalid_grant" && strings.Contains(strings.ToLower(eb.message()), "credentials")) {
			return domainauth.NewAuthError(domainauth.KindInvalidCredentials, errors.Join(domainauth.ErrInvalidCredentials, err))
		}
		return domainauth.NewAuthError(domainauth.KindSessionExpired, err)
	case status == http.StatusTooManyRequests || status >= 500:
		return domainauth.NewAuthError(domainauth.KindUnavailable, err)
	default:
		return domainauth.NewAuthError(domainauth.KindUnknown, err)
	}
}
