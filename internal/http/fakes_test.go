package httpx

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	domainauth "github.com/tribunal-ia/portal/internal/domain/auth"
	"github.com/tribunal-ia/portal/internal/domain/model"
	mocksauth "github.com/tribunal-ia/portal/internal/mocks/auth"
	"github.com/tribunal-ia/portal/internal/service"
)

const testSettle = 200 * time.Millisecond

// fakeResolver resolves sessions from the fake credential store and profiles from a map.
// While block is set, resolutions stay in flight.
type fakeResolver struct {
	creds *mocksauth.FakeCredentialStore

	mu       sync.Mutex
	profiles map[string]domainauth.Profile
	block    chan struct{}
}

func newFakeResolver(creds *mocksauth.FakeCredentialStore) *fakeResolver {
	return &fakeResolver{creds: creds, profiles: make(map[string]domainauth.Profile)}
}

func (f *fakeResolver) putProfile(p domainauth.Profile) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profiles[p.ID] = p
}

func (f *fakeResolver) hold() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.block = make(chan struct{})
}

func (f *fakeResolver) release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.block != nil {
		close(f.block)
		f.block = nil
	}
}

func (f *fakeResolver) Resolve(ctx context.Context, sessionID string) service.Resolution {
	f.mu.Lock()
	block := f.block
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return service.Resolution{Err: ctx.Err()}
		}
	}

	sess, err := f.creds.CurrentSession(ctx, sessionID)
	if err != nil || sess == nil {
		return service.Resolution{Err: err}
	}
	id := sess.Identity()
	p, err := f.LookupProfile(ctx, id.UserID)
	return service.Resolution{Identity: &id, Profile: p, Err: err}
}

func (f *fakeResolver) LookupProfile(_ context.Context, userID string) (*domainauth.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[userID]
	if !ok {
		return nil, &domainauth.ProfileLookupError{UserID: userID, NotFound: true}
	}
	return &p, nil
}

// authFixture wires a real AuthContextManager to fakes.
type authFixture struct {
	creds    *mocksauth.FakeCredentialStore
	resolver *fakeResolver
	contexts *service.AuthContextManager
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	creds := mocksauth.NewFakeCredentialStore()
	resolver := newFakeResolver(creds)
	m := service.NewAuthContextManager(service.AuthContextManagerOptions{
		Credentials: creds,
		Resolver:    resolver,
		Config: service.AuthContextManagerConfig{
			Logger:         discardLogger(),
			ResolveTimeout: 2 * time.Second,
		},
	})
	t.Cleanup(func() {
		resolver.release()
		m.Close()
	})
	return &authFixture{creds: creds, resolver: resolver, contexts: m}
}

// signIn registers a session for email with the given role and returns its id.
func (f *authFixture) signIn(email string, role domainauth.Role) string {
	id := mocksauth.IdentityForEmail(email)
	sid := "sess-" + email
	f.creds.Put(domainauth.Session{
		ID:        sid,
		UserID:    id.UserID,
		Email:     email,
		Provider:  "fake",
		ExpiresAt: time.Now().Add(time.Hour),
	})
	f.resolver.putProfile(domainauth.Profile{
		ID:          id.UserID,
		Email:       email,
		DisplayName: email,
		Role:        role,
	})
	return sid
}

// signInIdentityOnly registers a session whose profile cannot be found.
func (f *authFixture) signInIdentityOnly(email string) string {
	id := mocksauth.IdentityForEmail(email)
	sid := "sess-" + email
	f.creds.Put(domainauth.Session{ID: sid, UserID: id.UserID, Email: email, ExpiresAt: time.Now().Add(time.Hour)})
	return sid
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRenderer(t *testing.T) *TemplateRenderer {
	t.Helper()
	r, err := NewTemplateRenderer(TemplateRendererConfig{
		TemplateFS: os.DirFS(TemplatePathFromTest),
		Location:   time.UTC,
		Logger:     discardLogger(),
	})
	require.NoError(t, err)
	return r
}

// fakeChangeFeed returns a canned event or reports no change.
type fakeChangeFeed struct {
	mu     sync.Mutex
	event  *model.ChangeEvent
	err    error
	table  string
	filter model.ChangeFilter
	wait   time.Duration
}

func (f *fakeChangeFeed) Wait(_ context.Context, table string, filter model.ChangeFilter, wait time.Duration) (model.ChangeEvent, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.table, f.filter, f.wait = table, filter, wait
	if f.err != nil {
		return model.ChangeEvent{}, false, f.err
	}
	if f.event == nil {
		return model.ChangeEvent{}, false, nil
	}
	return *f.event, true, nil
}

func browserRequest(method, target string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	return req
}

func apiRequest(method, target string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	req.Header.Set("Accept", "application/json")
	return req
}

func withSession(req *http.Request, sid string) *http.Request {
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: sid})
	return req
}

// findCookie returns the named cookie from a recorded response.
func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
