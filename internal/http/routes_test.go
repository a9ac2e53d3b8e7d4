package httpx

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	domainauth "github.com/tribunal-ia/portal/internal/domain/auth"
	"github.com/tribunal-ia/portal/internal/domain/model"
	apperrors "github.com/tribunal-ia/portal/internal/errors"
	"github.com/tribunal-ia/portal/internal/mocks"
	"github.com/tribunal-ia/portal/internal/observability/metrics"
	"github.com/tribunal-ia/portal/internal/service"
)

type routerFixture struct {
	*authFixture
	cases    *mocks.MockCaseRepository
	profiles *mocks.MockProfileRepository
	settings *mocks.MockSettingsRepository
	logs     *mocks.MockUsageLogRepository
	handler  http.Handler
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	f := &routerFixture{
		authFixture: newAuthFixture(t),
		cases:       mocks.NewMockCaseRepository(ctrl),
		profiles:    mocks.NewMockProfileRepository(ctrl),
		settings:    mocks.NewMockSettingsRepository(ctrl),
		logs:        mocks.NewMockUsageLogRepository(ctrl),
	}
	f.settings.EXPECT().Get(gomock.Any()).Return(model.DefaultSettings(), nil).AnyTimes()
	f.logs.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	logger := discardLogger()
	settingsSvc := service.NewSettingsService(service.SettingsServiceOptions{
		Settings:  f.settings,
		UsageLogs: f.logs,
		Config:    service.SettingsServiceConfig{Logger: logger},
	})
	h, err := NewRouter(RouterServices{
		Contexts: f.contexts,
		Petitions: service.NewPetitionService(service.PetitionServiceOptions{
			Repos: service.PetitionRepos{Cases: f.cases, Profiles: f.profiles, Settings: f.settings, UsageLogs: f.logs},
			Config: service.PetitionServiceConfig{Logger: logger},
		}),
		Cases: service.NewCaseService(service.CaseServiceOptions{Cases: f.cases, UsageLogs: f.logs, Logger: logger}),
		Users: service.NewUserAdminService(service.UserAdminServiceOptions{
			Profiles:  f.profiles,
			UsageLogs: f.logs,
			Config:    service.UserAdminServiceConfig{Logger: logger},
		}),
		Settings:     settingsSvc,
		Logs:         service.NewUsageLogService(f.logs),
		Changes:      &fakeChangeFeed{},
		Metrics:      metrics.New(false),
		HealthChecks: map[string]HealthCheck{"postgres": func(context.Context) error { return nil }},
		GateSettle:   time.Second,
		LoginSettle:  time.Second,
		TemplateFS:   os.DirFS(TemplatePathFromTest),
		StaticFS:     os.DirFS("../../frontend/static"),
		Logger:       logger,
	})
	require.NoError(t, err)
	f.handler = h
	return f
}

func (f *routerFixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

const routesTestCSRFToken = "test-csrf-token-0123456789abcdef"

// withCSRF attaches a matching CSRF cookie and header.
func withCSRF(req *http.Request) *http.Request {
	req.AddCookie(&http.Cookie{Name: DefaultCSRFCookieName, Value: routesTestCSRFToken})
	req.Header.Set(DefaultCSRFHeaderName, routesTestCSRFToken)
	return req
}

func TestNewRouter_RequiresContexts(t *testing.T) {
	_, err := NewRouter(RouterServices{})
	require.Error(t, err)
}

func TestRouter_Infrastructure(t *testing.T) {
	f := newRouterFixture(t)

	tests := []struct {
		name       string
		req        *http.Request
		wantStatus int
		wantBody   string
		wantHeader map[string]string
	}{
		{name: "liveness", req: httptest.NewRequest(http.MethodGet, "/healthz", nil), wantStatus: http.StatusOK, wantBody: `"ok"`},
		{name: "readiness", req: httptest.NewRequest(http.MethodGet, "/readyz", nil), wantStatus: http.StatusOK, wantBody: `"postgres":"ok"`},
		{name: "metrics", req: httptest.NewRequest(http.MethodGet, "/metrics", nil), wantStatus: http.StatusOK},
		{
			name:       "static asset",
			req:        httptest.NewRequest(http.MethodGet, "/static/css/app.css", nil),
			wantStatus: http.StatusOK,
			wantHeader: map[string]string{"Cache-Control": "public, max-age=300"},
		},
		{name: "unknown page", req: browserRequest(http.MethodGet, "/nope"), wantStatus: http.StatusNotFound, wantBody: "Não encontrado"},
		{name: "unknown api", req: apiRequest(http.MethodGet, "/api/nope"), wantStatus: http.StatusNotFound, wantBody: `"not_found"`},
		{name: "home redirects anonymous to login", req: browserRequest(http.MethodGet, "/"), wantStatus: http.StatusSeeOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(tt.req)
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantBody != "" {
				assert.Contains(t, rec.Body.String(), tt.wantBody)
			}
			for k, v := range tt.wantHeader {
				assert.Equal(t, v, rec.Header().Get(k))
			}
		})
	}
}

func TestRouter_LoginFlow(t *testing.T) {
	f := newRouterFixture(t)
	f.signIn("ana@example.com", domainauth.RoleUser)
	f.cases.EXPECT().List(gomock.Any(), gomock.Any()).Return(nil, nil).AnyTimes()

	rec := f.do(browserRequest(http.MethodGet, "/login"))
	require.Equal(t, http.StatusOK, rec.Code)
	csrf := findCookie(rec, DefaultCSRFCookieName)
	require.NotNil(t, csrf)
	assert.Contains(t, rec.Body.String(), `name="csrf_token" value="`+csrf.Value+`"`)

	form := url.Values{"email": {"ana@example.com"}, "password": {"secret"}}
	t.Run("post without csrf token is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.AddCookie(csrf)
		assert.Equal(t, http.StatusForbidden, f.do(req).Code)
	})

	form.Set("csrf_token", csrf.Value)
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(csrf)
	rec = f.do(req)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/dashboard", rec.Header().Get("Location"))
	session := findCookie(rec, SessionCookieName)
	require.NotNil(t, session)

	dash := browserRequest(http.MethodGet, "/dashboard")
	dash.AddCookie(session)
	rec = f.do(dash)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Nova petição")
	assert.Contains(t, rec.Body.String(), "Nenhum caso enviado ainda.")

	admin := browserRequest(http.MethodGet, "/admin")
	admin.AddCookie(session)
	rec = f.do(admin)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/dashboard", rec.Header().Get("Location"))

	logout := withCSRF(browserRequest(http.MethodPost, "/logout"))
	logout.AddCookie(session)
	rec = f.do(logout)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, 0, f.contexts.Len())

	again := browserRequest(http.MethodGet, "/dashboard")
	again.AddCookie(session)
	rec = f.do(again)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login?redirect_uri=%2Fdashboard", rec.Header().Get("Location"))
}

func TestRouter_SubmitPetition(t *testing.T) {
	f := newRouterFixture(t)
	sid := f.signIn("ana@example.com", domainauth.RoleUser)
	userID := "uid-ana@example.com"
	f.cases.EXPECT().List(gomock.Any(), gomock.Any()).Return(nil, nil).AnyTimes()

	t.Run("invalid petition re-renders the form", func(t *testing.T) {
		form := url.Values{"title": {"Despejo irregular"}, "category": {"civil"}, "description": {"curta"}}
		req := withCSRF(withSession(browserRequest(http.MethodPost, "/petitions"), sid))
		req.Body = io.NopCloser(strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		rec := f.do(req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "description must have at least 20 characters")
		assert.Contains(t, rec.Body.String(), `value="Despejo irregular"`)
	})

	t.Run("quota reached", func(t *testing.T) {
		f.profiles.EXPECT().GetByID(gomock.Any(), userID).
			Return(&domainauth.Profile{ID: userID, Role: domainauth.RoleUser, PetitionsUsed: model.DefaultMaxPetitionsPerUser}, nil)

		body := `{"title":"Despejo irregular","category":"civil","description":"Fui despejado sem aviso prévio pelo proprietário."}`
		req := withCSRF(withSession(apiRequest(http.MethodPost, "/api/petitions"), sid))
		req.Body = io.NopCloser(strings.NewReader(body))

		rec := f.do(req)
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Contains(t, rec.Body.String(), string(apperrors.ErrCodeQuotaExceeded))
	})

	t.Run("accepted petition", func(t *testing.T) {
		f.profiles.EXPECT().GetByID(gomock.Any(), userID).
			Return(&domainauth.Profile{ID: userID, Role: domainauth.RoleUser}, nil)
		f.cases.EXPECT().Create(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, req model.CreateCaseRequest) (*model.Case, error) {
				return &model.Case{ID: "c-1", CaseID: req.CaseID, UserID: req.UserID, OriginalText: req.OriginalText, Status: model.CaseStatusProcessing}, nil
			})
		f.profiles.EXPECT().IncrementPetitions(gomock.Any(), userID).
			Return(&domainauth.Profile{ID: userID, Role: domainauth.RoleUser, PetitionsUsed: 1}, nil)

		form := url.Values{"title": {"Despejo irregular"}, "category": {"civil"}, "description": {"Fui despejado sem aviso prévio pelo proprietário."}}
		req := withCSRF(withSession(browserRequest(http.MethodPost, "/petitions"), sid))
		req.Body = io.NopCloser(strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		rec := f.do(req)
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), "/dashboard?ok=CASO_"))
	})
}

func TestRouter_CaseDetail(t *testing.T) {
	f := newRouterFixture(t)
	sid := f.signIn("ana@example.com", domainauth.RoleUser)
	adminSID := f.signIn("root@example.com", domainauth.RoleAdmin)
	detail := &model.CaseDetail{
		Case:     model.Case{ID: "c-1", CaseID: "CASO_1", UserID: "someone-else", Status: model.CaseStatusCompleted, OriginalText: "Petição"},
		Sentence: &model.CaseSentence{JudicialAnalysis: "Análise", FinalSentence: "Procedente"},
	}
	f.cases.EXPECT().Detail(gomock.Any(), "CASO_1").Return(detail, nil).AnyTimes()

	rec := f.do(withSession(browserRequest(http.MethodGet, "/case/CASO_1"), sid))
	assert.Equal(t, http.StatusNotFound, rec.Code, "other users' cases are hidden")

	rec = f.do(withSession(browserRequest(http.MethodGet, "/case/CASO_1"), adminSID))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Procedente")

	rec = f.do(withSession(apiRequest(http.MethodGet, "/api/cases/CASO_1"), adminSID))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"final_sentence":"Procedente"`)
}

func TestRouter_AdminUsers(t *testing.T) {
	f := newRouterFixture(t)
	adminSID := f.signIn("root@example.com", domainauth.RoleAdmin)
	userID := "uid-ana@example.com"
	f.profiles.EXPECT().List(gomock.Any(), gomock.Any(), gomock.Any()).Return([]*domainauth.Profile{
		{ID: "uid-root@example.com", Email: "root@example.com", DisplayName: "Root", Role: domainauth.RoleAdmin},
		{ID: userID, Email: "ana@example.com", DisplayName: "Ana", Role: domainauth.RoleUser, PetitionsUsed: 3},
	}, nil).AnyTimes()

	rec := f.do(withSession(browserRequest(http.MethodGet, "/admin/users"), adminSID))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ana@example.com")
	assert.Contains(t, rec.Body.String(), "/admin/users/"+userID+"/delete")
	assert.NotContains(t, rec.Body.String(), "/admin/users/uid-root@example.com/delete", "admins cannot remove themselves")

	t.Run("role change via api", func(t *testing.T) {
		f.profiles.EXPECT().SetRole(gomock.Any(), userID, domainauth.RoleAdmin).
			Return(&domainauth.Profile{ID: userID, Role: domainauth.RoleAdmin}, nil)

		req := withCSRF(withSession(apiRequest(http.MethodPut, "/api/admin/users/"+userID+"/role"), adminSID))
		req.Body = io.NopCloser(strings.NewReader(`{"role":"admin"}`))
		req.Header.Set("Content-Type", "application/json")

		rec := f.do(req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"role":"admin"`)
	})

	t.Run("invalid role", func(t *testing.T) {
		req := withCSRF(withSession(apiRequest(http.MethodPut, "/api/admin/users/"+userID+"/role"), adminSID))
		req.Body = io.NopCloser(strings.NewReader(`{"role":"judge"}`))
		req.Header.Set("Content-Type", "application/json")

		rec := f.do(req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), `"field":"role"`)
	})
}
