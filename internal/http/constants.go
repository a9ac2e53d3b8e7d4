package httpx

// CurrentPage constants define the page identifiers used in templates and navigation.
const (
	PageLogin     = "login"
	PageLoading   = "loading"
	PageDashboard = "dashboard"
	PageCase      = "case"

	PageAdmin         = "admin"
	PageAdminUsers    = "admin-users"
	PageAdminCases    = "admin-cases"
	PageAdminSettings = "admin-settings"
	PageAdminLogs     = "admin-logs"
)

// Template paths used for loading templates in tests and production.
const (
	TemplatePathFromRoot = "frontend/templates"
	TemplatePathFromTest = "../../frontend/templates"
)

// Cookie names.
const (
	SessionCookieName = "session_id"
	SSOStateCookie    = "sso_state"
	SSONonceCookie    = "sso_nonce"
	SSORedirectCookie = "sso_redirect"
)

//nolint:gochecknoglobals // static read-only lookup for templates
var contentTemplates = map[string]string{
	PageLogin:         "login-content",
	PageLoading:       "loading-content",
	PageDashboard:     "dashboard-content",
	PageCase:          "case-content",
	PageAdmin:         "admin-content",
	PageAdminUsers:    "admin-users-content",
	PageAdminCases:    "admin-cases-content",
	PageAdminSettings: "admin-settings-content",
	PageAdminLogs:     "admin-logs-content",
}

// ContentTemplateFor maps a page identifier to its content template; unknown pages fall back
// to the dashboard.
func ContentTemplateFor(page string) string {
	if name, ok := contentTemplates[page]; ok {
		return name
	}
	return "dashboard-content"
}
