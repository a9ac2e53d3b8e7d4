package httpx

import (
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/tribunal-ia/portal/internal/domain/model"
	apperrors "github.com/tribunal-ia/portal/internal/errors"
	"github.com/tribunal-ia/portal/internal/service"
)

// dashboardHistoryLimit is how many past cases the dashboard lists.
const dashboardHistoryLimit = 50

// PortalHandlers serves the signed-in user's screens: petition form, history and case detail.
type PortalHandlers struct {
	Petitions *service.PetitionService
	Cases     *service.CaseService
	Settings  *service.SettingsService
	Contexts  AuthContexts
	Renderer  *TemplateRenderer
	Errors    ErrorResponder
	Logger    *slog.Logger
}

func (h *PortalHandlers) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// Dashboard renders the petition form and the user's history.
// GET /dashboard.
func (h *PortalHandlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	h.renderDashboard(w, r, dashboardForm{}, http.StatusOK)
}

type dashboardForm struct {
	Request model.SubmitPetitionRequest
	Err     error
}

func (h *PortalHandlers) renderDashboard(w http.ResponseWriter, r *http.Request, form dashboardForm, status int) {
	ctx := r.Context()
	profile := GetProfileFromContext(ctx)

	cases, err := h.Cases.History(ctx, profile, dashboardHistoryLimit, 0)
	if err != nil {
		h.Errors.Respond(w, r, err)
		return
	}
	settings, err := h.Settings.Get(ctx)
	if err != nil {
		h.Errors.Respond(w, r, err)
		return
	}

	b := NewTemplateData(r, PageMeta{Title: "Painel", CurrentPage: PageDashboard}).
		With("Cases", cases).
		With("Settings", settings).
		With("Categories", model.PetitionCategories).
		With("Form", form.Request)
	if form.Err != nil {
		b.WithError(UserMessage(form.Err))
		if field := apperrors.GetField(form.Err); field != "" {
			b.WithFieldErrors(map[string]string{field: PublicMessage(form.Err)})
		}
	}
	_ = h.Renderer.Render(w, r, status, b.Build())
}

// SubmitPetition accepts the petition form. Validation and quota failures re-render the
// dashboard with the submitted values.
// POST /petitions.
func (h *PortalHandlers) SubmitPetition(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderDashboard(w, r, dashboardForm{Err: apperrors.Validationf("invalid form")}, http.StatusBadRequest)
		return
	}
	req := model.SubmitPetitionRequest{
		Title:       r.PostFormValue("title"),
		Category:    r.PostFormValue("category"),
		Description: r.PostFormValue("description"),
	}

	c, err := h.Petitions.Submit(r.Context(), GetProfileFromContext(r.Context()), req)
	if err != nil {
		switch apperrors.GetCode(err) {
		case apperrors.ErrCodeValidation, apperrors.ErrCodeQuotaExceeded:
			h.renderDashboard(w, r, dashboardForm{Request: req, Err: err}, StatusForError(err))
		default:
			h.Errors.Respond(w, r, err)
		}
		return
	}

	h.refreshProfile(r)
	Redirect(w, r, "/dashboard?ok="+url.QueryEscape(c.CaseID))
}

// APISubmitPetition is the JSON variant of SubmitPetition.
// POST /api/petitions.
func (h *PortalHandlers) APISubmitPetition(w http.ResponseWriter, r *http.Request) {
	var req model.SubmitPetitionRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	c, err := h.Petitions.Submit(r.Context(), GetProfileFromContext(r.Context()), req)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	h.refreshProfile(r)
	WriteJSON(w, http.StatusCreated, c)
}

// refreshProfile re-reads the submitter's profile so the counter shown next reflects the petition.
func (h *PortalHandlers) refreshProfile(r *http.Request) {
	sid := GetSessionIDFromContext(r.Context())
	if err := h.Contexts.RefreshProfile(r.Context(), sid); err != nil {
		h.logger().WarnContext(r.Context(), "profile refresh after submit failed", "error", err)
	}
}

// History lists the caller's cases.
// GET /api/cases?limit=&offset=.
func (h *PortalHandlers) History(w http.ResponseWriter, r *http.Request) {
	cases, err := h.Cases.History(r.Context(), GetProfileFromContext(r.Context()),
		intQuery(r, "limit", 0), intQuery(r, "offset", 0))
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"cases": cases})
}

// CaseDetail shows one case with the workflow output written so far.
// GET /case/{caseID}, GET /api/cases/{caseID}.
func (h *PortalHandlers) CaseDetail(w http.ResponseWriter, r *http.Request) {
	caseID := strings.TrimSpace(r.PathValue("caseID"))
	detail, err := h.Cases.Detail(r.Context(), GetProfileFromContext(r.Context()), caseID)
	if err != nil {
		h.Errors.Respond(w, r, err)
		return
	}
	if !IsBrowserRequest(r) {
		WriteJSON(w, http.StatusOK, detail)
		return
	}
	data := NewTemplateData(r, PageMeta{Title: "Caso " + detail.Case.CaseID, CurrentPage: PageCase}).
		With("Detail", detail).
		Build()
	_ = h.Renderer.Render(w, r, http.StatusOK, data)
}

// intQuery parses a non-negative integer query parameter, falling back to def.
func intQuery(r *http.Request, name string, def int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
