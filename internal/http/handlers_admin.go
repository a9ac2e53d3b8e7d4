package httpx

import (
	"encoding/json"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	domainauth "github.com/tribunal-ia/portal/internal/domain/auth"
	"github.com/tribunal-ia/portal/internal/domain/model"
	apperrors "github.com/tribunal-ia/portal/internal/errors"
	"github.com/tribunal-ia/portal/internal/service"
)

const (
	adminOverviewLimit = 10
	adminPageLimit     = 100
)

// AdminHandlers serves the administrator screens and their JSON counterparts.
type AdminHandlers struct {
	Users    *service.UserAdminService
	Cases    *service.CaseService
	Settings *service.SettingsService
	Logs     *service.UsageLogService
	Renderer *TemplateRenderer
	Errors   ErrorResponder
}

// Overview summarizes users, recent cases and recent activity.
// GET /admin.
func (h *AdminHandlers) Overview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	users, err := h.Users.List(ctx, adminPageLimit, 0)
	if err != nil {
		h.Errors.Respond(w, r, err)
		return
	}
	cases, err := h.Cases.AdminList(ctx, model.CasesListOptions{Limit: adminOverviewLimit})
	if err != nil {
		h.Errors.Respond(w, r, err)
		return
	}
	logs, err := h.Logs.List(ctx, model.UsageLogsListOptions{Limit: adminOverviewLimit})
	if err != nil {
		h.Errors.Respond(w, r, err)
		return
	}
	settings, err := h.Settings.Get(ctx)
	if err != nil {
		h.Errors.Respond(w, r, err)
		return
	}

	admins := 0
	for _, u := range users {
		if u.IsAdmin() {
			admins++
		}
	}
	data := NewTemplateData(r, PageMeta{Title: "Administração", CurrentPage: PageAdmin}).
		With("UserCount", len(users)).
		With("AdminCount", admins).
		With("RecentCases", cases).
		With("RecentLogs", logs).
		With("Settings", settings).
		Build()
	_ = h.Renderer.Render(w, r, http.StatusOK, data)
}

// ListUsers lists profiles.
// GET /admin/users, GET /api/admin/users.
func (h *AdminHandlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Users.List(r.Context(), intQuery(r, "limit", 0), intQuery(r, "offset", 0))
	if err != nil {
		h.Errors.Respond(w, r, err)
		return
	}
	if !IsBrowserRequest(r) {
		WriteJSON(w, http.StatusOK, map[string]any{"users": users})
		return
	}
	data := NewTemplateData(r, PageMeta{Title: "Usuários", CurrentPage: PageAdminUsers}).
		With("Users", users).
		With("Roles", []domainauth.Role{domainauth.RoleUser, domainauth.RoleAdmin}).
		Build()
	_ = h.Renderer.Render(w, r, http.StatusOK, data)
}

// SetRole changes a user's role.
// POST /admin/users/{userID}/role, PUT /api/admin/users/{userID}/role.
func (h *AdminHandlers) SetRole(w http.ResponseWriter, r *http.Request) {
	in, err := readInput(r)
	if err != nil {
		h.mutationFailed(w, r, "/admin/users", err)
		return
	}
	role, err := domainauth.ParseRole(in["role"])
	if err != nil {
		h.mutationFailed(w, r, "/admin/users", apperrors.ValidationField("role", err.Error()))
		return
	}
	p, err := h.Users.SetRole(r.Context(), GetProfileFromContext(r.Context()), r.PathValue("userID"), role)
	if err != nil {
		h.mutationFailed(w, r, "/admin/users", err)
		return
	}
	h.mutationDone(w, r, "/admin/users", "Papel atualizado", p)
}

// ResetCounter zeroes a user's petition counter.
// POST /admin/users/{userID}/reset, POST /api/admin/users/{userID}/reset.
func (h *AdminHandlers) ResetCounter(w http.ResponseWriter, r *http.Request) {
	p, err := h.Users.ResetCounter(r.Context(), GetProfileFromContext(r.Context()), r.PathValue("userID"))
	if err != nil {
		h.mutationFailed(w, r, "/admin/users", err)
		return
	}
	h.mutationDone(w, r, "/admin/users", "Contador zerado", p)
}

// DeleteUser removes a user's profile.
// POST /admin/users/{userID}/delete, DELETE /api/admin/users/{userID}.
func (h *AdminHandlers) DeleteUser(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")
	if err := h.Users.Delete(r.Context(), GetProfileFromContext(r.Context()), userID); err != nil {
		h.mutationFailed(w, r, "/admin/users", err)
		return
	}
	h.mutationDone(w, r, "/admin/users", "Usuário removido", map[string]string{"deleted": userID})
}

// ListCases lists all cases with optional status and owner filters.
// GET /admin/cases?status=&user_id=, GET /api/admin/cases.
func (h *AdminHandlers) ListCases(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := model.CasesListOptions{Limit: intQuery(r, "limit", 0), Offset: intQuery(r, "offset", 0)}
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		status := model.CaseStatus(strings.ToLower(raw))
		opts.Status = &status
	}
	if userID := strings.TrimSpace(q.Get("user_id")); userID != "" {
		opts.UserID = &userID
	}

	cases, err := h.Cases.AdminList(r.Context(), opts)
	if err != nil {
		h.Errors.Respond(w, r, err)
		return
	}
	if !IsBrowserRequest(r) {
		WriteJSON(w, http.StatusOK, map[string]any{"cases": cases})
		return
	}
	data := NewTemplateData(r, PageMeta{Title: "Casos", CurrentPage: PageAdminCases}).
		With("Cases", cases).
		With("StatusFilter", q.Get("status")).
		With("Statuses", []model.CaseStatus{model.CaseStatusProcessing, model.CaseStatusCompleted, model.CaseStatusError}).
		Build()
	_ = h.Renderer.Render(w, r, http.StatusOK, data)
}

// DeleteCase removes a case and its workflow output.
// POST /admin/cases/{caseID}/delete, DELETE /api/admin/cases/{caseID}.
func (h *AdminHandlers) DeleteCase(w http.ResponseWriter, r *http.Request) {
	caseID := r.PathValue("caseID")
	if err := h.Cases.Delete(r.Context(), GetProfileFromContext(r.Context()), caseID); err != nil {
		h.mutationFailed(w, r, "/admin/cases", err)
		return
	}
	h.mutationDone(w, r, "/admin/cases", "Caso removido", map[string]string{"deleted": caseID})
}

// SettingsPage shows the portal settings.
// GET /admin/settings, GET /api/admin/settings.
func (h *AdminHandlers) SettingsPage(w http.ResponseWriter, r *http.Request) {
	st, err := h.Settings.Get(r.Context())
	if err != nil {
		h.Errors.Respond(w, r, err)
		return
	}
	if !IsBrowserRequest(r) {
		WriteJSON(w, http.StatusOK, st)
		return
	}
	h.renderSettings(w, r, model.UpdateSettingsRequest{
		WebhookURL:          st.WebhookURL,
		MaxPetitionsPerUser: st.MaxPetitionsPerUser,
		WebhookBodyExpr:     st.WebhookBodyExpr,
	}, nil)
}

func (h *AdminHandlers) renderSettings(w http.ResponseWriter, r *http.Request, form model.UpdateSettingsRequest, formErr error) {
	b := NewTemplateData(r, PageMeta{Title: "Configurações", CurrentPage: PageAdminSettings}).
		With("Form", form)
	status := http.StatusOK
	if formErr != nil {
		status = StatusForError(formErr)
		b.WithError(UserMessage(formErr))
		if field := apperrors.GetField(formErr); field != "" {
			b.WithFieldErrors(map[string]string{field: PublicMessage(formErr)})
		}
	}
	_ = h.Renderer.Render(w, r, status, b.Build())
}

// UpdateSettings saves the portal settings.
// POST /admin/settings, PUT /api/admin/settings.
func (h *AdminHandlers) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	in, err := readInput(r)
	if err != nil {
		h.mutationFailed(w, r, "/admin/settings", err)
		return
	}
	req := model.UpdateSettingsRequest{
		WebhookURL:      in["webhook_url"],
		WebhookBodyExpr: in["webhook_body_expr"],
	}
	maxPetitions, convErr := strconv.Atoi(strings.TrimSpace(in["max_petitions_per_user"]))
	if convErr != nil {
		err = apperrors.ValidationField("max_petitions_per_user", "max_petitions_per_user must be a number")
	} else {
		req.MaxPetitionsPerUser = maxPetitions
		_, err = h.Settings.Update(r.Context(), GetProfileFromContext(r.Context()), req)
	}

	if err != nil {
		if IsBrowserRequest(r) && apperrors.IsValidation(err) {
			h.renderSettings(w, r, req, err)
			return
		}
		h.mutationFailed(w, r, "/admin/settings", err)
		return
	}
	st, err := h.Settings.Get(r.Context())
	if err != nil {
		h.mutationFailed(w, r, "/admin/settings", err)
		return
	}
	h.mutationDone(w, r, "/admin/settings", "Configurações salvas", st)
}

// TestWebhook sends a test payload to the configured webhook.
// POST /admin/settings/test, POST /api/admin/settings/test.
func (h *AdminHandlers) TestWebhook(w http.ResponseWriter, r *http.Request) {
	if err := h.Settings.TestWebhook(r.Context(), GetProfileFromContext(r.Context())); err != nil {
		h.mutationFailed(w, r, "/admin/settings", err)
		return
	}
	h.mutationDone(w, r, "/admin/settings", "Webhook respondeu com sucesso", map[string]bool{"ok": true})
}

// ListLogs lists usage logs, optionally filtered by action.
// GET /admin/logs?action=, GET /api/admin/logs.
func (h *AdminHandlers) ListLogs(w http.ResponseWriter, r *http.Request) {
	opts := model.UsageLogsListOptions{Limit: intQuery(r, "limit", 0), Offset: intQuery(r, "offset", 0)}
	action := strings.TrimSpace(r.URL.Query().Get("action"))
	if action != "" {
		a := model.UsageAction(action)
		opts.Action = &a
	}
	logs, err := h.Logs.List(r.Context(), opts)
	if err != nil {
		h.Errors.Respond(w, r, err)
		return
	}
	if !IsBrowserRequest(r) {
		WriteJSON(w, http.StatusOK, map[string]any{"logs": logs})
		return
	}
	data := NewTemplateData(r, PageMeta{Title: "Atividade", CurrentPage: PageAdminLogs}).
		With("Logs", logs).
		With("ActionFilter", action).
		With("Actions", []model.UsageAction{
			model.ActionPetitionSubmitted,
			model.ActionWebhookFailed,
			model.ActionRoleChanged,
			model.ActionCounterReset,
			model.ActionUserDeleted,
			model.ActionCaseDeleted,
			model.ActionSettingsUpdated,
		}).
		Build()
	_ = h.Renderer.Render(w, r, http.StatusOK, data)
}

// mutationDone answers a successful change: browsers go back to the list with a notice,
// API clients get the result.
func (h *AdminHandlers) mutationDone(w http.ResponseWriter, r *http.Request, back, notice string, result any) {
	if !IsBrowserRequest(r) {
		WriteJSON(w, http.StatusOK, result)
		return
	}
	SetHXTrigger(w, "showToast", map[string]string{"message": notice, "type": "success"})
	Redirect(w, r, back+"?ok="+url.QueryEscape(notice))
}

func (h *AdminHandlers) mutationFailed(w http.ResponseWriter, r *http.Request, back string, err error) {
	if !IsBrowserRequest(r) || StatusForError(err) >= http.StatusInternalServerError {
		h.Errors.Respond(w, r, err)
		return
	}
	Redirect(w, r, back+"?err="+url.QueryEscape(UserMessage(err)))
}

// readInput returns the request's fields from a JSON object body or a form, as strings.
func readInput(r *http.Request) (map[string]string, error) {
	out := make(map[string]string)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var raw map[string]any
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid JSON body")
		}
		for k, v := range raw {
			switch val := v.(type) {
			case string:
				out[k] = val
			case float64:
				out[k] = strconv.FormatFloat(val, 'f', -1, 64)
			case bool:
				out[k] = strconv.FormatBool(val)
			}
		}
		return out, nil
	}
	if err := r.ParseForm(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid form")
	}
	for k := range r.PostForm {
		out[k] = r.PostForm.Get(k)
	}
	return out, nil
}
