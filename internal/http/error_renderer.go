package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	apperrors "github.com/tribunal-ia/portal/internal/errors"
)

var errNotFoundPage = apperrors.NotFoundf("page not found")

// ErrorResponder writes failures as the error page for browsers and as JSON for API clients.
type ErrorResponder struct {
	Renderer *TemplateRenderer
	Logger   *slog.Logger
}

// Respond writes err. Unclassified errors are logged and shown as a generic failure.
func (e ErrorResponder) Respond(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusForError(err)
	if status >= http.StatusInternalServerError && e.Logger != nil {
		e.Logger.ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
	}

	if !IsBrowserRequest(r) || e.Renderer == nil {
		WriteAppError(w, err)
		return
	}
	data := NewTemplateData(r, PageMeta{Title: errorTitle(status)}).
		WithError(UserMessage(err)).
		With("Status", status).
		Build()
	_ = e.Renderer.RenderError(w, status, data)
}

// UserMessage returns the Portuguese message shown on error pages and form banners.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "A requisição demorou demais. Tente novamente."
	case errors.Is(err, context.Canceled):
		return "A requisição foi cancelada."
	}
	switch apperrors.GetCode(err) {
	case apperrors.ErrCodeNotFound:
		return "Registro não encontrado."
	case apperrors.ErrCodeForbidden:
		return "Você não tem permissão para esta ação."
	case apperrors.ErrCodeQuotaExceeded:
		return "Você atingiu o limite de petições."
	case apperrors.ErrCodeValidation, apperrors.ErrCodeConflict:
		return PublicMessage(err)
	case apperrors.ErrCodeTimeout:
		return "A requisição demorou demais. Tente novamente."
	default:
		return "Erro inesperado. Tente novamente."
	}
}

func errorTitle(status int) string {
	switch status {
	case http.StatusNotFound:
		return "Não encontrado"
	case http.StatusForbidden:
		return "Acesso negado"
	case http.StatusBadRequest:
		return "Requisição inválida"
	default:
		return "Erro"
	}
}
