package httpx

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/tribunal-ia/portal/internal/domain/model"
)

// ChangeFeed waits for row changes on watched tables.
type ChangeFeed interface {
	Wait(ctx context.Context, table string, filter model.ChangeFilter, wait time.Duration) (model.ChangeEvent, bool, error)
}

// ChangeHandlers serves the long-poll change feed the UI uses to refresh case screens.
type ChangeHandlers struct {
	Feed    ChangeFeed
	MaxWait time.Duration
}

// defaultChangeWait applies when the client does not ask for a wait.
const defaultChangeWait = 25 * time.Second

// Wait blocks until a matching change or the wait elapses. Non-admins only ever see their own rows.
// GET /api/changes/{table}?wait=<seconds>&row_id=&user_id=.
func (h *ChangeHandlers) Wait(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	wait := defaultChangeWait
	if secs := intQuery(r, "wait", -1); secs >= 0 {
		wait = time.Duration(secs) * time.Second
	}
	if h.MaxWait > 0 && wait > h.MaxWait {
		wait = h.MaxWait
	}

	filter := model.ChangeFilter{
		RowID:  strings.TrimSpace(q.Get("row_id")),
		UserID: strings.TrimSpace(q.Get("user_id")),
	}
	if !IsAdmin(r.Context()) {
		if p := GetProfileFromContext(r.Context()); p != nil {
			filter.UserID = p.ID
		}
	}

	ev, ok, err := h.Feed.Wait(r.Context(), r.PathValue("table"), filter, wait)
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		WriteAppError(w, err)
		return
	}
	if !ok {
		WriteJSON(w, http.StatusOK, map[string]any{"changed": false})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"changed": true, "event": ev})
}
