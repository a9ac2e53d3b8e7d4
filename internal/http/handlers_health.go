package httpx

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
)

const healthResponse = `{"status":"ok"}`

// readyTimeout bounds each dependency check behind /readyz.
const readyTimeout = 2 * time.Second

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// healthHandler returns a simple 200 OK status for liveness checks.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.WriteString(w, healthResponse); err != nil {
		return
	}
}

// readyHandler runs every check concurrently and answers 503 naming the failing dependencies.
func readyHandler(checks map[string]HealthCheck, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		names := make([]string, 0, len(checks))
		for name := range checks {
			names = append(names, name)
		}
		sort.Strings(names)

		results := make([]error, len(names))
		var g errgroup.Group
		for i, name := range names {
			g.Go(func() error {
				results[i] = checks[name](ctx)
				return nil
			})
		}
		_ = g.Wait()

		status := map[string]string{}
		failed := false
		for i, name := range names {
			if results[i] != nil {
				failed = true
				status[name] = "down"
				logger.WarnContext(r.Context(), "readiness check failed", "check", name, "error", results[i])
				continue
			}
			status[name] = "ok"
		}

		if failed {
			WriteJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "checks": status})
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"status": "ok", "checks": status})
	}
}
