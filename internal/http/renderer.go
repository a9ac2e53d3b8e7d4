package httpx

import (
	"bytes"
	"errors"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"
	"time"

	corefuncs "github.com/tribunal-ia/portal/internal/http/templates/core"
)

// TemplateRenderer renders HTML templates for UI responses.
type TemplateRenderer struct {
	mu         sync.RWMutex
	t          *template.Template
	templateFS fs.FS
	devMode    bool // re-parse templates on every render
	location   *time.Location
	logger     *slog.Logger
}

// TemplateRendererConfig holds configuration for creating a TemplateRenderer.
type TemplateRendererConfig struct {
	TemplateFS fs.FS // required
	DevMode    bool
	Location   *time.Location // time zone for rendered timestamps, default America/Sao_Paulo
	Logger     *slog.Logger
}

// NewTemplateRenderer constructs a renderer by parsing templates from the provided config.
// In dev mode TemplateFS is usually os.DirFS("frontend/templates") so edits show up without a restart.
func NewTemplateRenderer(cfg TemplateRendererConfig) (*TemplateRenderer, error) {
	if cfg.TemplateFS == nil {
		return nil, errors.New("TemplateFS is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	loc := cfg.Location
	if loc == nil {
		var err error
		if loc, err = time.LoadLocation("America/Sao_Paulo"); err != nil {
			loc = time.UTC
		}
	}

	r := &TemplateRenderer{
		templateFS: cfg.TemplateFS,
		devMode:    cfg.DevMode,
		location:   loc,
		logger:     logger.With("component", "renderer"),
	}
	t, err := r.parse()
	if err != nil {
		r.logger.Error("template parsing failed", slog.Any("error", err), slog.String("phase", "initialization"))
		return nil, err
	}
	r.t = t
	return r, nil
}

func (r *TemplateRenderer) parse() (*template.Template, error) {
	var t *template.Template
	funcs := corefuncs.Funcs(corefuncs.Deps{
		Template:           &t,
		ContentTemplateFor: ContentTemplateFor,
		Location:           r.location,
	})
	parsed, err := template.New("root").Funcs(funcs).ParseFS(r.templateFS, "*.tmpl", "pages/*.tmpl")
	if err != nil {
		return nil, err
	}
	t = parsed
	return t, nil
}

func (r *TemplateRenderer) templates() (*template.Template, error) {
	if r.devMode {
		t, err := r.parse()
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.t = t
		r.mu.Unlock()
		return t, nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.t, nil
}

// Render writes a page with status. htmx requests receive only the content fragment.
func (r *TemplateRenderer) Render(w http.ResponseWriter, req *http.Request, status int, data map[string]any) error {
	name := "layout"
	if WantsPartial(req) {
		name = "content"
	}
	return r.renderTemplate(w, status, name, data)
}

// RenderError renders the standalone error page.
func (r *TemplateRenderer) RenderError(w http.ResponseWriter, status int, data map[string]any) error {
	return r.renderTemplate(w, status, "error-layout", data)
}

func (r *TemplateRenderer) renderTemplate(w http.ResponseWriter, status int, name string, data any) error {
	t, err := r.templates()
	if err != nil {
		r.logger.Error("template parsing failed", slog.Any("error", err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return err
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, name, data); err != nil {
		r.logger.Error("template execution failed", slog.String("template", name), slog.Any("error", err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return err
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		r.logger.Error("failed to write rendered template", slog.String("template", name), slog.Any("error", err))
		return err
	}
	return nil
}
