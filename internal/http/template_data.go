package httpx

import (
	"net/http"
)

// PageMeta identifies the page being rendered.
type PageMeta struct {
	Title       string
	CurrentPage string
}

// TemplateDataBuilder provides a fluent API for building template data maps.
type TemplateDataBuilder struct {
	data map[string]any
}

// NewTemplateData creates a builder seeded with the data every page needs: the auth state
// attached by the role gate and the CSRF token.
func NewTemplateData(r *http.Request, meta PageMeta) *TemplateDataBuilder {
	data := map[string]any{
		"Title":       meta.Title,
		"CurrentPage": meta.CurrentPage,
		"CSRFToken":   GetCSRFToken(r),
		"IsAdmin":     false,
	}
	if st, ok := GetAuthStateFromContext(r.Context()); ok {
		data["Identity"] = st.Identity
		data["Profile"] = st.Profile
		data["IsAdmin"] = st.Profile.IsAdmin()
	}
	q := r.URL.Query()
	if flash := q.Get("ok"); flash != "" {
		data["Flash"] = flash
	}
	if msg := q.Get("err"); msg != "" {
		data["Error"] = true
		data["ErrorMessage"] = msg
	}
	return &TemplateDataBuilder{data: data}
}

// WithError sets a general error message.
func (b *TemplateDataBuilder) WithError(msg string) *TemplateDataBuilder {
	b.data["Error"] = true
	b.data["ErrorMessage"] = msg
	return b
}

// WithFieldErrors adds field-level validation errors.
func (b *TemplateDataBuilder) WithFieldErrors(errs map[string]string) *TemplateDataBuilder {
	if len(errs) > 0 {
		b.data["Errors"] = errs
	}
	return b
}

// With adds a custom field to the template data.
func (b *TemplateDataBuilder) With(key string, value any) *TemplateDataBuilder {
	b.data[key] = value
	return b
}

// Build returns the final template data map.
func (b *TemplateDataBuilder) Build() map[string]any {
	return b.data
}
