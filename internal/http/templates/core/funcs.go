package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"strings"
	"time"
)

// Deps holds optional dependencies for constructing the core template func map.
type Deps struct {
	Template           **template.Template
	ContentTemplateFor func(string) string
	Location           *time.Location
}

// Funcs returns a template.FuncMap containing helpers that are broadly useful across templates.
func Funcs(deps Deps) template.FuncMap {
	loc := deps.Location
	if loc == nil {
		loc = time.Local
	}
	funcs := template.FuncMap{
		"sectionTmpl":  deps.ContentTemplateFor,
		"friendlyTime": createFriendlyTimeFunc(loc),
		"timeTag":      createTimeTagFunc(loc),
		"add":          func(a, b int) int { return a + b },
		"sub":          func(a, b int) int { return a - b },
		"contains":     strings.Contains,
		"statusClass":  statusClass,
		"statusLabel":  statusLabel,
		"truncateText": TruncateText,
		"remaining":    Remaining,
	}

	addRenderFuncs(funcs, deps)
	return funcs
}

func addRenderFuncs(funcs template.FuncMap, deps Deps) {
	funcs["renderSection"] = func(page string, data any) (template.HTML, error) {
		if deps.Template == nil || *deps.Template == nil {
			return "", errors.New("template not initialized")
		}
		var buf bytes.Buffer
		if err := (*deps.Template).ExecuteTemplate(&buf, deps.ContentTemplateFor(page), data); err != nil {
			return "", err
		}
		// #nosec G203 - produced by html/template from the same trusted set; values already escaped.
		return template.HTML(buf.String()), nil
	}

	funcs["toJSON"] = func(v any) (string, error) {
		b, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}

func asTime(ts any) time.Time {
	switch v := ts.(type) {
	case time.Time:
		return v
	case *time.Time:
		if v != nil {
			return *v
		}
	}
	return time.Time{}
}

func createFriendlyTimeFunc(loc *time.Location) func(any) string {
	return func(ts any) string {
		t0 := asTime(ts)
		if t0.IsZero() {
			return ""
		}
		return t0.In(loc).Format("02/01/2006 15:04")
	}
}

func createTimeTagFunc(loc *time.Location) func(any) template.HTML {
	return func(ts any) template.HTML {
		t0 := asTime(ts)
		if t0.IsZero() {
			return ""
		}
		local := t0.In(loc)
		// #nosec G203 - built from escaped, formatted timestamps only
		return template.HTML(fmt.Sprintf(
			"<time datetime=\"%s\" title=\"%s\">%s</time>",
			t0.UTC().Format(time.RFC3339),
			template.HTMLEscapeString(local.Format(time.RFC1123)),
			template.HTMLEscapeString(local.Format("02/01/2006 15:04")),
		))
	}
}

func statusClass(status any) string {
	switch strings.ToLower(fmt.Sprint(status)) {
	case "completed":
		return "badge-success"
	case "processing":
		return "badge-info"
	case "error":
		return "badge-danger"
	default:
		return "badge-light"
	}
}

func statusLabel(status any) string {
	switch strings.ToLower(fmt.Sprint(status)) {
	case "completed":
		return "Concluído"
	case "processing":
		return "Em análise"
	case "error":
		return "Erro"
	default:
		return fmt.Sprint(status)
	}
}

// TruncateText truncates a string to a maximum number of runes (not bytes),
// ending with an ellipsis when anything was cut.
func TruncateText(s string, maxLen int) string {
	if maxLen <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen > 1 {
		return string(runes[:maxLen-1]) + "…"
	}
	return string(runes[:1])
}

// Remaining returns how many petitions are left under a quota, never below zero.
func Remaining(limit, used int) int {
	if used >= limit {
		return 0
	}
	return limit - used
}
