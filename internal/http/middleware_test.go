package httpx

import (
	"bytes"
	"compress/gzip"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompression(t *testing.T) {
	content := strings.Repeat("Tribunal de IA ", 500)

	tests := []struct {
		name           string
		method         string
		acceptEncoding string
		contentType    string
		status         int
		wantGzip       bool
	}{
		{name: "client accepts gzip", method: http.MethodGet, acceptEncoding: "gzip, deflate", contentType: "text/html", status: http.StatusOK, wantGzip: true},
		{name: "json is compressed", method: http.MethodGet, acceptEncoding: "gzip", contentType: "application/json", status: http.StatusOK, wantGzip: true},
		{name: "client refuses gzip", method: http.MethodGet, acceptEncoding: "gzip;q=0", contentType: "text/html", status: http.StatusOK},
		{name: "no accept-encoding", method: http.MethodGet, contentType: "text/html", status: http.StatusOK},
		{name: "binary content", method: http.MethodGet, acceptEncoding: "gzip", contentType: "image/png", status: http.StatusOK},
		{name: "head request", method: http.MethodHead, acceptEncoding: "gzip", contentType: "text/html", status: http.StatusOK},
		{name: "not modified", method: http.MethodGet, acceptEncoding: "gzip", contentType: "text/html", status: http.StatusNotModified},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := Compression(CompressionConfig{Level: 6})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				w.WriteHeader(tt.status)
				if tt.status == http.StatusOK && r.Method != http.MethodHead {
					_, _ = io.WriteString(w, content)
				}
			}))

			req := httptest.NewRequest(tt.method, "/", nil)
			if tt.acceptEncoding != "" {
				req.Header.Set("Accept-Encoding", tt.acceptEncoding)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if !tt.wantGzip {
				assert.Empty(t, rec.Header().Get("Content-Encoding"))
				return
			}
			assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
			assert.Contains(t, rec.Header().Values("Vary"), "Accept-Encoding")
			gz, err := gzip.NewReader(rec.Body)
			require.NoError(t, err)
			body, err := io.ReadAll(gz)
			require.NoError(t, err)
			assert.Equal(t, content, string(body))
		})
	}
}

func TestRecover(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	handler := Recover(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("kaboom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, logs.String(), "kaboom")
	assert.Contains(t, logs.String(), `"path":"/dashboard"`)
}

func TestLogging(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	handler := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/petitions", nil))

	assert.Contains(t, logs.String(), `"status":418`)
	assert.Contains(t, logs.String(), `"method":"POST"`)
}

func TestIsBrowserRequest(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		headers map[string]string
		want    bool
	}{
		{name: "html accept", path: "/dashboard", headers: map[string]string{"Accept": "text/html"}, want: true},
		{name: "no accept", path: "/dashboard", want: true},
		{name: "json accept", path: "/dashboard", headers: map[string]string{"Accept": "application/json"}},
		{name: "api path", path: "/api/cases", headers: map[string]string{"Accept": "text/html"}},
		{name: "static path", path: "/static/css/app.css"},
		{name: "htmx", path: "/admin/users", headers: map[string]string{"Hx-Request": "true", "Accept": "*/*"}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			var got bool
			BrowserDetection()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				got = IsBrowserRequest(r)
			})).ServeHTTP(httptest.NewRecorder(), req)
			assert.Equal(t, tt.want, got)
		})
	}
}
