package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tribunal-ia/portal/internal/testutil"
)

type capturedRequest struct {
	method      string
	contentType string
	body        map[string]any
}

func webhookServer(t *testing.T, status int) (*httptest.Server, <-chan capturedRequest) {
	t.Helper()
	got := make(chan capturedRequest, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		var body map[string]any
		_ = json.Unmarshal(raw, &body)
		got <- capturedRequest{method: r.Method, contentType: r.Header.Get("Content-Type"), body: body}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func TestWebhookDispatcher_SendPetition(t *testing.T) {
	srv, got := webhookServer(t, http.StatusAccepted)
	d := NewWebhookDispatcher(WebhookDispatcherOptions{})

	err := d.Send(context.Background(), srv.URL, "", PetitionPayload{
		CaseID:      "CASO_1_abc",
		Text:        "texto",
		UserID:      "u-1",
		SubmittedAt: testutil.TestTime(),
	})
	require.NoError(t, err)

	req := <-got
	assert.Equal(t, http.MethodPost, req.method)
	assert.Equal(t, "application/json", req.contentType)
	assert.Equal(t, "CASO_1_abc", req.body["case_id"])
	assert.Equal(t, "u-1", req.body["user_id"])
	assert.Equal(t, "2025-03-01T12:00:00Z", req.body["submitted_at"])
}

func TestWebhookDispatcher_BodyExpression(t *testing.T) {
	srv, got := webhookServer(t, http.StatusOK)
	d := NewWebhookDispatcher(WebhookDispatcherOptions{})

	err := d.Send(context.Background(), srv.URL, "{caso_id: case_id, texto: text}", PetitionPayload{
		CaseID: "CASO_2_xyz",
		Text:   "conteudo",
		UserID: "u-1",
	})
	require.NoError(t, err)

	req := <-got
	assert.Equal(t, map[string]any{"caso_id": "CASO_2_xyz", "texto": "conteudo"}, req.body)
}

func TestWebhookDispatcher_Non2xx(t *testing.T) {
	srv, _ := webhookServer(t, http.StatusBadGateway)
	d := NewWebhookDispatcher(WebhookDispatcherOptions{})

	err := d.Send(context.Background(), srv.URL, "", TestPayload{Test: true, Timestamp: time.Now()})
	var se *WebhookStatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadGateway, se.StatusCode)
}

func TestWebhookDispatcher_Errors(t *testing.T) {
	d := NewWebhookDispatcher(WebhookDispatcherOptions{Config: WebhookDispatcherConfig{Timeout: time.Second}})

	assert.True(t, errors.Is(d.Send(context.Background(), "  ", "", TestPayload{}), ErrWebhookNotConfigured))
	assert.Error(t, d.Send(context.Background(), "http://127.0.0.1:1/hook", "", TestPayload{}))

	srv, _ := webhookServer(t, http.StatusOK)
	err := d.Send(context.Background(), srv.URL, "invalid((", TestPayload{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JMESPath")
}

func TestWebhookDispatcher_ValidateExpr(t *testing.T) {
	d := NewWebhookDispatcher(WebhookDispatcherOptions{})
	assert.NoError(t, d.ValidateExpr(""))
	assert.NoError(t, d.ValidateExpr("{id: case_id}"))
	assert.Error(t, d.ValidateExpr("{id: "))
}
