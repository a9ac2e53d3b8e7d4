package pagerduty

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tribunal-ia/portal/internal/observability/notify"
)

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{})
	require.Error(t, err)
}

func TestBuildEventDefaults(t *testing.T) {
	client, err := NewClient(Config{RoutingKey: "key"})
	require.NoError(t, err)

	event := client.buildEvent(notify.DeliveryFailure{
		CaseID:     "CASO_1",
		Endpoint:   "n8n.example.com",
		Error:      "boom",
		ErrorClass: "err_class",
		Metadata:   map[string]string{"case_id": "ignored", "status": "502"},
	})

	assert.Equal(t, "webhook:n8n.example.com", event["dedup_key"])
	payload, ok := event["payload"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, notify.SeverityCritical, payload["severity"])
	assert.Equal(t, "tribunal", payload["source"])
	assert.Equal(t, "petition-webhook", payload["component"])
	assert.Contains(t, payload["summary"], "CASO_1")

	custom, ok := payload["custom_details"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "CASO_1", custom["case_id"], "metadata never overrides canonical fields")
	assert.Equal(t, "502", custom["status"])
	assert.Equal(t, "err_class", custom["error_class"])
}

func TestSendDeliveryFailure(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client, err := NewClient(Config{RoutingKey: "key", Endpoint: srv.URL, Client: srv.Client()})
	require.NoError(t, err)

	require.NoError(t, client.SendDeliveryFailure(context.Background(), notify.DeliveryFailure{CaseID: "CASO_1", Severity: "WARNING"}))
	assert.Equal(t, "key", got["routing_key"])
	assert.Equal(t, "trigger", got["event_action"])
	payload, ok := got["payload"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "warning", payload["severity"])
}

func TestSendDeliveryFailureError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"status":"invalid event"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	client, err := NewClient(Config{RoutingKey: "key", Endpoint: srv.URL, Client: srv.Client()})
	require.NoError(t, err)

	err = client.SendDeliveryFailure(context.Background(), notify.DeliveryFailure{CaseID: "CASO_1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid event")
}
