package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"
	"github.com/tribunal-ia/portal/internal/observability/metrics"
)

// DefaultWebhookTimeout bounds a single webhook delivery.
const DefaultWebhookTimeout = 10 * time.Second

// ErrWebhookNotConfigured is returned when no webhook URL is set.
var ErrWebhookNotConfigured = errors.New("webhook url is not configured")

// WebhookStatusError reports a non-2xx webhook response.
type WebhookStatusError struct {
	StatusCode int
}

func (e *WebhookStatusError) Error() string {
	return fmt.Sprintf("webhook responded with HTTP %d", e.StatusCode)
}

// JMESPathEvaluator abstracts JMESPath operations for testability.
type JMESPathEvaluator interface {
	Validate(expr string) error
	Evaluate(expr string, data any) (any, error)
}

// jmespathLibEvaluator implements JMESPathEvaluator using go-jmespath.
type jmespathLibEvaluator struct{}

func (jmespathLibEvaluator) Validate(expr string) error {
	if strings.TrimSpace(expr) == "" {
		return nil
	}
	_, err := jmespath.Compile(expr)
	return err
}

func (jmespathLibEvaluator) Evaluate(expr string, data any) (any, error) {
	return jmespath.Search(expr, data)
}

// PetitionPayload is the body sent to the analysis workflow for a new case.
type PetitionPayload struct {
	CaseID      string    `json:"case_id"`
	Text        string    `json:"text"`
	UserID      string    `json:"user_id"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// TestPayload is the body sent when an admin tests the webhook.
type TestPayload struct {
	Test      bool      `json:"test"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// WebhookDispatcherOptions groups dependencies for WebhookDispatcher.
type WebhookDispatcherOptions struct {
	HTTPClient *http.Client      // optional; defaults to a client with Config.Timeout
	Evaluator  JMESPathEvaluator // optional; defaults to go-jmespath
	Config     WebhookDispatcherConfig
}

// WebhookDispatcherConfig holds optional collaborators and tuning.
type WebhookDispatcherConfig struct {
	Timeout time.Duration
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// WebhookDispatcher posts JSON payloads to the workflow webhook.
type WebhookDispatcher struct {
	client  *http.Client
	jems    JMESPathEvaluator
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewWebhookDispatcher constructs a WebhookDispatcher.
func NewWebhookDispatcher(opts WebhookDispatcherOptions) *WebhookDispatcher {
	timeout := opts.Config.Timeout
	if timeout <= 0 {
		timeout = DefaultWebhookTimeout
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	jems := opts.Evaluator
	if jems == nil {
		jems = jmespathLibEvaluator{}
	}
	logger := opts.Config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookDispatcher{
		client:  hc,
		jems:    jems,
		logger:  logger.With("component", "webhook"),
		metrics: opts.Config.Metrics,
	}
}

// ValidateExpr reports whether expr is a valid JMESPath body expression. Empty is valid.
func (d *WebhookDispatcher) ValidateExpr(expr string) error {
	if err := d.jems.Validate(expr); err != nil {
		return fmt.Errorf("invalid body JMESPath: %w", err)
	}
	return nil
}

// Send posts payload to url, reshaped by bodyExpr when it is set. Any 2xx response is success.
func (d *WebhookDispatcher) Send(ctx context.Context, url, bodyExpr string, payload any) error {
	err := d.send(ctx, url, bodyExpr, payload)
	if err != nil {
		d.metrics.ObserveWebhook(metrics.ResultError)
		return err
	}
	d.metrics.ObserveWebhook(metrics.ResultSuccess)
	return nil
}

func (d *WebhookDispatcher) send(ctx context.Context, url, bodyExpr string, payload any) error {
	if strings.TrimSpace(url) == "" {
		return ErrWebhookNotConfigured
	}
	body, err := d.deriveBody(bodyExpr, payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		if cerr := resp.Body.Close(); cerr != nil {
			d.logger.DebugContext(ctx, "close webhook response body", "error", cerr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &WebhookStatusError{StatusCode: resp.StatusCode}
	}
	return nil
}

func (d *WebhookDispatcher) deriveBody(expr string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal webhook payload: %w", err)
	}
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return raw, nil
	}

	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("invalid payload JSON: %w", err)
	}
	res, err := d.jems.Evaluate(expr, data)
	if err != nil {
		return nil, fmt.Errorf("evaluate body JMESPath: %w", err)
	}
	b, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("marshal derived body: %w", err)
	}
	return b, nil
}
