package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tribunal-ia/portal/internal/core"
	domainauth "github.com/tribunal-ia/portal/internal/domain/auth"
	"github.com/tribunal-ia/portal/internal/domain/model"
	apperrors "github.com/tribunal-ia/portal/internal/errors"
)

const webhookTestMessage = "Teste de conexão do Tribunal de IA"

// SettingsServiceOptions groups dependencies for SettingsService.
type SettingsServiceOptions struct {
	Settings  core.SettingsRepository // required
	UsageLogs core.UsageLogRepository // required
	Config    SettingsServiceConfig
}

// SettingsServiceConfig holds optional collaborators.
type SettingsServiceConfig struct {
	Webhook WebhookSender
	Logger  *slog.Logger
	Now     func() time.Time
}

// SettingsService reads and updates portal settings.
type SettingsService struct {
	repo    core.SettingsRepository
	logs    core.UsageLogRepository
	webhook WebhookSender
	logger  *slog.Logger
	now     func() time.Time
}

// NewSettingsService constructs a SettingsService. It panics when a repository is nil.
func NewSettingsService(opts SettingsServiceOptions) *SettingsService {
	if opts.Settings == nil || opts.UsageLogs == nil {
		panic("Settings and UsageLogs repositories are required")
	}
	logger := opts.Config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Config.Now
	if now == nil {
		now = time.Now
	}
	return &SettingsService{
		repo:    opts.Settings,
		logs:    opts.UsageLogs,
		webhook: opts.Config.Webhook,
		logger:  logger.With("component", "settings"),
		now:     now,
	}
}

// Get returns the current settings.
func (s *SettingsService) Get(ctx context.Context) (model.Settings, error) {
	st, err := s.repo.Get(ctx)
	if err != nil {
		return model.Settings{}, fmt.Errorf("get settings: %w", err)
	}
	return st, nil
}

// Update validates and saves req.
func (s *SettingsService) Update(ctx context.Context, actor *domainauth.Profile, req model.UpdateSettingsRequest) (model.Settings, error) {
	if err := requireAdmin(actor); err != nil {
		return model.Settings{}, err
	}
	if err := req.Validate(); err != nil {
		return model.Settings{}, invalidInput(err)
	}
	if s.webhook != nil {
		if err := s.webhook.ValidateExpr(req.WebhookBodyExpr); err != nil {
			return model.Settings{}, apperrors.ValidationField("webhook_body_expr", err.Error())
		}
	}
	st, err := s.repo.Save(ctx, req)
	if err != nil {
		return model.Settings{}, fmt.Errorf("save settings: %w", err)
	}
	if err := s.logs.Create(ctx, model.CreateUsageLogRequest{
		Action: model.ActionSettingsUpdated,
		UserID: actor.ID,
	}); err != nil {
		s.logger.WarnContext(ctx, "failed to write usage log", "action", model.ActionSettingsUpdated, "error", err)
	}
	return st, nil
}

// TestWebhook sends a test payload to the saved webhook URL.
func (s *SettingsService) TestWebhook(ctx context.Context, actor *domainauth.Profile) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	if s.webhook == nil {
		return apperrors.Validationf("webhook delivery is disabled")
	}
	st, err := s.Get(ctx)
	if err != nil {
		return err
	}
	if st.WebhookURL == "" {
		return apperrors.ValidationField("webhook_url", "configure the webhook URL first")
	}
	err = s.webhook.Send(ctx, st.WebhookURL, st.WebhookBodyExpr, TestPayload{
		Test:      true,
		Timestamp: s.now().UTC(),
		Message:   webhookTestMessage,
	})
	if err != nil {
		return fmt.Errorf("test webhook: %w", err)
	}
	return nil
}
