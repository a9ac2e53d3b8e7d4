package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/tribunal-ia/portal/internal/core"
	domainauth "github.com/tribunal-ia/portal/internal/domain/auth"
	"github.com/tribunal-ia/portal/internal/domain/model"
	apperrors "github.com/tribunal-ia/portal/internal/errors"
	obserrors "github.com/tribunal-ia/portal/internal/observability/errors"
	"github.com/tribunal-ia/portal/internal/observability/metrics"
	"github.com/tribunal-ia/portal/internal/observability/notify"
)

// alertTimeout bounds one round of operator alerts about a failed delivery.
const alertTimeout = 30 * time.Second

// WebhookSender delivers payloads to the workflow webhook.
type WebhookSender interface {
	Send(ctx context.Context, url, bodyExpr string, payload any) error
	ValidateExpr(expr string) error
}

// FailureAlerter tells operators that a petition could not be handed to the workflow.
type FailureAlerter interface {
	NotifyDeliveryFailure(ctx context.Context, payload notify.DeliveryFailure)
}

// PetitionRepos groups the repositories PetitionService writes to.
type PetitionRepos struct {
	Cases     core.CaseRepository
	Profiles  core.ProfileRepository
	Settings  core.SettingsRepository
	UsageLogs core.UsageLogRepository
}

// PetitionServiceOptions groups dependencies for PetitionService.
type PetitionServiceOptions struct {
	Repos   PetitionRepos // all required
	Webhook WebhookSender // optional; submissions are stored but not forwarded without it
	Config  PetitionServiceConfig
}

// PetitionServiceConfig holds optional collaborators.
type PetitionServiceConfig struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Alerts  FailureAlerter // optional; alerts run in the background
	Now     func() time.Time
}

// PetitionService accepts petitions, enforces the per-user quota and hands new cases to the workflow.
type PetitionService struct {
	cases    core.CaseRepository
	profiles core.ProfileRepository
	settings core.SettingsRepository
	logs     core.UsageLogRepository
	webhook  WebhookSender
	alerts   FailureAlerter
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewPetitionService constructs a PetitionService. It panics when a required repository is nil.
func NewPetitionService(opts PetitionServiceOptions) *PetitionService {
	r := opts.Repos
	if r.Cases == nil || r.Profiles == nil || r.Settings == nil || r.UsageLogs == nil {
		panic("Cases, Profiles, Settings and UsageLogs repositories are required")
	}
	logger := opts.Config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Config.Now
	if now == nil {
		now = time.Now
	}
	return &PetitionService{
		cases:    r.Cases,
		profiles: r.Profiles,
		settings: r.Settings,
		logs:     r.UsageLogs,
		webhook:  opts.Webhook,
		alerts:   opts.Config.Alerts,
		logger:   logger.With("component", "petitions"),
		metrics:  opts.Config.Metrics,
		now:      now,
	}
}

// Submit validates req, checks the quota for user-role submitters, stores the case in the
// processing state, counts it against the submitter and forwards it to the workflow webhook.
// Failures after the case is stored are logged and do not fail the submission.
func (s *PetitionService) Submit(ctx context.Context, submitter *domainauth.Profile, req model.SubmitPetitionRequest) (*model.Case, error) {
	if submitter == nil {
		return nil, apperrors.Forbiddenf("sign in to submit petitions")
	}
	if err := req.Validate(); err != nil {
		return nil, invalidInput(err)
	}

	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	current, err := s.profiles.GetByID(ctx, submitter.ID)
	if err != nil {
		return nil, fmt.Errorf("load submitter profile: %w", err)
	}
	if current.Role == domainauth.RoleUser && current.PetitionsUsed >= settings.MaxPetitionsPerUser {
		return nil, apperrors.QuotaExceededf("petition limit reached (%d of %d)",
			current.PetitionsUsed, settings.MaxPetitionsPerUser)
	}

	now := s.now().UTC()
	c, err := s.cases.Create(ctx, model.CreateCaseRequest{
		CaseID:       model.NewCaseID(now),
		OriginalText: req.Text(),
		UserID:       current.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("create case: %w", err)
	}
	s.metrics.PetitionSubmitted()

	if _, err := s.profiles.IncrementPetitions(ctx, current.ID); err != nil {
		s.logger.WarnContext(ctx, "failed to increment petition counter", "user_id", current.ID, "case_id", c.CaseID, "error", err)
	}
	s.record(ctx, model.ActionPetitionSubmitted, c.CaseID, current.ID)
	s.dispatch(ctx, settings, PetitionPayload{
		CaseID:      c.CaseID,
		Text:        c.OriginalText,
		UserID:      current.ID,
		SubmittedAt: now,
	})
	return c, nil
}

func (s *PetitionService) dispatch(ctx context.Context, settings model.Settings, payload PetitionPayload) {
	if s.webhook == nil || settings.WebhookURL == "" {
		s.logger.InfoContext(ctx, "webhook not configured, case left for manual processing", "case_id", payload.CaseID)
		return
	}
	if err := s.webhook.Send(ctx, settings.WebhookURL, settings.WebhookBodyExpr, payload); err != nil {
		s.logger.ErrorContext(ctx, "webhook delivery failed", "case_id", payload.CaseID, "error", err)
		s.record(ctx, model.ActionWebhookFailed, payload.CaseID, payload.UserID)
		s.alert(ctx, settings.WebhookURL, payload, err)
	}
}

func (s *PetitionService) alert(ctx context.Context, webhookURL string, payload PetitionPayload, cause error) {
	if s.alerts == nil {
		return
	}
	endpoint := ""
	if u, err := url.Parse(webhookURL); err == nil {
		endpoint = u.Host
	}
	failure := notify.DeliveryFailure{
		CaseID:     payload.CaseID,
		UserID:     payload.UserID,
		Endpoint:   endpoint,
		Error:      cause.Error(),
		ErrorClass: obserrors.Classify(cause),
		OccurredAt: s.now().UTC(),
	}
	alertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), alertTimeout)
	go func() {
		defer cancel()
		s.alerts.NotifyDeliveryFailure(alertCtx, failure)
	}()
}

func (s *PetitionService) record(ctx context.Context, action model.UsageAction, caseID, userID string) {
	err := s.logs.Create(ctx, model.CreateUsageLogRequest{Action: action, CaseID: caseID, UserID: userID})
	if err != nil {
		s.logger.WarnContext(ctx, "failed to write usage log", "action", action, "error", err)
	}
}

// invalidInput classifies a request validation failure, keeping the offending field when known.
func invalidInput(err error) error {
	var fe *model.FieldError
	if errors.As(err, &fe) {
		return apperrors.ValidationField(fe.Field, fe.Message)
	}
	return apperrors.Validationf("%s", err.Error())
}
