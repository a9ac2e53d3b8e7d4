package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/tribunal-ia/portal/internal/domain/auth"
	"github.com/tribunal-ia/portal/internal/domain/model"
	apperrors "github.com/tribunal-ia/portal/internal/errors"
	"github.com/tribunal-ia/portal/internal/mocks"
	"github.com/tribunal-ia/portal/internal/observability/notify"
	"github.com/tribunal-ia/portal/internal/testutil"
	"go.uber.org/mock/gomock"
)

type petitionFixture struct {
	svc      *PetitionService
	cases    *mocks.MockCaseRepository
	settings *mocks.MockSettingsRepository
	profiles *fakeProfileRepo
	logs     *fakeUsageLogs
	webhook  *fakeWebhook
}

func newPetitionFixture(t *testing.T, seed ...domainauth.Profile) *petitionFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	f := &petitionFixture{
		cases:    mocks.NewMockCaseRepository(ctrl),
		settings: mocks.NewMockSettingsRepository(ctrl),
		profiles: newFakeProfileRepo(seed...),
		logs:     &fakeUsageLogs{},
		webhook:  &fakeWebhook{},
	}
	f.svc = NewPetitionService(PetitionServiceOptions{
		Repos: PetitionRepos{
			Cases:     f.cases,
			Profiles:  f.profiles,
			Settings:  f.settings,
			UsageLogs: f.logs,
		},
		Webhook: f.webhook,
		Config:  PetitionServiceConfig{Now: testutil.FixedTimeFunc(testutil.TestTime())},
	})
	return f
}

func validPetition() model.SubmitPetitionRequest {
	return model.SubmitPetitionRequest{
		Title:       "Cobrança indevida",
		Category:    "consumidor",
		Description: "Fui cobrado duas vezes pelo mesmo serviço de telefonia.",
	}
}

func createdCase(_ context.Context, req model.CreateCaseRequest) (*model.Case, error) {
	return &model.Case{
		ID:           "row-1",
		CaseID:       req.CaseID,
		OriginalText: req.OriginalText,
		UserID:       req.UserID,
		Status:       model.CaseStatusProcessing,
	}, nil
}

func TestNewPetitionService_PanicsWithoutRepos(t *testing.T) {
	assert.Panics(t, func() { NewPetitionService(PetitionServiceOptions{}) })
}

func TestPetitionService_Submit(t *testing.T) {
	user := testutil.NewProfile().WithID("u-1").WithPetitionsUsed(1).Build()
	f := newPetitionFixture(t, user)
	f.settings.EXPECT().Get(gomock.Any()).Return(model.Settings{
		WebhookURL:          "https://n8n.example.com/webhook/tribunal",
		MaxPetitionsPerUser: 5,
	}, nil)
	f.cases.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(createdCase)

	c, err := f.svc.Submit(context.Background(), &user, validPetition())
	require.NoError(t, err)
	assert.Regexp(t, `^CASO_\d+_[0-9a-z]{9}$`, c.CaseID)
	assert.Equal(t, model.CaseStatusProcessing, c.Status)
	assert.Contains(t, c.OriginalText, "Categoria: consumidor")

	// The counter advances by exactly one per accepted petition.
	p, err := f.profiles.GetByID(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, 2, p.PetitionsUsed)

	assert.Equal(t, []model.UsageAction{model.ActionPetitionSubmitted}, f.logs.actions())
	sent := f.webhook.payloads()
	require.Len(t, sent, 1)
	payload, ok := sent[0].(PetitionPayload)
	require.True(t, ok)
	assert.Equal(t, c.CaseID, payload.CaseID)
	assert.Equal(t, "u-1", payload.UserID)
	assert.Equal(t, testutil.TestTime(), payload.SubmittedAt)
}

func TestPetitionService_QuotaExceeded(t *testing.T) {
	user := testutil.NewProfile().WithID("u-1").WithPetitionsUsed(5).Build()
	f := newPetitionFixture(t, user)
	f.settings.EXPECT().Get(gomock.Any()).Return(model.Settings{MaxPetitionsPerUser: 5}, nil)

	_, err := f.svc.Submit(context.Background(), &user, validPetition())
	assert.True(t, apperrors.IsQuotaExceeded(err))
	assert.Empty(t, f.logs.actions())
	assert.Empty(t, f.webhook.payloads())
}

func TestPetitionService_QuotaUsesStoredCounter(t *testing.T) {
	stored := testutil.NewProfile().WithID("u-1").WithPetitionsUsed(3).Build()
	f := newPetitionFixture(t, stored)
	f.settings.EXPECT().Get(gomock.Any()).Return(model.Settings{MaxPetitionsPerUser: 3}, nil)

	// The caller's copy is stale; the stored counter decides.
	stale := stored
	stale.PetitionsUsed = 0
	_, err := f.svc.Submit(context.Background(), &stale, validPetition())
	assert.True(t, apperrors.IsQuotaExceeded(err))
}

func TestPetitionService_AdminsAreExempt(t *testing.T) {
	admin := testutil.NewProfile().WithID("a-1").AsAdmin().WithPetitionsUsed(50).Build()
	f := newPetitionFixture(t, admin)
	f.settings.EXPECT().Get(gomock.Any()).Return(model.Settings{MaxPetitionsPerUser: 5}, nil)
	f.cases.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(createdCase)

	_, err := f.svc.Submit(context.Background(), &admin, validPetition())
	require.NoError(t, err)
}

func TestPetitionService_Validation(t *testing.T) {
	user := testutil.NewProfile().WithID("u-1").Build()
	f := newPetitionFixture(t, user)

	req := validPetition()
	req.Category = "astrologia"
	_, err := f.svc.Submit(context.Background(), &user, req)
	assert.True(t, apperrors.IsValidation(err))
	assert.Equal(t, "category", apperrors.GetField(err))

	_, err = f.svc.Submit(context.Background(), nil, validPetition())
	assert.True(t, apperrors.IsForbidden(err))
}

func TestPetitionService_WebhookFailureKeepsCase(t *testing.T) {
	user := testutil.NewProfile().WithID("u-1").Build()
	f := newPetitionFixture(t, user)
	f.webhook.err = errors.New("connection refused")
	f.settings.EXPECT().Get(gomock.Any()).Return(model.Settings{
		WebhookURL:          "https://n8n.example.com/webhook/tribunal",
		MaxPetitionsPerUser: 5,
	}, nil)
	f.cases.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(createdCase)

	c, err := f.svc.Submit(context.Background(), &user, validPetition())
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, []model.UsageAction{model.ActionPetitionSubmitted, model.ActionWebhookFailed}, f.logs.actions())
}

type alertFunc func(ctx context.Context, payload notify.DeliveryFailure)

func (f alertFunc) NotifyDeliveryFailure(ctx context.Context, payload notify.DeliveryFailure) {
	f(ctx, payload)
}

func TestPetitionService_WebhookFailureAlertsOperators(t *testing.T) {
	user := testutil.NewProfile().WithID("u-1").Build()
	f := newPetitionFixture(t, user)
	f.webhook.err = errors.New("connection refused")
	alerts := make(chan notify.DeliveryFailure, 1)
	f.svc.alerts = alertFunc(func(ctx context.Context, p notify.DeliveryFailure) {
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		alerts <- p
	})
	f.settings.EXPECT().Get(gomock.Any()).Return(model.Settings{
		WebhookURL:          "https://n8n.example.com/webhook/tribunal",
		MaxPetitionsPerUser: 5,
	}, nil)
	f.cases.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(createdCase)

	ctx, cancel := context.WithCancel(context.Background())
	c, err := f.svc.Submit(ctx, &user, validPetition())
	cancel()
	require.NoError(t, err)

	select {
	case got := <-alerts:
		assert.Equal(t, c.CaseID, got.CaseID)
		assert.Equal(t, "u-1", got.UserID)
		assert.Equal(t, "n8n.example.com", got.Endpoint)
		assert.Equal(t, "connection refused", got.Error)
		assert.NotEmpty(t, got.ErrorClass)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a delivery failure alert")
	}
}

func TestPetitionService_NoWebhookConfigured(t *testing.T) {
	user := testutil.NewProfile().WithID("u-1").Build()
	f := newPetitionFixture(t, user)
	f.settings.EXPECT().Get(gomock.Any()).Return(model.DefaultSettings(), nil)
	f.cases.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(createdCase)

	_, err := f.svc.Submit(context.Background(), &user, validPetition())
	require.NoError(t, err)
	assert.Empty(t, f.webhook.payloads())
}

func TestPetitionService_CreateFailureLeavesCounter(t *testing.T) {
	user := testutil.NewProfile().WithID("u-1").Build()
	f := newPetitionFixture(t, user)
	f.settings.EXPECT().Get(gomock.Any()).Return(model.DefaultSettings(), nil)
	f.cases.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil, errors.New("insert failed"))

	_, err := f.svc.Submit(context.Background(), &user, validPetition())
	require.Error(t, err)
	p, _ := f.profiles.GetByID(context.Background(), "u-1")
	assert.Equal(t, 0, p.PetitionsUsed)
}
