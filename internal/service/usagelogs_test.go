package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tribunal-ia/portal/internal/domain/model"
	"github.com/tribunal-ia/portal/internal/mocks"
	"go.uber.org/mock/gomock"
)

func TestUsageLogService_List(t *testing.T) {
	action := model.ActionWebhookFailed

	tests := []struct {
		name      string
		opts      model.UsageLogsListOptions
		wantLimit int
		wantOff   int
		repoErr   error
	}{
		{name: "defaults", opts: model.UsageLogsListOptions{}, wantLimit: defaultUsageLogLimit},
		{name: "clamps limit", opts: model.UsageLogsListOptions{Limit: 5000, Offset: -3}, wantLimit: maxUsageLogLimit},
		{name: "keeps filter", opts: model.UsageLogsListOptions{Limit: 10, Offset: 20, Action: &action}, wantLimit: 10, wantOff: 20},
		{name: "repository error", opts: model.UsageLogsListOptions{}, wantLimit: defaultUsageLogLimit, repoErr: errors.New("boom")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			repo := mocks.NewMockUsageLogRepository(ctrl)
			repo.EXPECT().List(gomock.Any(), gomock.Any()).DoAndReturn(
				func(_ context.Context, opts model.UsageLogsListOptions) ([]*model.UsageLog, error) {
					assert.Equal(t, tt.wantLimit, opts.Limit)
					assert.Equal(t, tt.wantOff, opts.Offset)
					assert.Equal(t, tt.opts.Action, opts.Action)
					return []*model.UsageLog{{ID: "1", Action: model.ActionPetitionSubmitted}}, tt.repoErr
				})

			logs, err := NewUsageLogService(repo).List(context.Background(), tt.opts)
			if tt.repoErr != nil {
				require.ErrorIs(t, err, tt.repoErr)
				return
			}
			require.NoError(t, err)
			assert.Len(t, logs, 1)
		})
	}
}

func TestNewUsageLogService_PanicsWithoutRepo(t *testing.T) {
	assert.Panics(t, func() { NewUsageLogService(nil) })
}
