package data

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tribunal-ia/portal/internal/domain/model"
	"github.com/tribunal-ia/portal/internal/testutil"
)

func TestSettingsRepo_DefaultsThenSave(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := NewSettingsRepo(db, nil)

		got, err := repo.Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, model.DefaultMaxPetitionsPerUser, got.MaxPetitionsPerUser)
		assert.Empty(t, got.WebhookURL)

		saved, err := repo.Save(ctx, model.UpdateSettingsRequest{
			WebhookURL:          "https://hooks.example.com/n8n",
			MaxPetitionsPerUser: 10,
		})
		require.NoError(t, err)
		assert.Equal(t, 10, saved.MaxPetitionsPerUser)

		// Second save updates the same row.
		_, err = repo.Save(ctx, model.UpdateSettingsRequest{MaxPetitionsPerUser: 3, WebhookBodyExpr: "{id: case_id}"})
		require.NoError(t, err)
		got, err = repo.Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, got.MaxPetitionsPerUser)
		assert.Empty(t, got.WebhookURL)
		assert.Equal(t, "{id: case_id}", got.WebhookBodyExpr)

		var rows int
		require.NoError(t, db.QueryRowContext(ctx, `SELECT count(*) FROM settings`).Scan(&rows))
		assert.Equal(t, 1, rows)
	})
}

func TestUsageLogRepo_CreateList(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		clock := NewFixedTimeProvider(time.Now().UTC())
		repo := NewUsageLogRepo(db, clock)

		require.NoError(t, repo.Create(ctx, model.CreateUsageLogRequest{
			Action: model.ActionPetitionSubmitted, CaseID: "CASO_1_abc", UserID: "u-1",
		}))
		clock.AddTime(time.Second)
		require.NoError(t, repo.Create(ctx, model.CreateUsageLogRequest{Action: model.ActionSettingsUpdated}))
		assert.Error(t, repo.Create(ctx, model.CreateUsageLogRequest{}))

		all, err := repo.List(ctx, model.UsageLogsListOptions{Limit: 10})
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, model.ActionSettingsUpdated, all[0].Action)
		assert.Nil(t, all[0].CaseID)

		action := model.ActionPetitionSubmitted
		filtered, err := repo.List(ctx, model.UsageLogsListOptions{Action: &action})
		require.NoError(t, err)
		require.Len(t, filtered, 1)
		require.NotNil(t, filtered[0].CaseID)
		assert.Equal(t, "CASO_1_abc", *filtered[0].CaseID)
	})
}
