package data

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/tribunal-ia/portal/internal/data/pgxutil"
	"github.com/tribunal-ia/portal/internal/domain/model"
	apperrors "github.com/tribunal-ia/portal/internal/errors"
)

const settingsColumns = `webhook_url, max_petitions_per_user, webhook_body_expr, updated_at`

// SettingsRepo reads and writes the single settings row (id = 1).
type SettingsRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewSettingsRepo creates a new SettingsRepo. A nil TimeProvider uses the system clock.
func NewSettingsRepo(db *sql.DB, tp TimeProvider) *SettingsRepo {
	return &SettingsRepo{DB: db, timeProvider: timeProviderOrReal(tp)}
}

// Get returns the saved settings, or model.DefaultSettings when none were saved yet.
func (r *SettingsRepo) Get(ctx context.Context) (model.Settings, error) {
	var out model.Settings
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		var e error
		out, e = pgxutil.QueryOne[model.Settings](ctx, conn,
			`SELECT `+settingsColumns+` FROM settings WHERE id = 1`)
		return e
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return model.DefaultSettings(), nil
	}
	if err != nil {
		return model.Settings{}, apperrors.MapDBError(err)
	}
	return out, nil
}

// Save upserts the settings row.
func (r *SettingsRepo) Save(ctx context.Context, req model.UpdateSettingsRequest) (model.Settings, error) {
	var out model.Settings
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		var e error
		out, e = pgxutil.QueryOne[model.Settings](ctx, conn, `
			INSERT INTO settings (id, webhook_url, max_petitions_per_user, webhook_body_expr, updated_at)
			VALUES (1, $1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET
				webhook_url = EXCLUDED.webhook_url,
				max_petitions_per_user = EXCLUDED.max_petitions_per_user,
				webhook_body_expr = EXCLUDED.webhook_body_expr,
				updated_at = EXCLUDED.updated_at
			RETURNING `+settingsColumns,
			req.WebhookURL, req.MaxPetitionsPerUser, req.WebhookBodyExpr, r.timeProvider.Now(),
		)
		return e
	})
	if err != nil {
		return model.Settings{}, apperrors.MapDBError(err)
	}
	return out, nil
}
