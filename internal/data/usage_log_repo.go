package data

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/tribunal-ia/portal/internal/data/pgxutil"
	"github.com/tribunal-ia/portal/internal/domain/model"
	apperrors "github.com/tribunal-ia/portal/internal/errors"
)

// UsageLogRepo appends and lists usage log rows.
type UsageLogRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewUsageLogRepo creates a new UsageLogRepo. A nil TimeProvider uses the system clock.
func NewUsageLogRepo(db *sql.DB, tp TimeProvider) *UsageLogRepo {
	return &UsageLogRepo{DB: db, timeProvider: timeProviderOrReal(tp)}
}

// Create appends one entry. Empty CaseID/UserID are stored as NULL.
func (r *UsageLogRepo) Create(ctx context.Context, req model.CreateUsageLogRequest) error {
	if req.Action == "" {
		return apperrors.ValidationField("action", "action is required")
	}
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		_, e := conn.Exec(ctx, `
			INSERT INTO usage_logs (id, action, case_id, user_id, occurred_at)
			VALUES ($1, $2, $3, $4, $5)`,
			uuid.NewString(), string(req.Action), nullIfEmpty(req.CaseID), nullIfEmpty(req.UserID), r.timeProvider.Now(),
		)
		return e
	})
	if err != nil {
		return apperrors.MapDBError(err)
	}
	return nil
}

// List returns entries newest first, optionally filtered by action.
func (r *UsageLogRepo) List(ctx context.Context, opts model.UsageLogsListOptions) ([]*model.UsageLog, error) {
	limit, offset := normalizePage(opts.Limit, opts.Offset)
	query := `SELECT id, action, case_id, user_id, occurred_at FROM usage_logs`
	args := []any{limit, offset}
	if opts.Action != nil {
		query += ` WHERE action = $3`
		args = append(args, string(*opts.Action))
	}
	query += ` ORDER BY occurred_at DESC, id LIMIT $1 OFFSET $2`

	var out []*model.UsageLog
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		var e error
		out, e = pgxutil.QueryAll[model.UsageLog](ctx, conn, query, args...)
		return e
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list usage logs: %w", apperrors.MapDBError(err))
	}
	return out, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
