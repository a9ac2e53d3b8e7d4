package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/tribunal-ia/portal/internal/data/pgxutil"
	"github.com/tribunal-ia/portal/internal/domain/model"
	apperrors "github.com/tribunal-ia/portal/internal/errors"
)

const caseColumns = `id, case_id, original_text, user_id, status, created_at, completed_at`

// CaseRepo provides database operations for cases and the workflow results attached to them.
type CaseRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewCaseRepo creates a new CaseRepo. A nil TimeProvider uses the system clock.
func NewCaseRepo(db *sql.DB, tp TimeProvider) *CaseRepo {
	return &CaseRepo{DB: db, timeProvider: timeProviderOrReal(tp)}
}

// Create inserts a case in the processing state.
func (r *CaseRepo) Create(ctx context.Context, req model.CreateCaseRequest) (*model.Case, error) {
	if req.CaseID == "" || req.UserID == "" {
		return nil, apperrors.Validationf("case_id and user_id are required")
	}
	var out model.Case
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		var e error
		out, e = pgxutil.QueryOne[model.Case](ctx, conn, `
			INSERT INTO cases (id, case_id, original_text, user_id, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING `+caseColumns,
			uuid.NewString(), req.CaseID, req.OriginalText, req.UserID,
			string(model.CaseStatusProcessing), r.timeProvider.Now(),
		)
		return e
	})
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return &out, nil
}

// GetByCaseID returns the case with the public identifier caseID.
func (r *CaseRepo) GetByCaseID(ctx context.Context, caseID string) (*model.Case, error) {
	var out model.Case
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		var e error
		out, e = pgxutil.QueryOne[model.Case](ctx, conn,
			`SELECT `+caseColumns+` FROM cases WHERE case_id = $1`, caseID)
		return e
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFoundf("case %s not found", caseID)
	}
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return &out, nil
}

// List returns cases newest first, optionally filtered by owner and status.
func (r *CaseRepo) List(ctx context.Context, opts model.CasesListOptions) ([]*model.Case, error) {
	limit, offset := normalizePage(opts.Limit, opts.Offset)

	var where []string
	var args []any
	if opts.UserID != nil {
		args = append(args, *opts.UserID)
		where = append(where, "user_id = $"+strconv.Itoa(len(args)))
	}
	if opts.Status != nil {
		if !opts.Status.Valid() {
			return nil, apperrors.ValidationField("status", "unknown case status")
		}
		args = append(args, string(*opts.Status))
		where = append(where, "status = $"+strconv.Itoa(len(args)))
	}

	var sb strings.Builder
	sb.WriteString(`SELECT ` + caseColumns + ` FROM cases`)
	if len(where) > 0 {
		sb.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	args = append(args, limit, offset)
	fmt.Fprintf(&sb, " ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	var out []*model.Case
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		var e error
		out, e = pgxutil.QueryAll[model.Case](ctx, conn, sb.String(), args...)
		return e
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list cases: %w", apperrors.MapDBError(err))
	}
	return out, nil
}

// Detail returns the case with every result the workflow has written so far.
// Interactions are ordered by debate round; the newest sentence and report win.
func (r *CaseRepo) Detail(ctx context.Context, caseID string) (*model.CaseDetail, error) {
	var d model.CaseDetail
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		c, err := pgxutil.QueryOne[model.Case](ctx, conn,
			`SELECT `+caseColumns+` FROM cases WHERE case_id = $1`, caseID)
		if err != nil {
			return err
		}
		d.Case = c

		analyses, err := pgxutil.QueryAll[model.CaseAnalysis](ctx, conn, `
			SELECT id, case_id, content, created_at
			FROM case_analyses WHERE case_id = $1 ORDER BY created_at`, caseID)
		if err != nil {
			return fmt.Errorf("load analyses: %w", err)
		}
		d.Analyses = derefAll(analyses)

		interactions, err := pgxutil.QueryAll[model.CaseInteraction](ctx, conn, `
			SELECT id, case_id, agent, round, kind, content, created_at
			FROM case_interactions WHERE case_id = $1 ORDER BY round, created_at`, caseID)
		if err != nil {
			return fmt.Errorf("load interactions: %w", err)
		}
		d.Interactions = derefAll(interactions)

		sentences, err := pgxutil.QueryAll[model.CaseSentence](ctx, conn, `
			SELECT id, case_id, judicial_analysis, final_sentence, created_at
			FROM case_sentences WHERE case_id = $1 ORDER BY created_at DESC LIMIT 1`, caseID)
		if err != nil {
			return fmt.Errorf("load sentence: %w", err)
		}
		if len(sentences) > 0 {
			d.Sentence = sentences[0]
		}

		reports, err := pgxutil.QueryAll[model.CaseReport](ctx, conn, `
			SELECT id, case_id, report, created_at
			FROM case_reports WHERE case_id = $1 ORDER BY created_at DESC LIMIT 1`, caseID)
		if err != nil {
			return fmt.Errorf("load report: %w", err)
		}
		if len(reports) > 0 {
			d.Report = reports[0]
		}
		return nil
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFoundf("case %s not found", caseID)
	}
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return &d, nil
}

// Delete removes the case after its dependent results, in one transaction.
func (r *CaseRepo) Delete(ctx context.Context, caseID string) error {
	var deleted int64
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{Fn: func(tx pgx.Tx) error {
		for _, table := range caseResultTables {
			if _, err := tx.Exec(ctx, `DELETE FROM `+table+` WHERE case_id = $1`, caseID); err != nil {
				return fmt.Errorf("delete %s: %w", table, err)
			}
		}
		tag, err := tx.Exec(ctx, `DELETE FROM cases WHERE case_id = $1`, caseID)
		if err != nil {
			return fmt.Errorf("delete case: %w", err)
		}
		deleted = tag.RowsAffected()
		return nil
	}})
	if err != nil {
		return apperrors.MapDBError(err)
	}
	if deleted == 0 {
		return apperrors.NotFoundf("case %s not found", caseID)
	}
	return nil
}

func derefAll[T any](in []*T) []T {
	out := make([]T, 0, len(in))
	for _, p := range in {
		out = append(out, *p)
	}
	return out
}
