package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/tribunal-ia/portal/internal/data/pgxutil"
	domainauth "github.com/tribunal-ia/portal/internal/domain/auth"
	apperrors "github.com/tribunal-ia/portal/internal/errors"
)

const profileColumns = `id, email, display_name, role, petitions_used, created_at, updated_at`

// caseResultTables lists the tables holding workflow output keyed by case_id.
var caseResultTables = []string{"case_analyses", "case_interactions", "case_sentences", "case_reports"}

// ProfileRepo provides database operations for user profiles.
type ProfileRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewProfileRepo creates a new ProfileRepo. A nil TimeProvider uses the system clock.
func NewProfileRepo(db *sql.DB, tp TimeProvider) *ProfileRepo {
	return &ProfileRepo{DB: db, timeProvider: timeProviderOrReal(tp)}
}

// GetByID returns the profile for id. A missing row yields a *domainauth.ProfileLookupError with NotFound set.
func (r *ProfileRepo) GetByID(ctx context.Context, id string) (*domainauth.Profile, error) {
	var out domainauth.Profile
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		var e error
		out, e = pgxutil.QueryOne[domainauth.Profile](ctx, conn,
			`SELECT `+profileColumns+` FROM users WHERE id = $1`, id)
		return e
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domainauth.ProfileLookupError{UserID: id, NotFound: true, Err: err}
	}
	if err != nil {
		return nil, &domainauth.ProfileLookupError{UserID: id, Err: apperrors.MapDBError(err)}
	}
	return &out, nil
}

// Create inserts p. A duplicate id yields a *domainauth.ProfileWriteError with Conflict set.
func (r *ProfileRepo) Create(ctx context.Context, p domainauth.Profile) (*domainauth.Profile, error) {
	if strings.TrimSpace(p.ID) == "" {
		return nil, &domainauth.ProfileWriteError{Err: errors.New("profile id is required")}
	}
	if !p.Role.Valid() {
		p.Role = domainauth.RoleUser
	}
	now := r.timeProvider.Now()

	var out domainauth.Profile
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		var e error
		out, e = pgxutil.QueryOne[domainauth.Profile](ctx, conn, `
			INSERT INTO users (id, email, display_name, role, petitions_used, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $6)
			RETURNING `+profileColumns,
			p.ID, p.Email, p.DisplayName, string(p.Role), p.PetitionsUsed, now,
		)
		return e
	})
	if err != nil {
		if apperrors.IsUniqueViolation(err) {
			return nil, &domainauth.ProfileWriteError{UserID: p.ID, Conflict: true, Err: err}
		}
		return nil, &domainauth.ProfileWriteError{UserID: p.ID, Err: apperrors.MapDBError(err)}
	}
	return &out, nil
}

// List returns profiles, newest first.
func (r *ProfileRepo) List(ctx context.Context, limit, offset int) ([]*domainauth.Profile, error) {
	limit, offset = normalizePage(limit, offset)
	var out []*domainauth.Profile
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		var e error
		out, e = pgxutil.QueryAll[domainauth.Profile](ctx, conn,
			`SELECT `+profileColumns+` FROM users ORDER BY created_at DESC, id LIMIT $1 OFFSET $2`,
			limit, offset)
		return e
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", apperrors.MapDBError(err))
	}
	return out, nil
}

// SetRole changes the role of id.
func (r *ProfileRepo) SetRole(ctx context.Context, id string, role domainauth.Role) (*domainauth.Profile, error) {
	if !role.Valid() {
		return nil, apperrors.ValidationField("role", "role must be admin or user")
	}
	return r.update(ctx, `role = $2`, id, string(role))
}

// IncrementPetitions adds one to the usage counter atomically.
func (r *ProfileRepo) IncrementPetitions(ctx context.Context, id string) (*domainauth.Profile, error) {
	return r.update(ctx, `petitions_used = petitions_used + 1`, id)
}

// ResetPetitions sets the usage counter back to zero.
func (r *ProfileRepo) ResetPetitions(ctx context.Context, id string) (*domainauth.Profile, error) {
	return r.update(ctx, `petitions_used = 0`, id)
}

// update applies setClause to the row with id. setClause parameters start at $2;
// the updated_at timestamp is appended as the last parameter.
func (r *ProfileRepo) update(ctx context.Context, setClause, id string, args ...any) (*domainauth.Profile, error) {
	params := append([]any{id}, args...)
	params = append(params, r.timeProvider.Now())
	query := fmt.Sprintf(`UPDATE users SET %s, updated_at = $%d WHERE id = $1 RETURNING %s`,
		setClause, len(params), profileColumns)

	var out domainauth.Profile
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		var e error
		out, e = pgxutil.QueryOne[domainauth.Profile](ctx, conn, query, params...)
		return e
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFoundf("user %s not found", id)
	}
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return &out, nil
}

// Delete removes the profile after its cases and their results, in one transaction.
func (r *ProfileRepo) Delete(ctx context.Context, id string) error {
	var deleted int64
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{Fn: func(tx pgx.Tx) error {
		for _, table := range caseResultTables {
			// Table names come from the fixed list above.
			if _, err := tx.Exec(ctx,
				`DELETE FROM `+table+` WHERE case_id IN (SELECT case_id FROM cases WHERE user_id = $1)`, id,
			); err != nil {
				return fmt.Errorf("delete %s: %w", table, err)
			}
		}
		if _, err := tx.Exec(ctx, `DELETE FROM cases WHERE user_id = $1`, id); err != nil {
			return fmt.Errorf("delete cases: %w", err)
		}
		tag, err := tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		deleted = tag.RowsAffected()
		return nil
	}})
	if err != nil {
		return apperrors.MapDBError(err)
	}
	if deleted == 0 {
		return apperrors.NotFoundf("user %s not found", id)
	}
	return nil
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	return limit, max(offset, 0)
}
