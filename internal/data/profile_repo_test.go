package data

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/tribunal-ia/portal/internal/domain/auth"
	apperrors "github.com/tribunal-ia/portal/internal/errors"
	"github.com/tribunal-ia/portal/internal/testutil"
)

func createTestProfile(t *testing.T, db *sql.DB, b *testutil.ProfileBuilder) *domainauth.Profile {
	t.Helper()
	p, err := NewProfileRepo(db, nil).Create(context.Background(), b.Build())
	require.NoError(t, err)
	return p
}

func TestProfileRepo_CreateGetList(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := NewProfileRepo(db, NewFixedTimeProvider(testutil.TestTime()))

		in := testutil.NewProfile().WithEmail("ana@example.com").Build()
		created, err := repo.Create(ctx, in)
		require.NoError(t, err)
		assert.Equal(t, in.ID, created.ID)
		assert.Equal(t, domainauth.RoleUser, created.Role)
		assert.Equal(t, 0, created.PetitionsUsed)
		assert.True(t, created.CreatedAt.Equal(testutil.TestTime()))

		got, err := repo.GetByID(ctx, in.ID)
		require.NoError(t, err)
		assert.Equal(t, "ana@example.com", got.Email)

		list, err := repo.List(ctx, 10, 0)
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})
}

func TestProfileRepo_GetByID_NotFound(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		_, err := NewProfileRepo(db, nil).GetByID(context.Background(), "missing")
		require.Error(t, err)
		assert.True(t, domainauth.IsProfileNotFound(err))
	})
}

func TestProfileRepo_Create_DuplicateIsConflict(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := NewProfileRepo(db, nil)
		p := testutil.NewProfile().Build()

		_, err := repo.Create(ctx, p)
		require.NoError(t, err)

		_, err = repo.Create(ctx, p)
		require.Error(t, err)
		assert.True(t, domainauth.IsProfileConflict(err))
	})
}

// Concurrent inserts for one identity leave exactly one row; the losers see a conflict.
func TestProfileRepo_Create_ConcurrentSingleRow(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := NewProfileRepo(db, nil)
		p := testutil.NewProfile().Build()

		const n = 8
		var wg sync.WaitGroup
		errs := make([]error, n)
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, errs[i] = repo.Create(ctx, p)
			}()
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			assert.True(t, domainauth.IsProfileConflict(err), "unexpected error: %v", err)
		}
		assert.Equal(t, 1, succeeded)

		var count int
		require.NoError(t, db.QueryRowContext(ctx, `SELECT count(*) FROM users WHERE id = $1`, p.ID).Scan(&count))
		assert.Equal(t, 1, count)
	})
}

func TestProfileRepo_RoleAndCounter(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := NewProfileRepo(db, nil)
		p := createTestProfile(t, db, testutil.NewProfile())

		updated, err := repo.SetRole(ctx, p.ID, domainauth.RoleAdmin)
		require.NoError(t, err)
		assert.Equal(t, domainauth.RoleAdmin, updated.Role)

		_, err = repo.SetRole(ctx, p.ID, domainauth.Role("superuser"))
		assert.True(t, apperrors.IsValidation(err))

		for range 3 {
			_, err = repo.IncrementPetitions(ctx, p.ID)
			require.NoError(t, err)
		}
		got, err := repo.GetByID(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, got.PetitionsUsed)
		assert.Equal(t, domainauth.RoleAdmin, got.Role, "counter updates never touch the role")

		reset, err := repo.ResetPetitions(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, reset.PetitionsUsed)

		_, err = repo.IncrementPetitions(ctx, "missing")
		assert.True(t, apperrors.IsNotFound(err))
	})
}

func TestProfileRepo_DeleteCascadesCases(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := NewProfileRepo(db, nil)
		p := createTestProfile(t, db, testutil.NewProfile())
		c := createTestCase(t, db, p.ID)
		insertTestAnalysis(t, db, c.CaseID)

		require.NoError(t, repo.Delete(ctx, p.ID))

		_, err := repo.GetByID(ctx, p.ID)
		assert.True(t, domainauth.IsProfileNotFound(err))
		_, err = NewCaseRepo(db, nil).GetByCaseID(ctx, c.CaseID)
		assert.True(t, apperrors.IsNotFound(err))

		assert.True(t, apperrors.IsNotFound(repo.Delete(ctx, p.ID)))
	})
}
