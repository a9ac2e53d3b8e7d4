package data

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tribunal-ia/portal/internal/domain/model"
	apperrors "github.com/tribunal-ia/portal/internal/errors"
	"github.com/tribunal-ia/portal/internal/testutil"
)

func createTestCase(t *testing.T, db *sql.DB, userID string) *model.Case {
	t.Helper()
	c, err := NewCaseRepo(db, nil).Create(context.Background(), testutil.NewCaseRequest(userID).Build())
	require.NoError(t, err)
	return c
}

func insertTestAnalysis(t *testing.T, db *sql.DB, caseID string) {
	t.Helper()
	_, err := db.ExecContext(context.Background(),
		`INSERT INTO case_analyses (case_id, content) VALUES ($1, 'analise inicial')`, caseID)
	require.NoError(t, err)
}

func TestCaseRepo_CreateAndGet(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		p := createTestProfile(t, db, testutil.NewProfile())
		repo := NewCaseRepo(db, nil)

		req := testutil.NewCaseRequest(p.ID).Build()
		c, err := repo.Create(ctx, req)
		require.NoError(t, err)
		assert.NotEmpty(t, c.ID)
		assert.Equal(t, req.CaseID, c.CaseID)
		assert.Equal(t, model.CaseStatusProcessing, c.Status)
		assert.Nil(t, c.CompletedAt)

		got, err := repo.GetByCaseID(ctx, req.CaseID)
		require.NoError(t, err)
		assert.Equal(t, c.ID, got.ID)

		_, err = repo.Create(ctx, req)
		assert.True(t, apperrors.IsConflict(err))
		assert.Equal(t, "case_id", apperrors.GetField(err))

		_, err = repo.GetByCaseID(ctx, "CASO_missing")
		assert.True(t, apperrors.IsNotFound(err))
	})
}

func TestCaseRepo_ListFilters(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		a := createTestProfile(t, db, testutil.NewProfile())
		b := createTestProfile(t, db, testutil.NewProfile())

		base := time.Now().UTC()
		clock := NewFixedTimeProvider(base)
		repo := NewCaseRepo(db, clock)
		for range 3 {
			clock.AddTime(time.Second)
			_, err := repo.Create(ctx, testutil.NewCaseRequest(a.ID).Build())
			require.NoError(t, err)
		}
		other, err := repo.Create(ctx, testutil.NewCaseRequest(b.ID).Build())
		require.NoError(t, err)
		_, err = db.ExecContext(ctx, `UPDATE cases SET status = 'completed' WHERE case_id = $1`, other.CaseID)
		require.NoError(t, err)

		own, err := repo.List(ctx, model.CasesListOptions{UserID: &a.ID, Limit: 10})
		require.NoError(t, err)
		require.Len(t, own, 3)
		assert.True(t, own[0].CreatedAt.After(own[2].CreatedAt), "newest first")

		page, err := repo.List(ctx, model.CasesListOptions{UserID: &a.ID, Limit: 2, Offset: 2})
		require.NoError(t, err)
		assert.Len(t, page, 1)

		completed := model.CaseStatusCompleted
		done, err := repo.List(ctx, model.CasesListOptions{Status: &completed})
		require.NoError(t, err)
		require.Len(t, done, 1)
		assert.Equal(t, other.CaseID, done[0].CaseID)

		bad := model.CaseStatus("archived")
		_, err = repo.List(ctx, model.CasesListOptions{Status: &bad})
		assert.True(t, apperrors.IsValidation(err))
	})
}

func TestCaseRepo_DetailAndDelete(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		p := createTestProfile(t, db, testutil.NewProfile())
		c := createTestCase(t, db, p.ID)
		repo := NewCaseRepo(db, nil)

		insertTestAnalysis(t, db, c.CaseID)
		_, err := db.ExecContext(ctx, `
			INSERT INTO case_interactions (case_id, agent, round, kind, content) VALUES
				($1, 'defesa', 2, 'replica', 'segunda'),
				($1, 'acusacao', 1, 'argumento', 'primeira')`, c.CaseID)
		require.NoError(t, err)
		_, err = db.ExecContext(ctx,
			`INSERT INTO case_sentences (case_id, judicial_analysis, final_sentence) VALUES ($1, 'analise', 'procedente')`,
			c.CaseID)
		require.NoError(t, err)

		d, err := repo.Detail(ctx, c.CaseID)
		require.NoError(t, err)
		assert.Equal(t, c.CaseID, d.Case.CaseID)
		assert.Len(t, d.Analyses, 1)
		require.Len(t, d.Interactions, 2)
		assert.Equal(t, 1, d.Interactions[0].Round)
		require.NotNil(t, d.Sentence)
		assert.Equal(t, "procedente", d.Sentence.FinalSentence)
		assert.Nil(t, d.Report)

		require.NoError(t, repo.Delete(ctx, c.CaseID))
		_, err = repo.Detail(ctx, c.CaseID)
		assert.True(t, apperrors.IsNotFound(err))
		assert.True(t, apperrors.IsNotFound(repo.Delete(ctx, c.CaseID)))
	})
}
