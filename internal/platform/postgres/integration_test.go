//go:build integration

package postgres_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-assess/internal/domain"
	"github.com/phrazzld/scry-assess/internal/platform/postgres"
	"github.com/phrazzld/scry-assess/internal/store"
	"github.com/phrazzld/scry-assess/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedQuestion(t *testing.T, tx *sql.Tx, code string) (skillID, questionID int64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, tx.QueryRowContext(ctx,
		`INSERT INTO skills (code, name, category) VALUES ($1, $2, 'grammar') RETURNING id`,
		code, "Skill "+code).Scan(&skillID))
	require.NoError(t, tx.QueryRowContext(ctx,
		`INSERT INTO questions (skill_id, category, difficulty, certification_code, content, correct_answer)
		 VALUES ($1, 'grammar', 0.4, 'TOEIC', '{"prompt":"x"}', '"a"') RETURNING id`,
		skillID).Scan(&questionID))
	return skillID, questionID
}

func TestIntegrationCatalogAndCards(t *testing.T) {
	db := testdb.OpenTestDatabase(t)

	testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
		ctx := context.Background()
		skillID, questionID := seedQuestion(t, tx, "IT-"+uuid.NewString()[:8])

		catalog := postgres.NewPostgresCatalogStore(tx, nil)
		q, err := catalog.SampleUnseen(ctx, skillID, nil, "TOEIC")
		require.NoError(t, err)
		assert.Equal(t, questionID, q.ID)
		assert.JSONEq(t, `"a"`, string(q.CorrectAnswer))

		_, err = catalog.SampleUnseen(ctx, skillID, []int64{questionID}, "")
		assert.ErrorIs(t, err, store.ErrQuestionNotFound)

		cards := postgres.NewPostgresCardStore(tx, nil)
		userID := uuid.New()
		now := time.Now().UTC().Truncate(time.Microsecond)
		card, err := domain.NewRepetitionCard(userID, questionID, skillID, now)
		require.NoError(t, err)
		require.NoError(t, cards.Create(ctx, card))
		assert.ErrorIs(t, cards.Create(ctx, card), store.ErrCardExists)

		got, err := cards.GetByQuestion(ctx, userID, questionID)
		require.NoError(t, err)
		assert.Equal(t, card.ID, got.ID)

		updated := got.Clone()
		updated.SyncVersion = got.SyncVersion + 1
		updated.IntervalDays = 1
		require.NoError(t, cards.UpdateIfVersion(ctx, updated, got.SyncVersion))
		assert.ErrorIs(t, cards.UpdateIfVersion(ctx, updated, got.SyncVersion), store.ErrVersionConflict)

		due, total, err := cards.ListDue(ctx, userID, now.Add(48*time.Hour), store.Page{Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		assert.Len(t, due, 1)
	})
}

func TestIntegrationMasteryUpsert(t *testing.T) {
	db := testdb.OpenTestDatabase(t)

	testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
		ctx := context.Background()
		skillID, _ := seedQuestion(t, tx, "IT-"+uuid.NewString()[:8])
		masteries := postgres.NewPostgresMasteryStore(tx, nil)

		userID := uuid.New()
		now := time.Now().UTC().Truncate(time.Microsecond)
		m, err := domain.NewSkillMastery(userID, skillID, now)
		require.NoError(t, err)
		require.NoError(t, masteries.Upsert(ctx, m))

		m.Attempts, m.CorrectCount, m.MasteryLevel, m.Confidence = 1, 1, 0.6, 0.17
		require.NoError(t, masteries.Upsert(ctx, m))

		got, err := masteries.GetForUpdate(ctx, userID, skillID)
		require.NoError(t, err)
		assert.Equal(t, 1, got.Attempts)
		assert.InDelta(t, 0.6, got.MasteryLevel, 1e-9)

		_, err = masteries.Get(ctx, uuid.New(), skillID)
		assert.ErrorIs(t, err, store.ErrMasteryNotFound)
	})
}
