package postgres_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/phrazzld/scry-assess/internal/domain"
	"github.com/phrazzld/scry-assess/internal/platform/postgres"
	"github.com/phrazzld/scry-assess/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var masteryRowColumns = []string{
	"user_id", "skill_id", "mastery_level", "confidence", "attempts", "correct_count",
	"streak", "last_practiced_at", "created_at", "updated_at",
}

func TestMasteryStoreGet(t *testing.T) {
	t.Parallel()
	db, mock := newMock(t)
	s := postgres.NewPostgresMasteryStore(db, nil)
	userID := uuid.New()
	now := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM skill_masteries WHERE user_id = \\$1 AND skill_id = \\$2$").
		WithArgs(userID, int64(3)).
		WillReturnRows(sqlmock.NewRows(masteryRowColumns).
			AddRow(userID.String(), 3, 0.65, 0.5, 5, 4, 2, now, now, now))

	m, err := s.Get(context.Background(), userID, 3)
	require.NoError(t, err)
	assert.InDelta(t, 0.65, m.MasteryLevel, 1e-9)
	assert.Equal(t, 5, m.Attempts)
	require.NotNil(t, m.LastPracticedAt)
	assert.True(t, now.Equal(*m.LastPracticedAt))

	mock.ExpectQuery("FOR UPDATE").
		WithArgs(userID, int64(4)).
		WillReturnError(sql.ErrNoRows)
	_, err = s.GetForUpdate(context.Background(), userID, 4)
	assert.ErrorIs(t, err, store.ErrMasteryNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMasteryStoreListForSkills(t *testing.T) {
	t.Parallel()
	db, mock := newMock(t)
	s := postgres.NewPostgresMasteryStore(db, nil)
	userID := uuid.New()
	now := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`skill_id IN \(\$2, \$3\)`).
		WithArgs(userID, int64(1), int64(2)).
		WillReturnRows(sqlmock.NewRows(masteryRowColumns).
			AddRow(userID.String(), 2, 0.4, 0.2, 1, 0, 0, nil, now, now))

	got, err := s.ListForSkills(context.Background(), userID, []int64{1, 2})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Nil(t, got[2].LastPracticedAt)

	empty, err := s.ListForSkills(context.Background(), userID, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMasteryStoreUpsert(t *testing.T) {
	t.Parallel()
	db, mock := newMock(t)
	s := postgres.NewPostgresMasteryStore(db, nil)
	now := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	m, err := domain.NewSkillMastery(uuid.New(), 9, now)
	require.NoError(t, err)

	mock.ExpectExec("ON CONFLICT \\(user_id, skill_id\\) DO UPDATE").
		WithArgs(m.UserID, int64(9), 0.5, 0.0, 0, 0, 0, nil, now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.Upsert(context.Background(), m))

	bad := *m
	bad.MasteryLevel = 1.5
	assert.ErrorIs(t, s.Upsert(context.Background(), &bad), store.ErrInvalidEntity)

	assert.NoError(t, mock.ExpectationsWereMet())
}
