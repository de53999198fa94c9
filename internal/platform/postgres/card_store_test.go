package postgres_test

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/phrazzld/scry-assess/internal/domain"
	"github.com/phrazzld/scry-assess/internal/platform/postgres"
	"github.com/phrazzld/scry-assess/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var cardRowColumns = []string{
	"id", "user_id", "question_id", "skill_id", "certification_code", "client_id",
	"ease_factor", "interval_days", "repetitions", "status", "status_before_suspend",
	"total_reviews", "correct_reviews", "last_quality", "streak", "quality_history",
	"next_review_at", "last_reviewed_at", "sync_version", "created_at", "updated_at",
}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func testCard(t *testing.T) *domain.RepetitionCard {
	t.Helper()
	now := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	c, err := domain.NewRepetitionCard(uuid.New(), 42, 7, now)
	require.NoError(t, err)
	return c
}

func cardRow(c *domain.RepetitionCard, history string) []driver.Value {
	var lastQuality any
	if c.LastQuality != nil {
		lastQuality = int64(*c.LastQuality)
	}
	var lastReviewed any
	if c.LastReviewedAt != nil {
		lastReviewed = *c.LastReviewedAt
	}
	var before any
	if c.StatusBeforeSuspend != nil {
		before = string(*c.StatusBeforeSuspend)
	}
	return []driver.Value{
		c.ID.String(), c.UserID.String(), c.QuestionID, c.SkillID, nil, nil,
		c.EaseFactor, int64(c.IntervalDays), int64(c.Repetitions), string(c.Status), before,
		int64(c.TotalReviews), int64(c.CorrectReviews), lastQuality, int64(c.Streak), []byte(history),
		c.NextReviewAt, lastReviewed, int64(c.SyncVersion), c.CreatedAt, c.UpdatedAt,
	}
}

func TestCardStoreCreate(t *testing.T) {
	t.Parallel()
	db, mock := newMock(t)
	s := postgres.NewPostgresCardStore(db, nil)
	card := testCard(t)

	mock.ExpectExec("INSERT INTO repetition_cards").WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.Create(context.Background(), card))

	mock.ExpectExec("INSERT INTO repetition_cards").
		WillReturnError(&pgconn.PgError{Code: "23505"})
	err := s.Create(context.Background(), card)
	assert.ErrorIs(t, err, store.ErrCardExists)
	assert.True(t, store.IsDuplicateError(err))

	invalid := card.Clone()
	invalid.EaseFactor = 1.0
	err = s.Create(context.Background(), invalid)
	assert.ErrorIs(t, err, store.ErrInvalidEntity)
	assert.ErrorIs(t, err, domain.ErrValidation)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCardStoreGetByID(t *testing.T) {
	t.Parallel()
	db, mock := newMock(t)
	s := postgres.NewPostgresCardStore(db, nil)

	card := testCard(t)
	q := 4
	card.LastQuality = &q
	reviewed := card.CreatedAt
	card.LastReviewedAt = &reviewed
	card.QualityHistory = []int{3, 4}

	mock.ExpectQuery("SELECT (.+) FROM repetition_cards WHERE id = ").
		WithArgs(card.ID).
		WillReturnRows(sqlmock.NewRows(cardRowColumns).AddRow(cardRow(card, "[3,4]")...))

	got, err := s.GetByID(context.Background(), card.ID)
	require.NoError(t, err)
	assert.Equal(t, card.ID, got.ID)
	assert.Equal(t, card.UserID, got.UserID)
	assert.Equal(t, domain.CardStatusNew, got.Status)
	assert.Equal(t, []int{3, 4}, got.QualityHistory)
	require.NotNil(t, got.LastQuality)
	assert.Equal(t, 4, *got.LastQuality)
	assert.Nil(t, got.StatusBeforeSuspend)
	assert.Empty(t, got.CertificationCode)

	mock.ExpectQuery("SELECT (.+) FROM repetition_cards WHERE id = ").
		WillReturnError(sql.ErrNoRows)
	_, err = s.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrCardNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCardStoreListDue(t *testing.T) {
	t.Parallel()
	db, mock := newMock(t)
	s := postgres.NewPostgresCardStore(db, nil)
	card := testCard(t)
	now := card.CreatedAt.Add(time.Hour)

	mock.ExpectQuery("SELECT COUNT").
		WithArgs(card.UserID, now).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery("ORDER BY next_review_at, id").
		WithArgs(card.UserID, now, 1, 2).
		WillReturnRows(sqlmock.NewRows(cardRowColumns).AddRow(cardRow(card, "[]")...))

	cards, total, err := s.ListDue(context.Background(), card.UserID, now, store.Page{Limit: 1, Offset: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, cards, 1)
	assert.Equal(t, []int{}, cards[0].QualityHistory)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCardStoreListByUserFilters(t *testing.T) {
	t.Parallel()
	db, mock := newMock(t)
	s := postgres.NewPostgresCardStore(db, nil)
	userID := uuid.New()
	status := domain.CardStatusReview

	mock.ExpectQuery(`AND status = \$2 AND certification_code = \$3`).
		WithArgs(userID, "REVIEW", "TOEIC").
		WillReturnRows(sqlmock.NewRows(cardRowColumns))

	cards, err := s.ListByUser(context.Background(), userID, store.CardFilter{Status: &status, CertificationCode: "TOEIC"})
	require.NoError(t, err)
	assert.Empty(t, cards)
	assert.NotNil(t, cards)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCardStoreUpdateIfVersion(t *testing.T) {
	t.Parallel()
	db, mock := newMock(t)
	s := postgres.NewPostgresCardStore(db, nil)
	card := testCard(t)
	card.SyncVersion = 3

	mock.ExpectExec("UPDATE repetition_cards SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.UpdateIfVersion(context.Background(), card, 2))

	// stale version: row exists but version moved on
	mock.ExpectExec("UPDATE repetition_cards SET").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(card.ID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	assert.ErrorIs(t, s.UpdateIfVersion(context.Background(), card, 2), store.ErrVersionConflict)

	// row gone
	mock.ExpectExec("UPDATE repetition_cards SET").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	assert.ErrorIs(t, s.UpdateIfVersion(context.Background(), card, 2), store.ErrCardNotFound)

	mock.ExpectExec("UPDATE repetition_cards SET").
		WillReturnError(errors.New("connection reset"))
	assert.Error(t, s.UpdateIfVersion(context.Background(), card, 2))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCardStoreDelete(t *testing.T) {
	t.Parallel()
	db, mock := newMock(t)
	s := postgres.NewPostgresCardStore(db, nil)
	id := uuid.New()

	mock.ExpectExec("DELETE FROM repetition_cards").WithArgs(id).WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.Delete(context.Background(), id))

	mock.ExpectExec("DELETE FROM repetition_cards").WithArgs(id).WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, s.Delete(context.Background(), id), store.ErrCardNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCardStoreCounts(t *testing.T) {
	t.Parallel()
	db, mock := newMock(t)
	s := postgres.NewPostgresCardStore(db, nil)
	userID := uuid.New()

	mock.ExpectQuery("GROUP BY status").
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"status", "count", "reviews", "correct", "ease"}).
			AddRow("NEW", 2, 0, 0, 5.0).
			AddRow("REVIEW", 2, 10, 8, 5.4))

	counts, err := s.Counts(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, 4, counts.Total)
	assert.Equal(t, 2, counts.ByStatus[domain.CardStatusReview])
	assert.Equal(t, 10, counts.TotalReviews)
	assert.Equal(t, 8, counts.CorrectReviews)
	assert.InDelta(t, 2.6, counts.AverageEase, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCardStoreWithTx(t *testing.T) {
	t.Parallel()
	db, mock := newMock(t)
	s := postgres.NewPostgresCardStore(db, nil)
	card := testCard(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO repetition_cards").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.RunInTransaction(context.Background(), db, func(ctx context.Context, tx *sql.Tx) error {
		return s.WithTx(tx).Create(ctx, card)
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	assert.Panics(t, func() { postgres.NewPostgresCardStore(nil, nil) })
}
