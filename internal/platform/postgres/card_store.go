package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-assess/internal/domain"
	"github.com/phrazzld/scry-assess/internal/platform/logger"
	"github.com/phrazzld/scry-assess/internal/store"
)

const cardColumns = `
	id, user_id, question_id, skill_id, certification_code, client_id,
	ease_factor, interval_days, repetitions, status, status_before_suspend,
	total_reviews, correct_reviews, last_quality, streak, quality_history,
	next_review_at, last_reviewed_at, sync_version, created_at, updated_at`

// PostgresCardStore implements the store.CardStore interface
// using a PostgreSQL database as the storage backend.
type PostgresCardStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresCardStore creates a new PostgreSQL implementation of the CardStore interface.
// It accepts a database connection or transaction that should be initialized and managed by the caller.
// If logger is nil, a default logger will be used.
func NewPostgresCardStore(db store.DBTX, logger *slog.Logger) *PostgresCardStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresCardStore{
		db:     db,
		logger: logger.With(slog.String("component", "card_store")),
	}
}

var _ store.CardStore = (*PostgresCardStore)(nil)

// WithTx implements store.CardStore.WithTx.
func (s *PostgresCardStore) WithTx(tx *sql.Tx) store.CardStore {
	return &PostgresCardStore{db: tx, logger: s.logger}
}

// Create implements store.CardStore.Create.
func (s *PostgresCardStore) Create(ctx context.Context, card *domain.RepetitionCard) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := card.Validate(); err != nil {
		log.Warn("card validation failed during create",
			slog.String("error", err.Error()),
			slog.String("card_id", card.ID.String()))
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}

	history, err := json.Marshal(nonNilHistory(card.QualityHistory))
	if err != nil {
		return fmt.Errorf("failed to encode quality history: %w", err)
	}

	query := `
		INSERT INTO repetition_cards (` + cardColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
	`
	_, err = s.db.ExecContext(ctx, query,
		card.ID,
		card.UserID,
		card.QuestionID,
		card.SkillID,
		nullString(card.CertificationCode),
		nullString(card.ClientID),
		card.EaseFactor,
		card.IntervalDays,
		card.Repetitions,
		string(card.Status),
		nullStatus(card.StatusBeforeSuspend),
		card.TotalReviews,
		card.CorrectReviews,
		nullInt(card.LastQuality),
		card.Streak,
		history,
		card.NextReviewAt,
		card.LastReviewedAt,
		card.SyncVersion,
		card.CreatedAt,
		card.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			log.Debug("card already exists for question",
				slog.String("user_id", card.UserID.String()),
				slog.Int64("question_id", card.QuestionID))
			return store.ErrCardExists
		}
		log.Error("failed to create card",
			slog.String("error", err.Error()),
			slog.String("card_id", card.ID.String()))
		return MapError(err)
	}

	log.Debug("card created",
		slog.String("card_id", card.ID.String()),
		slog.Int64("question_id", card.QuestionID))
	return nil
}

// GetByID implements store.CardStore.GetByID.
func (s *PostgresCardStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.RepetitionCard, error) {
	query := `SELECT ` + cardColumns + ` FROM repetition_cards WHERE id = $1`
	return s.getOne(ctx, query, id)
}

// GetByQuestion implements store.CardStore.GetByQuestion.
func (s *PostgresCardStore) GetByQuestion(
	ctx context.Context,
	userID uuid.UUID,
	questionID int64,
) (*domain.RepetitionCard, error) {
	query := `SELECT ` + cardColumns + ` FROM repetition_cards WHERE user_id = $1 AND question_id = $2`
	return s.getOne(ctx, query, userID, questionID)
}

func (s *PostgresCardStore) getOne(ctx context.Context, query string, args ...any) (*domain.RepetitionCard, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	card, err := scanCard(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrCardNotFound
		}
		log.Error("failed to get card", slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	return card, nil
}

// ListByUser implements store.CardStore.ListByUser.
func (s *PostgresCardStore) ListByUser(
	ctx context.Context,
	userID uuid.UUID,
	filter store.CardFilter,
) ([]*domain.RepetitionCard, error) {
	query := `SELECT ` + cardColumns + ` FROM repetition_cards WHERE user_id = $1`
	args := []any{userID}
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.CertificationCode != "" {
		args = append(args, filter.CertificationCode)
		query += fmt.Sprintf(" AND certification_code = $%d", len(args))
	}
	query += " ORDER BY created_at, id"
	return s.query(ctx, query, args...)
}

// ListDue implements store.CardStore.ListDue.
func (s *PostgresCardStore) ListDue(
	ctx context.Context,
	userID uuid.UUID,
	now time.Time,
	page store.Page,
) ([]*domain.RepetitionCard, int, error) {
	total, err := s.CountDue(ctx, userID, now)
	if err != nil {
		return nil, 0, err
	}

	query := `
		SELECT ` + cardColumns + `
		FROM repetition_cards
		WHERE user_id = $1 AND status <> 'SUSPENDED' AND next_review_at <= $2
		ORDER BY next_review_at, id
		LIMIT $3 OFFSET $4
	`
	cards, err := s.query(ctx, query, userID, now, page.Limit, page.Offset)
	if err != nil {
		return nil, 0, err
	}
	return cards, total, nil
}

// CountDue implements store.CardStore.CountDue.
func (s *PostgresCardStore) CountDue(ctx context.Context, userID uuid.UUID, now time.Time) (int, error) {
	var total int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM repetition_cards
		WHERE user_id = $1 AND status <> 'SUSPENDED' AND next_review_at <= $2
	`, userID, now).Scan(&total)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to count due cards",
			slog.String("error", err.Error()),
			slog.String("user_id", userID.String()))
		return 0, MapError(err)
	}
	return total, nil
}

// ListUpdatedSince implements store.CardStore.ListUpdatedSince.
func (s *PostgresCardStore) ListUpdatedSince(
	ctx context.Context,
	userID uuid.UUID,
	since *time.Time,
) ([]*domain.RepetitionCard, error) {
	if since == nil {
		return s.query(ctx,
			`SELECT `+cardColumns+` FROM repetition_cards WHERE user_id = $1 ORDER BY updated_at, id`,
			userID)
	}
	return s.query(ctx,
		`SELECT `+cardColumns+` FROM repetition_cards WHERE user_id = $1 AND updated_at > $2 ORDER BY updated_at, id`,
		userID, *since)
}

// UpdateIfVersion implements store.CardStore.UpdateIfVersion.
func (s *PostgresCardStore) UpdateIfVersion(ctx context.Context, card *domain.RepetitionCard, expectedVersion int) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := card.Validate(); err != nil {
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}
	history, err := json.Marshal(nonNilHistory(card.QualityHistory))
	if err != nil {
		return fmt.Errorf("failed to encode quality history: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE repetition_cards SET
			certification_code = $1, client_id = $2, ease_factor = $3,
			interval_days = $4, repetitions = $5, status = $6,
			status_before_suspend = $7, total_reviews = $8, correct_reviews = $9,
			last_quality = $10, streak = $11, quality_history = $12,
			next_review_at = $13, last_reviewed_at = $14, sync_version = $15,
			updated_at = $16
		WHERE id = $17 AND sync_version = $18
	`,
		nullString(card.CertificationCode),
		nullString(card.ClientID),
		card.EaseFactor,
		card.IntervalDays,
		card.Repetitions,
		string(card.Status),
		nullStatus(card.StatusBeforeSuspend),
		card.TotalReviews,
		card.CorrectReviews,
		nullInt(card.LastQuality),
		card.Streak,
		history,
		card.NextReviewAt,
		card.LastReviewedAt,
		card.SyncVersion,
		card.UpdatedAt,
		card.ID,
		expectedVersion,
	)
	if err != nil {
		log.Error("failed to update card",
			slog.String("error", err.Error()),
			slog.String("card_id", card.ID.String()))
		return MapError(err)
	}

	if err := CheckRowsAffected(result, store.ErrVersionConflict); err != nil {
		if !errors.Is(err, store.ErrVersionConflict) {
			return err
		}
		var exists bool
		if qErr := s.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM repetition_cards WHERE id = $1)`, card.ID,
		).Scan(&exists); qErr != nil {
			return MapError(qErr)
		}
		if !exists {
			return store.ErrCardNotFound
		}
		log.Debug("card version conflict",
			slog.String("card_id", card.ID.String()),
			slog.Int("expected_version", expectedVersion))
		return store.ErrVersionConflict
	}
	return nil
}

// Delete implements store.CardStore.Delete.
func (s *PostgresCardStore) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM repetition_cards WHERE id = $1`, id)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to delete card",
			slog.String("error", err.Error()),
			slog.String("card_id", id.String()))
		return MapError(err)
	}
	return CheckRowsAffected(result, store.ErrCardNotFound)
}

// Counts implements store.CardStore.Counts.
func (s *PostgresCardStore) Counts(ctx context.Context, userID uuid.UUID) (*store.CardCounts, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*), COALESCE(SUM(total_reviews), 0),
			COALESCE(SUM(correct_reviews), 0), COALESCE(SUM(ease_factor), 0)
		FROM repetition_cards
		WHERE user_id = $1
		GROUP BY status
	`, userID)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	counts := &store.CardCounts{ByStatus: map[domain.CardStatus]int{}}
	var easeSum float64
	for rows.Next() {
		var status string
		var n, reviews, correct int
		var ease float64
		if err := rows.Scan(&status, &n, &reviews, &correct, &ease); err != nil {
			return nil, MapError(err)
		}
		counts.ByStatus[domain.CardStatus(status)] = n
		counts.Total += n
		counts.TotalReviews += reviews
		counts.CorrectReviews += correct
		easeSum += ease
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	if counts.Total > 0 {
		counts.AverageEase = easeSum / float64(counts.Total)
	}
	return counts, nil
}

func (s *PostgresCardStore) query(ctx context.Context, query string, args ...any) ([]*domain.RepetitionCard, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to query cards",
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	cards := []*domain.RepetitionCard{}
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, MapError(err)
		}
		cards = append(cards, card)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return cards, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCard(row rowScanner) (*domain.RepetitionCard, error) {
	var (
		c              domain.RepetitionCard
		certification  sql.NullString
		clientID       sql.NullString
		status         string
		beforeSuspend  sql.NullString
		lastQuality    sql.NullInt32
		history        []byte
		lastReviewedAt sql.NullTime
	)
	err := row.Scan(
		&c.ID,
		&c.UserID,
		&c.QuestionID,
		&c.SkillID,
		&certification,
		&clientID,
		&c.EaseFactor,
		&c.IntervalDays,
		&c.Repetitions,
		&status,
		&beforeSuspend,
		&c.TotalReviews,
		&c.CorrectReviews,
		&lastQuality,
		&c.Streak,
		&history,
		&c.NextReviewAt,
		&lastReviewedAt,
		&c.SyncVersion,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.CertificationCode = certification.String
	c.ClientID = clientID.String
	c.Status = domain.CardStatus(status)
	if beforeSuspend.Valid {
		st := domain.CardStatus(beforeSuspend.String)
		c.StatusBeforeSuspend = &st
	}
	if lastQuality.Valid {
		q := int(lastQuality.Int32)
		c.LastQuality = &q
	}
	if lastReviewedAt.Valid {
		t := lastReviewedAt.Time
		c.LastReviewedAt = &t
	}
	c.QualityHistory = []int{}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &c.QualityHistory); err != nil {
			return nil, fmt.Errorf("failed to decode quality history: %w", err)
		}
	}
	return &c, nil
}

func nonNilHistory(h []int) []int {
	if h == nil {
		return []int{}
	}
	return h
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullStatus(s *domain.CardStatus) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*s), Valid: true}
}

func nullInt(v *int) sql.NullInt32 {
	if v == nil {
		return sql.NullInt32{}
	}
	return sql.NullInt32{Int32: int32(*v), Valid: true}
}
