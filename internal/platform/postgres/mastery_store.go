package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-assess/internal/domain"
	"github.com/phrazzld/scry-assess/internal/platform/logger"
	"github.com/phrazzld/scry-assess/internal/store"
)

const masteryColumns = `
	user_id, skill_id, mastery_level, confidence, attempts, correct_count,
	streak, last_practiced_at, created_at, updated_at`

// PostgresMasteryStore implements store.MasteryStore.
type PostgresMasteryStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresMasteryStore creates a new PostgreSQL implementation of the MasteryStore interface.
// If logger is nil, a default logger will be used.
func NewPostgresMasteryStore(db store.DBTX, logger *slog.Logger) *PostgresMasteryStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresMasteryStore{
		db:     db,
		logger: logger.With(slog.String("component", "mastery_store")),
	}
}

var _ store.MasteryStore = (*PostgresMasteryStore)(nil)

// WithTx implements store.MasteryStore.WithTx.
func (s *PostgresMasteryStore) WithTx(tx *sql.Tx) store.MasteryStore {
	return &PostgresMasteryStore{db: tx, logger: s.logger}
}

// Get implements store.MasteryStore.Get.
func (s *PostgresMasteryStore) Get(ctx context.Context, userID uuid.UUID, skillID int64) (*domain.SkillMastery, error) {
	return s.get(ctx, `SELECT `+masteryColumns+` FROM skill_masteries WHERE user_id = $1 AND skill_id = $2`,
		userID, skillID)
}

// GetForUpdate implements store.MasteryStore.GetForUpdate.
func (s *PostgresMasteryStore) GetForUpdate(
	ctx context.Context,
	userID uuid.UUID,
	skillID int64,
) (*domain.SkillMastery, error) {
	return s.get(ctx,
		`SELECT `+masteryColumns+` FROM skill_masteries WHERE user_id = $1 AND skill_id = $2 FOR UPDATE`,
		userID, skillID)
}

func (s *PostgresMasteryStore) get(ctx context.Context, query string, userID uuid.UUID, skillID int64) (*domain.SkillMastery, error) {
	m, err := scanMastery(s.db.QueryRowContext(ctx, query, userID, skillID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrMasteryNotFound
		}
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to get mastery",
			slog.String("error", err.Error()),
			slog.String("user_id", userID.String()),
			slog.Int64("skill_id", skillID))
		return nil, MapError(err)
	}
	return m, nil
}

// ListByUser implements store.MasteryStore.ListByUser.
func (s *PostgresMasteryStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.SkillMastery, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+masteryColumns+` FROM skill_masteries WHERE user_id = $1 ORDER BY skill_id`, userID)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	out := []*domain.SkillMastery{}
	for rows.Next() {
		m, err := scanMastery(rows)
		if err != nil {
			return nil, MapError(err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return out, nil
}

// ListForSkills implements store.MasteryStore.ListForSkills.
func (s *PostgresMasteryStore) ListForSkills(
	ctx context.Context,
	userID uuid.UUID,
	skillIDs []int64,
) (map[int64]*domain.SkillMastery, error) {
	out := make(map[int64]*domain.SkillMastery, len(skillIDs))
	if len(skillIDs) == 0 {
		return out, nil
	}

	args := []any{userID}
	placeholders := make([]string, 0, len(skillIDs))
	for _, id := range skillIDs {
		args = append(args, id)
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
	}
	query := `SELECT ` + masteryColumns + ` FROM skill_masteries
		WHERE user_id = $1 AND skill_id IN (` + strings.Join(placeholders, ", ") + `)`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		m, err := scanMastery(rows)
		if err != nil {
			return nil, MapError(err)
		}
		out[m.SkillID] = m
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return out, nil
}

// Upsert implements store.MasteryStore.Upsert.
func (s *PostgresMasteryStore) Upsert(ctx context.Context, m *domain.SkillMastery) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := m.Validate(); err != nil {
		log.Warn("mastery validation failed during upsert",
			slog.String("error", err.Error()),
			slog.Int64("skill_id", m.SkillID))
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO skill_masteries (`+masteryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id, skill_id) DO UPDATE SET
			mastery_level = EXCLUDED.mastery_level,
			confidence = EXCLUDED.confidence,
			attempts = EXCLUDED.attempts,
			correct_count = EXCLUDED.correct_count,
			streak = EXCLUDED.streak,
			last_practiced_at = EXCLUDED.last_practiced_at,
			updated_at = EXCLUDED.updated_at
	`,
		m.UserID,
		m.SkillID,
		m.MasteryLevel,
		m.Confidence,
		m.Attempts,
		m.CorrectCount,
		m.Streak,
		m.LastPracticedAt,
		m.CreatedAt,
		m.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to upsert mastery",
			slog.String("error", err.Error()),
			slog.Int64("skill_id", m.SkillID))
		return MapError(err)
	}
	return nil
}

func scanMastery(row rowScanner) (*domain.SkillMastery, error) {
	var m domain.SkillMastery
	var practiced sql.NullTime
	if err := row.Scan(
		&m.UserID,
		&m.SkillID,
		&m.MasteryLevel,
		&m.Confidence,
		&m.Attempts,
		&m.CorrectCount,
		&m.Streak,
		&practiced,
		&m.CreatedAt,
		&m.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if practiced.Valid {
		t := practiced.Time
		m.LastPracticedAt = &t
	}
	return &m, nil
}
