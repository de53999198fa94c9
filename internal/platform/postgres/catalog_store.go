package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/phrazzld/scry-assess/internal/domain"
	"github.com/phrazzld/scry-assess/internal/platform/logger"
	"github.com/phrazzld/scry-assess/internal/store"
)

const questionColumns = `id, skill_id, category, difficulty, certification_code, content, correct_answer`

// PostgresCatalogStore implements store.CatalogStore over the skills and
// questions tables.
type PostgresCatalogStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresCatalogStore creates a new PostgreSQL implementation of the CatalogStore interface.
// If logger is nil, a default logger will be used.
func NewPostgresCatalogStore(db store.DBTX, logger *slog.Logger) *PostgresCatalogStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresCatalogStore{
		db:     db,
		logger: logger.With(slog.String("component", "catalog_store")),
	}
}

var _ store.CatalogStore = (*PostgresCatalogStore)(nil)

// GetQuestion implements store.CatalogStore.GetQuestion.
func (s *PostgresCatalogStore) GetQuestion(ctx context.Context, id int64) (*domain.Question, error) {
	q, err := scanQuestion(s.db.QueryRowContext(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrQuestionNotFound
		}
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to get question",
			slog.String("error", err.Error()),
			slog.Int64("question_id", id))
		return nil, MapError(err)
	}
	return q, nil
}

// SampleUnseen implements store.CatalogStore.SampleUnseen.
func (s *PostgresCatalogStore) SampleUnseen(
	ctx context.Context,
	skillID int64,
	exclude []int64,
	certificationCode string,
) (*domain.Question, error) {
	query := `SELECT ` + questionColumns + ` FROM questions WHERE skill_id = $1`
	args := []any{skillID}
	if certificationCode != "" {
		args = append(args, certificationCode)
		query += fmt.Sprintf(" AND certification_code = $%d", len(args))
	}
	if len(exclude) > 0 {
		placeholders := make([]string, 0, len(exclude))
		for _, id := range exclude {
			args = append(args, id)
			placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
		}
		query += " AND id NOT IN (" + strings.Join(placeholders, ", ") + ")"
	}
	query += " ORDER BY random() LIMIT 1"

	q, err := scanQuestion(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrQuestionNotFound
		}
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to sample question",
			slog.String("error", err.Error()),
			slog.Int64("skill_id", skillID))
		return nil, MapError(err)
	}
	return q, nil
}

// ListSkills implements store.CatalogStore.ListSkills.
func (s *PostgresCatalogStore) ListSkills(ctx context.Context, filter store.SkillFilter) ([]domain.Skill, error) {
	query := `
		SELECT s.id, s.code, s.name, s.category
		FROM skills s
		WHERE EXISTS (
			SELECT 1 FROM questions q WHERE q.skill_id = s.id`
	var args []any
	if filter.CertificationCode != "" {
		args = append(args, filter.CertificationCode)
		query += fmt.Sprintf(" AND q.certification_code = $%d", len(args))
	}
	query += ")"
	if len(filter.Categories) > 0 {
		placeholders := make([]string, 0, len(filter.Categories))
		for _, c := range filter.Categories {
			args = append(args, c)
			placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
		}
		query += " AND s.category IN (" + strings.Join(placeholders, ", ") + ")"
	}
	query += " ORDER BY s.id"

	return s.querySkills(ctx, query, args...)
}

// GetSkills implements store.CatalogStore.GetSkills.
func (s *PostgresCatalogStore) GetSkills(ctx context.Context, ids []int64) (map[int64]domain.Skill, error) {
	out := make(map[int64]domain.Skill, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]any, 0, len(ids))
	placeholders := make([]string, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
	}
	skills, err := s.querySkills(ctx,
		`SELECT id, code, name, category FROM skills WHERE id IN (`+strings.Join(placeholders, ", ")+`) ORDER BY id`,
		args...)
	if err != nil {
		return nil, err
	}
	for _, sk := range skills {
		out[sk.ID] = sk
	}
	return out, nil
}

func (s *PostgresCatalogStore) querySkills(ctx context.Context, query string, args ...any) ([]domain.Skill, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to query skills",
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	skills := []domain.Skill{}
	for rows.Next() {
		var sk domain.Skill
		if err := rows.Scan(&sk.ID, &sk.Code, &sk.Name, &sk.Category); err != nil {
			return nil, MapError(err)
		}
		skills = append(skills, sk)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return skills, nil
}

func scanQuestion(row rowScanner) (*domain.Question, error) {
	var q domain.Question
	var certification sql.NullString
	var content, answer []byte
	if err := row.Scan(
		&q.ID,
		&q.SkillID,
		&q.Category,
		&q.Difficulty,
		&certification,
		&content,
		&answer,
	); err != nil {
		return nil, err
	}
	q.CertificationCode = certification.String
	q.Content = content
	q.CorrectAnswer = answer
	return &q, nil
}
