package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-assess/internal/domain"
	"github.com/phrazzld/scry-assess/internal/platform/logger"
	"github.com/phrazzld/scry-assess/internal/store"
)

const sessionColumns = `
	id, user_id, mode, status, max_questions, min_questions, target_confidence,
	certification_code, focus_categories, answered_count, correct_count,
	consecutive_wrong, per_skill_consecutive_wrong, exhausted_skills,
	current_confidence, termination_reason, abandon_cause, start_time, end_time,
	version`

// PostgresSessionStore implements store.SessionStore.
type PostgresSessionStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresSessionStore creates a new PostgreSQL implementation of the SessionStore interface.
// If logger is nil, a default logger will be used.
func NewPostgresSessionStore(db store.DBTX, logger *slog.Logger) *PostgresSessionStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresSessionStore{
		db:     db,
		logger: logger.With(slog.String("component", "session_store")),
	}
}

var _ store.SessionStore = (*PostgresSessionStore)(nil)

// WithTx implements store.SessionStore.WithTx.
func (s *PostgresSessionStore) WithTx(tx *sql.Tx) store.SessionStore {
	return &PostgresSessionStore{db: tx, logger: s.logger}
}

// Create implements store.SessionStore.Create.
func (s *PostgresSessionStore) Create(ctx context.Context, sess *domain.Session) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	enc, err := encodeSessionState(sess)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`,
		sess.ID,
		sess.UserID,
		string(sess.Mode),
		string(sess.Status),
		sess.MaxQuestions,
		sess.MinQuestions,
		sess.TargetConfidence,
		nullString(sess.CertificationCode),
		enc.focus,
		sess.AnsweredCount,
		sess.CorrectCount,
		sess.ConsecutiveWrong,
		enc.perSkill,
		enc.exhausted,
		sess.CurrentConfidence,
		nullString(sess.TerminationReason),
		nullString(sess.AbandonCause),
		sess.StartTime,
		sess.EndTime,
		sess.Version,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			log.Debug("active session already exists",
				slog.String("user_id", sess.UserID.String()),
				slog.String("mode", string(sess.Mode)))
			return store.ErrActiveSessionExists
		}
		log.Error("failed to create session",
			slog.String("error", err.Error()),
			slog.String("session_id", sess.ID.String()))
		return MapError(err)
	}

	if err := s.insertAnswers(ctx, sess.ID, sess.Answers, 0); err != nil {
		return err
	}

	log.Debug("session created",
		slog.String("session_id", sess.ID.String()),
		slog.String("mode", string(sess.Mode)))
	return nil
}

// GetByID implements store.SessionStore.GetByID.
func (s *PostgresSessionStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	sess, err := scanSession(s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id))
	if err != nil {
		return nil, s.notFoundOr(ctx, err)
	}
	if err := s.loadAnswers(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// GetActive implements store.SessionStore.GetActive.
func (s *PostgresSessionStore) GetActive(
	ctx context.Context,
	userID uuid.UUID,
	mode domain.SessionMode,
) (*domain.Session, error) {
	sess, err := scanSession(s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE user_id = $1 AND mode = $2 AND status = 'IN_PROGRESS'`,
		userID, string(mode)))
	if err != nil {
		return nil, s.notFoundOr(ctx, err)
	}
	if err := s.loadAnswers(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Update implements store.SessionStore.Update.
func (s *PostgresSessionStore) Update(ctx context.Context, sess *domain.Session, expectedVersion int) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	enc, err := encodeSessionState(sess)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET
			status = $1, answered_count = $2, correct_count = $3,
			consecutive_wrong = $4, per_skill_consecutive_wrong = $5,
			exhausted_skills = $6, current_confidence = $7,
			termination_reason = $8, abandon_cause = $9, end_time = $10,
			version = $11
		WHERE id = $12 AND version = $13
	`,
		string(sess.Status),
		sess.AnsweredCount,
		sess.CorrectCount,
		sess.ConsecutiveWrong,
		enc.perSkill,
		enc.exhausted,
		sess.CurrentConfidence,
		nullString(sess.TerminationReason),
		nullString(sess.AbandonCause),
		sess.EndTime,
		sess.Version,
		sess.ID,
		expectedVersion,
	)
	if err != nil {
		log.Error("failed to update session",
			slog.String("error", err.Error()),
			slog.String("session_id", sess.ID.String()))
		return MapError(err)
	}
	if err := CheckRowsAffected(result, store.ErrVersionConflict); err != nil {
		log.Debug("session version conflict",
			slog.String("session_id", sess.ID.String()),
			slog.Int("expected_version", expectedVersion))
		return err
	}

	var persisted int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM session_answers WHERE session_id = $1`, sess.ID,
	).Scan(&persisted); err != nil {
		return MapError(err)
	}
	return s.insertAnswers(ctx, sess.ID, sess.Answers, persisted)
}

// List implements store.SessionStore.List.
func (s *PostgresSessionStore) List(
	ctx context.Context,
	userID uuid.UUID,
	mode *domain.SessionMode,
	page store.Page,
) ([]*domain.Session, int, error) {
	where := ` WHERE user_id = $1`
	args := []any{userID}
	if mode != nil {
		args = append(args, string(*mode))
		where += ` AND mode = $2`
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`+where, args...).Scan(&total); err != nil {
		return nil, 0, MapError(err)
	}

	args = append(args, page.Limit, page.Offset)
	query := `SELECT ` + sessionColumns + ` FROM sessions` + where +
		fmt.Sprintf(` ORDER BY start_time DESC, id LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	out := []*domain.Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, 0, MapError(err)
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, MapError(err)
	}
	return out, total, nil
}

func (s *PostgresSessionStore) notFoundOr(ctx context.Context, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrSessionNotFound
	}
	logger.FromContextOrDefault(ctx, s.logger).Error("failed to load session",
		slog.String("error", err.Error()))
	return MapError(err)
}

func (s *PostgresSessionStore) insertAnswers(
	ctx context.Context,
	sessionID uuid.UUID,
	answers []domain.AnswerEvent,
	from int,
) error {
	for i := from; i < len(answers); i++ {
		a := answers[i]
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO session_answers
				(session_id, seq, question_id, skill_id, is_correct, difficulty, response_time_ms, answered_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, sessionID, i+1, a.QuestionID, a.SkillID, a.IsCorrect, a.Difficulty, a.ResponseTimeMs, a.Timestamp)
		if err != nil {
			logger.FromContextOrDefault(ctx, s.logger).Error("failed to insert session answer",
				slog.String("error", err.Error()),
				slog.String("session_id", sessionID.String()),
				slog.Int64("question_id", a.QuestionID))
			return MapError(err)
		}
	}
	return nil
}

func (s *PostgresSessionStore) loadAnswers(ctx context.Context, sess *domain.Session) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT question_id, skill_id, is_correct, difficulty, response_time_ms, answered_at
		FROM session_answers WHERE session_id = $1 ORDER BY seq
	`, sess.ID)
	if err != nil {
		return MapError(err)
	}
	defer func() { _ = rows.Close() }()

	sess.Answers = []domain.AnswerEvent{}
	for rows.Next() {
		var a domain.AnswerEvent
		if err := rows.Scan(&a.QuestionID, &a.SkillID, &a.IsCorrect, &a.Difficulty, &a.ResponseTimeMs, &a.Timestamp); err != nil {
			return MapError(err)
		}
		sess.Answers = append(sess.Answers, a)
	}
	return MapError(rows.Err())
}

type sessionState struct {
	focus     []byte
	perSkill  []byte
	exhausted []byte
}

func encodeSessionState(sess *domain.Session) (sessionState, error) {
	var enc sessionState
	var err error

	focus := sess.FocusCategories
	if focus == nil {
		focus = []string{}
	}
	if enc.focus, err = json.Marshal(focus); err != nil {
		return enc, fmt.Errorf("failed to encode focus categories: %w", err)
	}

	perSkill := sess.PerSkillConsecutiveWrong
	if perSkill == nil {
		perSkill = map[int64]int{}
	}
	if enc.perSkill, err = json.Marshal(perSkill); err != nil {
		return enc, fmt.Errorf("failed to encode per-skill counters: %w", err)
	}

	exhausted := make([]int64, 0, len(sess.ExhaustedSkills))
	for id, ok := range sess.ExhaustedSkills {
		if ok {
			exhausted = append(exhausted, id)
		}
	}
	sort.Slice(exhausted, func(i, j int) bool { return exhausted[i] < exhausted[j] })
	if enc.exhausted, err = json.Marshal(exhausted); err != nil {
		return enc, fmt.Errorf("failed to encode exhausted skills: %w", err)
	}
	return enc, nil
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var (
		sess          domain.Session
		mode, status  string
		certification sql.NullString
		focus         []byte
		perSkill      []byte
		exhausted     []byte
		reason, cause sql.NullString
		endTime       sql.NullTime
	)
	err := row.Scan(
		&sess.ID,
		&sess.UserID,
		&mode,
		&status,
		&sess.MaxQuestions,
		&sess.MinQuestions,
		&sess.TargetConfidence,
		&certification,
		&focus,
		&sess.AnsweredCount,
		&sess.CorrectCount,
		&sess.ConsecutiveWrong,
		&perSkill,
		&exhausted,
		&sess.CurrentConfidence,
		&reason,
		&cause,
		&sess.StartTime,
		&endTime,
		&sess.Version,
	)
	if err != nil {
		return nil, err
	}

	sess.Mode = domain.SessionMode(mode)
	sess.Status = domain.SessionStatus(status)
	sess.CertificationCode = certification.String
	sess.TerminationReason = reason.String
	sess.AbandonCause = cause.String
	if endTime.Valid {
		t := endTime.Time
		sess.EndTime = &t
	}

	if len(focus) > 0 {
		if err := json.Unmarshal(focus, &sess.FocusCategories); err != nil {
			return nil, fmt.Errorf("failed to decode focus categories: %w", err)
		}
	}
	sess.PerSkillConsecutiveWrong = map[int64]int{}
	if len(perSkill) > 0 {
		if err := json.Unmarshal(perSkill, &sess.PerSkillConsecutiveWrong); err != nil {
			return nil, fmt.Errorf("failed to decode per-skill counters: %w", err)
		}
	}
	sess.ExhaustedSkills = map[int64]bool{}
	if len(exhausted) > 0 {
		var ids []int64
		if err := json.Unmarshal(exhausted, &ids); err != nil {
			return nil, fmt.Errorf("failed to decode exhausted skills: %w", err)
		}
		for _, id := range ids {
			sess.ExhaustedSkills[id] = true
		}
	}
	return &sess, nil
}
