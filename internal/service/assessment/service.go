// Package assessment drives diagnostic and practice sessions: it selects the
// next question, grades answers, updates skill mastery and the learner's
// repetition cards, and summarizes finished sessions.
//
// Every mutation of a user's sessions runs under the per-user lock and writes
// the session with a version compare-and-swap.
package assessment

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/phrazzld/scry-assess/internal/domain"
	"github.com/phrazzld/scry-assess/internal/domain/session"
)

// Paging defaults for session history.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Review qualities recorded on a learner's card when a session answer touches it.
const (
	CorrectAnswerQuality   = 4
	IncorrectAnswerQuality = 1
)

// AnswerRequest is one submitted answer.
type AnswerRequest struct {
	QuestionID     int64           `json:"question_id" validate:"required,gt=0"`
	Answer         json.RawMessage `json:"answer" validate:"required"`
	ResponseTimeMs int64           `json:"response_time_ms" validate:"gte=0"`
}

// MasteryView is a mastery record with its ordinal label.
type MasteryView struct {
	domain.SkillMastery
	Label domain.MasteryLabel `json:"label"`
}

// AnswerResult is the outcome of SubmitAnswer.
type AnswerResult struct {
	IsCorrect         bool                   `json:"is_correct"`
	Mastery           MasteryView            `json:"updated_mastery"`
	Card              *domain.RepetitionCard `json:"card,omitempty"`
	NextQuestion      *domain.Question       `json:"next_question"`
	Terminated        bool                   `json:"terminated"`
	TerminationReason string                 `json:"termination_reason,omitempty"`
	Session           *domain.Session        `json:"session"`
}

// SessionPage is one page of session history.
type SessionPage struct {
	Sessions []*domain.Session `json:"sessions"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	Size     int               `json:"size"`
}

// Service is the adaptive session API.
type Service interface {
	// StartSession abandons the user's in-progress session of the same mode
	// and starts a new one. Returns service.ErrNoQuestions when no skill
	// matches the filter.
	StartSession(ctx context.Context, userID uuid.UUID, mode domain.SessionMode, cfg domain.SessionConfig) (*domain.Session, error)

	// RestartSession is StartSession recording the prior session as restarted.
	RestartSession(ctx context.Context, userID uuid.UUID, mode domain.SessionMode, cfg domain.SessionConfig) (*domain.Session, error)

	// GetNextQuestion returns the next question, or nil once the pool is
	// exhausted; the session is then completed.
	GetNextQuestion(ctx context.Context, userID, sessionID uuid.UUID) (*domain.Question, error)

	// SubmitAnswer grades an answer and applies it to mastery, the learner's
	// card for the question and the session.
	SubmitAnswer(ctx context.Context, userID, sessionID uuid.UUID, req AnswerRequest) (*AnswerResult, error)

	// FinishSession completes the session, idempotently, and returns its result.
	FinishSession(ctx context.Context, userID, sessionID uuid.UUID) (*session.Result, error)

	// AbandonSession abandons the session. Terminal sessions are returned unchanged.
	AbandonSession(ctx context.Context, userID, sessionID uuid.UUID) (*domain.Session, error)

	// GetActiveSession returns the in-progress session of the mode, or nil.
	GetActiveSession(ctx context.Context, userID uuid.UUID, mode domain.SessionMode) (*domain.Session, error)

	// GetSession returns one of the user's sessions with its answers.
	GetSession(ctx context.Context, userID, sessionID uuid.UUID) (*domain.Session, error)

	// ListSessions returns a page of history, newest first. A nil mode lists both modes.
	ListSessions(ctx context.Context, userID uuid.UUID, mode *domain.SessionMode, page, size int) (*SessionPage, error)

	// ListMastery returns every mastery record of the user.
	ListMastery(ctx context.Context, userID uuid.UUID) ([]MasteryView, error)
}
