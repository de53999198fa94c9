package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SessionMode selects the driver behavior of a session.
type SessionMode string

// Session modes.
const (
	SessionModeDiagnostic SessionMode = "DIAGNOSTIC"
	SessionModePractice   SessionMode = "PRACTICE"
)

// Valid reports whether m is a known mode.
func (m SessionMode) Valid() bool {
	return m == SessionModeDiagnostic || m == SessionModePractice
}

// ParseSessionMode converts a raw string into a SessionMode.
func ParseSessionMode(raw string) (SessionMode, error) {
	m := SessionMode(raw)
	if !m.Valid() {
		return "", fmt.Errorf("%w: unknown session mode %q", ErrValidation, raw)
	}
	return m, nil
}

// SessionStatus is the lifecycle status of a session.
type SessionStatus string

// Session statuses.
const (
	SessionInProgress SessionStatus = "IN_PROGRESS"
	SessionCompleted  SessionStatus = "COMPLETED"
	SessionAbandoned  SessionStatus = "ABANDONED"
)

// Terminal reports whether no further answers can be accepted.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionAbandoned
}

// Termination reasons recorded on completed sessions.
const (
	ReasonMaxQuestions      = "max questions reached"
	ReasonConsecutiveWrong  = "2 consecutive wrong in same skill"
	ReasonWrongStreak       = "consecutive wrong answers"
	ReasonConfidenceReached = "confidence reached"
	ReasonPoolExhausted     = "question pool exhausted"
	ReasonFinishedByUser    = "finished by user"
	AbandonCauseSuperseded  = "superseded"
	AbandonCauseUserAbandon = "abandoned by user"
	AbandonCauseRestarted   = "restarted"
)

// AnswerEvent is one answered question inside a session.
type AnswerEvent struct {
	QuestionID     int64     `json:"question_id"`
	SkillID        int64     `json:"skill_id"`
	IsCorrect      bool      `json:"is_correct"`
	Difficulty     float64   `json:"difficulty"`
	ResponseTimeMs int64     `json:"response_time_ms"`
	Timestamp      time.Time `json:"timestamp"`
}

// SessionConfig holds the caller-tunable limits of a session. A zero
// MaxQuestions or TargetConfidence and a nil MinQuestions are replaced by the
// mode defaults when the session starts.
type SessionConfig struct {
	MaxQuestions      int      `json:"max_questions"`
	MinQuestions      *int     `json:"min_questions,omitempty"`
	TargetConfidence  float64  `json:"target_confidence"`
	CertificationCode string   `json:"certification_code,omitempty"`
	FocusCategories   []string `json:"focus_categories,omitempty"`
}

// Session is an adaptive diagnostic or practice run.
type Session struct {
	ID                       uuid.UUID      `json:"id"`
	UserID                   uuid.UUID      `json:"user_id"`
	Mode                     SessionMode    `json:"mode"`
	Status                   SessionStatus  `json:"status"`
	MaxQuestions             int            `json:"max_questions"`
	MinQuestions             int            `json:"min_questions"`
	TargetConfidence         float64        `json:"target_confidence"`
	CertificationCode        string         `json:"certification_code,omitempty"`
	FocusCategories          []string       `json:"focus_categories,omitempty"`
	AnsweredCount            int            `json:"answered_count"`
	CorrectCount             int            `json:"correct_count"`
	ConsecutiveWrong         int            `json:"consecutive_wrong"`
	PerSkillConsecutiveWrong map[int64]int  `json:"per_skill_consecutive_wrong"`
	ExhaustedSkills          map[int64]bool `json:"exhausted_skills"`
	CurrentConfidence        float64        `json:"current_confidence"`
	TerminationReason        string         `json:"termination_reason,omitempty"`
	AbandonCause             string         `json:"abandon_cause,omitempty"`
	StartTime                time.Time      `json:"start_time"`
	EndTime                  *time.Time     `json:"end_time,omitempty"`
	Answers                  []AnswerEvent  `json:"answers"`
	Version                  int            `json:"version"`
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	out := *s
	out.FocusCategories = append([]string(nil), s.FocusCategories...)
	out.Answers = append([]AnswerEvent(nil), s.Answers...)
	out.PerSkillConsecutiveWrong = make(map[int64]int, len(s.PerSkillConsecutiveWrong))
	for k, v := range s.PerSkillConsecutiveWrong {
		out.PerSkillConsecutiveWrong[k] = v
	}
	out.ExhaustedSkills = make(map[int64]bool, len(s.ExhaustedSkills))
	for k, v := range s.ExhaustedSkills {
		out.ExhaustedSkills[k] = v
	}
	if s.EndTime != nil {
		t := *s.EndTime
		out.EndTime = &t
	}
	return &out
}

// SeenQuestionIDs returns the ids of every answered question in answer order.
func (s *Session) SeenQuestionIDs() []int64 {
	ids := make([]int64, 0, len(s.Answers))
	for _, a := range s.Answers {
		ids = append(ids, a.QuestionID)
	}
	return ids
}

// HasAnswered reports whether questionID was already answered in the session.
func (s *Session) HasAnswered(questionID int64) bool {
	for _, a := range s.Answers {
		if a.QuestionID == questionID {
			return true
		}
	}
	return false
}
