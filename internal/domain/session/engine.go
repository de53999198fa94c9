// Package session implements the adaptive session state machine.
//
// Every function takes the current session and returns a new one; inputs are
// never modified. Persistence, catalog access and locking are the caller's
// concern.
package session

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-assess/internal/domain"
)

// Errors returned by the engine.
var (
	ErrNilSession              = errors.New("session cannot be nil")
	ErrSessionTerminal         = fmt.Errorf("%w: session is no longer in progress", domain.ErrInvalidState)
	ErrQuestionAlreadyAnswered = fmt.Errorf("%w: question already answered in this session", domain.ErrInvalidState)
	ErrInvalidConfig           = fmt.Errorf("%w: invalid session configuration", domain.ErrValidation)
)

// SkillState is the mastery snapshot used for skill selection.
type SkillState struct {
	SkillID    int64
	Mastery    float64
	Confidence float64
}

// Decision reports whether an answer ended the session.
type Decision struct {
	Terminated bool   `json:"terminated"`
	Reason     string `json:"reason,omitempty"`
}

// Engine drives session transitions with a fixed parameter set.
type Engine struct {
	params *Params
}

// NewEngine creates an Engine. A nil params uses the defaults.
func NewEngine(params *Params) *Engine {
	if params == nil {
		params = NewDefaultParams()
	}
	return &Engine{params: params}
}

// Params returns the engine parameters.
func (e *Engine) Params() Params {
	return *e.params
}

// Start creates a new IN_PROGRESS session. Zero limits in cfg and a nil
// MinQuestions are replaced by the mode defaults; an explicit zero minimum is
// kept.
func (e *Engine) Start(userID uuid.UUID, mode domain.SessionMode, cfg domain.SessionConfig, now time.Time) (*domain.Session, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("%w: user ID cannot be empty", domain.ErrValidation)
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, mode)
	}

	defaults := e.params.defaultsFor(mode)
	if cfg.MaxQuestions == 0 {
		cfg.MaxQuestions = defaults.MaxQuestions
	}
	minQuestions := defaults.MinQuestions
	if cfg.MinQuestions != nil {
		minQuestions = *cfg.MinQuestions
	}
	if cfg.TargetConfidence == 0 {
		cfg.TargetConfidence = defaults.TargetConfidence
	}
	if minQuestions > cfg.MaxQuestions {
		minQuestions = cfg.MaxQuestions
	}

	if cfg.MaxQuestions < 1 || cfg.MaxQuestions > e.params.QuestionLimit {
		return nil, fmt.Errorf("%w: max questions must be within [1,%d]", ErrInvalidConfig, e.params.QuestionLimit)
	}
	if minQuestions < 0 {
		return nil, fmt.Errorf("%w: min questions cannot be negative", ErrInvalidConfig)
	}
	if cfg.TargetConfidence < 0 || cfg.TargetConfidence > 1 {
		return nil, fmt.Errorf("%w: target confidence must be within [0,1]", ErrInvalidConfig)
	}

	return &domain.Session{
		ID:                       uuid.New(),
		UserID:                   userID,
		Mode:                     mode,
		Status:                   domain.SessionInProgress,
		MaxQuestions:             cfg.MaxQuestions,
		MinQuestions:             minQuestions,
		TargetConfidence:         cfg.TargetConfidence,
		CertificationCode:        cfg.CertificationCode,
		FocusCategories:          append([]string(nil), cfg.FocusCategories...),
		PerSkillConsecutiveWrong: map[int64]int{},
		ExhaustedSkills:          map[int64]bool{},
		Answers:                  []domain.AnswerEvent{},
		StartTime:                now,
		Version:                  1,
	}, nil
}

// SelectSkill picks the eligible skill with the lowest mastery x confidence
// product, breaking ties by skill id. Exhausted skills are skipped. The
// boolean is false when no skill is eligible.
func (e *Engine) SelectSkill(s *domain.Session, states []SkillState) (int64, bool) {
	candidates := make([]SkillState, 0, len(states))
	for _, st := range states {
		if s != nil && s.ExhaustedSkills[st.SkillID] {
			continue
		}
		candidates = append(candidates, st)
	}
	if len(candidates) == 0 {
		return 0, false
	}

	sort.Slice(candidates, func(i, j int) bool {
		pi := candidates[i].Mastery * candidates[i].Confidence
		pj := candidates[j].Mastery * candidates[j].Confidence
		if pi != pj {
			return pi < pj
		}
		return candidates[i].SkillID < candidates[j].SkillID
	})
	return candidates[0].SkillID, true
}

// MarkExhausted records that a skill has no unseen questions left.
func (e *Engine) MarkExhausted(s *domain.Session, skillID int64) *domain.Session {
	next := s.Clone()
	next.ExhaustedSkills[skillID] = true
	return next
}

// ApplyAnswer appends an answer and evaluates termination. confidences holds
// the post-update confidence of every skill answered in the session.
func (e *Engine) ApplyAnswer(
	s *domain.Session,
	ev domain.AnswerEvent,
	confidences map[int64]float64,
	now time.Time,
) (*domain.Session, Decision, error) {
	if s == nil {
		return nil, Decision{}, ErrNilSession
	}
	if s.Status.Terminal() {
		return nil, Decision{}, ErrSessionTerminal
	}
	if s.HasAnswered(ev.QuestionID) {
		return nil, Decision{}, ErrQuestionAlreadyAnswered
	}

	next := s.Clone()
	next.Answers = append(next.Answers, ev)
	next.AnsweredCount++

	if ev.IsCorrect {
		next.CorrectCount++
		next.ConsecutiveWrong = 0
		next.PerSkillConsecutiveWrong[ev.SkillID] = 0
	} else {
		next.ConsecutiveWrong++
		next.PerSkillConsecutiveWrong[ev.SkillID]++
	}

	next.CurrentConfidence = aggregateConfidence(next.Answers, confidences)

	decision := e.evaluate(next, ev.SkillID)
	if decision.Terminated {
		next = complete(next, decision.Reason, now)
	}
	return next, decision, nil
}

// evaluate applies the termination rules in precedence order.
func (e *Engine) evaluate(s *domain.Session, skillID int64) Decision {
	if s.AnsweredCount >= s.MaxQuestions {
		return Decision{Terminated: true, Reason: domain.ReasonMaxQuestions}
	}
	if s.Mode != domain.SessionModeDiagnostic {
		return Decision{}
	}
	if s.PerSkillConsecutiveWrong[skillID] >= e.params.MaxConsecutiveWrongPerSkill {
		return Decision{Terminated: true, Reason: domain.ReasonConsecutiveWrong}
	}
	if e.params.MaxConsecutiveWrong > 0 && s.ConsecutiveWrong >= e.params.MaxConsecutiveWrong {
		return Decision{Terminated: true, Reason: domain.ReasonWrongStreak}
	}
	if s.TargetConfidence > 0 &&
		s.CurrentConfidence >= s.TargetConfidence &&
		s.AnsweredCount >= s.MinQuestions {
		return Decision{Terminated: true, Reason: domain.ReasonConfidenceReached}
	}
	return Decision{}
}

// Complete ends an in-progress session with the given reason. Terminal
// sessions are returned unchanged with changed=false.
func (e *Engine) Complete(s *domain.Session, reason string, now time.Time) (*domain.Session, bool) {
	if s.Status.Terminal() {
		return s.Clone(), false
	}
	return complete(s.Clone(), reason, now), true
}

// Finish ends an in-progress session at the learner's request.
func (e *Engine) Finish(s *domain.Session, now time.Time) (*domain.Session, bool) {
	return e.Complete(s, domain.ReasonFinishedByUser, now)
}

// Abandon moves an in-progress session to ABANDONED and records why.
// Terminal sessions are returned unchanged with changed=false.
func (e *Engine) Abandon(s *domain.Session, cause string, now time.Time) (*domain.Session, bool) {
	if s.Status.Terminal() {
		return s.Clone(), false
	}
	next := s.Clone()
	next.Status = domain.SessionAbandoned
	next.AbandonCause = cause
	end := now
	next.EndTime = &end
	return next, true
}

func complete(s *domain.Session, reason string, now time.Time) *domain.Session {
	s.Status = domain.SessionCompleted
	s.TerminationReason = reason
	end := now
	s.EndTime = &end
	return s
}

// aggregateConfidence weights each answered skill's confidence by the number
// of answers it received in the session.
func aggregateConfidence(answers []domain.AnswerEvent, confidences map[int64]float64) float64 {
	counts := make(map[int64]int)
	var order []int64
	for _, a := range answers {
		if counts[a.SkillID] == 0 {
			order = append(order, a.SkillID)
		}
		counts[a.SkillID]++
	}
	if len(order) == 0 {
		return 0
	}

	var sum float64
	var total int
	for _, skillID := range order {
		n := counts[skillID]
		sum += confidences[skillID] * float64(n)
		total += n
	}
	c := sum / float64(total)
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
