package api

import (
	"strings"

	"github.com/phrazzld/scry-assess/internal/domain"
	"github.com/phrazzld/scry-assess/internal/service/assessment"
	"github.com/phrazzld/scry-assess/internal/service/review"
)

// StartSessionRequest is the body of POST /sessions and /sessions/restart.
// Zero limits and an absent min_questions fall back to the mode defaults.
type StartSessionRequest struct {
	Mode              string   `json:"mode"               validate:"required"`
	MaxQuestions      int      `json:"max_questions"      validate:"gte=0,lte=500"`
	MinQuestions      *int     `json:"min_questions"      validate:"omitempty,gte=0,lte=500"`
	TargetConfidence  float64  `json:"target_confidence"  validate:"gte=0,lte=1"`
	CertificationCode string   `json:"certification_code" validate:"omitempty,max=32"`
	FocusCategories   []string `json:"focus_categories"   validate:"omitempty,max=32,dive,required,max=64"`
}

// sessionMode normalizes the requested mode.
func (r StartSessionRequest) sessionMode() (domain.SessionMode, error) {
	return domain.ParseSessionMode(strings.ToUpper(strings.TrimSpace(r.Mode)))
}

func (r StartSessionRequest) config() domain.SessionConfig {
	return domain.SessionConfig{
		MaxQuestions:      r.MaxQuestions,
		MinQuestions:      r.MinQuestions,
		TargetConfidence:  r.TargetConfidence,
		CertificationCode: r.CertificationCode,
		FocusCategories:   r.FocusCategories,
	}
}

// SessionResponse is a session plus the advisory client-side timeout.
type SessionResponse struct {
	*domain.Session
	TimeoutMinutes int `json:"timeout_minutes"`
}

// AnswerResponse is the reply to POST /sessions/{id}/answers.
type AnswerResponse struct {
	*assessment.AnswerResult
	Session SessionResponse `json:"session"`
}

// SessionPageResponse is one page of session history.
type SessionPageResponse struct {
	Sessions []SessionResponse `json:"sessions"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	Size     int               `json:"size"`
}

// ReviewRequest is the body of POST /cards/{id}/review. Quality is a pointer
// so an explicit 0 passes the required check.
type ReviewRequest struct {
	Quality *int `json:"quality" validate:"required,gte=0,lte=5"`
}

// BulkCreateRequest is the body of POST /cards/bulk.
type BulkCreateRequest struct {
	Cards []review.CreateCardRequest `json:"cards" validate:"required,min=1,dive"`
}

// BulkCreateResponse reports the enrolled cards in request order.
type BulkCreateResponse struct {
	Cards   []*domain.RepetitionCard `json:"cards"`
	Created int                      `json:"created"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}
