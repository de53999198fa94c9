package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CardStatus is the lifecycle status of a repetition card.
type CardStatus string

// Card statuses.
const (
	CardStatusNew       CardStatus = "NEW"
	CardStatusLearning  CardStatus = "LEARNING"
	CardStatusReview    CardStatus = "REVIEW"
	CardStatusSuspended CardStatus = "SUSPENDED"
)

// Valid reports whether s is one of the known statuses.
func (s CardStatus) Valid() bool {
	switch s {
	case CardStatusNew, CardStatusLearning, CardStatusReview, CardStatusSuspended:
		return true
	default:
		return false
	}
}

// ParseCardStatus converts a raw string into a CardStatus.
func ParseCardStatus(raw string) (CardStatus, error) {
	s := CardStatus(raw)
	if !s.Valid() {
		return "", fmt.Errorf("%w: unknown card status %q", ErrValidation, raw)
	}
	return s, nil
}

// Card defaults and limits.
const (
	DefaultEaseFactor = 2.5
	MinEaseFactor     = 1.3
	MinQuality        = 0
	MaxQuality        = 5
)

// Validation errors for RepetitionCard.
var (
	ErrEmptyCardUserID     = fmt.Errorf("%w: card user ID cannot be empty", ErrValidation)
	ErrInvalidQuestionID   = fmt.Errorf("%w: question ID must be positive", ErrValidation)
	ErrInvalidSkillID      = fmt.Errorf("%w: skill ID must be positive", ErrValidation)
	ErrInvalidEaseFactor   = fmt.Errorf("%w: ease factor must be at least 1.3", ErrValidation)
	ErrInvalidInterval     = fmt.Errorf("%w: interval must be >= 0", ErrValidation)
	ErrInvalidRepetitions  = fmt.Errorf("%w: repetitions must be >= 0", ErrValidation)
	ErrInvalidCardStatus   = fmt.Errorf("%w: invalid card status", ErrValidation)
	ErrInvalidQualityValue = fmt.Errorf("%w: quality must be within [0,5]", ErrValidation)
	ErrReviewBeforeLast    = fmt.Errorf("%w: next review cannot precede last review", ErrValidation)
	ErrInvalidReviewCounts = fmt.Errorf("%w: total reviews must be >= correct reviews >= 0", ErrValidation)
)

// RepetitionCard is the spaced-repetition scheduling state for one question.
type RepetitionCard struct {
	ID                  uuid.UUID   `json:"id"`
	UserID              uuid.UUID   `json:"user_id"`
	QuestionID          int64       `json:"question_id"`
	SkillID             int64       `json:"skill_id"`
	CertificationCode   string      `json:"certification_code,omitempty"`
	ClientID            string      `json:"client_id,omitempty"`
	EaseFactor          float64     `json:"ease_factor"`
	IntervalDays        int         `json:"interval_days"`
	Repetitions         int         `json:"repetitions"`
	Status              CardStatus  `json:"status"`
	StatusBeforeSuspend *CardStatus `json:"status_before_suspend,omitempty"`
	TotalReviews        int         `json:"total_reviews"`
	CorrectReviews      int         `json:"correct_reviews"`
	LastQuality         *int        `json:"last_quality,omitempty"`
	Streak              int         `json:"streak"`
	QualityHistory      []int       `json:"quality_history"`
	NextReviewAt        time.Time   `json:"next_review_at"`
	LastReviewedAt      *time.Time  `json:"last_reviewed_at,omitempty"`
	SyncVersion         int         `json:"sync_version"`
	CreatedAt           time.Time   `json:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at"`
}

// NewRepetitionCard creates a NEW card that is due immediately.
func NewRepetitionCard(userID uuid.UUID, questionID, skillID int64, now time.Time) (*RepetitionCard, error) {
	card := &RepetitionCard{
		ID:             uuid.New(),
		UserID:         userID,
		QuestionID:     questionID,
		SkillID:        skillID,
		EaseFactor:     DefaultEaseFactor,
		Status:         CardStatusNew,
		QualityHistory: []int{},
		NextReviewAt:   now,
		SyncVersion:    1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := card.Validate(); err != nil {
		return nil, err
	}
	return card, nil
}

// Validate checks the card invariants.
func (c *RepetitionCard) Validate() error {
	if c.UserID == uuid.Nil {
		return ErrEmptyCardUserID
	}
	if c.QuestionID <= 0 {
		return ErrInvalidQuestionID
	}
	if c.SkillID <= 0 {
		return ErrInvalidSkillID
	}
	if c.EaseFactor < MinEaseFactor {
		return ErrInvalidEaseFactor
	}
	if c.IntervalDays < 0 {
		return ErrInvalidInterval
	}
	if c.Repetitions < 0 {
		return ErrInvalidRepetitions
	}
	if !c.Status.Valid() {
		return ErrInvalidCardStatus
	}
	if c.CorrectReviews < 0 || c.TotalReviews < c.CorrectReviews {
		return ErrInvalidReviewCounts
	}
	if c.LastQuality != nil && (*c.LastQuality < MinQuality || *c.LastQuality > MaxQuality) {
		return ErrInvalidQualityValue
	}
	if c.LastReviewedAt != nil && c.NextReviewAt.Before(*c.LastReviewedAt) {
		return ErrReviewBeforeLast
	}
	return nil
}

// Clone returns a deep copy of the card.
func (c *RepetitionCard) Clone() *RepetitionCard {
	out := *c
	if c.StatusBeforeSuspend != nil {
		s := *c.StatusBeforeSuspend
		out.StatusBeforeSuspend = &s
	}
	if c.LastQuality != nil {
		q := *c.LastQuality
		out.LastQuality = &q
	}
	if c.LastReviewedAt != nil {
		t := *c.LastReviewedAt
		out.LastReviewedAt = &t
	}
	if c.QualityHistory != nil {
		out.QualityHistory = append(make([]int, 0, len(c.QualityHistory)), c.QualityHistory...)
	}
	return &out
}

// Accuracy is the share of successful reviews, zero before the first review.
func (c *RepetitionCard) Accuracy() float64 {
	if c.TotalReviews == 0 {
		return 0
	}
	return float64(c.CorrectReviews) / float64(c.TotalReviews)
}
