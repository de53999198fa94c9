package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// InitialMastery is the mastery estimate assigned to a skill before any answer.
const InitialMastery = 0.5

// MasteryLabel is the ordinal bucket a mastery value falls into.
type MasteryLabel string

// Mastery labels in ascending order.
const (
	MasteryNovice     MasteryLabel = "NOVICE"
	MasteryDeveloping MasteryLabel = "DEVELOPING"
	MasteryProficient MasteryLabel = "PROFICIENT"
	MasteryMastered   MasteryLabel = "MASTERED"
)

// Rank returns the ordinal position of the label, or -1 for unknown labels.
func (l MasteryLabel) Rank() int {
	switch l {
	case MasteryNovice:
		return 0
	case MasteryDeveloping:
		return 1
	case MasteryProficient:
		return 2
	case MasteryMastered:
		return 3
	default:
		return -1
	}
}

// Validation errors for SkillMastery.
var (
	ErrEmptyMasteryUserID  = fmt.Errorf("%w: mastery user ID cannot be empty", ErrValidation)
	ErrInvalidMasterySkill = fmt.Errorf("%w: mastery skill ID must be positive", ErrValidation)
	ErrMasteryOutOfRange   = fmt.Errorf("%w: mastery level must be within [0,1]", ErrValidation)
	ErrConfidenceRange     = fmt.Errorf("%w: confidence must be within [0,1]", ErrValidation)
	ErrInvalidAttempts     = errors.New("attempts must be >= correct count >= 0")
)

// SkillMastery is a user's current mastery estimate for one skill.
type SkillMastery struct {
	UserID          uuid.UUID  `json:"user_id"`
	SkillID         int64      `json:"skill_id"`
	MasteryLevel    float64    `json:"mastery_level"`
	Confidence      float64    `json:"confidence"`
	Attempts        int        `json:"attempts"`
	CorrectCount    int        `json:"correct_count"`
	Streak          int        `json:"streak"`
	LastPracticedAt *time.Time `json:"last_practiced_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// NewSkillMastery returns the starting record for a (user, skill) pair.
func NewSkillMastery(userID uuid.UUID, skillID int64, now time.Time) (*SkillMastery, error) {
	m := &SkillMastery{
		UserID:       userID,
		SkillID:      skillID,
		MasteryLevel: InitialMastery,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate checks the record invariants.
func (m *SkillMastery) Validate() error {
	if m.UserID == uuid.Nil {
		return ErrEmptyMasteryUserID
	}
	if m.SkillID <= 0 {
		return ErrInvalidMasterySkill
	}
	if m.MasteryLevel < 0 || m.MasteryLevel > 1 {
		return ErrMasteryOutOfRange
	}
	if m.Confidence < 0 || m.Confidence > 1 {
		return ErrConfidenceRange
	}
	if m.CorrectCount < 0 || m.Attempts < m.CorrectCount {
		return fmt.Errorf("%w: %w", ErrValidation, ErrInvalidAttempts)
	}
	return nil
}

// Accuracy is the share of correct attempts, zero before the first attempt.
func (m *SkillMastery) Accuracy() float64 {
	if m.Attempts == 0 {
		return 0
	}
	return float64(m.CorrectCount) / float64(m.Attempts)
}
