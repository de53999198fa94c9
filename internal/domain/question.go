package domain

import (
	"encoding/json"
	"fmt"
	"math"
)

// ErrInvalidDifficulty is returned when a difficulty lies outside [0,1].
var ErrInvalidDifficulty = fmt.Errorf("%w: difficulty must be within [0,1]", ErrValidation)

// Skill is the catalog view of a skill.
type Skill struct {
	ID       int64  `json:"id"`
	Code     string `json:"code"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

// Question is the catalog view of a question. CorrectAnswer is used for
// grading only and never leaves the service.
type Question struct {
	ID                int64           `json:"id"`
	SkillID           int64           `json:"skill_id"`
	Category          string          `json:"category"`
	Difficulty        float64         `json:"difficulty"`
	CertificationCode string          `json:"certification_code,omitempty"`
	Content           json.RawMessage `json:"content"`
	CorrectAnswer     json.RawMessage `json:"-"`
}

// ValidateDifficulty rejects difficulties outside [0,1].
func ValidateDifficulty(d float64) error {
	if math.IsNaN(d) || d < 0 || d > 1 {
		return ErrInvalidDifficulty
	}
	return nil
}
