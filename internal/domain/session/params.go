package session

import "github.com/phrazzld/scry-assess/internal/domain"

// ModeDefaults are the limits applied when a session config leaves them zero.
type ModeDefaults struct {
	MaxQuestions     int
	MinQuestions     int
	TargetConfidence float64
}

// Params configures the session driver.
type Params struct {
	Diagnostic ModeDefaults
	Practice   ModeDefaults

	// Hard upper bound accepted for MaxQuestions.
	QuestionLimit int

	// A diagnostic session stops once one skill is missed this many times
	// in a row.
	MaxConsecutiveWrongPerSkill int

	// A diagnostic session also stops after this many misses in a row across
	// all skills. Zero disables the rule.
	MaxConsecutiveWrong int

	// Skills whose mastery is below this value are reported as weak.
	WeakThreshold float64

	// Upper bound on the recommendations attached to a result.
	MaxRecommendations int
}

// NewDefaultParams returns the default driver parameters.
func NewDefaultParams() *Params {
	return &Params{
		Diagnostic: ModeDefaults{
			MaxQuestions:     30,
			MinQuestions:     5,
			TargetConfidence: 0.8,
		},
		Practice: ModeDefaults{
			MaxQuestions: 20,
		},
		QuestionLimit:               100,
		MaxConsecutiveWrongPerSkill: 2,
		WeakThreshold:               0.6,
		MaxRecommendations:          5,
	}
}

func (p *Params) defaultsFor(mode domain.SessionMode) ModeDefaults {
	if mode == domain.SessionModePractice {
		return p.Practice
	}
	return p.Diagnostic
}
