// Package mastery estimates per-skill mastery and confidence from answers.
//
// Mastery follows an exponential moving average toward an observed
// performance value derived from correctness and question difficulty. The
// step size shrinks as confidence grows, so early answers move the estimate
// quickly and later answers refine it. Confidence depends only on the number
// of attempts and therefore never decreases.
package mastery

import (
	"math"
	"time"

	"github.com/phrazzld/scry-assess/internal/domain"
)

// Params configures the mastery model.
type Params struct {
	// AlphaMax is the EMA step size at zero confidence.
	AlphaMax float64
	// AlphaMin is the step size approached as confidence tends to one.
	AlphaMin float64
	// ConfidenceK controls how many attempts it takes to become confident:
	// confidence = 1 - 1/(1 + attempts/K).
	ConfidenceK float64

	// Label thresholds, ascending.
	DevelopingThreshold float64
	ProficientThreshold float64
	MasteredThreshold   float64
}

// NewDefaultParams returns the default model parameters.
func NewDefaultParams() *Params {
	return &Params{
		AlphaMax:            0.5,
		AlphaMin:            0.3,
		ConfidenceK:         5,
		DevelopingThreshold: 0.4,
		ProficientThreshold: 0.6,
		MasteredThreshold:   0.8,
	}
}

// Model applies mastery updates with a fixed parameter set.
type Model struct {
	params *Params
}

// NewModel creates a Model. A nil params uses the defaults.
func NewModel(params *Params) *Model {
	if params == nil {
		params = NewDefaultParams()
	}
	return &Model{params: params}
}

// Params returns the model parameters.
func (m *Model) Params() Params {
	return *m.params
}

// Update returns the record after one answer. The input is not modified.
// difficulty must already be validated to lie in [0,1]; values outside are
// clamped.
func (m *Model) Update(current domain.SkillMastery, correct bool, difficulty float64, now time.Time) domain.SkillMastery {
	next := current
	weight := 1 + clamp01(difficulty)

	alpha := m.params.AlphaMax - (m.params.AlphaMax-m.params.AlphaMin)*clamp01(current.Confidence)
	target := performance(correct, weight)
	next.MasteryLevel = clamp01(current.MasteryLevel + alpha*(target-current.MasteryLevel))

	next.Attempts++
	if correct {
		next.CorrectCount++
		next.Streak++
	} else {
		next.Streak = 0
	}
	next.Confidence = m.Confidence(next.Attempts)

	practiced := now
	next.LastPracticedAt = &practiced
	next.UpdatedAt = now
	return next
}

// Confidence returns the confidence reached after the given number of attempts.
func (m *Model) Confidence(attempts int) float64 {
	if attempts <= 0 || m.params.ConfidenceK <= 0 {
		return 0
	}
	return clamp01(1 - 1/(1+float64(attempts)/m.params.ConfidenceK))
}

// Label maps a mastery value onto the ordinal scale.
func (m *Model) Label(mastery float64) domain.MasteryLabel {
	switch {
	case mastery >= m.params.MasteredThreshold:
		return domain.MasteryMastered
	case mastery >= m.params.ProficientThreshold:
		return domain.MasteryProficient
	case mastery >= m.params.DevelopingThreshold:
		return domain.MasteryDeveloping
	default:
		return domain.MasteryNovice
	}
}

// performance is the value mastery is pulled toward after one answer. A hard
// correct answer counts for more than an easy one; a hard miss is penalized
// less than an easy one.
func performance(correct bool, weight float64) float64 {
	if correct {
		return 0.7 + (weight-1)*0.3
	}
	return math.Max(0, 0.3-(2-weight)*0.15)
}

// Aggregate returns the weighted mean of values, or 0 when the total weight is
// zero. Negative weights are ignored.
func Aggregate(values, weights []float64) float64 {
	var sum, total float64
	for i, v := range values {
		if i >= len(weights) || weights[i] <= 0 {
			continue
		}
		sum += v * weights[i]
		total += weights[i]
	}
	if total == 0 {
		return 0
	}
	return clamp01(sum / total)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
