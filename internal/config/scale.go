package config

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/phrazzld/scry-assess/internal/domain/session"
	"gopkg.in/yaml.v3"
)

//go:embed default_scale.yaml
var defaultScaleYAML []byte

// ErrInvalidScale is returned when a scoring scale table is malformed.
var ErrInvalidScale = errors.New("invalid scoring scale")

// ScaleBand maps a half-open mastery interval to a score range.
type ScaleBand struct {
	Level      string   `yaml:"level"`
	MasteryMin float64  `yaml:"mastery_min"`
	MasteryMax float64  `yaml:"mastery_max"`
	ScoreMin   int      `yaml:"score_min"`
	ScoreMax   int      `yaml:"score_max"`
	Advice     []string `yaml:"advice"`
}

// ScoringScale is the read-only mastery to score band table.
type ScoringScale struct {
	Bands []ScaleBand `yaml:"bands"`
}

var _ session.ScoreScale = (*ScoringScale)(nil)

// DefaultScoringScale returns the embedded scale.
func DefaultScoringScale() (*ScoringScale, error) {
	return ParseScoringScale(defaultScaleYAML)
}

// LoadScoringScale reads a scale from path, or returns the embedded default
// when path is empty.
func LoadScoringScale(path string) (*ScoringScale, error) {
	if path == "" {
		return DefaultScoringScale()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scoring scale %s: %w", path, err)
	}
	return ParseScoringScale(data)
}

// ParseScoringScale decodes and validates a YAML scale table.
func ParseScoringScale(data []byte) (*ScoringScale, error) {
	var s ScoringScale
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScale, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks that bands are ordered, contiguous and cover [0,1].
func (s *ScoringScale) Validate() error {
	if len(s.Bands) == 0 {
		return fmt.Errorf("%w: no bands", ErrInvalidScale)
	}
	const eps = 1e-9
	if math.Abs(s.Bands[0].MasteryMin) > eps {
		return fmt.Errorf("%w: first band must start at 0", ErrInvalidScale)
	}
	if math.Abs(s.Bands[len(s.Bands)-1].MasteryMax-1) > eps {
		return fmt.Errorf("%w: last band must end at 1", ErrInvalidScale)
	}
	for i, b := range s.Bands {
		if b.Level == "" {
			return fmt.Errorf("%w: band %d has no level", ErrInvalidScale, i)
		}
		if b.MasteryMax <= b.MasteryMin {
			return fmt.Errorf("%w: band %s has an empty mastery range", ErrInvalidScale, b.Level)
		}
		if b.ScoreMax < b.ScoreMin {
			return fmt.Errorf("%w: band %s has an inverted score range", ErrInvalidScale, b.Level)
		}
		if i > 0 && math.Abs(s.Bands[i-1].MasteryMax-b.MasteryMin) > eps {
			return fmt.Errorf("%w: band %s does not start where %s ends", ErrInvalidScale, b.Level, s.Bands[i-1].Level)
		}
	}
	return nil
}

// Band returns the band containing the aggregate mastery value. Values at or
// above 1 fall into the last band and values below 0 into the first.
func (s *ScoringScale) Band(aggregate float64) ScaleBand {
	for _, b := range s.Bands {
		if aggregate >= b.MasteryMin && aggregate < b.MasteryMax {
			return b
		}
	}
	if aggregate >= s.Bands[len(s.Bands)-1].MasteryMax {
		return s.Bands[len(s.Bands)-1]
	}
	return s.Bands[0]
}

// Estimate interpolates a score linearly inside the matching band.
func (s *ScoringScale) Estimate(aggregate float64) session.Estimate {
	b := s.Band(aggregate)
	normalized := (aggregate - b.MasteryMin) / (b.MasteryMax - b.MasteryMin)
	normalized = math.Max(0, math.Min(1, normalized))
	return session.Estimate{
		Level:    b.Level,
		ScoreMin: b.ScoreMin,
		ScoreMax: b.ScoreMax,
		Score:    b.ScoreMin + int(normalized*float64(b.ScoreMax-b.ScoreMin)),
		Advice:   append([]string(nil), b.Advice...),
	}
}
