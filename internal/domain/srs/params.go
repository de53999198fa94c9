package srs

import (
	"time"

	"github.com/phrazzld/scry-assess/internal/domain"
)

// Params defines all configurable parameters for the SM-2 scheduler
type Params struct {
	// Ease factor limits
	InitialEaseFactor float64
	MinEaseFactor     float64

	// Quality threshold separating a lapse from a successful recall
	PassingQuality int

	// Fixed intervals for the first two successful repetitions
	FirstInterval  int
	SecondInterval int

	// Lapses always reschedule after this many days
	LapseInterval int

	// Number of most recent qualities kept on each card
	HistoryLimit int

	// Calendar used for day arithmetic and due comparisons
	Location *time.Location
}

// ParamsConfig allows overriding the default parameters when creating a new Params instance
type ParamsConfig struct {
	InitialEaseFactor float64
	MinEaseFactor     float64
	PassingQuality    int
	FirstInterval     int
	SecondInterval    int
	LapseInterval     int
	HistoryLimit      int
	Location          *time.Location
}

// NewDefaultParams creates a new Params instance with the classic SM-2 values
func NewDefaultParams() *Params {
	return &Params{
		InitialEaseFactor: domain.DefaultEaseFactor,
		MinEaseFactor:     domain.MinEaseFactor,
		PassingQuality:    3,
		FirstInterval:     1,
		SecondInterval:    6,
		LapseInterval:     1,
		HistoryLimit:      20,
		Location:          time.UTC,
	}
}

// NewParams creates a new Params instance with custom configuration.
// Zero values in config keep the default.
func NewParams(config ParamsConfig) *Params {
	params := NewDefaultParams()

	if config.InitialEaseFactor > 0 {
		params.InitialEaseFactor = config.InitialEaseFactor
	}
	if config.MinEaseFactor > 0 {
		params.MinEaseFactor = config.MinEaseFactor
	}
	if config.PassingQuality > 0 && config.PassingQuality <= domain.MaxQuality {
		params.PassingQuality = config.PassingQuality
	}
	if config.FirstInterval > 0 {
		params.FirstInterval = config.FirstInterval
	}
	if config.SecondInterval > 0 {
		params.SecondInterval = config.SecondInterval
	}
	if config.LapseInterval > 0 {
		params.LapseInterval = config.LapseInterval
	}
	if config.HistoryLimit > 0 {
		params.HistoryLimit = config.HistoryLimit
	}
	if config.Location != nil {
		params.Location = config.Location
	}

	return params
}
