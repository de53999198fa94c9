package srs

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/phrazzld/scry-assess/internal/domain"
)

// Common errors
var (
	ErrNilCard        = errors.New("repetition card cannot be nil")
	ErrInvalidQuality = fmt.Errorf("%w: quality must be an integer within [0,5]", domain.ErrValidation)
	ErrCardSuspended  = fmt.Errorf("%w: card is suspended", domain.ErrInvalidState)
)

// ReviewResult describes the outcome of one review.
type ReviewResult struct {
	Card             *domain.RepetitionCard `json:"card"`
	Quality          int                    `json:"quality"`
	WasCorrect       bool                   `json:"was_correct"`
	PreviousInterval int                    `json:"previous_interval"`
	NewInterval      int                    `json:"new_interval"`
	PreviousEase     float64                `json:"previous_ease_factor"`
	NewEase          float64                `json:"new_ease_factor"`
	IsDue            bool                   `json:"is_due"`
	DaysUntilReview  int                    `json:"days_until_review"`
}

// Service defines the interface for scheduler operations. All methods are
// pure: they take the current card and the current time and return new values.
type Service interface {
	// NewCard creates a fresh NEW card using the configured initial ease.
	NewCard(card *domain.RepetitionCard) *domain.RepetitionCard

	// RecordReview applies a quality rating to a card.
	RecordReview(
		card *domain.RepetitionCard,
		quality int,
		now time.Time,
	) (*domain.RepetitionCard, *ReviewResult, error)

	// Suspend moves a card to SUSPENDED, remembering its previous status.
	// The second return value is false when the card was already suspended.
	Suspend(card *domain.RepetitionCard, now time.Time) (*domain.RepetitionCard, bool, error)

	// Resume restores the status held before suspension.
	// The second return value is false when the card was not suspended.
	Resume(card *domain.RepetitionCard, now time.Time) (*domain.RepetitionCard, bool, error)

	// IsDue reports whether the card is active and its review time has passed.
	IsDue(card *domain.RepetitionCard, now time.Time) bool

	// DaysUntilReview counts calendar days until the card is due.
	DaysUntilReview(card *domain.RepetitionCard, now time.Time) int

	// SortDue filters due cards and orders them oldest-due first, ties by id.
	SortDue(cards []*domain.RepetitionCard, now time.Time) []*domain.RepetitionCard

	// Location returns the calendar used for day arithmetic.
	Location() *time.Location
}

// defaultService is the standard implementation of the Service interface
type defaultService struct {
	params *Params
}

// NewDefaultService creates a new scheduler with default parameters
func NewDefaultService() Service {
	return &defaultService{
		params: NewDefaultParams(),
	}
}

// NewServiceWithParams creates a new scheduler with custom parameters
func NewServiceWithParams(params *Params) Service {
	if params == nil {
		params = NewDefaultParams()
	}
	return &defaultService{
		params: params,
	}
}

// NewCard implements Service.NewCard
func (s *defaultService) NewCard(card *domain.RepetitionCard) *domain.RepetitionCard {
	out := card.Clone()
	out.EaseFactor = s.params.InitialEaseFactor
	return out
}

// RecordReview implements Service.RecordReview
func (s *defaultService) RecordReview(
	card *domain.RepetitionCard,
	quality int,
	now time.Time,
) (*domain.RepetitionCard, *ReviewResult, error) {
	if card == nil {
		return nil, nil, ErrNilCard
	}
	if quality < domain.MinQuality || quality > domain.MaxQuality {
		return nil, nil, ErrInvalidQuality
	}
	if card.Status == domain.CardStatusSuspended {
		return nil, nil, ErrCardSuspended
	}

	next := calculateNextCard(card, quality, now, s.params)

	result := &ReviewResult{
		Card:             next,
		Quality:          quality,
		WasCorrect:       quality >= s.params.PassingQuality,
		PreviousInterval: card.IntervalDays,
		NewInterval:      next.IntervalDays,
		PreviousEase:     card.EaseFactor,
		NewEase:          next.EaseFactor,
		IsDue:            s.IsDue(next, now),
		DaysUntilReview:  s.DaysUntilReview(next, now),
	}
	return next, result, nil
}

// Suspend implements Service.Suspend
func (s *defaultService) Suspend(card *domain.RepetitionCard, now time.Time) (*domain.RepetitionCard, bool, error) {
	if card == nil {
		return nil, false, ErrNilCard
	}
	if card.Status == domain.CardStatusSuspended {
		return card.Clone(), false, nil
	}

	next := card.Clone()
	prev := card.Status
	next.StatusBeforeSuspend = &prev
	next.Status = domain.CardStatusSuspended
	next.SyncVersion++
	next.UpdatedAt = now
	return next, true, nil
}

// Resume implements Service.Resume
func (s *defaultService) Resume(card *domain.RepetitionCard, now time.Time) (*domain.RepetitionCard, bool, error) {
	if card == nil {
		return nil, false, ErrNilCard
	}
	if card.Status != domain.CardStatusSuspended {
		return card.Clone(), false, nil
	}

	next := card.Clone()
	next.Status = domain.CardStatusNew
	if card.StatusBeforeSuspend != nil {
		next.Status = *card.StatusBeforeSuspend
	}
	next.StatusBeforeSuspend = nil
	next.SyncVersion++
	next.UpdatedAt = now
	return next, true, nil
}

// IsDue implements Service.IsDue
func (s *defaultService) IsDue(card *domain.RepetitionCard, now time.Time) bool {
	return IsDue(card, now)
}

// IsDue reports whether card is active and due at now.
func IsDue(card *domain.RepetitionCard, now time.Time) bool {
	return card.Status != domain.CardStatusSuspended && !card.NextReviewAt.After(now)
}

// DaysUntilReview implements Service.DaysUntilReview
func (s *defaultService) DaysUntilReview(card *domain.RepetitionCard, now time.Time) int {
	return daysUntil(card.NextReviewAt, now, s.params.Location)
}

// SortDue implements Service.SortDue
func (s *defaultService) SortDue(cards []*domain.RepetitionCard, now time.Time) []*domain.RepetitionCard {
	return SortDue(cards, now)
}

// SortDue keeps the cards due at now, oldest-due first with ties broken by
// id. Stores that page due cards must return them in this order.
func SortDue(cards []*domain.RepetitionCard, now time.Time) []*domain.RepetitionCard {
	due := make([]*domain.RepetitionCard, 0, len(cards))
	for _, c := range cards {
		if c != nil && IsDue(c, now) {
			due = append(due, c)
		}
	}
	sort.SliceStable(due, func(i, j int) bool {
		if !due[i].NextReviewAt.Equal(due[j].NextReviewAt) {
			return due[i].NextReviewAt.Before(due[j].NextReviewAt)
		}
		return bytes.Compare(due[i].ID[:], due[j].ID[:]) < 0
	})
	return due
}

// Location implements Service.Location
func (s *defaultService) Location() *time.Location {
	return s.params.Location
}
