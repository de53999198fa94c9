package srs

import (
	"math"
	"time"

	"github.com/phrazzld/scry-assess/internal/domain"
)

// calculateNewEaseFactor applies the SM-2 ease update for a quality rating.
//
// The update is applied on every review, lapses included:
//
//	EF' = max(min, EF + (0.1 - (5-q) * (0.08 + (5-q) * 0.02)))
//
// A quality of 5 raises the ease by 0.1, 4 leaves it unchanged, and anything
// lower reduces it, never below params.MinEaseFactor.
func calculateNewEaseFactor(currentEF float64, quality int, params *Params) float64 {
	d := float64(domain.MaxQuality - quality)
	newEF := currentEF + (0.1 - d*(0.08+d*0.02))

	if newEF < params.MinEaseFactor {
		newEF = params.MinEaseFactor
	}
	return newEF
}

// calculateNewInterval returns the interval in days for the given repetition
// count after a successful review.
//
// Parameters:
//   - repetitions: the repetition count after this review was counted
//   - previousInterval: the interval the card held before this review
//   - easeFactor: the ease factor held by the card when it was reviewed
//   - params: scheduler parameters
//
// The first and second successful repetitions use fixed intervals. Later
// repetitions grow the previous interval by the ease factor, rounded to the
// nearest day. The result is never shorter than one day.
func calculateNewInterval(repetitions, previousInterval int, easeFactor float64, params *Params) int {
	switch repetitions {
	case 1:
		return params.FirstInterval
	case 2:
		return params.SecondInterval
	}

	interval := int(math.Round(float64(previousInterval) * easeFactor))
	if interval < 1 {
		interval = 1
	}
	return interval
}

// calculateNextReviewDate adds whole calendar days to the review time in the
// scheduler's location, so a review at 23:00 local time lands at 23:00 local
// time intervalDays later regardless of DST transitions.
func calculateNextReviewDate(reviewedAt time.Time, intervalDays int, params *Params) time.Time {
	return reviewedAt.In(params.Location).AddDate(0, 0, intervalDays)
}

// appendQuality appends q to history keeping only the newest limit entries.
func appendQuality(history []int, q int, limit int) []int {
	out := append(append([]int(nil), history...), q)
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// calculateNextCard returns a new card reflecting one review. The input card
// is never modified.
func calculateNextCard(card *domain.RepetitionCard, quality int, now time.Time, params *Params) *domain.RepetitionCard {
	next := card.Clone()
	reviewedAt := now.In(params.Location)

	if quality < params.PassingQuality {
		next.Repetitions = 0
		next.IntervalDays = params.LapseInterval
		next.Status = domain.CardStatusLearning
		next.Streak = 0
	} else {
		next.Repetitions++
		next.Streak++
		next.IntervalDays = calculateNewInterval(next.Repetitions, card.IntervalDays, card.EaseFactor, params)
		next.Status = domain.CardStatusReview
		next.CorrectReviews++
	}

	next.EaseFactor = calculateNewEaseFactor(card.EaseFactor, quality, params)
	next.TotalReviews++
	next.LastQuality = &quality
	next.QualityHistory = appendQuality(card.QualityHistory, quality, params.HistoryLimit)
	next.LastReviewedAt = &reviewedAt
	next.NextReviewAt = calculateNextReviewDate(reviewedAt, next.IntervalDays, params)
	next.SyncVersion++
	next.UpdatedAt = reviewedAt

	return next
}

// daysUntil counts calendar days from now to target in the given location.
// Negative values mean the target date has passed.
func daysUntil(target, now time.Time, loc *time.Location) int {
	ty, tm, td := target.In(loc).Date()
	ny, nm, nd := now.In(loc).Date()
	t := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	n := time.Date(ny, nm, nd, 0, 0, 0, 0, time.UTC)
	return int(t.Sub(n).Hours() / 24)
}
