// Package review manages a learner's repetition cards: enrollment, the due
// queue, SM-2 reviews, suspend/resume, deletion and deck statistics.
package review

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-assess/internal/domain"
	"github.com/phrazzld/scry-assess/internal/domain/srs"
	"github.com/phrazzld/scry-assess/internal/store"
)

// Paging limits for the due queue.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	DefaultMaxBatch = 500
)

// CreateCardRequest enrolls one catalog question. SkillID is optional; when
// set it must match the catalog.
type CreateCardRequest struct {
	QuestionID        int64  `json:"question_id" validate:"required,gt=0"`
	SkillID           int64  `json:"skill_id,omitempty" validate:"omitempty,gt=0"`
	CertificationCode string `json:"certification_code,omitempty" validate:"omitempty,max=32"`
	ClientID          string `json:"client_id,omitempty" validate:"omitempty,max=64"`
}

// DuePage is one page of the due queue, oldest-due first.
type DuePage struct {
	Cards []*domain.RepetitionCard `json:"cards"`
	Total int                      `json:"total"`
	Page  int                      `json:"page"`
	Size  int                      `json:"size"`
}

// Stats summarizes a learner's deck.
type Stats struct {
	Total          int                       `json:"total"`
	Due            int                       `json:"due"`
	ByStatus       map[domain.CardStatus]int `json:"by_status"`
	TotalReviews   int                       `json:"total_reviews"`
	CorrectReviews int                       `json:"correct_reviews"`
	Accuracy       float64                   `json:"accuracy"`
	AverageEase    float64                   `json:"average_ease"`
	GeneratedAt    time.Time                 `json:"generated_at"`
}

// Service defines the card operations. Cards owned by another user are
// reported as not found.
type Service interface {
	// CreateCard enrolls a question. It is idempotent per (user, question):
	// the boolean is false when an existing card is returned.
	CreateCard(ctx context.Context, userID uuid.UUID, req CreateCardRequest) (*domain.RepetitionCard, bool, error)

	// BulkCreate enrolls several questions in one transaction and returns
	// the cards in request order with the number newly created.
	BulkCreate(ctx context.Context, userID uuid.UUID, reqs []CreateCardRequest) ([]*domain.RepetitionCard, int, error)

	// ListCards lists the user's cards, optionally filtered.
	ListCards(ctx context.Context, userID uuid.UUID, filter store.CardFilter) ([]*domain.RepetitionCard, error)

	// GetDueCards pages through due cards. page is zero-based; size 0 means
	// DefaultPageSize.
	GetDueCards(ctx context.Context, userID uuid.UUID, page, size int) (*DuePage, error)

	// GetCard returns one card.
	GetCard(ctx context.Context, userID, cardID uuid.UUID) (*domain.RepetitionCard, error)

	// RecordReview applies a quality rating in [0,5].
	RecordReview(ctx context.Context, userID, cardID uuid.UUID, quality int) (*srs.ReviewResult, error)

	// SuspendCard removes a card from the due queue. Suspending twice is a no-op.
	SuspendCard(ctx context.Context, userID, cardID uuid.UUID) (*domain.RepetitionCard, error)

	// ResumeCard restores a suspended card. Resuming an active card is a no-op.
	ResumeCard(ctx context.Context, userID, cardID uuid.UUID) (*domain.RepetitionCard, error)

	// DeleteCard removes a card permanently.
	DeleteCard(ctx context.Context, userID, cardID uuid.UUID) error

	// Stats summarizes the deck.
	Stats(ctx context.Context, userID uuid.UUID) (*Stats, error)
}
