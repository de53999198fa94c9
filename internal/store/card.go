package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-assess/internal/domain"
)

// CardFilter narrows ListByUser. Zero fields match everything.
type CardFilter struct {
	Status            *domain.CardStatus
	CertificationCode string
}

// Page is a limit/offset window.
type Page struct {
	Limit  int
	Offset int
}

// CardCounts aggregates a user's cards for the stats endpoint.
type CardCounts struct {
	Total          int
	ByStatus       map[domain.CardStatus]int
	TotalReviews   int
	CorrectReviews int
	AverageEase    float64
}

// CardStore defines the interface for repetition card persistence.
type CardStore interface {
	// Create inserts a new card. Returns ErrCardExists when the user already
	// has a card for the question.
	Create(ctx context.Context, card *domain.RepetitionCard) error

	// GetByID returns ErrCardNotFound if the card does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.RepetitionCard, error)

	// GetByQuestion returns the user's card for a question, or ErrCardNotFound.
	GetByQuestion(ctx context.Context, userID uuid.UUID, questionID int64) (*domain.RepetitionCard, error)

	// ListByUser returns all matching cards ordered by creation time.
	ListByUser(ctx context.Context, userID uuid.UUID, filter CardFilter) ([]*domain.RepetitionCard, error)

	// ListDue returns a page of non-suspended cards due at now, ordered by
	// next_review_at then id, together with the total number due.
	ListDue(ctx context.Context, userID uuid.UUID, now time.Time, page Page) ([]*domain.RepetitionCard, int, error)

	// ListUpdatedSince returns cards updated strictly after since, or every
	// card when since is nil.
	ListUpdatedSince(ctx context.Context, userID uuid.UUID, since *time.Time) ([]*domain.RepetitionCard, error)

	// UpdateIfVersion writes card only if the stored sync_version equals
	// expectedVersion. Returns ErrVersionConflict on mismatch and
	// ErrCardNotFound if the row is gone.
	UpdateIfVersion(ctx context.Context, card *domain.RepetitionCard, expectedVersion int) error

	// Delete removes a card. Returns ErrCardNotFound if the card does not exist.
	Delete(ctx context.Context, id uuid.UUID) error

	// Counts returns totals per status and review aggregates.
	Counts(ctx context.Context, userID uuid.UUID) (*CardCounts, error)

	// CountDue returns the number of non-suspended cards due at now.
	CountDue(ctx context.Context, userID uuid.UUID, now time.Time) (int, error)

	// WithTx returns a CardStore that runs its queries on tx.
	WithTx(tx *sql.Tx) CardStore
}
