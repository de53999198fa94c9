package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-assess/internal/domain"
)

// SessionStore persists adaptive sessions and their answer log.
type SessionStore interface {
	// Create inserts a new session. Returns ErrActiveSessionExists when the
	// user already has an IN_PROGRESS session of the same mode.
	Create(ctx context.Context, s *domain.Session) error

	// GetByID loads the session with its answers, or ErrSessionNotFound.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Session, error)

	// GetActive returns the IN_PROGRESS session of the mode, or
	// ErrSessionNotFound.
	GetActive(ctx context.Context, userID uuid.UUID, mode domain.SessionMode) (*domain.Session, error)

	// Update writes the session row if the stored version equals
	// expectedVersion, and appends answers not yet persisted. Returns
	// ErrVersionConflict on mismatch.
	Update(ctx context.Context, s *domain.Session, expectedVersion int) error

	// List returns a page of the user's sessions, newest first, without
	// answers, and the total count. A nil mode matches both modes.
	List(ctx context.Context, userID uuid.UUID, mode *domain.SessionMode, page Page) ([]*domain.Session, int, error)

	// WithTx returns a SessionStore that runs its queries on tx.
	WithTx(tx *sql.Tx) SessionStore
}
