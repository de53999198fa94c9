package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-assess/internal/domain"
)

// MasteryStore persists per-(user, skill) mastery records. Records are never
// deleted.
type MasteryStore interface {
	// Get returns ErrMasteryNotFound if the pair has no record yet.
	Get(ctx context.Context, userID uuid.UUID, skillID int64) (*domain.SkillMastery, error)

	// GetForUpdate is Get with a row lock; it must run inside a transaction.
	GetForUpdate(ctx context.Context, userID uuid.UUID, skillID int64) (*domain.SkillMastery, error)

	// ListByUser returns every record of the user ordered by skill id.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.SkillMastery, error)

	// ListForSkills returns the records that exist for the given skills.
	ListForSkills(ctx context.Context, userID uuid.UUID, skillIDs []int64) (map[int64]*domain.SkillMastery, error)

	// Upsert inserts or replaces the record.
	Upsert(ctx context.Context, m *domain.SkillMastery) error

	// WithTx returns a MasteryStore that runs its queries on tx.
	WithTx(tx *sql.Tx) MasteryStore
}
