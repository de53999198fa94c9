package store

import (
	"context"

	"github.com/phrazzld/scry-assess/internal/domain"
)

// SkillFilter narrows the skills a session draws from. Zero fields match
// everything.
type SkillFilter struct {
	CertificationCode string
	Categories        []string
}

// CatalogStore is read-only access to the question catalog.
type CatalogStore interface {
	// GetQuestion returns ErrQuestionNotFound if the question does not exist.
	GetQuestion(ctx context.Context, id int64) (*domain.Question, error)

	// SampleUnseen returns a random question of the skill whose id is not in
	// exclude, or ErrQuestionNotFound when none is left.
	SampleUnseen(ctx context.Context, skillID int64, exclude []int64, certificationCode string) (*domain.Question, error)

	// ListSkills returns skills that have at least one question matching the
	// filter, ordered by id.
	ListSkills(ctx context.Context, filter SkillFilter) ([]domain.Skill, error)

	// GetSkills returns the skills with the given ids keyed by id.
	GetSkills(ctx context.Context, ids []int64) (map[int64]domain.Skill, error)
}
