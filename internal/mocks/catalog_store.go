package mocks

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/phrazzld/scry-assess/internal/domain"
	"github.com/phrazzld/scry-assess/internal/store"
)

// CatalogStore is an in-memory store.CatalogStore. SampleUnseen is
// deterministic: it returns the lowest-id eligible question.
type CatalogStore struct {
	mu        sync.Mutex
	skills    map[int64]domain.Skill
	questions map[int64]domain.Question

	// Err, when set, is returned by every method.
	Err error
}

var _ store.CatalogStore = (*CatalogStore)(nil)

// NewCatalogStore creates an empty catalog.
func NewCatalogStore() *CatalogStore {
	return &CatalogStore{
		skills:    make(map[int64]domain.Skill),
		questions: make(map[int64]domain.Question),
	}
}

// AddSkill registers a skill.
func (s *CatalogStore) AddSkill(sk domain.Skill) *CatalogStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skills[sk.ID] = sk
	return s
}

// AddQuestion registers a question. Its category defaults to the skill's.
func (s *CatalogStore) AddQuestion(q domain.Question) *CatalogStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q.Category == "" {
		q.Category = s.skills[q.SkillID].Category
	}
	s.questions[q.ID] = q
	return s
}

// GetQuestion implements store.CatalogStore.
func (s *CatalogStore) GetQuestion(_ context.Context, id int64) (*domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	q, ok := s.questions[id]
	if !ok {
		return nil, store.ErrQuestionNotFound
	}
	return &q, nil
}

// SampleUnseen implements store.CatalogStore.
func (s *CatalogStore) SampleUnseen(
	_ context.Context,
	skillID int64,
	exclude []int64,
	certificationCode string,
) (*domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var best *domain.Question
	for _, q := range s.questions {
		if q.SkillID != skillID || slices.Contains(exclude, q.ID) {
			continue
		}
		if certificationCode != "" && q.CertificationCode != certificationCode {
			continue
		}
		if best == nil || q.ID < best.ID {
			q := q
			best = &q
		}
	}
	if best == nil {
		return nil, store.ErrQuestionNotFound
	}
	return best, nil
}

// ListSkills implements store.CatalogStore.
func (s *CatalogStore) ListSkills(_ context.Context, filter store.SkillFilter) ([]domain.Skill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	out := []domain.Skill{}
	for _, sk := range s.skills {
		if len(filter.Categories) > 0 && !slices.Contains(filter.Categories, sk.Category) {
			continue
		}
		hasQuestion := false
		for _, q := range s.questions {
			if q.SkillID == sk.ID && (filter.CertificationCode == "" || q.CertificationCode == filter.CertificationCode) {
				hasQuestion = true
				break
			}
		}
		if hasQuestion {
			out = append(out, sk)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetSkills implements store.CatalogStore.
func (s *CatalogStore) GetSkills(_ context.Context, ids []int64) (map[int64]domain.Skill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	out := make(map[int64]domain.Skill, len(ids))
	for _, id := range ids {
		if sk, ok := s.skills[id]; ok {
			out[id] = sk
		}
	}
	return out, nil
}
