package mocks

import (
	"context"
	"database/sql"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-assess/internal/domain"
	"github.com/phrazzld/scry-assess/internal/store"
)

type masteryKey struct {
	userID  uuid.UUID
	skillID int64
}

// MasteryStore is an in-memory store.MasteryStore.
type MasteryStore struct {
	mu      sync.Mutex
	records map[masteryKey]domain.SkillMastery

	// Err, when set, is returned by every method.
	Err error
}

var _ store.MasteryStore = (*MasteryStore)(nil)

// NewMasteryStore creates a MasteryStore seeded with records.
func NewMasteryStore(records ...domain.SkillMastery) *MasteryStore {
	s := &MasteryStore{records: make(map[masteryKey]domain.SkillMastery)}
	for _, m := range records {
		s.records[masteryKey{m.UserID, m.SkillID}] = m
	}
	return s
}

// WithTx implements store.MasteryStore.
func (s *MasteryStore) WithTx(*sql.Tx) store.MasteryStore { return s }

// Get implements store.MasteryStore.
func (s *MasteryStore) Get(_ context.Context, userID uuid.UUID, skillID int64) (*domain.SkillMastery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	m, ok := s.records[masteryKey{userID, skillID}]
	if !ok {
		return nil, store.ErrMasteryNotFound
	}
	return &m, nil
}

// GetForUpdate implements store.MasteryStore.
func (s *MasteryStore) GetForUpdate(ctx context.Context, userID uuid.UUID, skillID int64) (*domain.SkillMastery, error) {
	return s.Get(ctx, userID, skillID)
}

// ListByUser implements store.MasteryStore.
func (s *MasteryStore) ListByUser(_ context.Context, userID uuid.UUID) ([]*domain.SkillMastery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	out := []*domain.SkillMastery{}
	for k, m := range s.records {
		if k.userID == userID {
			m := m
			out = append(out, &m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SkillID < out[j].SkillID })
	return out, nil
}

// ListForSkills implements store.MasteryStore.
func (s *MasteryStore) ListForSkills(
	_ context.Context,
	userID uuid.UUID,
	skillIDs []int64,
) (map[int64]*domain.SkillMastery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	out := make(map[int64]*domain.SkillMastery, len(skillIDs))
	for _, id := range skillIDs {
		if m, ok := s.records[masteryKey{userID, id}]; ok {
			m := m
			out[id] = &m
		}
	}
	return out, nil
}

// Upsert implements store.MasteryStore.
func (s *MasteryStore) Upsert(_ context.Context, m *domain.SkillMastery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if err := m.Validate(); err != nil {
		return err
	}
	s.records[masteryKey{m.UserID, m.SkillID}] = *m
	return nil
}
