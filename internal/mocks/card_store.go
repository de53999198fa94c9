package mocks

import (
	"bytes"
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-assess/internal/domain"
	"github.com/phrazzld/scry-assess/internal/domain/srs"
	"github.com/phrazzld/scry-assess/internal/store"
)

// CardStore is an in-memory store.CardStore.
type CardStore struct {
	mu    sync.Mutex
	cards map[uuid.UUID]*domain.RepetitionCard

	// BeforeUpdate runs inside UpdateIfVersion before the version check and
	// may mutate the stored card to simulate a concurrent writer.
	BeforeUpdate func(stored *domain.RepetitionCard)

	// Err, when set, is returned by every method.
	Err error

	UpdateCalls int
}

var _ store.CardStore = (*CardStore)(nil)

// NewCardStore creates a CardStore seeded with cards.
func NewCardStore(cards ...*domain.RepetitionCard) *CardStore {
	s := &CardStore{cards: make(map[uuid.UUID]*domain.RepetitionCard)}
	for _, c := range cards {
		s.cards[c.ID] = c.Clone()
	}
	return s
}

// WithTx implements store.CardStore.
func (s *CardStore) WithTx(*sql.Tx) store.CardStore { return s }

// Get returns a copy of the stored card, or nil.
func (s *CardStore) Get(id uuid.UUID) *domain.RepetitionCard {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.cards[id]; ok {
		return c.Clone()
	}
	return nil
}

// Len returns the number of stored cards.
func (s *CardStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cards)
}

// Create implements store.CardStore.
func (s *CardStore) Create(_ context.Context, card *domain.RepetitionCard) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if err := card.Validate(); err != nil {
		return err
	}
	for _, c := range s.cards {
		if c.UserID == card.UserID && c.QuestionID == card.QuestionID {
			return store.ErrCardExists
		}
	}
	s.cards[card.ID] = card.Clone()
	return nil
}

// GetByID implements store.CardStore.
func (s *CardStore) GetByID(_ context.Context, id uuid.UUID) (*domain.RepetitionCard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	c, ok := s.cards[id]
	if !ok {
		return nil, store.ErrCardNotFound
	}
	return c.Clone(), nil
}

// GetByQuestion implements store.CardStore.
func (s *CardStore) GetByQuestion(_ context.Context, userID uuid.UUID, questionID int64) (*domain.RepetitionCard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	for _, c := range s.cards {
		if c.UserID == userID && c.QuestionID == questionID {
			return c.Clone(), nil
		}
	}
	return nil, store.ErrCardNotFound
}

// ListByUser implements store.CardStore.
func (s *CardStore) ListByUser(_ context.Context, userID uuid.UUID, filter store.CardFilter) ([]*domain.RepetitionCard, error) {
	return s.collect(userID, func(c *domain.RepetitionCard) bool {
		if filter.Status != nil && c.Status != *filter.Status {
			return false
		}
		return filter.CertificationCode == "" || c.CertificationCode == filter.CertificationCode
	}, func(a, b *domain.RepetitionCard) bool {
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return bytes.Compare(a.ID[:], b.ID[:]) < 0
	})
}

// ListDue implements store.CardStore.
func (s *CardStore) ListDue(
	_ context.Context,
	userID uuid.UUID,
	now time.Time,
	page store.Page,
) ([]*domain.RepetitionCard, int, error) {
	owned, err := s.collect(userID, func(*domain.RepetitionCard) bool { return true }, nil)
	if err != nil {
		return nil, 0, err
	}
	due := srs.SortDue(owned, now)
	total := len(due)
	start := min(page.Offset, total)
	end := total
	if page.Limit > 0 {
		end = min(start+page.Limit, total)
	}
	return due[start:end], total, nil
}

// CountDue implements store.CardStore.
func (s *CardStore) CountDue(ctx context.Context, userID uuid.UUID, now time.Time) (int, error) {
	_, total, err := s.ListDue(ctx, userID, now, store.Page{})
	return total, err
}

// ListUpdatedSince implements store.CardStore.
func (s *CardStore) ListUpdatedSince(_ context.Context, userID uuid.UUID, since *time.Time) ([]*domain.RepetitionCard, error) {
	return s.collect(userID, func(c *domain.RepetitionCard) bool {
		return since == nil || c.UpdatedAt.After(*since)
	}, func(a, b *domain.RepetitionCard) bool {
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.Before(b.UpdatedAt)
		}
		return bytes.Compare(a.ID[:], b.ID[:]) < 0
	})
}

// UpdateIfVersion implements store.CardStore.
func (s *CardStore) UpdateIfVersion(_ context.Context, card *domain.RepetitionCard, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UpdateCalls++
	if s.Err != nil {
		return s.Err
	}
	if err := card.Validate(); err != nil {
		return err
	}
	stored, ok := s.cards[card.ID]
	if !ok {
		return store.ErrCardNotFound
	}
	if s.BeforeUpdate != nil {
		s.BeforeUpdate(stored)
	}
	if stored.SyncVersion != expectedVersion {
		return store.ErrVersionConflict
	}
	s.cards[card.ID] = card.Clone()
	return nil
}

// Delete implements store.CardStore.
func (s *CardStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if _, ok := s.cards[id]; !ok {
		return store.ErrCardNotFound
	}
	delete(s.cards, id)
	return nil
}

// Counts implements store.CardStore.
func (s *CardStore) Counts(_ context.Context, userID uuid.UUID) (*store.CardCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	counts := &store.CardCounts{ByStatus: map[domain.CardStatus]int{}}
	var easeSum float64
	for _, c := range s.cards {
		if c.UserID != userID {
			continue
		}
		counts.Total++
		counts.ByStatus[c.Status]++
		counts.TotalReviews += c.TotalReviews
		counts.CorrectReviews += c.CorrectReviews
		easeSum += c.EaseFactor
	}
	if counts.Total > 0 {
		counts.AverageEase = easeSum / float64(counts.Total)
	}
	return counts, nil
}

func (s *CardStore) collect(
	userID uuid.UUID,
	keep func(*domain.RepetitionCard) bool,
	less func(a, b *domain.RepetitionCard) bool,
) ([]*domain.RepetitionCard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	out := []*domain.RepetitionCard{}
	for _, c := range s.cards {
		if c.UserID == userID && keep(c) {
			out = append(out, c.Clone())
		}
	}
	if less != nil {
		sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	}
	return out, nil
}
