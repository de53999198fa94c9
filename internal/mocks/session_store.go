package mocks

import (
	"bytes"
	"context"
	"database/sql"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-assess/internal/domain"
	"github.com/phrazzld/scry-assess/internal/store"
)

// SessionStore is an in-memory store.SessionStore enforcing one in-progress
// session per (user, mode) and version compare-and-swap on update.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*domain.Session

	// Err, when set, is returned by every method.
	Err error
}

var _ store.SessionStore = (*SessionStore)(nil)

// NewSessionStore creates a SessionStore seeded with sessions.
func NewSessionStore(sessions ...*domain.Session) *SessionStore {
	s := &SessionStore{sessions: make(map[uuid.UUID]*domain.Session)}
	for _, sess := range sessions {
		s.sessions[sess.ID] = sess.Clone()
	}
	return s
}

// WithTx implements store.SessionStore.
func (s *SessionStore) WithTx(*sql.Tx) store.SessionStore { return s }

// Get returns a copy of the stored session, or nil.
func (s *SessionStore) Get(id uuid.UUID) *domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		return sess.Clone()
	}
	return nil
}

// Create implements store.SessionStore.
func (s *SessionStore) Create(_ context.Context, sess *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if sess.Status == domain.SessionInProgress {
		for _, other := range s.sessions {
			if other.UserID == sess.UserID && other.Mode == sess.Mode && other.Status == domain.SessionInProgress {
				return store.ErrActiveSessionExists
			}
		}
	}
	s.sessions[sess.ID] = sess.Clone()
	return nil
}

// GetByID implements store.SessionStore.
func (s *SessionStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	sess, ok := s.sessions[id]
	if !ok {
		return nil, store.ErrSessionNotFound
	}
	return sess.Clone(), nil
}

// GetActive implements store.SessionStore.
func (s *SessionStore) GetActive(_ context.Context, userID uuid.UUID, mode domain.SessionMode) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	for _, sess := range s.sessions {
		if sess.UserID == userID && sess.Mode == mode && sess.Status == domain.SessionInProgress {
			return sess.Clone(), nil
		}
	}
	return nil, store.ErrSessionNotFound
}

// Update implements store.SessionStore.
func (s *SessionStore) Update(_ context.Context, sess *domain.Session, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	stored, ok := s.sessions[sess.ID]
	if !ok || stored.Version != expectedVersion {
		return store.ErrVersionConflict
	}
	s.sessions[sess.ID] = sess.Clone()
	return nil
}

// List implements store.SessionStore. Answers are not included.
func (s *SessionStore) List(
	_ context.Context,
	userID uuid.UUID,
	mode *domain.SessionMode,
	page store.Page,
) ([]*domain.Session, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, 0, s.Err
	}
	out := []*domain.Session{}
	for _, sess := range s.sessions {
		if sess.UserID != userID || (mode != nil && sess.Mode != *mode) {
			continue
		}
		c := sess.Clone()
		c.Answers = nil
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.After(out[j].StartTime)
		}
		return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0
	})
	total := len(out)
	start := min(page.Offset, total)
	end := total
	if page.Limit > 0 {
		end = min(start+page.Limit, total)
	}
	return out[start:end], total, nil
}
