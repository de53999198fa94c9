package mocks_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/scry-assess/internal/domain"
	"github.com/phrazzld/scry-assess/internal/domain/srs"
	"github.com/phrazzld/scry-assess/internal/mocks"
	"github.com/phrazzld/scry-assess/internal/store"
)

func TestCardStoreListDueMatchesScheduler(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	userID := uuid.New()

	mk := func(questionID int64, due time.Time, status domain.CardStatus) *domain.RepetitionCard {
		c, err := domain.NewRepetitionCard(userID, questionID, 1, now.Add(-96*time.Hour))
		require.NoError(t, err)
		c.NextReviewAt = due
		c.Status = status
		return c
	}
	tie := now.Add(-time.Hour)
	cards := []*domain.RepetitionCard{
		mk(1, tie, domain.CardStatusReview),
		mk(2, tie, domain.CardStatusLearning),
		mk(3, now.Add(-48*time.Hour), domain.CardStatusSuspended),
		mk(4, now.Add(time.Hour), domain.CardStatusReview),
		mk(5, now.Add(-48*time.Hour), domain.CardStatusNew),
		mk(6, now, domain.CardStatusReview),
	}
	other, err := domain.NewRepetitionCard(uuid.New(), 7, 1, now.Add(-96*time.Hour))
	require.NoError(t, err)
	s := mocks.NewCardStore(append(cards, other)...)

	want := srs.SortDue(cards, now)
	require.Len(t, want, 4)

	tests := []struct {
		name string
		page store.Page
		want []*domain.RepetitionCard
	}{
		{"all", store.Page{}, want},
		{"first page", store.Page{Limit: 2}, want[:2]},
		{"second page", store.Page{Limit: 2, Offset: 2}, want[2:]},
		{"past the end", store.Page{Limit: 2, Offset: 10}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, total, err := s.ListDue(context.Background(), userID, now, tt.page)
			require.NoError(t, err)
			assert.Equal(t, 4, total)
			require.Len(t, got, len(tt.want))
			for i := range tt.want {
				assert.Equal(t, tt.want[i].ID, got[i].ID)
			}
		})
	}

	count, err := s.CountDue(context.Background(), userID, now)
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}
