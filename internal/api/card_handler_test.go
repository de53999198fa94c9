package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-assess/internal/domain"
	"github.com/phrazzld/scry-assess/internal/domain/srs"
	"github.com/phrazzld/scry-assess/internal/service"
	"github.com/phrazzld/scry-assess/internal/service/cardsync"
	"github.com/phrazzld/scry-assess/internal/service/review"
	"github.com/phrazzld/scry-assess/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var cardNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func testCard(t *testing.T, userID uuid.UUID, questionID int64) *domain.RepetitionCard {
	t.Helper()
	card, err := domain.NewRepetitionCard(userID, questionID, 1, cardNow)
	require.NoError(t, err)
	return card
}

func TestCreateCard(t *testing.T) {
	t.Parallel()
	userID := uuid.New()

	tests := []struct {
		name       string
		body       string
		created    bool
		serviceErr error
		wantStatus int
		wantBody   string
	}{
		{"new card", `{"question_id":10,"certification_code":"TOEIC"}`, true, nil, http.StatusCreated, `"question_id":10`},
		{"already enrolled", `{"question_id":10}`, false, nil, http.StatusOK, `"question_id":10`},
		{"missing question", `{"skill_id":1}`, false, nil, http.StatusBadRequest, "Invalid QuestionID: required field"},
		{"unknown question", `{"question_id":999}`, false, service.ErrQuestionNotFound, http.StatusNotFound, "Question not found"},
		{"skill mismatch", `{"question_id":10,"skill_id":2}`, false, review.ErrSkillMismatch, http.StatusBadRequest, "Skill does not match"},
		{"empty body", ``, false, nil, http.StatusBadRequest, "Invalid request format"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			fake := &fakeReviews{createFn: func(_ context.Context, uid uuid.UUID, req review.CreateCardRequest) (*domain.RepetitionCard, bool, error) {
				if tc.serviceErr != nil {
					return nil, false, tc.serviceErr
				}
				card := testCard(t, uid, req.QuestionID)
				card.CertificationCode = req.CertificationCode
				return card, tc.created, nil
			}}

			rec := do(newTestRouter(userID, nil, fake, nil), http.MethodPost, "/cards", tc.body)
			assert.Equal(t, tc.wantStatus, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Body.String(), tc.wantBody)
		})
	}
}

func TestBulkCreateCards(t *testing.T) {
	t.Parallel()
	userID := uuid.New()

	var got []review.CreateCardRequest
	fake := &fakeReviews{bulkFn: func(_ context.Context, uid uuid.UUID, reqs []review.CreateCardRequest) ([]*domain.RepetitionCard, int, error) {
		got = reqs
		if len(reqs) > 3 {
			return nil, 0, fmt.Errorf("%w: at most 3 cards per request", domain.ErrValidation)
		}
		cards := make([]*domain.RepetitionCard, 0, len(reqs))
		for _, r := range reqs {
			cards = append(cards, testCard(t, uid, r.QuestionID))
		}
		return cards, 1, nil
	}}
	router := newTestRouter(userID, nil, fake, nil)

	rec := do(router, http.MethodPost, "/cards/bulk", `{"cards":[{"question_id":10},{"question_id":11}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body BulkCreateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Created)
	require.Len(t, body.Cards, 2)
	assert.Equal(t, int64(11), body.Cards[1].QuestionID)
	assert.Len(t, got, 2)

	rec = do(router, http.MethodPost, "/cards/bulk", `{"cards":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(router, http.MethodPost, "/cards/bulk", `{"cards":[{"question_id":0}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Cards[0].QuestionID")

	rec = do(router, http.MethodPost, "/cards/bulk",
		`{"cards":[{"question_id":1},{"question_id":2},{"question_id":3},{"question_id":4}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListCards(t *testing.T) {
	t.Parallel()
	userID := uuid.New()

	var got store.CardFilter
	fake := &fakeReviews{listFn: func(_ context.Context, _ uuid.UUID, filter store.CardFilter) ([]*domain.RepetitionCard, error) {
		got = filter
		return []*domain.RepetitionCard{}, nil
	}}
	router := newTestRouter(userID, nil, fake, nil)

	rec := do(router, http.MethodGet, "/cards?status=review&certification=TOEIC", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
	require.NotNil(t, got.Status)
	assert.Equal(t, domain.CardStatusReview, *got.Status)
	assert.Equal(t, "TOEIC", got.CertificationCode)

	rec = do(router, http.MethodGet, "/cards", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, got.Status)

	rec = do(router, http.MethodGet, "/cards?status=archived", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetDueCards(t *testing.T) {
	t.Parallel()
	userID := uuid.New()

	fake := &fakeReviews{dueFn: func(_ context.Context, uid uuid.UUID, page, size int) (*review.DuePage, error) {
		if page < 0 {
			return nil, fmt.Errorf("%w: page must be >= 0", domain.ErrValidation)
		}
		return &review.DuePage{Cards: []*domain.RepetitionCard{testCard(t, uid, 10)}, Total: 5, Page: page, Size: size}, nil
	}}
	router := newTestRouter(userID, nil, fake, nil)

	rec := do(router, http.MethodGet, "/cards/due?page=1&size=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body review.DuePage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 5, body.Total)
	assert.Equal(t, 1, body.Page)
	assert.Equal(t, 2, body.Size)

	assert.Equal(t, http.StatusBadRequest, do(router, http.MethodGet, "/cards/due?page=-1", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(router, http.MethodGet, "/cards/due?size=ten", "").Code)
}

func TestGetStats(t *testing.T) {
	t.Parallel()
	userID := uuid.New()
	fake := &fakeReviews{statsFn: func(context.Context, uuid.UUID) (*review.Stats, error) {
		return &review.Stats{
			Total: 4, Due: 2,
			ByStatus:     map[domain.CardStatus]int{domain.CardStatusNew: 2, domain.CardStatusReview: 2},
			TotalReviews: 10, CorrectReviews: 8, Accuracy: 0.8, AverageEase: 2.6,
			GeneratedAt: cardNow,
		}, nil
	}}

	rec := do(newTestRouter(userID, nil, fake, nil), http.MethodGet, "/cards/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(2), body["due"])
	assert.Equal(t, 0.8, body["accuracy"])
	assert.Equal(t, map[string]any{"NEW": float64(2), "REVIEW": float64(2)}, body["by_status"])
}

func TestCardLifecycleRoutes(t *testing.T) {
	t.Parallel()
	userID := uuid.New()
	card := testCard(t, userID, 10)
	missing := uuid.New()

	lookup := func(id uuid.UUID) (*domain.RepetitionCard, error) {
		if id == card.ID {
			return card.Clone(), nil
		}
		return nil, service.ErrCardNotFound
	}
	fake := &fakeReviews{
		getFn: func(_ context.Context, _ uuid.UUID, id uuid.UUID) (*domain.RepetitionCard, error) {
			return lookup(id)
		},
		suspendFn: func(_ context.Context, _ uuid.UUID, id uuid.UUID) (*domain.RepetitionCard, error) {
			c, err := lookup(id)
			if err != nil {
				return nil, err
			}
			prev := c.Status
			c.StatusBeforeSuspend = &prev
			c.Status = domain.CardStatusSuspended
			return c, nil
		},
		resumeFn: func(_ context.Context, _ uuid.UUID, id uuid.UUID) (*domain.RepetitionCard, error) {
			return lookup(id)
		},
		deleteFn: func(_ context.Context, _ uuid.UUID, id uuid.UUID) error {
			_, err := lookup(id)
			return err
		},
	}
	router := newTestRouter(userID, nil, fake, nil)
	base := "/cards/" + card.ID.String()

	tests := []struct {
		method     string
		path       string
		wantStatus int
		wantBody   string
	}{
		{http.MethodGet, base, http.StatusOK, card.ID.String()},
		{http.MethodGet, "/cards/" + missing.String(), http.StatusNotFound, "Card not found"},
		{http.MethodGet, "/cards/xyz", http.StatusBadRequest, "Invalid ID format"},
		{http.MethodPost, base + "/suspend", http.StatusOK, `"status":"SUSPENDED"`},
		{http.MethodPost, "/cards/" + missing.String() + "/suspend", http.StatusNotFound, "Card not found"},
		{http.MethodPost, base + "/resume", http.StatusOK, `"status":"NEW"`},
		{http.MethodDelete, base, http.StatusNoContent, ""},
		{http.MethodDelete, "/cards/" + missing.String(), http.StatusNotFound, "Card not found"},
	}
	for _, tc := range tests {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			rec := do(router, tc.method, tc.path, "")
			assert.Equal(t, tc.wantStatus, rec.Code, rec.Body.String())
			if tc.wantBody != "" {
				assert.Contains(t, rec.Body.String(), tc.wantBody)
			}
		})
	}
}

func TestRecordReview(t *testing.T) {
	t.Parallel()
	userID := uuid.New()
	card := testCard(t, userID, 10)

	tests := []struct {
		name        string
		body        string
		serviceErr  error
		wantStatus  int
		wantBody    string
		wantQuality int
	}{
		{"quality four", `{"quality":4}`, nil, http.StatusOK, `"new_interval"`, 4},
		{"explicit zero", `{"quality":0}`, nil, http.StatusOK, `"was_correct":false`, 0},
		{"missing quality", `{}`, nil, http.StatusBadRequest, "Invalid Quality: required field", -1},
		{"quality too high", `{"quality":6}`, nil, http.StatusBadRequest, "Invalid Quality: too large", -1},
		{"fractional quality", `{"quality":2.5}`, nil, http.StatusBadRequest, "Invalid request format", -1},
		{"suspended", `{"quality":3}`, srs.ErrCardSuspended, http.StatusConflict, "Card is suspended", 3},
		{"foreign card", `{"quality":3}`, service.ErrCardNotFound, http.StatusNotFound, "Card not found", 3},
		{"lost race", `{"quality":3}`, service.ErrConcurrentUpdate, http.StatusConflict, "retry", 3},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			called := -1
			fake := &fakeReviews{reviewFn: func(_ context.Context, _ uuid.UUID, id uuid.UUID, quality int) (*srs.ReviewResult, error) {
				called = quality
				if tc.serviceErr != nil {
					return nil, tc.serviceErr
				}
				next := card.Clone()
				next.TotalReviews = 1
				return &srs.ReviewResult{Card: next, Quality: quality, WasCorrect: quality >= 3, NewInterval: 1}, nil
			}}

			rec := do(newTestRouter(userID, nil, fake, nil), http.MethodPost,
				"/cards/"+card.ID.String()+"/review", tc.body)
			assert.Equal(t, tc.wantStatus, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Body.String(), tc.wantBody)
			assert.Equal(t, tc.wantQuality, called)
		})
	}
}

func TestSyncCards(t *testing.T) {
	t.Parallel()
	userID := uuid.New()
	server := testCard(t, userID, 10)
	server.SyncVersion = 3

	tests := []struct {
		name       string
		body       string
		serviceErr error
		wantStatus int
		wantBody   string
	}{
		{
			name: "conflict reported",
			body: fmt.Sprintf(`{"cards":[{"question_id":10,"ease_factor":2.5,"status":"REVIEW",
				"next_review_at":%q,"sync_version":2}]}`, cardNow.Format(time.RFC3339)),
			wantStatus: http.StatusOK,
			wantBody:   `"cards_conflicted":1`,
		},
		{
			name:       "empty payload",
			body:       `{"cards":[]}`,
			wantStatus: http.StatusOK,
		},
		{
			name: "bad ease factor",
			body: fmt.Sprintf(`{"cards":[{"question_id":10,"ease_factor":1.1,"status":"NEW",
				"next_review_at":%q}]}`, cardNow.Format(time.RFC3339)),
			wantStatus: http.StatusBadRequest,
			wantBody:   "Cards[0].EaseFactor",
		},
		{
			name: "unknown question",
			body: fmt.Sprintf(`{"cards":[{"question_id":999,"ease_factor":2.5,"status":"NEW",
				"next_review_at":%q}]}`, cardNow.Format(time.RFC3339)),
			serviceErr: fmt.Errorf("card 0: %w", cardsync.ErrUnknownQuestion),
			wantStatus: http.StatusBadRequest,
			wantBody:   "Unknown question",
		},
		{
			name:       "too many cards",
			body:       `{"cards":[]}`,
			serviceErr: cardsync.ErrBatchTooLarge,
			wantStatus: http.StatusBadRequest,
			wantBody:   "Too many cards",
		},
		{
			name:       "unexpected failure",
			body:       `{"cards":[]}`,
			serviceErr: errors.New("redis: connection pool timeout"),
			wantStatus: http.StatusInternalServerError,
			wantBody:   "Failed to sync cards",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			sync := fakeSync(func(_ context.Context, uid uuid.UUID, req cardsync.Request) (*cardsync.Response, error) {
				assert.Equal(t, userID, uid)
				if tc.serviceErr != nil {
					return nil, tc.serviceErr
				}
				resp := &cardsync.Response{
					ServerCards:   []*domain.RepetitionCard{},
					ConflictCards: []*domain.RepetitionCard{},
					SyncTimestamp: cardNow,
				}
				if len(req.Cards) > 0 {
					resp.ConflictCards = append(resp.ConflictCards, server)
					resp.CardsConflicted = 1
				}
				return resp, nil
			})

			rec := do(newTestRouter(userID, nil, nil, sync), http.MethodPost, "/cards/sync",
				strings.Join(strings.Fields(tc.body), " "))
			assert.Equal(t, tc.wantStatus, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Body.String(), tc.wantBody)
			assert.NotContains(t, rec.Body.String(), "redis")
		})
	}
}

func TestNewCardHandlerPanics(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() { NewCardHandler(nil, fakeSync(nil), discardLogger()) })
	assert.Panics(t, func() { NewCardHandler(&fakeReviews{}, fakeSync(nil), nil) })
}
