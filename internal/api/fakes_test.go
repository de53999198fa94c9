package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/scry-assess/internal/api/middleware"
	"github.com/phrazzld/scry-assess/internal/domain"
	"github.com/phrazzld/scry-assess/internal/domain/session"
	"github.com/phrazzld/scry-assess/internal/domain/srs"
	"github.com/phrazzld/scry-assess/internal/service/assessment"
	"github.com/phrazzld/scry-assess/internal/service/auth"
	"github.com/phrazzld/scry-assess/internal/service/cardsync"
	"github.com/phrazzld/scry-assess/internal/service/review"
	"github.com/phrazzld/scry-assess/internal/store"
)

// fakeSessions is an assessment.Service whose behavior is set per test.
type fakeSessions struct {
	startFn   func(ctx context.Context, userID uuid.UUID, mode domain.SessionMode, cfg domain.SessionConfig) (*domain.Session, error)
	restartFn func(ctx context.Context, userID uuid.UUID, mode domain.SessionMode, cfg domain.SessionConfig) (*domain.Session, error)
	nextFn    func(ctx context.Context, userID, sessionID uuid.UUID) (*domain.Question, error)
	answerFn  func(ctx context.Context, userID, sessionID uuid.UUID, req assessment.AnswerRequest) (*assessment.AnswerResult, error)
	finishFn  func(ctx context.Context, userID, sessionID uuid.UUID) (*session.Result, error)
	abandonFn func(ctx context.Context, userID, sessionID uuid.UUID) (*domain.Session, error)
	activeFn  func(ctx context.Context, userID uuid.UUID, mode domain.SessionMode) (*domain.Session, error)
	getFn     func(ctx context.Context, userID, sessionID uuid.UUID) (*domain.Session, error)
	listFn    func(ctx context.Context, userID uuid.UUID, mode *domain.SessionMode, page, size int) (*assessment.SessionPage, error)
	masteryFn func(ctx context.Context, userID uuid.UUID) ([]assessment.MasteryView, error)
}

var _ assessment.Service = (*fakeSessions)(nil)

func (f *fakeSessions) StartSession(ctx context.Context, userID uuid.UUID, mode domain.SessionMode, cfg domain.SessionConfig) (*domain.Session, error) {
	return f.startFn(ctx, userID, mode, cfg)
}

func (f *fakeSessions) RestartSession(ctx context.Context, userID uuid.UUID, mode domain.SessionMode, cfg domain.SessionConfig) (*domain.Session, error) {
	return f.restartFn(ctx, userID, mode, cfg)
}

func (f *fakeSessions) GetNextQuestion(ctx context.Context, userID, sessionID uuid.UUID) (*domain.Question, error) {
	return f.nextFn(ctx, userID, sessionID)
}

func (f *fakeSessions) SubmitAnswer(ctx context.Context, userID, sessionID uuid.UUID, req assessment.AnswerRequest) (*assessment.AnswerResult, error) {
	return f.answerFn(ctx, userID, sessionID, req)
}

func (f *fakeSessions) FinishSession(ctx context.Context, userID, sessionID uuid.UUID) (*session.Result, error) {
	return f.finishFn(ctx, userID, sessionID)
}

func (f *fakeSessions) AbandonSession(ctx context.Context, userID, sessionID uuid.UUID) (*domain.Session, error) {
	return f.abandonFn(ctx, userID, sessionID)
}

func (f *fakeSessions) GetActiveSession(ctx context.Context, userID uuid.UUID, mode domain.SessionMode) (*domain.Session, error) {
	return f.activeFn(ctx, userID, mode)
}

func (f *fakeSessions) GetSession(ctx context.Context, userID, sessionID uuid.UUID) (*domain.Session, error) {
	return f.getFn(ctx, userID, sessionID)
}

func (f *fakeSessions) ListSessions(ctx context.Context, userID uuid.UUID, mode *domain.SessionMode, page, size int) (*assessment.SessionPage, error) {
	return f.listFn(ctx, userID, mode, page, size)
}

func (f *fakeSessions) ListMastery(ctx context.Context, userID uuid.UUID) ([]assessment.MasteryView, error) {
	return f.masteryFn(ctx, userID)
}

// fakeReviews is a review.Service whose behavior is set per test.
type fakeReviews struct {
	createFn  func(ctx context.Context, userID uuid.UUID, req review.CreateCardRequest) (*domain.RepetitionCard, bool, error)
	bulkFn    func(ctx context.Context, userID uuid.UUID, reqs []review.CreateCardRequest) ([]*domain.RepetitionCard, int, error)
	listFn    func(ctx context.Context, userID uuid.UUID, filter store.CardFilter) ([]*domain.RepetitionCard, error)
	dueFn     func(ctx context.Context, userID uuid.UUID, page, size int) (*review.DuePage, error)
	getFn     func(ctx context.Context, userID, cardID uuid.UUID) (*domain.RepetitionCard, error)
	reviewFn  func(ctx context.Context, userID, cardID uuid.UUID, quality int) (*srs.ReviewResult, error)
	suspendFn func(ctx context.Context, userID, cardID uuid.UUID) (*domain.RepetitionCard, error)
	resumeFn  func(ctx context.Context, userID, cardID uuid.UUID) (*domain.RepetitionCard, error)
	deleteFn  func(ctx context.Context, userID, cardID uuid.UUID) error
	statsFn   func(ctx context.Context, userID uuid.UUID) (*review.Stats, error)
}

var _ review.Service = (*fakeReviews)(nil)

func (f *fakeReviews) CreateCard(ctx context.Context, userID uuid.UUID, req review.CreateCardRequest) (*domain.RepetitionCard, bool, error) {
	return f.createFn(ctx, userID, req)
}

func (f *fakeReviews) BulkCreate(ctx context.Context, userID uuid.UUID, reqs []review.CreateCardRequest) ([]*domain.RepetitionCard, int, error) {
	return f.bulkFn(ctx, userID, reqs)
}

func (f *fakeReviews) ListCards(ctx context.Context, userID uuid.UUID, filter store.CardFilter) ([]*domain.RepetitionCard, error) {
	return f.listFn(ctx, userID, filter)
}

func (f *fakeReviews) GetDueCards(ctx context.Context, userID uuid.UUID, page, size int) (*review.DuePage, error) {
	return f.dueFn(ctx, userID, page, size)
}

func (f *fakeReviews) GetCard(ctx context.Context, userID, cardID uuid.UUID) (*domain.RepetitionCard, error) {
	return f.getFn(ctx, userID, cardID)
}

func (f *fakeReviews) RecordReview(ctx context.Context, userID, cardID uuid.UUID, quality int) (*srs.ReviewResult, error) {
	return f.reviewFn(ctx, userID, cardID, quality)
}

func (f *fakeReviews) SuspendCard(ctx context.Context, userID, cardID uuid.UUID) (*domain.RepetitionCard, error) {
	return f.suspendFn(ctx, userID, cardID)
}

func (f *fakeReviews) ResumeCard(ctx context.Context, userID, cardID uuid.UUID) (*domain.RepetitionCard, error) {
	return f.resumeFn(ctx, userID, cardID)
}

func (f *fakeReviews) DeleteCard(ctx context.Context, userID, cardID uuid.UUID) error {
	return f.deleteFn(ctx, userID, cardID)
}

func (f *fakeReviews) Stats(ctx context.Context, userID uuid.UUID) (*review.Stats, error) {
	return f.statsFn(ctx, userID)
}

type fakeSync func(ctx context.Context, userID uuid.UUID, req cardsync.Request) (*cardsync.Response, error)

func (f fakeSync) Sync(ctx context.Context, userID uuid.UUID, req cardsync.Request) (*cardsync.Response, error) {
	return f(ctx, userID, req)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const testTimeoutMinutes = 45

// newTestRouter wires the handlers behind the real auth middleware; every
// request authenticated with "Bearer test" resolves to userID.
func newTestRouter(userID uuid.UUID, sessions assessment.Service, reviews review.Service, sync cardsync.Service) http.Handler {
	if sessions == nil {
		sessions = &fakeSessions{}
	}
	if reviews == nil {
		reviews = &fakeReviews{}
	}
	if sync == nil {
		sync = fakeSync(nil)
	}
	log := discardLogger()
	r := chi.NewRouter()
	r.Use(middleware.Trace(log))
	r.Get("/health", Health)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(auth.NewMockJWTService(userID)).Authenticate)
		RegisterRoutes(r,
			NewSessionHandler(sessions, testTimeoutMinutes, log),
			NewCardHandler(reviews, sync, log))
	})
	return r
}

// do sends an authenticated request with an optional JSON body.
func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer test")
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}
