// Package cardsync reconciles repetition cards recorded by offline clients
// with the server copies. The server copy wins whenever the client worked
// from a stale sync version and its state differs; divergent review histories
// are never merged.
package cardsync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/scry-assess/internal/domain"
	"github.com/phrazzld/scry-assess/internal/platform/logger"
	"github.com/phrazzld/scry-assess/internal/service"
	"github.com/phrazzld/scry-assess/internal/service/userlock"
	"github.com/phrazzld/scry-assess/internal/store"
)

const serviceName = "sync"

const (
	// MaxSyncBatch is the default bound on the number of cards in one sync
	// payload.
	MaxSyncBatch = 500
	// MaxAttempts bounds the compare-and-swap retries per card.
	MaxAttempts = 3
)

var (
	// ErrBatchTooLarge is returned for payloads above the configured batch size.
	ErrBatchTooLarge = fmt.Errorf("%w: too many cards in one sync", domain.ErrValidation)
	// ErrDuplicateQuestion is returned when two client cards name the same question.
	ErrDuplicateQuestion = fmt.Errorf("%w: duplicate question in sync payload", domain.ErrValidation)
	// ErrUnknownQuestion is returned when a client card names a question
	// missing from the catalog.
	ErrUnknownQuestion = fmt.Errorf("%w: unknown question in sync payload", domain.ErrValidation)
)

// ClientCard is the card state held by a client.
type ClientCard struct {
	QuestionID          int64              `json:"question_id" validate:"required,gt=0"`
	ClientID            string             `json:"client_id,omitempty"`
	CertificationCode   string             `json:"certification_code,omitempty"`
	EaseFactor          float64            `json:"ease_factor" validate:"gte=1.3"`
	IntervalDays        int                `json:"interval_days" validate:"gte=0"`
	Repetitions         int                `json:"repetitions" validate:"gte=0"`
	Status              domain.CardStatus  `json:"status" validate:"required,oneof=NEW LEARNING REVIEW SUSPENDED"`
	TotalReviews        int                `json:"total_reviews" validate:"gte=0"`
	CorrectReviews      int                `json:"correct_reviews" validate:"gte=0,ltefield=TotalReviews"`
	LastQuality         *int               `json:"last_quality,omitempty" validate:"omitempty,gte=0,lte=5"`
	Streak              int                `json:"streak" validate:"gte=0"`
	QualityHistory      []int              `json:"quality_history,omitempty" validate:"omitempty,dive,gte=0,lte=5"`
	NextReviewAt        time.Time          `json:"next_review_at" validate:"required"`
	LastReviewedAt      *time.Time         `json:"last_reviewed_at,omitempty"`
	SyncVersion         int                `json:"sync_version" validate:"gte=0"`
	StatusBeforeSuspend *domain.CardStatus `json:"status_before_suspend,omitempty"`
}

// Request is one sync upload.
type Request struct {
	Cards      []ClientCard `json:"cards" validate:"dive"`
	LastSyncAt *time.Time   `json:"last_sync_at,omitempty"`
}

// Response is the authoritative view returned after a sync.
type Response struct {
	ServerCards     []*domain.RepetitionCard `json:"server_cards"`
	ConflictCards   []*domain.RepetitionCard `json:"conflict_cards"`
	CardsCreated    int                      `json:"cards_created"`
	CardsUpdated    int                      `json:"cards_updated"`
	CardsConflicted int                      `json:"cards_conflicted"`
	SyncTimestamp   time.Time                `json:"sync_timestamp"`
}

// Service reconciles client card state.
type Service interface {
	Sync(ctx context.Context, userID uuid.UUID, req Request) (*Response, error)
}

// Deps are the collaborators of the sync service. Clock is optional and a
// zero MaxBatch means MaxSyncBatch.
type Deps struct {
	Tx       store.Transactor
	Cards    store.CardStore
	Catalog  store.CatalogStore
	Locker   userlock.Locker
	Clock    service.Clock
	MaxBatch int
}

type syncService struct {
	tx       store.Transactor
	cards    store.CardStore
	catalog  store.CatalogStore
	locker   userlock.Locker
	now      service.Clock
	maxBatch int
	logger   *slog.Logger
}

var _ Service = (*syncService)(nil)

// NewService creates the sync service.
func NewService(deps Deps, logger *slog.Logger) Service {
	if deps.Tx == nil || deps.Cards == nil || deps.Catalog == nil || deps.Locker == nil {
		panic("sync service dependencies cannot be nil")
	}
	if deps.Clock == nil {
		deps.Clock = service.SystemClock
	}
	if deps.MaxBatch <= 0 {
		deps.MaxBatch = MaxSyncBatch
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &syncService{
		tx:       deps.Tx,
		cards:    deps.Cards,
		catalog:  deps.Catalog,
		locker:   deps.Locker,
		now:      deps.Clock,
		maxBatch: deps.MaxBatch,
		logger:   logger.With(slog.String("component", "sync_service")),
	}
}

type outcome int

const (
	outcomeNone outcome = iota
	outcomeCreated
	outcomeUpdated
	outcomeConflict
)

// Sync implements Service.Sync.
func (s *syncService) Sync(ctx context.Context, userID uuid.UUID, req Request) (*Response, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := validatePayload(req.Cards, s.maxBatch); err != nil {
		return nil, err
	}

	unlock, err := userlock.LockUser(ctx, s.locker, userID)
	if err != nil {
		return nil, service.Wrap(serviceName, "lock", err)
	}
	defer unlock()

	now := s.now()
	skills, err := s.precheck(ctx, userID, req.Cards)
	if err != nil {
		return nil, service.Wrap(serviceName, "sync", err)
	}

	resp := &Response{
		ConflictCards: []*domain.RepetitionCard{},
		SyncTimestamp: now,
	}
	for _, cc := range req.Cards {
		result, server, err := s.reconcile(ctx, userID, cc, skills[cc.QuestionID], now)
		if err != nil {
			log.Error("failed to reconcile card",
				slog.String("error", err.Error()),
				slog.Int64("question_id", cc.QuestionID))
			return nil, service.Wrap(serviceName, "sync", err)
		}
		switch result {
		case outcomeCreated:
			resp.CardsCreated++
		case outcomeUpdated:
			resp.CardsUpdated++
		case outcomeConflict:
			resp.CardsConflicted++
			resp.ConflictCards = append(resp.ConflictCards, server)
		}
	}

	resp.ServerCards, err = s.cards.ListUpdatedSince(ctx, userID, req.LastSyncAt)
	if err != nil {
		return nil, service.Wrap(serviceName, "list_server_cards", err)
	}

	log.Info("sync completed",
		slog.String("user_id", userID.String()),
		slog.Int("received", len(req.Cards)),
		slog.Int("created", resp.CardsCreated),
		slog.Int("updated", resp.CardsUpdated),
		slog.Int("conflicted", resp.CardsConflicted))
	return resp, nil
}

// validatePayload checks the payload shape before anything is read or written.
func validatePayload(cards []ClientCard, maxBatch int) error {
	if len(cards) > maxBatch {
		return fmt.Errorf("%w: %d cards, limit %d", ErrBatchTooLarge, len(cards), maxBatch)
	}
	seen := make(map[int64]struct{}, len(cards))
	for i, cc := range cards {
		if _, dup := seen[cc.QuestionID]; dup {
			return fmt.Errorf("%w: question %d", ErrDuplicateQuestion, cc.QuestionID)
		}
		seen[cc.QuestionID] = struct{}{}
		if err := validateClientCard(cc); err != nil {
			return fmt.Errorf("card %d: %w", i, err)
		}
	}
	return nil
}

func validateClientCard(cc ClientCard) error {
	if cc.SyncVersion < 0 {
		return fmt.Errorf("%w: sync version must be >= 0", domain.ErrValidation)
	}
	for _, q := range cc.QualityHistory {
		if q < domain.MinQuality || q > domain.MaxQuality {
			return domain.ErrInvalidQualityValue
		}
	}
	// a placeholder owner lets the card invariants run on client state
	candidate := &domain.RepetitionCard{UserID: uuid.UUID{1}, QuestionID: cc.QuestionID, SkillID: 1}
	applyClientState(candidate, cc)
	return candidate.Validate()
}

// precheck rejects the whole payload when any card names an unknown question.
// It returns the skill of every card's question.
func (s *syncService) precheck(ctx context.Context, userID uuid.UUID, cards []ClientCard) (map[int64]int64, error) {
	skills := make(map[int64]int64)
	for _, cc := range cards {
		server, err := s.cards.GetByQuestion(ctx, userID, cc.QuestionID)
		switch {
		case err == nil:
			skills[cc.QuestionID] = server.SkillID
		case errors.Is(err, store.ErrNotFound):
			q, err := s.catalog.GetQuestion(ctx, cc.QuestionID)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return nil, fmt.Errorf("%w: %d", ErrUnknownQuestion, cc.QuestionID)
				}
				return nil, err
			}
			skills[cc.QuestionID] = q.SkillID
		default:
			return nil, err
		}
	}
	return skills, nil
}

// reconcile applies one client card, reloading and recomputing after a lost
// compare-and-swap. After MaxAttempts the latest server copy is reported as a
// conflict.
func (s *syncService) reconcile(
	ctx context.Context,
	userID uuid.UUID,
	cc ClientCard,
	skillID int64,
	now time.Time,
) (outcome, *domain.RepetitionCard, error) {
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		var (
			result outcome
			server *domain.RepetitionCard
		)
		err := s.tx.RunInTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
			var err error
			result, server, err = s.apply(ctx, s.cards.WithTx(tx), userID, cc, skillID, now)
			return err
		})
		if err == nil {
			return result, server, nil
		}
		if !errors.Is(err, store.ErrVersionConflict) && !errors.Is(err, store.ErrCardExists) {
			return outcomeNone, nil, err
		}
		logger.FromContextOrDefault(ctx, s.logger).Debug("sync write lost a race, retrying",
			slog.Int64("question_id", cc.QuestionID),
			slog.Int("attempt", attempt))
	}

	server, err := s.cards.GetByQuestion(ctx, userID, cc.QuestionID)
	if err != nil {
		return outcomeNone, nil, err
	}
	return outcomeConflict, server, nil
}

func (s *syncService) apply(
	ctx context.Context,
	cards store.CardStore,
	userID uuid.UUID,
	cc ClientCard,
	skillID int64,
	now time.Time,
) (outcome, *domain.RepetitionCard, error) {
	server, err := cards.GetByQuestion(ctx, userID, cc.QuestionID)
	if errors.Is(err, store.ErrNotFound) {
		card, err := domain.NewRepetitionCard(userID, cc.QuestionID, skillID, now)
		if err != nil {
			return outcomeNone, nil, err
		}
		applyClientState(card, cc)
		card.CertificationCode = cc.CertificationCode
		card.SyncVersion = max(cc.SyncVersion, 0) + 1
		if err := cards.Create(ctx, card); err != nil {
			return outcomeNone, nil, err
		}
		return outcomeCreated, card, nil
	}
	if err != nil {
		return outcomeNone, nil, err
	}

	next := server.Clone()
	applyClientState(next, cc)
	if sameState(server, next) {
		return outcomeNone, server, nil
	}
	if cc.SyncVersion < server.SyncVersion {
		return outcomeConflict, server, nil
	}
	// a client ahead of the server keeps its state; the version never moves back
	next.SyncVersion = max(cc.SyncVersion, server.SyncVersion) + 1
	next.UpdatedAt = now
	if err := cards.UpdateIfVersion(ctx, next, server.SyncVersion); err != nil {
		return outcomeNone, nil, err
	}
	return outcomeUpdated, next, nil
}

// applyClientState copies the client's scheduling fields onto card.
func applyClientState(card *domain.RepetitionCard, cc ClientCard) {
	card.EaseFactor = cc.EaseFactor
	card.IntervalDays = cc.IntervalDays
	card.Repetitions = cc.Repetitions
	card.Status = cc.Status
	card.StatusBeforeSuspend = nil
	if cc.Status == domain.CardStatusSuspended && cc.StatusBeforeSuspend != nil {
		prev := *cc.StatusBeforeSuspend
		card.StatusBeforeSuspend = &prev
	}
	card.TotalReviews = cc.TotalReviews
	card.CorrectReviews = cc.CorrectReviews
	card.LastQuality = nil
	if cc.LastQuality != nil {
		q := *cc.LastQuality
		card.LastQuality = &q
	}
	card.Streak = cc.Streak
	if cc.QualityHistory != nil {
		card.QualityHistory = append([]int{}, cc.QualityHistory...)
	}
	card.NextReviewAt = cc.NextReviewAt.UTC()
	card.LastReviewedAt = nil
	if cc.LastReviewedAt != nil {
		t := cc.LastReviewedAt.UTC()
		card.LastReviewedAt = &t
	}
	if cc.ClientID != "" {
		card.ClientID = cc.ClientID
	}
}

func sameState(a, b *domain.RepetitionCard) bool {
	return a.EaseFactor == b.EaseFactor &&
		a.IntervalDays == b.IntervalDays &&
		a.Repetitions == b.Repetitions &&
		a.Status == b.Status &&
		equalStatusPtr(a.StatusBeforeSuspend, b.StatusBeforeSuspend) &&
		a.TotalReviews == b.TotalReviews &&
		a.CorrectReviews == b.CorrectReviews &&
		equalIntPtr(a.LastQuality, b.LastQuality) &&
		a.Streak == b.Streak &&
		slices.Equal(a.QualityHistory, b.QualityHistory) &&
		a.NextReviewAt.Equal(b.NextReviewAt) &&
		equalTimePtr(a.LastReviewedAt, b.LastReviewedAt) &&
		a.ClientID == b.ClientID
}

func equalIntPtr(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalStatusPtr(a, b *domain.CardStatus) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalTimePtr(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
