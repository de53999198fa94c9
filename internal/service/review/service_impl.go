package review

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/phrazzld/scry-assess/internal/domain"
	"github.com/phrazzld/scry-assess/internal/domain/srs"
	"github.com/phrazzld/scry-assess/internal/events"
	"github.com/phrazzld/scry-assess/internal/platform/logger"
	"github.com/phrazzld/scry-assess/internal/service"
	"github.com/phrazzld/scry-assess/internal/store"
)

const serviceName = "review"

// ErrSkillMismatch is returned when a create request names a skill that does
// not own the question.
var ErrSkillMismatch = fmt.Errorf("%w: skill does not match the question's skill", domain.ErrValidation)

// Deps are the collaborators of the review service. Events and Clock are
// optional.
type Deps struct {
	Tx        store.Transactor
	Cards     store.CardStore
	Catalog   store.CatalogStore
	Scheduler srs.Service
	Events    events.EventEmitter
	Clock     service.Clock
	MaxBatch  int
}

var _ Service = (*reviewService)(nil)

type reviewService struct {
	tx        store.Transactor
	cards     store.CardStore
	catalog   store.CatalogStore
	scheduler srs.Service
	events    events.EventEmitter
	now       service.Clock
	maxBatch  int
	logger    *slog.Logger
}

// NewService creates the review service.
func NewService(deps Deps, logger *slog.Logger) Service {
	if deps.Tx == nil {
		panic("transactor cannot be nil")
	}
	if deps.Cards == nil {
		panic("card store cannot be nil")
	}
	if deps.Catalog == nil {
		panic("catalog store cannot be nil")
	}
	if deps.Scheduler == nil {
		panic("scheduler cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = service.SystemClock
	}
	if deps.MaxBatch <= 0 {
		deps.MaxBatch = DefaultMaxBatch
	}
	return &reviewService{
		tx:        deps.Tx,
		cards:     deps.Cards,
		catalog:   deps.Catalog,
		scheduler: deps.Scheduler,
		events:    deps.Events,
		now:       deps.Clock,
		maxBatch:  deps.MaxBatch,
		logger:    logger.With(slog.String("component", "review_service")),
	}
}

// CreateCard implements Service.CreateCard.
func (s *reviewService) CreateCard(
	ctx context.Context,
	userID uuid.UUID,
	req CreateCardRequest,
) (*domain.RepetitionCard, bool, error) {
	card, created, err := s.createOne(ctx, s.cards, userID, req)
	if err != nil {
		return nil, false, service.Wrap(serviceName, "create_card", err)
	}
	return card, created, nil
}

// BulkCreate implements Service.BulkCreate.
func (s *reviewService) BulkCreate(
	ctx context.Context,
	userID uuid.UUID,
	reqs []CreateCardRequest,
) ([]*domain.RepetitionCard, int, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if len(reqs) == 0 {
		return []*domain.RepetitionCard{}, 0, nil
	}
	if len(reqs) > s.maxBatch {
		return nil, 0, fmt.Errorf("%w: at most %d cards per request", domain.ErrValidation, s.maxBatch)
	}

	out := make([]*domain.RepetitionCard, 0, len(reqs))
	created := 0
	err := s.tx.RunInTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		cards := s.cards.WithTx(tx)
		for i, req := range reqs {
			card, isNew, err := s.createOne(ctx, cards, userID, req)
			if err != nil {
				return fmt.Errorf("card %d: %w", i, err)
			}
			if isNew {
				created++
			}
			out = append(out, card)
		}
		return nil
	})
	if err != nil {
		return nil, 0, service.Wrap(serviceName, "bulk_create", err)
	}

	log.Debug("bulk enrollment completed",
		slog.String("user_id", userID.String()),
		slog.Int("requested", len(reqs)),
		slog.Int("created", created))
	return out, created, nil
}

func (s *reviewService) createOne(
	ctx context.Context,
	cards store.CardStore,
	userID uuid.UUID,
	req CreateCardRequest,
) (*domain.RepetitionCard, bool, error) {
	if req.QuestionID <= 0 {
		return nil, false, domain.ErrInvalidQuestionID
	}

	q, err := s.catalog.GetQuestion(ctx, req.QuestionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, false, service.ErrQuestionNotFound
		}
		return nil, false, err
	}
	if req.SkillID != 0 && req.SkillID != q.SkillID {
		return nil, false, ErrSkillMismatch
	}

	existing, err := cards.GetByQuestion(ctx, userID, q.ID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, err
	}

	card, err := domain.NewRepetitionCard(userID, q.ID, q.SkillID, s.now())
	if err != nil {
		return nil, false, err
	}
	card = s.scheduler.NewCard(card)
	card.CertificationCode = req.CertificationCode
	if card.CertificationCode == "" {
		card.CertificationCode = q.CertificationCode
	}
	card.ClientID = req.ClientID

	if err := cards.Create(ctx, card); err != nil {
		if errors.Is(err, store.ErrCardExists) {
			// lost a race with a concurrent enrollment of the same question
			existing, getErr := cards.GetByQuestion(ctx, userID, q.ID)
			if getErr != nil {
				return nil, false, getErr
			}
			return existing, false, nil
		}
		return nil, false, err
	}
	return card, true, nil
}

// ListCards implements Service.ListCards.
func (s *reviewService) ListCards(
	ctx context.Context,
	userID uuid.UUID,
	filter store.CardFilter,
) ([]*domain.RepetitionCard, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, domain.ErrInvalidCardStatus
	}
	cards, err := s.cards.ListByUser(ctx, userID, filter)
	if err != nil {
		return nil, service.Wrap(serviceName, "list_cards", err)
	}
	return cards, nil
}

// GetDueCards implements Service.GetDueCards.
func (s *reviewService) GetDueCards(ctx context.Context, userID uuid.UUID, page, size int) (*DuePage, error) {
	if size == 0 {
		size = DefaultPageSize
	}
	if page < 0 || size < 0 || size > MaxPageSize {
		return nil, fmt.Errorf("%w: page must be >= 0 and size within [1,%d]", domain.ErrValidation, MaxPageSize)
	}

	cards, total, err := s.cards.ListDue(ctx, userID, s.now(), store.Page{Limit: size, Offset: page * size})
	if err != nil {
		return nil, service.Wrap(serviceName, "get_due_cards", err)
	}
	return &DuePage{Cards: cards, Total: total, Page: page, Size: size}, nil
}

// GetCard implements Service.GetCard.
func (s *reviewService) GetCard(ctx context.Context, userID, cardID uuid.UUID) (*domain.RepetitionCard, error) {
	card, err := loadOwned(ctx, s.cards, userID, cardID)
	if err != nil {
		return nil, service.Wrap(serviceName, "get_card", err)
	}
	return card, nil
}

// RecordReview implements Service.RecordReview.
func (s *reviewService) RecordReview(
	ctx context.Context,
	userID, cardID uuid.UUID,
	quality int,
) (*srs.ReviewResult, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)
	now := s.now()

	var result *srs.ReviewResult
	err := s.tx.RunInTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		cards := s.cards.WithTx(tx)
		card, err := loadOwned(ctx, cards, userID, cardID)
		if err != nil {
			return err
		}
		next, res, err := s.scheduler.RecordReview(card, quality, now)
		if err != nil {
			return err
		}
		if err := cards.UpdateIfVersion(ctx, next, card.SyncVersion); err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		if !service.IsExpected(err) {
			log.Error("failed to record review",
				slog.String("error", err.Error()),
				slog.String("card_id", cardID.String()))
		}
		return nil, service.Wrap(serviceName, "record_review", err)
	}

	log.Debug("review recorded",
		slog.String("card_id", cardID.String()),
		slog.Int("quality", quality),
		slog.Int("interval_days", result.NewInterval))

	events.Publish(ctx, s.events, log, events.TypeCardReviewed, userID, events.CardReviewed{
		CardID:       result.Card.ID,
		QuestionID:   result.Card.QuestionID,
		Quality:      quality,
		IntervalDays: result.NewInterval,
		EaseFactor:   result.NewEase,
		NextReviewAt: result.Card.NextReviewAt,
	}, now)
	return result, nil
}

// SuspendCard implements Service.SuspendCard.
func (s *reviewService) SuspendCard(ctx context.Context, userID, cardID uuid.UUID) (*domain.RepetitionCard, error) {
	card, err := s.transition(ctx, userID, cardID, s.scheduler.Suspend)
	if err != nil {
		return nil, service.Wrap(serviceName, "suspend_card", err)
	}
	return card, nil
}

// ResumeCard implements Service.ResumeCard.
func (s *reviewService) ResumeCard(ctx context.Context, userID, cardID uuid.UUID) (*domain.RepetitionCard, error) {
	card, err := s.transition(ctx, userID, cardID, s.scheduler.Resume)
	if err != nil {
		return nil, service.Wrap(serviceName, "resume_card", err)
	}
	return card, nil
}

type transitionFn func(card *domain.RepetitionCard, now time.Time) (*domain.RepetitionCard, bool, error)

func (s *reviewService) transition(
	ctx context.Context,
	userID, cardID uuid.UUID,
	fn transitionFn,
) (*domain.RepetitionCard, error) {
	now := s.now()
	var out *domain.RepetitionCard
	err := s.tx.RunInTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		cards := s.cards.WithTx(tx)
		card, err := loadOwned(ctx, cards, userID, cardID)
		if err != nil {
			return err
		}
		next, changed, err := fn(card, now)
		if err != nil {
			return err
		}
		if changed {
			if err := cards.UpdateIfVersion(ctx, next, card.SyncVersion); err != nil {
				return err
			}
		}
		out = next
		return nil
	})
	return out, err
}

// DeleteCard implements Service.DeleteCard.
func (s *reviewService) DeleteCard(ctx context.Context, userID, cardID uuid.UUID) error {
	err := s.tx.RunInTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		cards := s.cards.WithTx(tx)
		if _, err := loadOwned(ctx, cards, userID, cardID); err != nil {
			return err
		}
		if err := cards.Delete(ctx, cardID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return service.ErrCardNotFound
			}
			return err
		}
		return nil
	})
	return service.Wrap(serviceName, "delete_card", err)
}

// Stats implements Service.Stats.
func (s *reviewService) Stats(ctx context.Context, userID uuid.UUID) (*Stats, error) {
	now := s.now()

	var (
		counts *store.CardCounts
		due    int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		counts, err = s.cards.Counts(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		due, err = s.cards.CountDue(gctx, userID, now)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, service.Wrap(serviceName, "stats", err)
	}

	stats := &Stats{
		Total:          counts.Total,
		Due:            due,
		ByStatus:       counts.ByStatus,
		TotalReviews:   counts.TotalReviews,
		CorrectReviews: counts.CorrectReviews,
		AverageEase:    counts.AverageEase,
		GeneratedAt:    now,
	}
	if counts.TotalReviews > 0 {
		stats.Accuracy = float64(counts.CorrectReviews) / float64(counts.TotalReviews)
	}
	return stats, nil
}

// loadOwned fetches a card and hides cards owned by other users.
func loadOwned(
	ctx context.Context,
	cards store.CardStore,
	userID, cardID uuid.UUID,
) (*domain.RepetitionCard, error) {
	card, err := cards.GetByID(ctx, cardID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, service.ErrCardNotFound
		}
		return nil, err
	}
	if card.UserID != userID {
		return nil, service.ErrCardNotFound
	}
	return card, nil
}
