package assessment

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
	"github.com/phrazzld/scry-assess/internal/domain/mastery"
	"github.com/phrazzld/scry-assess/internal/domain/session"
	"github.com/phrazzld/scry-assess/internal/domain/srs"
	"github.com/phrazzld/scry-assess/internal/events"
	"github.com/phrazzld/scry-assess/internal/platform/logger"
	"github.com/phrazzld/scry-assess/internal/service"
	"github.com/phrazzld/scry-assess/internal/service/userlock"
	"github.com/phrazzld/scry-assess/internal/store"
)

const serviceName = "assessment"

// Deps are the collaborators of the assessment service. Events and Clock are
// optional.
type Deps struct {
	Tx        store.Transactor
	Sessions  store.SessionStore
	Masteries store.MasteryStore
	Cards     store.CardStore
	Catalog   store.CatalogStore
	Engine    *session.Engine
	Model     *mastery.Model
	Scheduler srs.Service
	Scale     session.ScoreScale
	Locker    userlock.Locker
	Events    events.EventEmitter
	Clock     service.Clock
}

type assessmentService struct {
	tx        store.Transactor
	sessions  store.SessionStore
	masteries store.MasteryStore
	cards     store.CardStore
	catalog   store.CatalogStore
	engine    *session.Engine
	model     *mastery.Model
	scheduler srs.Service
	scale     session.ScoreScale
	locker    userlock.Locker
	events    events.EventEmitter
	now       service.Clock
	logger    *slog.Logger
}

var _ Service = (*assessmentService)(nil)

// NewService creates the assessment service.
func NewService(deps Deps, logger *slog.Logger) Service {
	switch {
	case deps.Tx == nil:
		panic("transactor cannot be nil")
	case deps.Sessions == nil || deps.Masteries == nil || deps.Cards == nil || deps.Catalog == nil:
		panic("stores cannot be nil")
	case deps.Engine == nil || deps.Model == nil || deps.Scheduler == nil:
		panic("engine, mastery model and scheduler cannot be nil")
	case deps.Scale == nil:
		panic("scoring scale cannot be nil")
	case deps.Locker == nil:
		panic("locker cannot be nil")
	}
	if deps.Clock == nil {
		deps.Clock = service.SystemClock
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &assessmentService{
		tx:        deps.Tx,
		sessions:  deps.Sessions,
		masteries: deps.Masteries,
		cards:     deps.Cards,
		catalog:   deps.Catalog,
		engine:    deps.Engine,
		model:     deps.Model,
		scheduler: deps.Scheduler,
		scale:     deps.Scale,
		locker:    deps.Locker,
		events:    deps.Events,
		now:       deps.Clock,
		logger:    logger.With(slog.String("component", "assessment_service")),
	}
}

// StartSession implements Service.StartSession.
func (s *assessmentService) StartSession(
	ctx context.Context,
	userID uuid.UUID,
	mode domain.SessionMode,
	cfg domain.SessionConfig,
) (*domain.Session, error) {
	sess, err := s.start(ctx, userID, mode, cfg, domain.AbandonCauseSuperseded)
	if err != nil {
		return nil, service.Wrap(serviceName, "start_session", err)
	}
	return sess, nil
}

// RestartSession implements Service.RestartSession.
func (s *assessmentService) RestartSession(
	ctx context.Context,
	userID uuid.UUID,
	mode domain.SessionMode,
	cfg domain.SessionConfig,
) (*domain.Session, error) {
	sess, err := s.start(ctx, userID, mode, cfg, domain.AbandonCauseRestarted)
	if err != nil {
		return nil, service.Wrap(serviceName, "restart_session", err)
	}
	return sess, nil
}

func (s *assessmentService) start(
	ctx context.Context,
	userID uuid.UUID,
	mode domain.SessionMode,
	cfg domain.SessionConfig,
	cause string,
) (*domain.Session, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)
	now := s.now()

	next, err := s.engine.Start(userID, mode, cfg, now)
	if err != nil {
		return nil, err
	}

	skills, err := s.catalog.ListSkills(ctx, skillFilter(next))
	if err != nil {
		return nil, err
	}
	if len(skills) == 0 {
		return nil, service.ErrNoQuestions
	}

	unlock, err := userlock.LockUser(ctx, s.locker, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var abandoned *domain.Session
	err = s.tx.RunInTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		sessions := s.sessions.WithTx(tx)
		prev, err := sessions.GetActive(ctx, userID, mode)
		switch {
		case err == nil:
			ended, _ := s.engine.Abandon(prev, cause, now)
			if err := save(ctx, sessions, prev, ended); err != nil {
				return err
			}
			abandoned = ended
		case !errors.Is(err, store.ErrNotFound):
			return err
		}

		if err := sessions.Create(ctx, next); err != nil {
			if errors.Is(err, store.ErrActiveSessionExists) {
				return fmt.Errorf("%w: %w", service.ErrConcurrentUpdate, err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if abandoned != nil {
		log.Info("superseded in-progress session",
			slog.String("session_id", abandoned.ID.String()),
			slog.String("cause", cause))
		s.publishEnded(ctx, log, events.TypeSessionAbandoned, abandoned, now)
	}
	log.Info("session started",
		slog.String("session_id", next.ID.String()),
		slog.String("mode", string(mode)),
		slog.Int("skills", len(skills)))
	return next, nil
}

// GetNextQuestion implements Service.GetNextQuestion.
func (s *assessmentService) GetNextQuestion(ctx context.Context, userID, sessionID uuid.UUID) (*domain.Question, error) {
	unlock, err := userlock.LockUser(ctx, s.locker, userID)
	if err != nil {
		return nil, service.Wrap(serviceName, "get_next_question", err)
	}
	defer unlock()

	sess, err := s.loadOwned(ctx, s.sessions, userID, sessionID)
	if err != nil {
		return nil, service.Wrap(serviceName, "get_next_question", err)
	}
	if sess.Status.Terminal() {
		return nil, session.ErrSessionTerminal
	}

	q, _, err := s.nextQuestion(ctx, sess)
	if err != nil {
		return nil, service.Wrap(serviceName, "get_next_question", err)
	}
	return q, nil
}

// nextQuestion selects the weakest eligible skill and samples an unseen
// question from it, marking skills without unseen questions as exhausted.
// When nothing is left the session completes. The returned session is the
// persisted state after the call.
func (s *assessmentService) nextQuestion(ctx context.Context, sess *domain.Session) (*domain.Question, *domain.Session, error) {
	skills, err := s.catalog.ListSkills(ctx, skillFilter(sess))
	if err != nil {
		return nil, nil, err
	}
	ids := make([]int64, 0, len(skills))
	for _, sk := range skills {
		ids = append(ids, sk.ID)
	}
	records, err := s.masteries.ListForSkills(ctx, sess.UserID, ids)
	if err != nil {
		return nil, nil, err
	}
	states := make([]session.SkillState, 0, len(ids))
	for _, id := range ids {
		st := session.SkillState{SkillID: id, Mastery: domain.InitialMastery}
		if m, ok := records[id]; ok {
			st.Mastery = m.MasteryLevel
			st.Confidence = m.Confidence
		}
		states = append(states, st)
	}

	next := sess
	seen := sess.SeenQuestionIDs()
	var picked *domain.Question
	for picked == nil {
		skillID, ok := s.engine.SelectSkill(next, states)
		if !ok {
			break
		}
		q, err := s.catalog.SampleUnseen(ctx, skillID, seen, sess.CertificationCode)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				return nil, nil, err
			}
			next = s.engine.MarkExhausted(next, skillID)
			continue
		}
		picked = q
	}

	now := s.now()
	completed := false
	if picked == nil {
		next, completed = s.engine.Complete(next, domain.ReasonPoolExhausted, now)
	}
	if next != sess {
		err := s.tx.RunInTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
			return save(ctx, s.sessions.WithTx(tx), sess, next)
		})
		if err != nil {
			return nil, nil, err
		}
	}
	if completed {
		log := logger.FromContextOrDefault(ctx, s.logger)
		log.Info("session completed, question pool exhausted",
			slog.String("session_id", sess.ID.String()))
		s.publishEnded(ctx, log, events.TypeSessionCompleted, next, now)
	}
	return picked, next, nil
}

// SubmitAnswer implements Service.SubmitAnswer.
func (s *assessmentService) SubmitAnswer(
	ctx context.Context,
	userID, sessionID uuid.UUID,
	req AnswerRequest,
) (*AnswerResult, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if req.ResponseTimeMs < 0 {
		return nil, fmt.Errorf("%w: response time cannot be negative", domain.ErrValidation)
	}

	unlock, err := userlock.LockUser(ctx, s.locker, userID)
	if err != nil {
		return nil, service.Wrap(serviceName, "submit_answer", err)
	}
	defer unlock()

	sess, err := s.loadOwned(ctx, s.sessions, userID, sessionID)
	if err != nil {
		return nil, service.Wrap(serviceName, "submit_answer", err)
	}
	if sess.Status.Terminal() {
		return nil, session.ErrSessionTerminal
	}
	if sess.HasAnswered(req.QuestionID) {
		return nil, session.ErrQuestionAlreadyAnswered
	}

	q, err := s.catalog.GetQuestion(ctx, req.QuestionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, service.ErrQuestionNotFound
		}
		return nil, service.Wrap(serviceName, "submit_answer", err)
	}
	if err := domain.ValidateDifficulty(q.Difficulty); err != nil {
		return nil, err
	}

	now := s.now()
	correct := grade(q.CorrectAnswer, req.Answer)
	ev := domain.AnswerEvent{
		QuestionID:     q.ID,
		SkillID:        q.SkillID,
		IsCorrect:      correct,
		Difficulty:     q.Difficulty,
		ResponseTimeMs: req.ResponseTimeMs,
		Timestamp:      now,
	}

	var (
		updated  domain.SkillMastery
		review   *srs.ReviewResult
		next     *domain.Session
		decision session.Decision
	)
	err = s.tx.RunInTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		masteries := s.masteries.WithTx(tx)

		current, err := masteries.GetForUpdate(ctx, userID, q.SkillID)
		if errors.Is(err, store.ErrNotFound) {
			current, err = domain.NewSkillMastery(userID, q.SkillID, now)
		}
		if err != nil {
			return err
		}
		updated = s.model.Update(*current, correct, q.Difficulty, now)
		if err := masteries.Upsert(ctx, &updated); err != nil {
			return err
		}

		review, err = s.reviewCard(ctx, s.cards.WithTx(tx), userID, q.ID, correct, now)
		if err != nil {
			return err
		}

		confidences, err := s.sessionConfidences(ctx, masteries, sess, updated)
		if err != nil {
			return err
		}
		next, decision, err = s.engine.ApplyAnswer(sess, ev, confidences, now)
		if err != nil {
			return err
		}
		return save(ctx, s.sessions.WithTx(tx), sess, next)
	})
	if err != nil {
		if !service.IsExpected(err) {
			log.Error("failed to submit answer",
				slog.String("error", err.Error()),
				slog.String("session_id", sessionID.String()),
				slog.Int64("question_id", req.QuestionID))
		}
		return nil, service.Wrap(serviceName, "submit_answer", err)
	}

	label := s.model.Label(updated.MasteryLevel)
	events.Publish(ctx, s.events, log, events.TypeMasteryUpdated, userID, events.MasteryUpdated{
		SkillID:      updated.SkillID,
		MasteryLevel: updated.MasteryLevel,
		Confidence:   updated.Confidence,
		Label:        string(label),
		SessionID:    sess.ID,
	}, now)

	result := &AnswerResult{
		IsCorrect:         correct,
		Mastery:           MasteryView{SkillMastery: updated, Label: label},
		Terminated:        decision.Terminated,
		TerminationReason: decision.Reason,
		Session:           next,
	}
	if review != nil {
		result.Card = review.Card
		events.Publish(ctx, s.events, log, events.TypeCardReviewed, userID, events.CardReviewed{
			CardID:       review.Card.ID,
			QuestionID:   review.Card.QuestionID,
			Quality:      review.Quality,
			IntervalDays: review.NewInterval,
			EaseFactor:   review.NewEase,
			NextReviewAt: review.Card.NextReviewAt,
		}, now)
	}

	if decision.Terminated {
		log.Info("session completed",
			slog.String("session_id", next.ID.String()),
			slog.String("reason", decision.Reason),
			slog.Int("answered", next.AnsweredCount))
		s.publishEnded(ctx, log, events.TypeSessionCompleted, next, now)
		return result, nil
	}

	nq, after, err := s.nextQuestion(ctx, next)
	if err != nil {
		return nil, service.Wrap(serviceName, "select_next_question", err)
	}
	result.NextQuestion = nq
	result.Session = after
	if after.Status.Terminal() {
		result.Terminated = true
		result.TerminationReason = after.TerminationReason
	}
	return result, nil
}

// reviewCard records a review on the learner's card for the question, if one
// exists and is not suspended.
func (s *assessmentService) reviewCard(
	ctx context.Context,
	cards store.CardStore,
	userID uuid.UUID,
	questionID int64,
	correct bool,
	now time.Time,
) (*srs.ReviewResult, error) {
	card, err := cards.GetByQuestion(ctx, userID, questionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if card.Status == domain.CardStatusSuspended {
		return nil, nil
	}

	quality := IncorrectAnswerQuality
	if correct {
		quality = CorrectAnswerQuality
	}
	next, res, err := s.scheduler.RecordReview(card, quality, now)
	if err != nil {
		return nil, err
	}
	if err := cards.UpdateIfVersion(ctx, next, card.SyncVersion); err != nil {
		return nil, err
	}
	return res, nil
}

// sessionConfidences returns the current confidence of every skill answered
// in the session plus the skill just updated.
func (s *assessmentService) sessionConfidences(
	ctx context.Context,
	masteries store.MasteryStore,
	sess *domain.Session,
	updated domain.SkillMastery,
) (map[int64]float64, error) {
	ids := answeredSkills(sess)
	out := make(map[int64]float64, len(ids)+1)
	if len(ids) > 0 {
		records, err := masteries.ListForSkills(ctx, sess.UserID, ids)
		if err != nil {
			return nil, err
		}
		for id, m := range records {
			out[id] = m.Confidence
		}
	}
	out[updated.SkillID] = updated.Confidence
	return out, nil
}

// FinishSession implements Service.FinishSession.
func (s *assessmentService) FinishSession(ctx context.Context, userID, sessionID uuid.UUID) (*session.Result, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	unlock, err := userlock.LockUser(ctx, s.locker, userID)
	if err != nil {
		return nil, service.Wrap(serviceName, "finish_session", err)
	}
	defer unlock()

	now := s.now()
	var (
		sess    *domain.Session
		changed bool
	)
	err = s.tx.RunInTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		sessions := s.sessions.WithTx(tx)
		prev, err := s.loadOwned(ctx, sessions, userID, sessionID)
		if err != nil {
			return err
		}
		sess, changed = s.engine.Finish(prev, now)
		if !changed {
			return nil
		}
		return save(ctx, sessions, prev, sess)
	})
	if err != nil {
		return nil, service.Wrap(serviceName, "finish_session", err)
	}
	if changed {
		log.Info("session finished by user", slog.String("session_id", sess.ID.String()))
		s.publishEnded(ctx, log, events.TypeSessionCompleted, sess, now)
	}

	result, err := s.buildResult(ctx, sess, now)
	if err != nil {
		return nil, service.Wrap(serviceName, "finish_session", err)
	}
	return result, nil
}

func (s *assessmentService) buildResult(ctx context.Context, sess *domain.Session, now time.Time) (*session.Result, error) {
	ids := answeredSkills(sess)
	records, err := s.masteries.ListForSkills(ctx, sess.UserID, ids)
	if err != nil {
		return nil, err
	}
	skills, err := s.catalog.GetSkills(ctx, ids)
	if err != nil {
		return nil, err
	}
	masteries := make(map[int64]domain.SkillMastery, len(records))
	for id, m := range records {
		masteries[id] = *m
	}
	result := s.engine.BuildResult(sess, session.ResultInput{
		Masteries: masteries,
		Skills:    skills,
		Scale:     s.scale,
		Label:     s.model.Label,
		Now:       now,
	})
	return &result, nil
}

// AbandonSession implements Service.AbandonSession.
func (s *assessmentService) AbandonSession(ctx context.Context, userID, sessionID uuid.UUID) (*domain.Session, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	unlock, err := userlock.LockUser(ctx, s.locker, userID)
	if err != nil {
		return nil, service.Wrap(serviceName, "abandon_session", err)
	}
	defer unlock()

	now := s.now()
	var (
		sess    *domain.Session
		changed bool
	)
	err = s.tx.RunInTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		sessions := s.sessions.WithTx(tx)
		prev, err := s.loadOwned(ctx, sessions, userID, sessionID)
		if err != nil {
			return err
		}
		sess, changed = s.engine.Abandon(prev, domain.AbandonCauseUserAbandon, now)
		if !changed {
			return nil
		}
		return save(ctx, sessions, prev, sess)
	})
	if err != nil {
		return nil, service.Wrap(serviceName, "abandon_session", err)
	}
	if changed {
		s.publishEnded(ctx, log, events.TypeSessionAbandoned, sess, now)
	}
	return sess, nil
}

// GetActiveSession implements Service.GetActiveSession.
func (s *assessmentService) GetActiveSession(
	ctx context.Context,
	userID uuid.UUID,
	mode domain.SessionMode,
) (*domain.Session, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: unknown session mode %q", domain.ErrValidation, mode)
	}
	sess, err := s.sessions.GetActive(ctx, userID, mode)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, service.Wrap(serviceName, "get_active_session", err)
	}
	return sess, nil
}

// GetSession implements Service.GetSession.
func (s *assessmentService) GetSession(ctx context.Context, userID, sessionID uuid.UUID) (*domain.Session, error) {
	sess, err := s.loadOwned(ctx, s.sessions, userID, sessionID)
	if err != nil {
		return nil, service.Wrap(serviceName, "get_session", err)
	}
	return sess, nil
}

// ListSessions implements Service.ListSessions.
func (s *assessmentService) ListSessions(
	ctx context.Context,
	userID uuid.UUID,
	mode *domain.SessionMode,
	page, size int,
) (*SessionPage, error) {
	if size == 0 {
		size = DefaultPageSize
	}
	if page < 0 || size < 0 || size > MaxPageSize {
		return nil, fmt.Errorf("%w: page must be >= 0 and size within [1,%d]", domain.ErrValidation, MaxPageSize)
	}
	if mode != nil && !mode.Valid() {
		return nil, fmt.Errorf("%w: unknown session mode %q", domain.ErrValidation, *mode)
	}

	sessions, total, err := s.sessions.List(ctx, userID, mode, store.Page{Limit: size, Offset: page * size})
	if err != nil {
		return nil, service.Wrap(serviceName, "list_sessions", err)
	}
	return &SessionPage{Sessions: sessions, Total: total, Page: page, Size: size}, nil
}

// ListMastery implements Service.ListMastery.
func (s *assessmentService) ListMastery(ctx context.Context, userID uuid.UUID) ([]MasteryView, error) {
	records, err := s.masteries.ListByUser(ctx, userID)
	if err != nil {
		return nil, service.Wrap(serviceName, "list_mastery", err)
	}
	out := make([]MasteryView, 0, len(records))
	for _, m := range records {
		out = append(out, MasteryView{SkillMastery: *m, Label: s.model.Label(m.MasteryLevel)})
	}
	return out, nil
}

// loadOwned fetches a session and hides sessions owned by other users.
func (s *assessmentService) loadOwned(
	ctx context.Context,
	sessions store.SessionStore,
	userID, sessionID uuid.UUID,
) (*domain.Session, error) {
	sess, err := sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, service.ErrSessionNotFound
		}
		return nil, err
	}
	if sess.UserID != userID {
		return nil, service.ErrSessionNotFound
	}
	return sess, nil
}

func (s *assessmentService) publishEnded(
	ctx context.Context,
	log *slog.Logger,
	eventType string,
	sess *domain.Session,
	now time.Time,
) {
	reason := sess.TerminationReason
	if sess.Status == domain.SessionAbandoned {
		reason = sess.AbandonCause
	}
	events.Publish(ctx, s.events, log, eventType, sess.UserID, events.SessionEnded{
		SessionID:     sess.ID,
		Mode:          string(sess.Mode),
		AnsweredCount: sess.AnsweredCount,
		CorrectCount:  sess.CorrectCount,
		Reason:        reason,
	}, now)
}

// save writes next over prev with a version compare-and-swap.
func save(ctx context.Context, sessions store.SessionStore, prev, next *domain.Session) error {
	next.Version = prev.Version + 1
	return sessions.Update(ctx, next, prev.Version)
}

func skillFilter(sess *domain.Session) store.SkillFilter {
	return store.SkillFilter{
		CertificationCode: sess.CertificationCode,
		Categories:        sess.FocusCategories,
	}
}

// answeredSkills returns the distinct skills answered in the session, sorted.
func answeredSkills(sess *domain.Session) []int64 {
	ids := make([]int64, 0, len(sess.Answers))
	for _, a := range sess.Answers {
		ids = append(ids, a.SkillID)
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}
