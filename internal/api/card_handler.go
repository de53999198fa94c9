package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/phrazzld/scry-assess/internal/api/shared"
	"github.com/phrazzld/scry-assess/internal/domain"
	"github.com/phrazzld/scry-assess/internal/platform/logger"
	"github.com/phrazzld/scry-assess/internal/service/cardsync"
	"github.com/phrazzld/scry-assess/internal/service/review"
	"github.com/phrazzld/scry-assess/internal/store"
)

// CardHandler serves the repetition card and sync routes.
type CardHandler struct {
	reviews review.Service
	sync    cardsync.Service
	logger  *slog.Logger
}

// NewCardHandler creates a CardHandler.
func NewCardHandler(reviews review.Service, sync cardsync.Service, logger *slog.Logger) *CardHandler {
	if reviews == nil || sync == nil {
		panic("card services cannot be nil for CardHandler")
	}
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for CardHandler")
	}
	return &CardHandler{
		reviews: reviews,
		sync:    sync,
		logger:  logger.With(slog.String("component", "card_handler")),
	}
}

// CreateCard handles POST /cards. It replies 201 for a new card and 200 when
// the question was already enrolled.
func (h *CardHandler) CreateCard(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	userID, ok := requireUser(w, r, log)
	if !ok {
		return
	}

	var req review.CreateCardRequest
	if !decodeAndValidate(w, r, &req, log) {
		return
	}

	card, created, err := h.reviews.CreateCard(r.Context(), userID, req)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to create card")
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	shared.RespondWithJSON(w, r, status, card)
}

// BulkCreateCards handles POST /cards/bulk.
func (h *CardHandler) BulkCreateCards(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	userID, ok := requireUser(w, r, log)
	if !ok {
		return
	}

	var req BulkCreateRequest
	if !decodeAndValidate(w, r, &req, log) {
		return
	}

	cards, created, err := h.reviews.BulkCreate(r.Context(), userID, req.Cards)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to create cards")
		return
	}

	log.Debug("bulk enrollment",
		slog.Int("requested", len(req.Cards)),
		slog.Int("created", created))
	shared.RespondWithJSON(w, r, http.StatusOK, BulkCreateResponse{Cards: cards, Created: created})
}

// ListCards handles GET /cards?status=&certification=.
func (h *CardHandler) ListCards(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	userID, ok := requireUser(w, r, log)
	if !ok {
		return
	}

	var filter store.CardFilter
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := domain.ParseCardStatus(strings.ToUpper(raw))
		if err != nil {
			HandleAPIError(w, r, err, "")
			return
		}
		filter.Status = &status
	}
	filter.CertificationCode = r.URL.Query().Get("certification")

	cards, err := h.reviews.ListCards(r.Context(), userID, filter)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list cards")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, cards)
}

// GetDueCards handles GET /cards/due?page=&size=.
func (h *CardHandler) GetDueCards(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	userID, ok := requireUser(w, r, log)
	if !ok {
		return
	}

	page, size, err := queryPage(r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	due, err := h.reviews.GetDueCards(r.Context(), userID, page, size)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get due cards")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, due)
}

// GetStats handles GET /cards/stats.
func (h *CardHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, logger.FromContextOrDefault(r.Context(), h.logger))
	if !ok {
		return
	}
	stats, err := h.reviews.Stats(r.Context(), userID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get card statistics")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, stats)
}

// GetCard handles GET /cards/{id}.
func (h *CardHandler) GetCard(w http.ResponseWriter, r *http.Request) {
	userID, cardID, ok := handleUserIDAndPathUUID(w, r, "id", logger.FromContextOrDefault(r.Context(), h.logger))
	if !ok {
		return
	}
	card, err := h.reviews.GetCard(r.Context(), userID, cardID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get card")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, card)
}

// DeleteCard handles DELETE /cards/{id}.
func (h *CardHandler) DeleteCard(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	userID, cardID, ok := handleUserIDAndPathUUID(w, r, "id", log)
	if !ok {
		return
	}
	if err := h.reviews.DeleteCard(r.Context(), userID, cardID); err != nil {
		HandleAPIError(w, r, err, "Failed to delete card")
		return
	}
	log.Debug("card deleted", slog.String("card_id", cardID.String()))
	shared.RespondNoContent(w)
}

// RecordReview handles POST /cards/{id}/review.
func (h *CardHandler) RecordReview(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	userID, cardID, ok := handleUserIDAndPathUUID(w, r, "id", log)
	if !ok {
		return
	}

	var req ReviewRequest
	if !decodeAndValidate(w, r, &req, log) {
		return
	}

	result, err := h.reviews.RecordReview(r.Context(), userID, cardID, *req.Quality)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to record review")
		return
	}

	log.Debug("review recorded",
		slog.String("card_id", cardID.String()),
		slog.Int("quality", *req.Quality),
		slog.Int("interval_days", result.NewInterval))
	shared.RespondWithJSON(w, r, http.StatusOK, result)
}

// SuspendCard handles POST /cards/{id}/suspend.
func (h *CardHandler) SuspendCard(w http.ResponseWriter, r *http.Request) {
	userID, cardID, ok := handleUserIDAndPathUUID(w, r, "id", logger.FromContextOrDefault(r.Context(), h.logger))
	if !ok {
		return
	}
	card, err := h.reviews.SuspendCard(r.Context(), userID, cardID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to suspend card")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, card)
}

// ResumeCard handles POST /cards/{id}/resume.
func (h *CardHandler) ResumeCard(w http.ResponseWriter, r *http.Request) {
	userID, cardID, ok := handleUserIDAndPathUUID(w, r, "id", logger.FromContextOrDefault(r.Context(), h.logger))
	if !ok {
		return
	}
	card, err := h.reviews.ResumeCard(r.Context(), userID, cardID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to resume card")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, card)
}

// SyncCards handles POST /cards/sync.
func (h *CardHandler) SyncCards(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	userID, ok := requireUser(w, r, log)
	if !ok {
		return
	}

	var req cardsync.Request
	if !decodeAndValidate(w, r, &req, log) {
		return
	}

	resp, err := h.sync.Sync(r.Context(), userID, req)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to sync cards")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// Health handles GET /health.
func Health(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, HealthResponse{Status: "ok"})
}
