package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/phrazzld/scry-assess/internal/api/shared"
	"github.com/phrazzld/scry-assess/internal/domain"
	"github.com/phrazzld/scry-assess/internal/platform/logger"
	"github.com/phrazzld/scry-assess/internal/service/assessment"
)

// SessionHandler serves the adaptive session and mastery routes.
type SessionHandler struct {
	sessions       assessment.Service
	timeoutMinutes int
	logger         *slog.Logger
}

// NewSessionHandler creates a SessionHandler. timeoutMinutes is echoed in
// session replies; the server does not enforce it.
func NewSessionHandler(sessions assessment.Service, timeoutMinutes int, logger *slog.Logger) *SessionHandler {
	if sessions == nil {
		panic("sessions service cannot be nil for SessionHandler")
	}
	if logger == nil {
		panic("logger cannot be nil for SessionHandler")
	}
	return &SessionHandler{
		sessions:       sessions,
		timeoutMinutes: timeoutMinutes,
		logger:         logger.With(slog.String("component", "session_handler")),
	}
}

func (h *SessionHandler) toResponse(s *domain.Session) SessionResponse {
	return SessionResponse{Session: s, TimeoutMinutes: h.timeoutMinutes}
}

// StartSession handles POST /sessions.
func (h *SessionHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	h.start(w, r, false)
}

// RestartSession handles POST /sessions/restart.
func (h *SessionHandler) RestartSession(w http.ResponseWriter, r *http.Request) {
	h.start(w, r, true)
}

func (h *SessionHandler) start(w http.ResponseWriter, r *http.Request, restart bool) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	userID, ok := requireUser(w, r, log)
	if !ok {
		return
	}

	var req StartSessionRequest
	if !decodeAndValidate(w, r, &req, log) {
		return
	}
	mode, err := req.sessionMode()
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid mode: invalid value", err)
		return
	}

	var sess *domain.Session
	if restart {
		sess, err = h.sessions.RestartSession(r.Context(), userID, mode, req.config())
	} else {
		sess, err = h.sessions.StartSession(r.Context(), userID, mode, req.config())
	}
	if err != nil {
		HandleAPIError(w, r, err, "Failed to start session")
		return
	}

	log.Debug("session started",
		slog.String("session_id", sess.ID.String()),
		slog.String("mode", string(mode)),
		slog.Bool("restart", restart))
	shared.RespondWithJSON(w, r, http.StatusCreated, h.toResponse(sess))
}

// GetActiveSession handles GET /sessions/active?mode=. It replies 204 when
// the user has no session of the mode in progress.
func (h *SessionHandler) GetActiveSession(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	userID, ok := requireUser(w, r, log)
	if !ok {
		return
	}

	mode, err := domain.ParseSessionMode(strings.ToUpper(r.URL.Query().Get("mode")))
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	sess, err := h.sessions.GetActiveSession(r.Context(), userID, mode)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get active session")
		return
	}
	if sess == nil {
		shared.RespondNoContent(w)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, h.toResponse(sess))
}

// ListSessions handles GET /sessions?mode=&page=&size=.
func (h *SessionHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
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
	var mode *domain.SessionMode
	if raw := r.URL.Query().Get("mode"); raw != "" {
		m, err := domain.ParseSessionMode(strings.ToUpper(raw))
		if err != nil {
			HandleAPIError(w, r, err, "")
			return
		}
		mode = &m
	}

	result, err := h.sessions.ListSessions(r.Context(), userID, mode, page, size)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list sessions")
		return
	}

	out := SessionPageResponse{
		Sessions: make([]SessionResponse, 0, len(result.Sessions)),
		Total:    result.Total,
		Page:     result.Page,
		Size:     result.Size,
	}
	for _, s := range result.Sessions {
		out.Sessions = append(out.Sessions, h.toResponse(s))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, out)
}

// GetSession handles GET /sessions/{id}.
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := handleUserIDAndPathUUID(w, r, "id", logger.FromContextOrDefault(r.Context(), h.logger))
	if !ok {
		return
	}
	sess, err := h.sessions.GetSession(r.Context(), userID, sessionID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get session")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, h.toResponse(sess))
}

// GetNextQuestion handles GET /sessions/{id}/next. It replies 204 once the
// question pool is exhausted.
func (h *SessionHandler) GetNextQuestion(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	userID, sessionID, ok := handleUserIDAndPathUUID(w, r, "id", log)
	if !ok {
		return
	}

	q, err := h.sessions.GetNextQuestion(r.Context(), userID, sessionID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get next question")
		return
	}
	if q == nil {
		log.Debug("question pool exhausted", slog.String("session_id", sessionID.String()))
		shared.RespondNoContent(w)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, q)
}

// SubmitAnswer handles POST /sessions/{id}/answers.
func (h *SessionHandler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	userID, sessionID, ok := handleUserIDAndPathUUID(w, r, "id", log)
	if !ok {
		return
	}

	var req assessment.AnswerRequest
	if !decodeAndValidate(w, r, &req, log) {
		return
	}

	result, err := h.sessions.SubmitAnswer(r.Context(), userID, sessionID, req)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to submit answer")
		return
	}

	log.Debug("answer recorded",
		slog.String("session_id", sessionID.String()),
		slog.Int64("question_id", req.QuestionID),
		slog.Bool("correct", result.IsCorrect),
		slog.Bool("terminated", result.Terminated))
	shared.RespondWithJSON(w, r, http.StatusOK, AnswerResponse{
		AnswerResult: result,
		Session:      h.toResponse(result.Session),
	})
}

// FinishSession handles POST /sessions/{id}/finish.
func (h *SessionHandler) FinishSession(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := handleUserIDAndPathUUID(w, r, "id", logger.FromContextOrDefault(r.Context(), h.logger))
	if !ok {
		return
	}
	result, err := h.sessions.FinishSession(r.Context(), userID, sessionID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to finish session")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, result)
}

// AbandonSession handles POST /sessions/{id}/abandon.
func (h *SessionHandler) AbandonSession(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := handleUserIDAndPathUUID(w, r, "id", logger.FromContextOrDefault(r.Context(), h.logger))
	if !ok {
		return
	}
	sess, err := h.sessions.AbandonSession(r.Context(), userID, sessionID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to abandon session")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, h.toResponse(sess))
}

// ListMastery handles GET /mastery.
func (h *SessionHandler) ListMastery(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, logger.FromContextOrDefault(r.Context(), h.logger))
	if !ok {
		return
	}
	views, err := h.sessions.ListMastery(r.Context(), userID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list mastery")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, views)
}
