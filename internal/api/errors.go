package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/scry-assess/internal/api/shared"
	"github.com/phrazzld/scry-assess/internal/domain"
	"github.com/phrazzld/scry-assess/internal/domain/session"
	"github.com/phrazzld/scry-assess/internal/domain/srs"
	"github.com/phrazzld/scry-assess/internal/service"
	"github.com/phrazzld/scry-assess/internal/service/auth"
	"github.com/phrazzld/scry-assess/internal/service/cardsync"
	"github.com/phrazzld/scry-assess/internal/service/review"
	"github.com/phrazzld/scry-assess/internal/store"
)

// MapErrorToStatusCode maps internal errors to HTTP status codes without
// leaking their types to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrWrongTokenType),
		errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized

	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest

	case errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, store.ErrDuplicate),
		errors.Is(err, store.ErrVersionConflict):
		return http.StatusConflict

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a client-facing message for err. Specific
// sentinels get specific messages; anything unclassified is generic.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		return "Token expired"
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrWrongTokenType),
		errors.Is(err, auth.ErrMissingToken):
		return "Invalid token"
	case errors.Is(err, domain.ErrUnauthorized):
		return "User ID not found or invalid"

	case errors.Is(err, service.ErrCardNotFound), errors.Is(err, store.ErrCardNotFound):
		return "Card not found"
	case errors.Is(err, service.ErrSessionNotFound), errors.Is(err, store.ErrSessionNotFound):
		return "Session not found"
	case errors.Is(err, service.ErrNoQuestions):
		return "No questions available for the requested filter"
	case errors.Is(err, service.ErrQuestionNotFound), errors.Is(err, store.ErrQuestionNotFound):
		return "Question not found"

	case errors.Is(err, session.ErrSessionTerminal):
		return "Session is no longer in progress"
	case errors.Is(err, session.ErrQuestionAlreadyAnswered):
		return "Question already answered in this session"
	case errors.Is(err, srs.ErrCardSuspended):
		return "Card is suspended"
	case errors.Is(err, service.ErrConcurrentUpdate):
		return "Resource was modified concurrently, retry the request"

	case errors.Is(err, srs.ErrInvalidQuality):
		return "Quality must be an integer between 0 and 5"
	case errors.Is(err, review.ErrSkillMismatch):
		return "Skill does not match the question"
	case errors.Is(err, cardsync.ErrBatchTooLarge):
		return "Too many cards in one sync"
	case errors.Is(err, cardsync.ErrDuplicateQuestion):
		return "Duplicate question in sync payload"
	case errors.Is(err, cardsync.ErrUnknownQuestion):
		return "Unknown question in sync payload"
	case errors.Is(err, session.ErrInvalidConfig):
		return "Invalid session configuration"
	case errors.Is(err, domain.ErrInvalidID):
		return "Invalid ID format"
	case errors.Is(err, domain.ErrValidation), errors.Is(err, store.ErrInvalidEntity):
		return "Validation error"

	default:
		return "An unexpected error occurred"
	}
}

// HandleAPIError writes the error reply for err. fallback replaces the
// generic message of unclassified (500) errors when it is not empty.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := MapErrorToStatusCode(err)
	message := GetSafeErrorMessage(err)
	if status == http.StatusInternalServerError && fallback != "" {
		message = fallback
	}
	shared.RespondWithErrorAndLog(w, r, status, message, err)
}

// SanitizeValidationError turns validator output into a short message that
// names the first failing field.
func SanitizeValidationError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Validation error"
	}
	fe := verrs[0]
	return fmt.Sprintf("Invalid %s: %s", jsonFieldName(fe.Namespace()), getValidationTagMessage(fe.Tag()))
}

// jsonFieldName drops the root struct name from a validator namespace:
// "SyncRequest.Cards[0].EaseFactor" becomes "Cards[0].EaseFactor".
func jsonFieldName(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}

func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "min", "gte", "gt":
		return "too small"
	case "max", "lte", "lt":
		return "too large"
	case "oneof":
		return "invalid value"
	case "dive":
		return "invalid element"
	default:
		return "validation failed"
	}
}
