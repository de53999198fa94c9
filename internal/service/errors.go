package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/phrazzld/scry-assess/internal/domain"
	"github.com/phrazzld/scry-assess/internal/store"
)

// Common service errors. They wrap the domain sentinels so the API layer can
// classify them with errors.Is.
//
// Error handling principles:
// 1. Service methods return sentinel errors for expected error conditions
// 2. Unexpected errors are wrapped in ServiceError
// 3. Callers use errors.Is/errors.As to check for specific error conditions
// 4. The API layer maps service errors to appropriate HTTP status codes
var (
	// ErrCardNotFound covers both missing cards and cards owned by someone else.
	ErrCardNotFound = fmt.Errorf("%w: card", domain.ErrNotFound)

	// ErrSessionNotFound covers both missing sessions and sessions owned by
	// someone else.
	ErrSessionNotFound = fmt.Errorf("%w: session", domain.ErrNotFound)

	// ErrQuestionNotFound is returned when the catalog has no such question.
	ErrQuestionNotFound = fmt.Errorf("%w: question", domain.ErrNotFound)

	// ErrNoQuestions is returned when the catalog has no skill matching a
	// session's filter.
	ErrNoQuestions = fmt.Errorf("%w: no questions available for the requested filter", domain.ErrNotFound)

	// ErrConcurrentUpdate is returned when an optimistic write lost its race.
	ErrConcurrentUpdate = fmt.Errorf("%w: resource was modified concurrently", domain.ErrInvalidState)
)

// ServiceError wraps an unexpected failure with the service and operation
// that produced it.
type ServiceError struct {
	Service string
	Op      string
	Err     error
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s service %s operation failed", e.Service, e.Op)
	}
	return fmt.Sprintf("%s service %s operation failed: %v", e.Service, e.Op, e.Err)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewServiceError creates a new ServiceError.
func NewServiceError(service, op string, err error) *ServiceError {
	return &ServiceError{Service: service, Op: op, Err: err}
}

// IsExpected reports whether err is one of the classified conditions that
// pass through the service layer unchanged.
func IsExpected(err error) bool {
	return errors.Is(err, domain.ErrValidation) ||
		errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrInvalidState) ||
		errors.Is(err, store.ErrInvalidEntity)
}

// Wrap returns nil for nil, err unchanged for expected conditions and a
// ServiceError otherwise. A store version conflict becomes ErrConcurrentUpdate.
func Wrap(service, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrVersionConflict) {
		return fmt.Errorf("%w: %w", ErrConcurrentUpdate, err)
	}
	if IsExpected(err) {
		return err
	}
	return NewServiceError(service, op, err)
}

// Clock returns the current time. Services take one so tests can pin time.
type Clock func() time.Time

// SystemClock is the wall clock in UTC.
func SystemClock() time.Time {
	return time.Now().UTC()
}
