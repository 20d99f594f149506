package common

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound           = errors.New("requested resource not found")
	ErrBadRequest         = errors.New("bad request")
	ErrConflict           = errors.New("resource conflict")
	ErrServiceUnavailable = errors.New("service unavailable") // e.g. grading service down

	// Grading job taxonomy
	ErrInvalidInput        = errors.New("invalid input")
	ErrAlreadyGraded       = errors.New("question already graded")
	ErrTransientGrading    = errors.New("transient grading failure")
	ErrPermanentGrading    = errors.New("permanent grading failure")
	ErrCancelled           = errors.New("grading cancelled")
	ErrRunnerStopped       = errors.New("job runner is shutting down")
	ErrJobAlreadyScheduled = errors.New("job already scheduled")
)

// HTTPStatusFromError maps domain errors to HTTP status codes.
func HTTPStatusFromError(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound
	}
	if errors.Is(err, ErrBadRequest) || errors.Is(err, ErrInvalidInput) {
		return http.StatusBadRequest
	}
	if errors.Is(err, ErrConflict) || errors.Is(err, ErrAlreadyGraded) || errors.Is(err, ErrJobAlreadyScheduled) {
		return http.StatusConflict
	}
	if errors.Is(err, ErrServiceUnavailable) || errors.Is(err, ErrRunnerStopped) {
		return http.StatusServiceUnavailable
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "23505" { // Unique violation
			return http.StatusConflict
		}
	}

	return http.StatusInternalServerError
}

// ErrorCode is the machine readable kind sent next to the message in error bodies.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrBadRequest):
		return "invalid_input"
	case errors.Is(err, ErrAlreadyGraded):
		return "already_graded"
	case errors.Is(err, ErrJobAlreadyScheduled), errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrRunnerStopped), errors.Is(err, ErrServiceUnavailable):
		return "unavailable"
	default:
		return "internal"
	}
}

// IsTransient reports whether a grading error may succeed on retry.
// Deadline overruns count as transient; caller cancellation does not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPermanentGrading) {
		return false
	}
	return errors.Is(err, ErrTransientGrading) || errors.Is(err, context.DeadlineExceeded)
}

// Errorf creates a new error with formatting, useful for wrapping.
func Errorf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}
