// Package errors holds the sentinel errors shared by the hits services and
// their mapping onto HTTP status codes.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrRateLimited      = errors.New("rate limit exceeded")
	ErrInternal         = errors.New("internal error")
	ErrTimeout          = errors.New("operation timed out")
	ErrConflict         = errors.New("conflict")

	ErrCancelled     = errors.New("operation cancelled")
	ErrTooManyGroups = errors.New("too many groups")
	ErrIndexTooLarge = errors.New("hit index exceeds buffer capacity")
	ErrIndexAccess   = errors.New("index access failed")
	ErrOutOfRange    = errors.New("hit index out of range")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// Cancelled wraps a context error so callers can match both ErrCancelled and
// the original context.Canceled / context.DeadlineExceeded.
func Cancelled(cause error) error {
	if cause == nil || errors.Is(cause, ErrCancelled) {
		return cause
	}
	return fmt.Errorf("%w: %w", ErrCancelled, cause)
}

// IndexAccess wraps a match-source or segment I/O failure.
func IndexAccess(segment int, cause error) error {
	if cause == nil || errors.Is(cause, ErrIndexAccess) || errors.Is(cause, ErrCancelled) {
		return cause
	}
	return fmt.Errorf("%w: segment %d: %w", ErrIndexAccess, segment, cause)
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrDocumentNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrOutOfRange):
		return http.StatusRequestedRangeNotSatisfiable
	case errors.Is(err, ErrTooManyGroups):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrIndexTooLarge):
		return http.StatusInsufficientStorage
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrCancelled), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
