package workflow

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/audit"
	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/directory"
	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/documents"
)

var (
	ErrInvalidState = errors.New("invalid state")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrStorage      = errors.New("storage failure")
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotification is only ever logged.
	ErrNotification = errors.New("notification failure")
)

type Kind string

const (
	KindInvalidState Kind = "invalid_state"
	KindForbidden    Kind = "forbidden"
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindStorage      Kind = "storage"
	KindInvalidInput Kind = "invalid_input"
	KindNotification Kind = "notification"
	KindUnknown      Kind = "unknown"
)

// KindOf names the taxonomy bucket of err.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidState):
		return KindInvalidState
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrStorage):
		return KindStorage
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrNotification):
		return KindNotification
	default:
		return KindUnknown
	}
}

// Retryable is true for errors where repeating the whole call may succeed.
func Retryable(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrStorage)
}

// MapHTTPStatus maps workflow errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch KindOf(err) {
	case KindInvalidState, KindConflict:
		return http.StatusConflict
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindStorage:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func invalidState(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}

func forbidden(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrForbidden, fmt.Sprintf(format, args...))
}

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func notFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Classify folds a repository error into the taxonomy for readers outside the
// engine.
func Classify(err error) error {
	return classify(err)
}

// classify folds repository and driver errors into the taxonomy. Errors already
// in the taxonomy pass through unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	switch KindOf(err) {
	case KindInvalidState, KindForbidden, KindNotFound, KindConflict, KindStorage, KindInvalidInput:
		return err
	}
	switch {
	case errors.Is(err, documents.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, directory.ErrUserNotFound), errors.Is(err, directory.ErrDepartmentNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, documents.ErrVersionConflict), errors.Is(err, documents.ErrDuplicateNumber):
		return fmt.Errorf("%w: %w", ErrConflict, err)
	case errors.Is(err, audit.ErrEmptyAction):
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
}
