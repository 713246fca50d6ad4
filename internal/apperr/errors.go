package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for propagation and transport mapping
type Kind string

const (
	KindValidation   Kind = "validation"
	KindNotFound     Kind = "not_found"
	KindPrecondition Kind = "precondition"
	KindPersistence  Kind = "persistence"
	KindSyncAdvisory Kind = "sync_advisory"
)

var (
	// ErrValidation matches any malformed-input error via errors.Is
	ErrValidation = &Error{Kind: KindValidation}
	// ErrNotFound matches any missing goal/task error via errors.Is
	ErrNotFound = &Error{Kind: KindNotFound}
	// ErrPrecondition matches any roadmap gating violation via errors.Is
	ErrPrecondition = &Error{Kind: KindPrecondition}
	// ErrPersistence matches any failed store write via errors.Is
	ErrPersistence = &Error{Kind: KindPersistence}
	// ErrSyncAdvisory matches calendar bridge failures via errors.Is
	ErrSyncAdvisory = &Error{Kind: KindSyncAdvisory}
)

// Error is the application error type
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on Kind so sentinel values can be used with errors.Is
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Message == "" && t.Err == nil
}

// Validation returns a malformed-input error
func Validation(op, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: fmt.Sprintf(format, args...)}
}

// NotFound returns a missing goal/task error
func NotFound(op, format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Precondition returns a roadmap gating violation
func Precondition(op, format string, args ...any) *Error {
	return &Error{Kind: KindPrecondition, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Persistence wraps a failed store write
func Persistence(op string, err error) *Error {
	return &Error{Kind: KindPersistence, Op: op, Message: "store write failed", Err: err}
}

// SyncAdvisory wraps a calendar bridge failure
func SyncAdvisory(op string, err error) *Error {
	return &Error{Kind: KindSyncAdvisory, Op: op, Message: "calendar sync skipped", Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsNotFound checks if an error is a not-found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsPrecondition checks if an error is a precondition error
func IsPrecondition(err error) bool {
	return errors.Is(err, ErrPrecondition)
}

// IsPersistence checks if an error is a persistence error
func IsPersistence(err error) bool {
	return errors.Is(err, ErrPersistence)
}

// HTTPStatus maps an error to a response status code
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindPrecondition:
		return http.StatusConflict
	case KindPersistence:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns a message safe to show to callers
func PublicMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return "An unexpected error occurred"
	}
	switch e.Kind {
	case KindPersistence:
		return "Failed to save changes, please retry"
	default:
		if e.Message != "" {
			return e.Message
		}
		return string(e.Kind)
	}
}
