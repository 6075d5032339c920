// Package apperr defines the typed, client-facing errors returned by the
// tutoring services. Handlers translate an error's Kind into an HTTP status.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an application error.
type Kind string

const (
	KindNotFound         Kind = "NOT_FOUND"
	KindUnauthorized     Kind = "UNAUTHORIZED"
	KindInvalidRequest   Kind = "INVALID_REQUEST"
	KindInvalidTimeRange Kind = "INVALID_TIME_RANGE"
	KindConflictExists   Kind = "CONFLICT_EXISTS"
	KindAlreadyProcessed Kind = "ALREADY_PROCESSED"
	KindInvalidState     Kind = "INVALID_STATE"
	KindValidation       Kind = "VALIDATION"
	KindConflict         Kind = "CONFLICT"
	KindInternal         Kind = "INTERNAL"
)

// Error is an application error carrying a Kind and a human-readable message.
type Error struct {
	Kind    Kind
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is reports whether target is an *Error of the same Kind, so that
// errors.Is(err, apperr.ErrAlreadyProcessed) matches any message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrUnauthorized     = &Error{Kind: KindUnauthorized}
	ErrInvalidRequest   = &Error{Kind: KindInvalidRequest}
	ErrInvalidTimeRange = &Error{Kind: KindInvalidTimeRange}
	ErrConflictExists   = &Error{Kind: KindConflictExists}
	ErrAlreadyProcessed = &Error{Kind: KindAlreadyProcessed}
	ErrInvalidState     = &Error{Kind: KindInvalidState}
	ErrValidation       = &Error{Kind: KindValidation}
	ErrConflict         = &Error{Kind: KindConflict}
)

// NewNotFoundError reports that the named entity does not exist.
func NewNotFoundError(entity, id string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s not found: %s", entity, id)}
}

// NewUnauthorizedError reports that the acting member may not perform the operation.
func NewUnauthorizedError(message string) *Error {
	return &Error{Kind: KindUnauthorized, Message: message}
}

// NewInvalidRequestError reports a structurally invalid request such as self-booking.
func NewInvalidRequestError(message string) *Error {
	return &Error{Kind: KindInvalidRequest, Message: message}
}

// NewInvalidTimeRangeError reports a time window that is inverted or in the past.
func NewInvalidTimeRangeError(message string) *Error {
	return &Error{Kind: KindInvalidTimeRange, Message: message}
}

// NewConflictExistsError reports an overlapping active booking.
func NewConflictExistsError(message string) *Error {
	return &Error{Kind: KindConflictExists, Message: message}
}

// NewAlreadyProcessedError reports an accept/reject on a request that was already answered.
func NewAlreadyProcessedError(from string) *Error {
	return &Error{Kind: KindAlreadyProcessed, Message: fmt.Sprintf("request already processed (status %s)", from)}
}

// NewInvalidStateError reports a transition that the current status does not allow.
func NewInvalidStateError(from, to string) *Error {
	return &Error{Kind: KindInvalidState, Message: fmt.Sprintf("cannot transition from %s to %s", from, to)}
}

// NewValidationError reports malformed input.
func NewValidationError(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

// NewConflictError reports a lost optimistic-concurrency race.
func NewConflictError(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

// KindOf returns the Kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
