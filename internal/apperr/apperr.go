// Package apperr is the error taxonomy shared by the chat and notification
// services. Every error that crosses a service boundary is an *Error with a
// Kind; the session dispatcher and the HTTP handlers translate kinds into
// client-facing events and status codes.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindInvalidInput  Kind = "invalid_input"
	KindNotFound      Kind = "not_found"
	KindDuplicateRoom Kind = "duplicate_room"
	KindPersistence   Kind = "persistence"
	KindPartialBatch  Kind = "partial_batch"
	KindRateLimited   Kind = "rate_limited"
	KindForbidden     Kind = "forbidden"
)

// GenericMessage is what clients see for persistence failures. The cause
// is only ever logged.
const GenericMessage = "internal error"

type Error struct {
	Kind    Kind
	Message string
	Details string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so callers can write
// errors.Is(err, apperr.ErrNotFound).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

// PublicMessage is the text safe to send to a client.
func (e *Error) PublicMessage() string {
	if e.Kind == KindPersistence {
		return GenericMessage
	}
	return e.Message
}

// Sentinels for errors.Is.
var (
	ErrInvalidInput  = &Error{Kind: KindInvalidInput}
	ErrNotFound      = &Error{Kind: KindNotFound}
	ErrDuplicateRoom = &Error{Kind: KindDuplicateRoom}
	ErrPersistence   = &Error{Kind: KindPersistence}
	ErrPartialBatch  = &Error{Kind: KindPartialBatch}
	ErrRateLimited   = &Error{Kind: KindRateLimited}
	ErrForbidden     = &Error{Kind: KindForbidden}
)

func InvalidInput(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidInput, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Forbidden(format string, args ...any) *Error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

func RateLimited(format string, args ...any) *Error {
	return &Error{Kind: KindRateLimited, Message: fmt.Sprintf(format, args...)}
}

func DuplicateRoom(userID int64, err error) *Error {
	return &Error{Kind: KindDuplicateRoom, Message: fmt.Sprintf("active room already exists for user %d", userID), Err: err}
}

// Persistence wraps a store failure. op names the failed operation for logs.
func Persistence(op string, err error) *Error {
	return &Error{Kind: KindPersistence, Message: op, Err: err}
}

// FromStore passes taxonomy errors through and wraps anything else as a
// Persistence error for op. It returns nil for a nil err.
func FromStore(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	var be *BatchError
	if errors.As(err, &e) || errors.As(err, &be) {
		return err
	}
	return Persistence(op, err)
}

// BatchError reports a group notification that did not persist every
// target. Inserted counts the rows that were durably written.
type BatchError struct {
	Targets  int
	Inserted int
	Err      error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("%s: %d of %d notifications persisted: %v", KindPartialBatch, e.Inserted, e.Targets, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

func (e *BatchError) Is(target error) bool {
	return target == ErrPartialBatch
}

// KindOf returns the Kind of err, or KindPersistence for anything that is
// not part of the taxonomy.
func KindOf(err error) Kind {
	var be *BatchError
	if errors.As(err, &be) {
		return KindPartialBatch
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindPersistence
}

// Public returns the client-facing message and optional details for err.
func Public(err error) (message, details string) {
	var be *BatchError
	if errors.As(err, &be) {
		return "notification batch failed", fmt.Sprintf("%d of %d persisted", be.Inserted, be.Targets)
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Kind == KindPersistence {
			return GenericMessage, ""
		}
		return e.PublicMessage(), e.Details
	}
	return GenericMessage, ""
}
