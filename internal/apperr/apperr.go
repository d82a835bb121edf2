// Package apperr defines the failure taxonomy shared by the incident service,
// evidence intake and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for callers.
type Kind string

const (
	KindValidation   Kind = "validation_failed"
	KindUnauthorized Kind = "unauthorized"
	KindNotFound     Kind = "not_found"
	KindRateLimited  Kind = "rate_limited"
	KindInternal     Kind = "internal"
)

// Reason refines a validation failure.
type Reason string

const (
	ReasonNone        Reason = ""
	ReasonInvalidType Reason = "invalid_type"
	ReasonTooLarge    Reason = "too_large"
	ReasonTooMany     Reason = "too_many"
	ReasonInvalidArg  Reason = "invalid_argument"
)

// Error is a typed failure. Message is safe to show to the caller; Err holds
// internal detail for logs.
type Error struct {
	Kind    Kind
	Reason  Reason
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Validation returns a ValidationFailed error.
func Validation(reason Reason, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// Unauthorized returns an Unauthorized error with the standard message.
func Unauthorized() *Error {
	return &Error{Kind: KindUnauthorized, Message: "Not authorized"}
}

// NotFound returns a NotFound error for the named entity.
func NotFound(entity string) *Error {
	return &Error{Kind: KindNotFound, Message: entity + " not found"}
}

// RateLimited returns a RateLimited error.
func RateLimited() *Error {
	return &Error{Kind: KindRateLimited, Message: "Too many requests, please try again later"}
}

// Internal wraps err as an Internal failure.
func Internal(op string, err error) *Error {
	return &Error{Kind: KindInternal, Message: "Server error", Err: fmt.Errorf("%s: %w", op, err)}
}

// KindOf returns the Kind of err, or KindInternal for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// ReasonOf returns the Reason of err, or ReasonNone.
func ReasonOf(err error) Reason {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ReasonNone
}

// Is reports whether err is an *Error of kind k.
func Is(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}
