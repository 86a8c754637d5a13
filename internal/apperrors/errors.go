// SPDX-License-Identifier: MIT

// Package apperrors defines the error taxonomy shared across the
// orchestration core: every boundary (HTTP, dispatcher, processor,
// persistence, store) converts a lower-level failure into one of these
// kinds before it crosses upward.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies an error for retry policy and HTTP status mapping.
type Kind string

const (
	// ValidationFailure means the input violates a schema, range, or
	// ordering rule. Never retried.
	ValidationFailure Kind = "validation_failure"
	// NotFound means the referenced video, tool, or job does not exist.
	NotFound Kind = "not_found"
	// StoreTransient means a transient SQL error (busy, lock). Retried
	// by the persistence service with backoff.
	StoreTransient Kind = "store_transient"
	// StoreFatal means an integrity-check failure, schema mismatch, or
	// exhausted retries. Non-recoverable locally.
	StoreFatal Kind = "store_fatal"
	// ToolTimeout means a tool did not complete within its per-call
	// budget.
	ToolTimeout Kind = "tool_timeout"
	// ToolFailure means a tool raised during execution.
	ToolFailure Kind = "tool_failure"
	// BreakerOpen means a circuit breaker short-circuited the call.
	BreakerOpen Kind = "breaker_open"
	// RateLimited means the caller exceeded its token bucket.
	RateLimited Kind = "rate_limited"
)

var sentinels = map[Kind]error{
	ValidationFailure: errors.New("validation failure"),
	NotFound:          errors.New("not found"),
	StoreTransient:    errors.New("transient store error"),
	StoreFatal:        errors.New("fatal store error"),
	ToolTimeout:       errors.New("tool execution timed out"),
	ToolFailure:       errors.New("tool execution failed"),
	BreakerOpen:       errors.New("circuit breaker open"),
	RateLimited:       errors.New("rate limit exceeded"),
}

// Error is the concrete error type carried across component boundaries.
type Error struct {
	Kind    Kind
	Message string
	Field   string         // set for ValidationFailure
	Details map[string]any // optional structured context
	cause   error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field=%s)", e.Kind, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	if e.cause != nil {
		return e.cause
	}
	return sentinels[e.Kind]
}

// Is reports whether target is the sentinel for e's kind, so callers can
// write errors.Is(err, apperrors.Sentinel(apperrors.NotFound)) or compare kinds
// directly via apperrors.KindOf.
func (e *Error) Is(target error) bool {
	return errors.Is(sentinels[e.Kind], target)
}

// New builds an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error of the given kind that unwraps to cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// Validation builds a ValidationFailure citing the offending field.
func Validation(field, message string) *Error {
	return &Error{Kind: ValidationFailure, Message: message, Field: field}
}

// WithDetails attaches structured context and returns the receiver for
// chaining at the construction site.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// KindOf extracts the Kind from err, defaulting to "" when err is not one
// of ours.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}

// Sentinel returns the package-level sentinel error for a kind, usable
// with errors.Is from callers that only have the Kind constant.
func Sentinel(kind Kind) error {
	return sentinels[kind]
}

// Retryable reports whether an error of this kind should be retried by
// the persistence service's backoff loop.
func Retryable(err error) bool {
	return KindOf(err) == StoreTransient
}
