// Package domainerrors defines the coded error taxonomy shared by services,
// gateways, and transport. Codes drive both HTTP status mapping and retry
// decisions, so services compare codes instead of matching error strings.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a failure. The taxonomy is closed: new codes are added
// here, never invented at call sites.
type Code string

const (
	// CodeTransientExternal marks retryable external failures: network
	// errors, timeouts, 5xx responses.
	CodeTransientExternal Code = "transient_external"

	// CodePermanentExternal marks non-retryable external failures: 4xx
	// responses, malformed payloads.
	CodePermanentExternal Code = "permanent_external"

	// CodeValidation marks a local result that failed structural or range
	// checks.
	CodeValidation Code = "validation"

	// CodeConsistency marks an illegal stage transition attempt.
	CodeConsistency Code = "consistency"

	// CodeAuthorization marks an operation rejected by the external
	// authority (e.g. anchor revoke by a non-issuer).
	CodeAuthorization Code = "authorization"

	// CodeDuplicate marks the content-addressed short-circuit. It is a
	// successful outcome carried on the error channel, not a failure.
	CodeDuplicate Code = "duplicate"

	CodeNotFound     Code = "not_found"
	CodeInvalidInput Code = "invalid_input"
	CodeBadRequest   Code = "bad_request"
	CodeConflict     Code = "conflict"
	CodeUnauthorized Code = "unauthorized"
	CodeInternal     Code = "internal_error"
)

// Error is a coded domain error. Message is safe to surface to callers for
// every code except internal.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a coded error with a caller-facing message.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap builds a coded error preserving the underlying cause for unwrapping.
func Wrap(code Code, message string, err error) error {
	return &Error{Code: code, Message: message, Err: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to internal for uncoded
// errors so nothing leaks an unclassified failure to callers.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf extracts the caller-facing message, empty for uncoded errors.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return ""
}

// IsRetryable reports whether the failure is worth retrying. Only transient
// external failures qualify; everything else propagates immediately.
func IsRetryable(err error) bool {
	return HasCode(err, CodeTransientExternal)
}
