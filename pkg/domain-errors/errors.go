// Package domainerrors provides coded errors that cross package boundaries.
//
// Stores report infrastructure facts with pkg/platform/sentinel; services
// translate those facts into coded errors so callers (HTTP handlers, CLIs,
// tests) can branch on the Code without string matching.
package domainerrors

import (
	"errors"
	"net/http"
)

// Code classifies a domain error.
type Code string

const (
	CodeBadRequest         Code = "bad_request"
	CodeValidation         Code = "validation_error"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeInternal           Code = "internal_error"
	CodeTimeout            Code = "timeout"
	CodeInvariantViolation Code = "invariant_violation"

	// CodeAmbiguousMatch: a predicate meant to address one record matched several.
	CodeAmbiguousMatch Code = "ambiguous_match"
	// CodeInvalidForeignKey: an insert referenced an empty or unknown parent.
	CodeInvalidForeignKey Code = "invalid_foreign_key"
	// CodeUnsupportedKind: the concrete record kind is not one the system knows.
	CodeUnsupportedKind Code = "unsupported_kind"
	// CodeInvalidExpression: a predicate or projection has nothing to rewrite.
	CodeInvalidExpression Code = "invalid_expression"
)

// Error is a coded error with an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a coded error.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, msg string) error {
	return &Error{Code: code, Message: msg, Err: err}
}

// HasCode reports whether any error in err's chain carries code.
func HasCode(err error, code Code) bool {
	var de *Error
	for err != nil {
		if errors.As(err, &de) {
			if de.Code == code {
				return true
			}
			err = de.Err
			continue
		}
		return false
	}
	return false
}

// Is is an alias of HasCode kept for call sites that read better with it.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf returns the outermost code in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a code to the status the HTTP boundary responds with.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest, CodeValidation, CodeUnsupportedKind, CodeInvalidExpression:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeAmbiguousMatch:
		return http.StatusConflict
	case CodeInvalidForeignKey, CodeInvariantViolation:
		return http.StatusUnprocessableEntity
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
