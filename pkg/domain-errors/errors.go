// Package domainerrors carries classified errors across service boundaries.
//
// Stores return sentinel errors (pkg/platform/sentinel); services translate those
// into a *Error with a Code, and the transport layer maps the Code to a status.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies an error independently of the layer that produced it.
type Code string

const (
	// Issuance and signing taxonomy.
	CodeNotFound         Code = "not_found"
	CodeExpired          Code = "expired"
	CodeUpstream         Code = "upstream_error"
	CodeSignatureFailure Code = "signature_failure"
	CodeProtocolMismatch Code = "protocol_mismatch"
	CodeParseFailure     Code = "parse_failure"
	CodeStorageFailure   Code = "storage_failure"

	// Transport-facing codes.
	CodeValidation     Code = "validation_error"
	CodeBadRequest     Code = "bad_request"
	CodeInvalidRequest Code = "invalid_request"
	CodeUnauthorized   Code = "unauthorized"
	CodeForbidden      Code = "forbidden"
	CodeConflict       Code = "conflict"
	CodeInternal       Code = "internal_error"
)

// Error is a classified error with an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Newf creates a classified error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err, keeping it reachable through errors.Is/As.
func Wrap(err error, code Code, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// As returns the outermost classified error in the chain.
func As(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// CodeOf returns the classification of err, or CodeInternal when unclassified.
func CodeOf(err error) Code {
	if de, ok := As(err); ok {
		return de.Code
	}
	return CodeInternal
}

// HasCode reports whether the outermost classified error in the chain has code.
func HasCode(err error, code Code) bool {
	de, ok := As(err)
	return ok && de.Code == code
}

// Is reports whether any classified error in the chain carries code.
func Is(err error, code Code) bool {
	for err != nil {
		if de, ok := err.(*Error); ok && de.Code == code {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}
