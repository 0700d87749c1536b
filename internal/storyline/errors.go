package storyline

import (
	"errors"
	"fmt"
)

// Code is a machine-readable error kind.
type Code string

const (
	CodeNotAuthenticated    Code = "NOT_AUTHENTICATED"
	CodeRemoteUnavailable   Code = "REMOTE_UNAVAILABLE"
	CodeNotFound            Code = "NOT_FOUND"
	CodeMalformedData       Code = "MALFORMED_DATA"
	CodeInvalidTransition   Code = "INVALID_TRANSITION"
	CodeChapterLocked       Code = "CHAPTER_LOCKED"
	CodeMigrationInProgress Code = "MIGRATION_IN_PROGRESS"
	CodeInvalidInput        Code = "INVALID_INPUT"
)

// Error is the domain error carried across package boundaries.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a domain error with a code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf is New with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a domain error that wraps cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Sentinels for errors.Is checks. They match any Error with the same code.
var (
	ErrNotAuthenticated    = New(CodeNotAuthenticated, "not authenticated")
	ErrRemoteUnavailable   = New(CodeRemoteUnavailable, "remote store unavailable")
	ErrNotFound            = New(CodeNotFound, "not found")
	ErrMalformedData       = New(CodeMalformedData, "malformed data")
	ErrInvalidTransition   = New(CodeInvalidTransition, "invalid transition")
	ErrChapterLocked       = New(CodeChapterLocked, "chapter locked")
	ErrMigrationInProgress = New(CodeMigrationInProgress, "migration in progress")
	ErrInvalidInput        = New(CodeInvalidInput, "invalid input")
)

// CodeOf returns the code of the first domain error in err's chain, or "".
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
