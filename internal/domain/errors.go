package domain

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. Callers branch with errors.Is; transports map them
// to their own status vocabulary.
var (
	ErrValidation    = errors.New("validation failed")
	ErrAuthorization = errors.New("authorization denied")
	ErrConflict      = errors.New("conflict")
	ErrTerminalState = errors.New("terminal state")
	ErrNotFound      = errors.New("not found")
	ErrSystem        = errors.New("system failure")
	ErrIntegrity     = errors.New("integrity violation")
)

// Error pairs a stable machine-readable code with one of the sentinel kinds
// above. Failures surface as values carrying success/code/message, never as
// panics.
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind error, code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: kind}
}

func ValidationError(code, format string, args ...any) *Error {
	return newError(ErrValidation, code, format, args...)
}

func AuthorizationError(code, format string, args ...any) *Error {
	return newError(ErrAuthorization, code, format, args...)
}

func ConflictError(code, format string, args ...any) *Error {
	return newError(ErrConflict, code, format, args...)
}

func TerminalStateError(code, format string, args ...any) *Error {
	return newError(ErrTerminalState, code, format, args...)
}

func NotFoundError(code, format string, args ...any) *Error {
	return newError(ErrNotFound, code, format, args...)
}

func SystemError(code string, err error) *Error {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return &Error{Code: code, Message: msg, Err: errors.Join(ErrSystem, err)}
}

func IntegrityError(code, format string, args ...any) *Error {
	return newError(ErrIntegrity, code, format, args...)
}

// CodeOf extracts the machine-readable code from err, or returns "" when
// err carries none.
func CodeOf(err error) string {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return ""
}
