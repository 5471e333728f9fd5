package qerr

import (
	"errors"
	"fmt"
	"strings"
)

// Code represents a stable error category that callers can switch on.
type Code string

const (
	CodeUnknown          Code = "unknown"
	CodeValidation       Code = "validation"
	CodeDispatch         Code = "dispatch"
	CodeAdmissionTimeout Code = "admission_timeout"
	CodeExecutionTimeout Code = "execution_timeout"
	CodeExecutionFailed  Code = "execution_failed"
	CodeInternal         Code = "internal"
)

// Error is a simple value type that carries a Code plus the underlying error.
type Error struct {
	Code Code
	err  error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.err == nil {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// New wraps an error with the provided code. If err is nil a nil is returned.
func New(code Code, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, err: err}
}

// Errorf is New with a formatted message.
func Errorf(code Code, format string, args ...any) error {
	return &Error{Code: code, err: fmt.Errorf(format, args...)}
}

// reasonList is the human-readable rejection list produced by validators and
// the dispatcher.
type reasonList []string

func (r reasonList) Error() string { return strings.Join(r, "; ") }

// Reject builds a coded error carrying one or more reasons. It returns nil when
// no reasons are given.
func Reject(code Code, reasons ...string) error {
	if len(reasons) == 0 {
		return nil
	}
	return &Error{Code: code, err: reasonList(append([]string(nil), reasons...))}
}

// Reasons returns the reason list of an error built with Reject. Any other
// non-nil error yields its message as a single reason.
func Reasons(err error) []string {
	if err == nil {
		return nil
	}
	var rl reasonList
	if errors.As(err, &rl) {
		return append([]string(nil), rl...)
	}
	return []string{err.Error()}
}

// CodeOf returns the code of the outermost *Error in the chain, or CodeUnknown.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// IsCode helps callers compare codes without type assertions.
func IsCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}
