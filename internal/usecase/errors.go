package usecase

import "fmt"

// ErrorCode classifies a widget failure for the front end.
type ErrorCode string

const (
	ErrorNetwork      ErrorCode = "NETWORK_ERROR"
	ErrorEmptyGuide   ErrorCode = "EMPTY_GUIDE"
	ErrorValidation   ErrorCode = "VALIDATION_ERROR"
	ErrorInvalidState ErrorCode = "INVALID_STATE"
	ErrorUpstream     ErrorCode = "UPSTREAM_ERROR"
)

// Error is returned by Widget operations and carried in Outcome.Err. Reason
// is a short snake_case tag naming the failing step; Err is the cause, if any.
type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}
