package payment

import (
	"errors"
)

// Terminal workflow failures. Match them with errors.Is.
var (
	ErrInit     = errors.New("payment initialization failed")
	ErrStatus   = errors.New("payment status check failed")
	ErrRejected = errors.New("payment was not successful")
	ErrTimeout  = errors.New("payment confirmation timed out")
	ErrStorage  = errors.New("payment storage failed")
)

// Request-level refusals raised before any upstream call.
var (
	ErrInvalidRequest = errors.New("invalid payment request")
	ErrAlreadyPaid    = errors.New("payment already recorded")
	ErrInFlight       = errors.New("payment already in progress")
)

// Error carries the failure kind together with the correlation handle of the
// push it belongs to, when one was issued.
type Error struct {
	Kind      error
	AccountNo string
	Err       error
}

func newError(kind error, accountNo string, err error) *Error {
	return &Error{Kind: kind, AccountNo: accountNo, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == e.Kind }
