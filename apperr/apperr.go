package apperr

import (
	"errors"
	"fmt"
)

// Code is the structured result surfaced to callers of the booking engine.
type Code string

const (
	Unauthorized               Code = "Unauthorized"
	NotFound                   Code = "NotFound"
	SlotConflict               Code = "SlotConflict"
	LocationMismatch           Code = "LocationMismatch"
	InsufficientInventory      Code = "InsufficientInventory"
	NegativeBalanceRestriction Code = "NegativeBalanceRestriction"
	AlreadyCancelled           Code = "AlreadyCancelled"
	LateCancellationDenied     Code = "LateCancellationDenied"
	ValidationError            Code = "ValidationError"
	InsufficientFunds          Code = "InsufficientFunds"
	InstructorUnavailable      Code = "InstructorUnavailable"
	AccountSuspended           Code = "AccountSuspended"
	InvalidTransition          Code = "InvalidTransition"
	// FatalInconsistency means a compensating action failed and an operator
	// has to reconcile the records by hand.
	FatalInconsistency Code = "FatalInconsistency"
	Internal           Code = "Internal"
)

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

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf returns the code of the first *Error in err's chain, or Internal.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return Internal
}

func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// MessageOf returns the user-facing message for err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}
