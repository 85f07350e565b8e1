package barter

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// ErrCodeInvalidCandidate indicates a candidate violated a constraint
	// during scoring. Never reaches persistence.
	ErrCodeInvalidCandidate ErrorCode = "INVALID_CANDIDATE"

	// ErrCodeItemUnavailable indicates a reservation race was lost.
	ErrCodeItemUnavailable ErrorCode = "ITEM_UNAVAILABLE"

	// ErrCodeExpiredChain indicates the chain's expiry has elapsed.
	ErrCodeExpiredChain ErrorCode = "EXPIRED_CHAIN"

	// ErrCodeUnauthorizedAction indicates a non-participant (or a
	// participant without the right role) attempted the action.
	ErrCodeUnauthorizedAction ErrorCode = "UNAUTHORIZED_ACTION"

	// ErrCodePartialAcceptance indicates execution before all participants accepted.
	ErrCodePartialAcceptance ErrorCode = "PARTIAL_ACCEPTANCE"

	// ErrCodeValidationFailed indicates blocking validator errors.
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"

	// ErrCodeExecutionFailure indicates a failure during commit. The
	// chain has already been rolled back to ACCEPTED.
	ErrCodeExecutionFailure ErrorCode = "EXECUTION_FAILURE"

	// ErrCodeConcurrencyConflict indicates an optimistic lock failure.
	ErrCodeConcurrencyConflict ErrorCode = "CONCURRENCY_CONFLICT"

	// ErrCodeInvalidTransition indicates the requested transition is not
	// allowed from the chain's current status.
	ErrCodeInvalidTransition ErrorCode = "INVALID_TRANSITION"

	// ErrCodeNotFound indicates an unknown chain, item or user.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
)

// Error is the structured error returned by every engine operation.
type Error struct {
	Code    ErrorCode
	Message string
	ChainID string
	ItemID  string
	UserID  string

	// Details carries validation issues or other structured context.
	Details []ValidationIssue

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	switch {
	case e.ChainID != "" && e.ItemID != "":
		msg = fmt.Sprintf("%s (chain=%s, item=%s)", msg, e.ChainID, e.ItemID)
	case e.ChainID != "" && e.UserID != "":
		msg = fmt.Sprintf("%s (chain=%s, user=%s)", msg, e.ChainID, e.UserID)
	case e.ChainID != "":
		msg = fmt.Sprintf("%s (chain=%s)", msg, e.ChainID)
	case e.ItemID != "":
		msg = fmt.Sprintf("%s (item=%s)", msg, e.ItemID)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates an Error with the given code and message.
func NewError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithChain sets the chain id and returns e.
func (e *Error) WithChain(id string) *Error {
	e.ChainID = id
	return e
}

// WithItem sets the item id and returns e.
func (e *Error) WithItem(id string) *Error {
	e.ItemID = id
	return e
}

// WithUser sets the user id and returns e.
func (e *Error) WithUser(id string) *Error {
	e.UserID = id
	return e
}

// Wrap sets the underlying cause and returns e.
func (e *Error) Wrap(err error) *Error {
	e.Err = err
	return e
}

// CodeOf extracts the ErrorCode from err, or "" if err is not an *Error.
// Uses errors.As to handle wrapped errors.
func CodeOf(err error) ErrorCode {
	var be *Error
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}

// Is reports whether err carries the given code.
func Is(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// IsItemUnavailable returns true if a reservation race was lost.
func IsItemUnavailable(err error) bool {
	return Is(err, ErrCodeItemUnavailable)
}

// IsConcurrencyConflict returns true if the caller should retry with fresh state.
func IsConcurrencyConflict(err error) bool {
	return Is(err, ErrCodeConcurrencyConflict)
}

// IsNotFound returns true for unknown ids.
func IsNotFound(err error) bool {
	return Is(err, ErrCodeNotFound)
}
