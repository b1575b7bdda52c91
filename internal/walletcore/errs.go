package walletcore

import "fmt"

// ValidationError covers malformed input: missing fields, non-positive
// amounts, out-of-range transfers, self-transfers. Maps to HTTP 400.
type ValidationError struct{ msg string }

func (e *ValidationError) Error() string { return e.msg }

func NewValidationError(format string, args ...interface{}) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

// NotFoundError covers a wallet that does not exist when the operation
// requires one to already. Maps to HTTP 404.
type NotFoundError struct{ msg string }

func (e *NotFoundError) Error() string { return e.msg }

func NewNotFoundError(format string, args ...interface{}) error {
	return &NotFoundError{msg: fmt.Sprintf(format, args...)}
}

// ConflictError covers duplicate initialization, a second buy-in on a
// seat already frozen, or a cash-out with no matching frozen entry.
// Maps to HTTP 400 per §7 (the spec does not reserve 409 for these).
type ConflictError struct{ msg string }

func (e *ConflictError) Error() string { return e.msg }

func NewConflictError(format string, args ...interface{}) error {
	return &ConflictError{msg: fmt.Sprintf(format, args...)}
}

// LimitError covers insufficient funds and daily cap violations. Maps
// to HTTP 400.
type LimitError struct{ msg string }

func (e *LimitError) Error() string { return e.msg }

func NewLimitError(format string, args ...interface{}) error {
	return &LimitError{msg: fmt.Sprintf(format, args...)}
}

// InternalError covers persistence failure, lock timeout, and anything
// unexpected. Maps to HTTP 5xx.
type InternalError struct{ msg string }

func (e *InternalError) Error() string { return e.msg }

func NewInternalError(format string, args ...interface{}) error {
	return &InternalError{msg: fmt.Sprintf(format, args...)}
}
