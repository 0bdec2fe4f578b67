package apperrors

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates that a requested resource could not be found.
var ErrNotFound = errors.New("resource not found")

// ErrValidation indicates that input data failed validation checks.
var ErrValidation = errors.New("validation error")

// ErrDuplicate indicates that an attempt was made to create a resource that already exists.
var ErrDuplicate = errors.New("resource already exists")

// ErrSenderBalanceMissing is the domain error raised inside the ledger
// transaction when the sender has no balance record. The record is never
// auto-created for a sender.
var ErrSenderBalanceMissing = errors.New("sender balance record does not exist")

// ErrInsufficientFunds is the domain error raised inside the ledger transaction
// when the sender's main balance cannot cover the transfer amount.
var ErrInsufficientFunds = errors.New("insufficient funds")

// ErrTransferNotPending indicates the transfer request reached a terminal
// state between delivery and commit. The atomic unit rolls back and commits
// nothing; callers treat the run as a skip, not a completion.
var ErrTransferNotPending = errors.New("transfer request is no longer pending")

// ErrConflictExhausted indicates the ledger transaction could not commit after
// the bounded number of retries on serialization/deadlock conflicts. Unlike the
// domain errors above, the same transfer may safely be resubmitted as a new
// request.
var ErrConflictExhausted = errors.New("transaction conflict retries exhausted")

// AppError wraps an underlying error with an HTTP-ish code and a message
// suitable for logs and API responses.
type AppError struct {
	Code    int
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new AppError wrapping err.
func NewAppError(code int, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// NewNotFoundError creates an AppError that matches ErrNotFound via errors.Is.
func NewNotFoundError(message string) *AppError {
	return &AppError{Code: 404, Message: message, Err: ErrNotFound}
}
