package errors

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	ErrNotFound         = errors.New("not found")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrStaleSuggestion  = errors.New("suggestion is stale")
	ErrDuplicatePayment = errors.New("payment already recorded")
	ErrInvalidState     = errors.New("invalid payment state")
	ErrUnbalanced       = errors.New("ledger does not balance")
)

// BusinessError represents a business logic error
type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

// NewBusinessError creates a new business error
func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Error codes
const (
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeStaleSuggestion  = "STALE_SUGGESTION"
	ErrCodeDuplicatePayment = "DUPLICATE_PAYMENT"
	ErrCodeInvalidState     = "INVALID_STATE"
	ErrCodeUnbalanced       = "UNBALANCED_LEDGER"
	ErrCodeDatabaseError    = "DATABASE_ERROR"
	ErrCodeCacheError       = "CACHE_ERROR"
)

// CodeOf returns the business code carried by err, or "" when err is not a
// BusinessError.
func CodeOf(err error) string {
	var be *BusinessError
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}

func WrapEventNotFound(eventID int64) *BusinessError {
	return NewBusinessError(
		ErrCodeNotFound,
		fmt.Sprintf("Event with ID %d not found", eventID),
		ErrNotFound,
	)
}

func WrapRosterNotFound(eventID int64) *BusinessError {
	return NewBusinessError(
		ErrCodeNotFound,
		fmt.Sprintf("Event with ID %d has no participants", eventID),
		ErrNotFound,
	)
}

func WrapParticipantNotFound(participantID int64) *BusinessError {
	return NewBusinessError(
		ErrCodeNotFound,
		fmt.Sprintf("Participant with ID %d not found", participantID),
		ErrNotFound,
	)
}

func WrapPaymentNotFound(paymentID string) *BusinessError {
	return NewBusinessError(
		ErrCodeNotFound,
		fmt.Sprintf("Payment with ID %s not found", paymentID),
		ErrNotFound,
	)
}

func WrapUnauthorized(reason string) *BusinessError {
	return NewBusinessError(
		ErrCodeUnauthorized,
		reason,
		ErrUnauthorized,
	)
}

func WrapStaleSuggestion(reason string) *BusinessError {
	return NewBusinessError(
		ErrCodeStaleSuggestion,
		fmt.Sprintf("Suggestion no longer matches current balances: %s", reason),
		ErrStaleSuggestion,
	)
}

func WrapDuplicatePayment() *BusinessError {
	return NewBusinessError(
		ErrCodeDuplicatePayment,
		"This suggestion is already marked as paid",
		ErrDuplicatePayment,
	)
}

func WrapInvalidState(reason string) *BusinessError {
	return NewBusinessError(
		ErrCodeInvalidState,
		reason,
		ErrInvalidState,
	)
}

func WrapUnbalanced(residue string) *BusinessError {
	return NewBusinessError(
		ErrCodeUnbalanced,
		fmt.Sprintf("Balances leave %s unsettled", residue),
		ErrUnbalanced,
	)
}

func WrapDatabaseError(err error) *BusinessError {
	return NewBusinessError(
		ErrCodeDatabaseError,
		"database operation failed",
		err,
	)
}

func WrapCacheError(err error) *BusinessError {
	return NewBusinessError(
		ErrCodeCacheError,
		"Cache operation failed",
		err,
	)
}
