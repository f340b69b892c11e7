package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBusinessError_IsSentinel(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
		code     string
	}{
		{"event not found", WrapEventNotFound(7), ErrNotFound, ErrCodeNotFound},
		{"participant not found", WrapParticipantNotFound(3), ErrNotFound, ErrCodeNotFound},
		{"unauthorized", WrapUnauthorized("not the creditor"), ErrUnauthorized, ErrCodeUnauthorized},
		{"stale", WrapStaleSuggestion("index out of range"), ErrStaleSuggestion, ErrCodeStaleSuggestion},
		{"duplicate", WrapDuplicatePayment(), ErrDuplicatePayment, ErrCodeDuplicatePayment},
		{"invalid state", WrapInvalidState("already confirmed"), ErrInvalidState, ErrCodeInvalidState},
		{"unbalanced", WrapUnbalanced("0.05"), ErrUnbalanced, ErrCodeUnbalanced},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("handler: %w", tt.err)
			assert.True(t, errors.Is(wrapped, tt.sentinel))
			assert.Equal(t, tt.code, CodeOf(wrapped))
		})
	}
}

func TestBusinessError_Message(t *testing.T) {
	err := WrapEventNotFound(42)
	assert.Equal(t, "NOT_FOUND: Event with ID 42 not found (not found)", err.Error())

	plain := NewBusinessError("X", "no cause", nil)
	assert.Equal(t, "X: no cause", plain.Error())
}

func TestCodeOf_PlainError(t *testing.T) {
	assert.Equal(t, "", CodeOf(errors.New("boom")))
	assert.Equal(t, "", CodeOf(nil))
}

func TestWrapDatabaseError_KeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := WrapDatabaseError(cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ErrCodeDatabaseError, CodeOf(err))
}
