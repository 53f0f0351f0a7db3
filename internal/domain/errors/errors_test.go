package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *DomainError
		expected string
	}{
		{
			name: "with wrapped error",
			err: &DomainError{
				Code:    "gateway_unavailable",
				Message: "kpay initiate failed",
				Err:     errors.New("dial tcp: i/o timeout"),
			},
			expected: "kpay initiate failed: dial tcp: i/o timeout",
		},
		{
			name: "without wrapped error",
			err: &DomainError{
				Code:    "invalid_state",
				Message: "payment is already terminal",
				Err:     nil,
			},
			expected: "payment is already terminal",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestDomainError_Unwrap(t *testing.T) {
	originalErr := errors.New("original error")
	domainErr := &DomainError{
		Code:    "test",
		Message: "test message",
		Err:     originalErr,
	}

	unwrapped := domainErr.Unwrap()
	assert.Equal(t, originalErr, unwrapped)
}

func TestNewDomainError(t *testing.T) {
	originalErr := errors.New("underlying error")
	err := NewDomainError("test_code", "test message", originalErr)

	assert.NotNil(t, err)
	assert.Equal(t, "test_code", err.Code)
	assert.Equal(t, "test message", err.Message)
	assert.Equal(t, originalErr, err.Err)
}

func TestNewDomainError_NilWrappedError(t *testing.T) {
	err := NewDomainError("test_code", "test message", nil)

	assert.NotNil(t, err)
	assert.Equal(t, "test_code", err.Code)
	assert.Equal(t, "test message", err.Message)
	assert.Nil(t, err.Err)
}

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{
		Field:   "paymentMethod",
		Message: "is required",
	}

	expected := "validation failed for field paymentMethod: is required"
	assert.Equal(t, expected, err.Error())
}

func TestNewValidationError(t *testing.T) {
	err := NewValidationError("amount", "must be greater than 0")

	assert.NotNil(t, err)
	assert.Equal(t, "amount", err.Field)
	assert.Equal(t, "must be greater than 0", err.Message)
}

func TestPaymentInProgressError(t *testing.T) {
	err := &PaymentInProgressError{PaymentID: "3f1c2a"}

	assert.Contains(t, err.Error(), "3f1c2a")
	assert.ErrorIs(t, err, ErrPaymentInProgress)

	var target *PaymentInProgressError
	wrapped := fmt.Errorf("initiate: %w", err)
	assert.True(t, errors.As(wrapped, &target))
	assert.Equal(t, "3f1c2a", target.PaymentID)
}

func TestGatewayRejectedError(t *testing.T) {
	err := &GatewayRejectedError{PaymentID: "p-1", ReturnCode: 609, Message: "This payment method is not available right now"}

	assert.Equal(t, "This payment method is not available right now", err.Error())
	assert.ErrorIs(t, err, ErrGatewayRejected)
	assert.NotErrorIs(t, err, ErrGatewayUnavailable)
}

func TestErrorUnwrapping(t *testing.T) {
	baseErr := ErrGatewayUnavailable
	wrappedErr := NewDomainError("gateway_error", "gateway call failed", baseErr)

	assert.True(t, errors.Is(wrappedErr, baseErr))
	assert.ErrorIs(t, wrappedErr, ErrGatewayUnavailable)
}
