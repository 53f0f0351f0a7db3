package errors

import (
	"errors"
	"fmt"
)

var (
	// Order errors
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidOrderState = errors.New("order is not awaiting payment")
	ErrAmountMismatch    = errors.New("amount does not match order total")
	ErrAlreadyPaid       = errors.New("order has already been paid")

	// Payment errors
	ErrPaymentNotFound        = errors.New("payment not found")
	ErrPaymentInProgress      = errors.New("a payment is already in progress for this order")
	ErrUnsupportedMethod      = errors.New("unsupported payment method")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrDuplicateReference     = errors.New("duplicate payment reference")
	ErrMissingIdentifier      = errors.New("at least one payment identifier is required")

	// Gateway errors
	ErrGatewayUnavailable   = errors.New("payment gateway unavailable")
	ErrGatewayMisconfigured = errors.New("payment gateway is not configured")
	ErrGatewayRejected      = errors.New("payment rejected by gateway")
	ErrProviderUnavailable  = errors.New("payment provider unavailable")
	ErrProviderTimeout      = errors.New("provider request timeout")

	// Idempotency errors
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// Lock errors
	ErrLockAcquisitionFailed = errors.New("failed to acquire lock")
	ErrLockNotHeld           = errors.New("lock not held")

	// Auth errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Validation errors
	ErrValidationFailed = errors.New("validation failed")
	ErrInvalidInput     = errors.New("invalid input")
)

// DomainError wraps errors with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// PaymentInProgressError carries the id of the attempt that blocks a new
// initiation so the client can poll it instead of retrying.
type PaymentInProgressError struct {
	PaymentID string
}

func (e *PaymentInProgressError) Error() string {
	return fmt.Sprintf("%s (payment %s)", ErrPaymentInProgress.Error(), e.PaymentID)
}

func (e *PaymentInProgressError) Unwrap() error {
	return ErrPaymentInProgress
}

// GatewayRejectedError is returned when the gateway answers an initiation
// with a nonzero return code.
type GatewayRejectedError struct {
	PaymentID  string
	ReturnCode int
	Message    string
}

func (e *GatewayRejectedError) Error() string {
	return e.Message
}

func (e *GatewayRejectedError) Unwrap() error {
	return ErrGatewayRejected
}
