package kpay

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "Transaction not found", ErrorMessage(CodeTransactionNotFound))
	assert.Equal(t, "Invalid phone number", ErrorMessage(606))
	assert.Equal(t, "Unknown error (code 999)", ErrorMessage(999))
	assert.Equal(t, ErrorMessage(604), ErrorMessage(604))
}

func TestUserMessage(t *testing.T) {
	assert.Contains(t, UserMessage(CodeUnsupportedMethod), "payment method is not available")
	assert.Contains(t, UserMessage(CodeMobileMoneyFailed), "mobile money")
	assert.Equal(t, UserMessage(CodeMobileMoneyFailed), UserMessage(CodeMobileMoneyTimeout))
	assert.Contains(t, UserMessage(CodeDuplicateReference), "already submitted")
	assert.Equal(t, ErrorMessage(601), UserMessage(601))
	assert.Equal(t, "Unknown error (code 42)", UserMessage(42))
}

func TestHTTPStatusError(t *testing.T) {
	err := &HTTPStatusError{StatusCode: 502, Body: "bad gateway"}
	assert.Equal(t, "kpay: unexpected status 502: bad gateway", err.Error())
}
