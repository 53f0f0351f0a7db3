package kpay

import (
	"fmt"
)

// Return codes with special handling.
const (
	CodeUnsupportedMethod   = 609
	CodeMobileMoneyFailed   = 610
	CodeTransactionNotFound = 611
	CodeDuplicateReference  = 612
	CodeMobileMoneyTimeout  = 613
)

var errorMessages = map[int]string{
	600: "Missing required parameters",
	601: "Invalid username or password",
	602: "Invalid retailer id",
	603: "Retailer account is not active",
	604: "Invalid amount",
	605: "Invalid currency",
	606: "Invalid phone number",
	607: "Invalid email address",
	608: "Invalid callback URL",
	609: "Payment method not supported",
	610: "Mobile money transaction failed",
	611: "Transaction not found",
	612: "Duplicate reference id",
	613: "Mobile money request timed out",
	614: "Insufficient funds",
	615: "Transaction limit exceeded",
	616: "Card declined by issuer",
	617: "Transaction cancelled by customer",
}

// ErrorMessage maps a KPay return code to its description.
func ErrorMessage(code int) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}
	return fmt.Sprintf("Unknown error (code %d)", code)
}

// UserMessage is the text shown to the customer when an initiation is rejected.
func UserMessage(code int) string {
	switch code {
	case CodeUnsupportedMethod:
		return "This payment method is not available at the moment. Please choose another one."
	case CodeMobileMoneyFailed, CodeMobileMoneyTimeout:
		return "The mobile money payment could not be completed. Check your phone and balance, then try again."
	case CodeDuplicateReference:
		return "This payment was already submitted. Check its status before trying again."
	default:
		return ErrorMessage(code)
	}
}

// HTTPStatusError is returned for non-2xx gateway responses.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("kpay: unexpected status %d: %s", e.StatusCode, e.Body)
}
