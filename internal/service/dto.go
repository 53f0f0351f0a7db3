package service

import (
	"encoding/json"

	"github.com/ikazeshop/payments/internal/domain/payment"
	"github.com/shopspring/decimal"
)

// Controllers convert their HTTP DTOs to this type.
type InitiatePaymentRequest struct {
	OrderID       string
	Amount        decimal.Decimal
	Method        string
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	// RedirectURL is where the status page sends the customer once the
	// payment settles. Defaults to the checkout success page.
	RedirectURL string
	Cart        json.RawMessage

	// ClientReference and ClientPaymentID point at an earlier attempt the
	// client wants to resume.
	ClientReference string
	ClientPaymentID string
}

type InitiatePaymentResponse struct {
	PaymentID     string
	TransactionID string
	Reference     string
	CheckoutURL   string
	Status        payment.Status
	// Reused is set when an existing attempt was resumed instead of created.
	Reused bool
}

// StatusRequest needs at least one identifier. Lookup priority is
// PaymentID, then TransactionID, then Reference.
type StatusRequest struct {
	PaymentID     string
	TransactionID string
	Reference     string
}

func (r StatusRequest) empty() bool {
	return r.PaymentID == "" && r.TransactionID == "" && r.Reference == ""
}

// StatusUnknown is reported when no attempt matches the identifiers.
const StatusUnknown = "unknown"

type StatusResponse struct {
	PaymentID     string
	Status        string
	Amount        decimal.Decimal
	Currency      string
	Reference     string
	OrderID       *string
	CheckoutURL   string
	FailureReason *string
	Gateway       *GatewayStatus
	// Error is a diagnostic note; the status is still the best known value.
	Error string
}

// GatewayStatus is the raw status detail last reported by the gateway.
type GatewayStatus struct {
	StatusID         string
	StatusDesc       string
	ReturnCode       *int
	MomTransactionID string
}

type PaymentDetails struct {
	Payment *payment.Payment
	Events  []*payment.PaymentEvent
}

type ReconcileResult struct {
	Checked   int
	Completed int
	Failed    int
	Skipped   int
	Errors    int
}
