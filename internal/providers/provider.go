package providers

import (
	"context"
	"strings"

	"github.com/ikazeshop/payments/internal/domain/payment"
	"github.com/shopspring/decimal"
)

// Gateway status codes returned by checkstatus.
const (
	StatusSuccess    = "01"
	StatusProcessing = "02"
	StatusAmbiguous  = "03"
)

// ReturnCodeTransactionNotFound means the gateway does not know the transaction yet.
const ReturnCodeTransactionNotFound = 611

// Gateway is an external payment gateway.
type Gateway interface {
	// Initiate asks the gateway to start collecting a payment.
	Initiate(ctx context.Context, req InitiateRequest) (*GatewayResponse, error)
	// CheckStatus queries the current status of a transaction.
	CheckStatus(ctx context.Context, req StatusRequest) (*GatewayResponse, error)
}

type InitiateRequest struct {
	Reference     string
	Amount        decimal.Decimal
	Method        payment.Method
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	Details       string
	// RedirectURL is where the gateway sends the customer after checkout.
	RedirectURL string
}

// StatusRequest needs at least one of TransactionID or Reference.
type StatusRequest struct {
	TransactionID string
	Reference     string
}

// GatewayResponse is the normalized answer to either call.
type GatewayResponse struct {
	TransactionID    string
	Reference        string
	AuthKey          string
	ReturnCode       int
	Reply            string
	StatusID         string
	StatusDesc       string
	MomTransactionID string
	CheckoutURL      string
	// Raw is the decoded body, stored for audit.
	Raw map[string]any
}

// Accepted reports whether the gateway took the request for processing.
func (r *GatewayResponse) Accepted() bool {
	return r.ReturnCode == 0
}

var checkoutURLKeys = []string{
	"url",
	"checkouturl",
	"checkout_url",
	"checkoutUrl",
	"redirecturl",
	"redirect_url",
	"paymenturl",
	"payment_url",
}

// ExtractCheckoutURL returns the first non-empty checkout URL found under the
// known key spellings, looking in a nested "data" object when the top level
// has none.
func ExtractCheckoutURL(raw map[string]any) string {
	if raw == nil {
		return ""
	}
	for _, key := range checkoutURLKeys {
		if s, ok := raw[key].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	if nested, ok := raw["data"].(map[string]any); ok {
		return ExtractCheckoutURL(nested)
	}
	return ""
}
