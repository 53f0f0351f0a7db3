package controller

import (
	"encoding/json"
	"time"

	"github.com/ikazeshop/payments/internal/domain/payment"
	"github.com/ikazeshop/payments/internal/service"
	"github.com/shopspring/decimal"
)

// --- Request DTOs ---
// Field names follow the storefront's camelCase JSON. Business rules such as
// amount > 0 and the orderId/cart choice are checked by the service.

// InitiatePaymentRequest is the body of POST /api/payments/kpay/initiate.
type InitiatePaymentRequest struct {
	OrderID         string          `json:"orderId" validate:"omitempty,max=64"`
	Amount          decimal.Decimal `json:"amount"`
	CustomerName    string          `json:"customerName" validate:"max=200"`
	CustomerEmail   string          `json:"customerEmail" validate:"omitempty,email"`
	CustomerPhone   string          `json:"customerPhone" validate:"max=32"`
	PaymentMethod   string          `json:"paymentMethod" validate:"required"`
	RedirectURL     string          `json:"redirectUrl" validate:"omitempty,url"`
	Cart            json.RawMessage `json:"cart,omitempty"`
	ClientReference string          `json:"clientReference" validate:"omitempty,max=64"`
	ClientPaymentID string          `json:"clientPaymentId" validate:"omitempty,uuid"`
}

func (r InitiatePaymentRequest) toService() service.InitiatePaymentRequest {
	return service.InitiatePaymentRequest{
		OrderID:         r.OrderID,
		Amount:          r.Amount,
		Method:          r.PaymentMethod,
		CustomerName:    r.CustomerName,
		CustomerEmail:   r.CustomerEmail,
		CustomerPhone:   r.CustomerPhone,
		RedirectURL:     r.RedirectURL,
		Cart:            r.Cart,
		ClientReference: r.ClientReference,
		ClientPaymentID: r.ClientPaymentID,
	}
}

// StatusRequest is the body of POST /api/payments/kpay/status. The GET
// variant reads the same fields from the query string.
type StatusRequest struct {
	PaymentID     string `json:"paymentId"`
	TransactionID string `json:"transactionId"`
	Reference     string `json:"reference"`
}

// AbandonRequest is the body of POST /api/payments/kpay/abandon.
type AbandonRequest struct {
	PaymentID string `json:"paymentId" validate:"required,uuid"`
}

// --- Response DTOs ---

type InitiatePaymentResponse struct {
	Success       bool   `json:"success"`
	PaymentID     string `json:"paymentId"`
	TransactionID string `json:"transactionId,omitempty"`
	Reference     string `json:"reference"`
	CheckoutURL   string `json:"checkoutUrl,omitempty"`
	Status        string `json:"status"`
	Reused        bool   `json:"reused,omitempty"`
}

type KPayStatus struct {
	StatusID         string `json:"statusId,omitempty"`
	StatusDesc       string `json:"statusDesc,omitempty"`
	ReturnCode       *int   `json:"returnCode,omitempty"`
	MomTransactionID string `json:"momTransactionId,omitempty"`
}

type StatusResponse struct {
	Success       bool        `json:"success"`
	PaymentID     string      `json:"paymentId,omitempty"`
	Status        string      `json:"status"`
	Amount        *string     `json:"amount,omitempty"`
	Currency      string      `json:"currency,omitempty"`
	Reference     string      `json:"reference,omitempty"`
	CheckoutURL   string      `json:"checkoutUrl,omitempty"`
	OrderID       *string     `json:"orderId,omitempty"`
	FailureReason *string     `json:"failureReason,omitempty"`
	KPayStatus    *KPayStatus `json:"kpayStatus,omitempty"`
	Error         string      `json:"error,omitempty"`
}

// PaymentResponse is a stored attempt as shown to the back office.
type PaymentResponse struct {
	ID               string          `json:"id"`
	Reference        string          `json:"reference"`
	OrderID          *string         `json:"orderId,omitempty"`
	Amount           string          `json:"amount"`
	Currency         string          `json:"currency"`
	PaymentMethod    string          `json:"paymentMethod"`
	Status           string          `json:"status"`
	CustomerName     string          `json:"customerName,omitempty"`
	CustomerEmail    string          `json:"customerEmail,omitempty"`
	CustomerPhone    string          `json:"customerPhone,omitempty"`
	TransactionID    *string         `json:"transactionId,omitempty"`
	ReturnCode       *int            `json:"returnCode,omitempty"`
	MomTransactionID *string         `json:"momTransactionId,omitempty"`
	FailureReason    *string         `json:"failureReason,omitempty"`
	ClientTimeout    bool            `json:"clientTimeout"`
	GatewayResponse  map[string]any  `json:"gatewayResponse,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
	CompletedAt      *time.Time      `json:"completedAt,omitempty"`
	Events           []EventResponse `json:"events,omitempty"`
}

type EventResponse struct {
	Type      string         `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

type PaymentListResponse struct {
	Success  bool               `json:"success"`
	Payments []*PaymentResponse `json:"payments"`
	Limit    int                `json:"limit"`
	Offset   int                `json:"offset"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Code      string `json:"code"`
	PaymentID string `json:"paymentId,omitempty"`
}

// --- Conversion helpers ---

func fromInitiate(r *service.InitiatePaymentResponse) *InitiatePaymentResponse {
	return &InitiatePaymentResponse{
		Success:       true,
		PaymentID:     r.PaymentID,
		TransactionID: r.TransactionID,
		Reference:     r.Reference,
		CheckoutURL:   r.CheckoutURL,
		Status:        string(r.Status),
		Reused:        r.Reused,
	}
}

func fromStatus(r *service.StatusResponse) *StatusResponse {
	out := &StatusResponse{
		Success:       true,
		PaymentID:     r.PaymentID,
		Status:        r.Status,
		Currency:      r.Currency,
		Reference:     r.Reference,
		CheckoutURL:   r.CheckoutURL,
		OrderID:       r.OrderID,
		FailureReason: r.FailureReason,
		Error:         r.Error,
	}
	if r.Status != service.StatusUnknown {
		amount := r.Amount.StringFixed(2)
		out.Amount = &amount
	}
	if g := r.Gateway; g != nil {
		out.KPayStatus = &KPayStatus{
			StatusID:         g.StatusID,
			StatusDesc:       g.StatusDesc,
			ReturnCode:       g.ReturnCode,
			MomTransactionID: g.MomTransactionID,
		}
	}
	return out
}

// FromPayment converts a domain payment to its API response.
func FromPayment(p *payment.Payment) *PaymentResponse {
	return &PaymentResponse{
		ID:               p.ID.String(),
		Reference:        p.Reference,
		OrderID:          p.OrderID,
		Amount:           p.Amount.StringFixed(2),
		Currency:         p.Currency,
		PaymentMethod:    string(p.Method),
		Status:           string(p.Status),
		CustomerName:     p.Customer.Name,
		CustomerEmail:    p.Customer.Email,
		CustomerPhone:    p.Customer.Phone,
		TransactionID:    p.GatewayTransactionID,
		ReturnCode:       p.GatewayReturnCode,
		MomTransactionID: p.GatewayMomTransactionID,
		FailureReason:    p.FailureReason,
		ClientTimeout:    p.ClientTimeout,
		GatewayResponse:  p.GatewayResponse,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
		CompletedAt:      p.CompletedAt,
	}
}

func fromDetails(d *service.PaymentDetails) *PaymentResponse {
	out := FromPayment(d.Payment)
	out.Events = make([]EventResponse, 0, len(d.Events))
	for _, e := range d.Events {
		out.Events = append(out.Events, EventResponse{Type: e.EventType, Data: e.EventData, CreatedAt: e.CreatedAt})
	}
	return out
}
