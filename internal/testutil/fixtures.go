package testutil

import (
	"time"

	"github.com/google/uuid"
	"github.com/ikazeshop/payments/internal/domain/order"
	"github.com/ikazeshop/payments/internal/domain/payment"
	"github.com/shopspring/decimal"
)

func NewTestOrder(id string, total int64) *order.Order {
	return &order.Order{
		ID:            id,
		Total:         decimal.NewFromInt(total),
		Status:        order.StatusPending,
		CustomerPhone: "0788123456",
		UpdatedAt:     time.Now(),
	}
}

// NewTestPayment returns a pending attempt created at createdAt.
func NewTestPayment(orderID *string, amount int64, method payment.Method, createdAt time.Time) *payment.Payment {
	ref := payment.GenerateReference(createdAt)
	tid := "TX-" + ref
	return &payment.Payment{
		ID:                   uuid.New(),
		Reference:            ref,
		OrderID:              orderID,
		Amount:               decimal.NewFromInt(amount),
		Currency:             payment.Currency,
		Method:               method,
		Customer:             payment.Customer{Name: "Aline", Email: "aline@example.rw", Phone: "0788123456"},
		GatewayTransactionID: &tid,
		GatewayResponse:      map[string]any{"tid": tid, "url": "https://pay.example/checkout/" + tid},
		Status:               payment.StatusPending,
		CreatedAt:            createdAt,
		UpdatedAt:            createdAt,
	}
}

func NewCompletedPayment(orderID *string, amount int64, method payment.Method) *payment.Payment {
	p := NewTestPayment(orderID, amount, method, time.Now().Add(-10*time.Minute))
	p.Status = payment.StatusCompleted
	completedAt := time.Now()
	p.CompletedAt = &completedAt
	return p
}

func StringPtr(s string) *string {
	return &s
}
