package order

import (
	"time"

	"github.com/shopspring/decimal"
)

// AmountTolerance absorbs floating point fuzz in client-computed totals.
var AmountTolerance = decimal.RequireFromString("0.01")

// StatusPending is the only order status that accepts a payment.
const StatusPending = "pending"

// PaymentStatus is the payment outcome recorded on an order.
type PaymentStatus string

const (
	PaymentStatusPaid   PaymentStatus = "paid"
	PaymentStatusFailed PaymentStatus = "failed"
)

// Order is the subset of the storefront order row this service reads.
// Lifecycle status is owned by order management and never written here.
type Order struct {
	ID            string
	Total         decimal.Decimal
	Status        string
	PaymentStatus *PaymentStatus
	IsPaid        bool
	CustomerPhone string
	UpdatedAt     time.Time
}

// AcceptsPayment reports whether the order is still awaiting payment.
func (o *Order) AcceptsPayment() bool {
	return o.Status == StatusPending
}

// MatchesAmount reports whether amount equals the order total within AmountTolerance.
func (o *Order) MatchesAmount(amount decimal.Decimal) bool {
	return amount.Sub(o.Total).Abs().LessThanOrEqual(AmountTolerance)
}
