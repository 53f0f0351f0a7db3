package order

import (
	"context"
	"time"
)

// Repository is the order store as seen by the payment core.
type Repository interface {
	// GetByID retrieves an order by ID
	GetByID(ctx context.Context, id string) (*Order, error)

	// UpdatePaymentStatus sets payment_status, is_paid and updated_at.
	UpdatePaymentStatus(ctx context.Context, id string, status PaymentStatus, isPaid bool, at time.Time) error
}
