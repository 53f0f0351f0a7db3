package payment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for payment persistence
type Repository interface {
	// CreateOrGet inserts the payment. When another row already holds the same
	// reference, that row is returned instead with created=false.
	CreateOrGet(ctx context.Context, payment *Payment) (stored *Payment, created bool, err error)

	// GetByID retrieves a payment by ID
	GetByID(ctx context.Context, id uuid.UUID) (*Payment, error)

	// GetByReference retrieves a payment by its idempotency reference
	GetByReference(ctx context.Context, reference string) (*Payment, error)

	// GetByTransactionID retrieves a payment by gateway transaction id
	GetByTransactionID(ctx context.Context, transactionID string) (*Payment, error)

	// FindLatestPendingForOrder returns the newest pending attempt for the
	// order that the client has not abandoned.
	FindLatestPendingForOrder(ctx context.Context, orderID string) (*Payment, error)

	// FindCompletedForOrder returns a completed attempt for the order, if any.
	FindCompletedForOrder(ctx context.Context, orderID string) (*Payment, error)

	// Update writes the mutable fields of an existing payment
	Update(ctx context.Context, payment *Payment) error

	// List lists payments with filters
	List(ctx context.Context, filter ListFilter) ([]*Payment, error)

	// ListStalePending returns pending attempts created before the cutoff
	ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]*Payment, error)

	// AddEvent adds a payment event for audit trail
	AddEvent(ctx context.Context, event *PaymentEvent) error

	// GetEvents retrieves events for a payment
	GetEvents(ctx context.Context, paymentID uuid.UUID) ([]*PaymentEvent, error)
}

// ListFilter defines filters for listing payments
type ListFilter struct {
	OrderID   *string
	Status    *Status
	Method    *Method
	Limit     int
	Offset    int
	SortBy    string
	SortOrder string
}

// Page limits for ListFilter.
const (
	DefaultListLimit = 50
	MaxListLimit     = 100
)

// Normalized returns f with its paging clamped to the allowed range.
func (f ListFilter) Normalized() ListFilter {
	if f.Limit <= 0 || f.Limit > MaxListLimit {
		f.Limit = DefaultListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// Event types recorded in the audit trail.
const (
	EventInitiated       = "payment.initiated"
	EventReinitiated     = "payment.reinitiated"
	EventGatewayRejected = "payment.gateway_rejected"
	EventCompleted       = "payment.completed"
	EventFailed          = "payment.failed"
)

// PaymentEvent represents an event in the payment lifecycle
type PaymentEvent struct {
	ID        uuid.UUID
	PaymentID uuid.UUID
	EventType string
	EventData map[string]any
	CreatedAt time.Time
}

// NewEvent builds an audit event for p.
func NewEvent(p *Payment, eventType string, data map[string]any) *PaymentEvent {
	if data == nil {
		data = make(map[string]any)
	}
	data["status"] = string(p.Status)
	data["reference"] = p.Reference
	return &PaymentEvent{
		ID:        uuid.New(),
		PaymentID: p.ID,
		EventType: eventType,
		EventData: data,
		CreatedAt: time.Now(),
	}
}
