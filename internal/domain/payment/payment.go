package payment

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ikazeshop/payments/internal/domain/errors"
	"github.com/shopspring/decimal"
)

// Currency is the only currency the storefront charges in.
const Currency = "RWF"

// ReferencePrefix prefixes every server-generated payment reference.
const ReferencePrefix = "KPAY"

// InFlightWindow is how long a pending, non-abandoned attempt blocks a new
// initiation for the same order.
const InFlightWindow = 5 * time.Minute

// Status represents the payment status in the state machine
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"

	// statusSuccessful is a legacy spelling of completed still present in old rows.
	statusSuccessful Status = "successful"
)

// ParseStatus maps a stored status to its canonical value.
func ParseStatus(s string) Status {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusCompleted, statusSuccessful:
		return StatusCompleted
	case StatusFailed:
		return StatusFailed
	default:
		return StatusPending
	}
}

// Customer is the customer snapshot stored with an attempt.
type Customer struct {
	Name  string
	Email string
	Phone string
}

// Payment is one payment attempt against the KPay gateway.
type Payment struct {
	ID        uuid.UUID
	Reference string
	// OrderID is nil for session payments made before the order exists.
	OrderID  *string
	Amount   decimal.Decimal
	Currency string
	Method   Method
	Customer Customer

	GatewayTransactionID    *string
	GatewayAuthKey          *string
	GatewayReturnCode       *int
	GatewayResponse         map[string]any
	GatewayMomTransactionID *string

	Status        Status
	FailureReason *string
	ClientTimeout bool
	Cart          json.RawMessage

	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// NewPayment creates a pending attempt.
func NewPayment(reference string, orderID *string, amount decimal.Decimal, method Method, customer Customer) (*Payment, error) {
	if reference == "" {
		return nil, errors.NewValidationError("reference", "cannot be empty")
	}
	if !amount.IsPositive() {
		return nil, errors.NewValidationError("amount", "must be greater than 0")
	}
	if _, ok := method.Info(); !ok {
		return nil, errors.ErrUnsupportedMethod
	}

	now := time.Now()
	return &Payment{
		ID:              uuid.New(),
		Reference:       reference,
		OrderID:         orderID,
		Amount:          amount,
		Currency:        Currency,
		Method:          method,
		Customer:        customer,
		Status:          StatusPending,
		GatewayResponse: make(map[string]any),
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// GenerateReference builds PREFIX_<unix millis>_<6 digit random suffix>.
func GenerateReference(now time.Time) string {
	return fmt.Sprintf("%s_%d_%06d", ReferencePrefix, now.UnixMilli(), rand.IntN(1_000_000))
}

// CanTransitionTo checks if the payment can transition to the given status.
// Re-affirming the current status is always allowed.
func (p *Payment) CanTransitionTo(newStatus Status) bool {
	if p.Status == newStatus {
		return true
	}
	return p.Status == StatusPending && (newStatus == StatusCompleted || newStatus == StatusFailed)
}

// TransitionTo transitions the payment to a new status
func (p *Payment) TransitionTo(newStatus Status) error {
	if !p.CanTransitionTo(newStatus) {
		return errors.NewDomainError(
			"invalid_transition",
			"cannot transition from "+string(p.Status)+" to "+string(newStatus),
			errors.ErrInvalidStateTransition,
		)
	}
	p.Status = newStatus
	p.UpdatedAt = time.Now()
	return nil
}

// MarkCompleted moves the attempt to completed and stamps completed_at.
func (p *Payment) MarkCompleted(momTransactionID string) error {
	if err := p.TransitionTo(StatusCompleted); err != nil {
		return err
	}
	now := p.UpdatedAt
	p.CompletedAt = &now
	p.FailureReason = nil
	if momTransactionID != "" {
		p.GatewayMomTransactionID = &momTransactionID
	}
	return nil
}

// MarkFailed moves the attempt to failed with the given reason.
func (p *Payment) MarkFailed(reason string) error {
	if err := p.TransitionTo(StatusFailed); err != nil {
		return err
	}
	p.FailureReason = &reason
	return nil
}

// RecordInitiation stores the gateway linkage returned by an initiate call
// and clears any earlier failure reason.
func (p *Payment) RecordInitiation(transactionID, authKey string, returnCode int, raw map[string]any) {
	if transactionID != "" {
		p.GatewayTransactionID = &transactionID
	}
	if authKey != "" {
		p.GatewayAuthKey = &authKey
	}
	p.GatewayReturnCode = &returnCode
	if raw != nil {
		p.GatewayResponse = raw
	}
	p.FailureReason = nil
	p.UpdatedAt = time.Now()
}

// LearnTransactionID sets the gateway transaction id if it was not known yet.
// It reports whether the value changed.
func (p *Payment) LearnTransactionID(tid string) bool {
	if tid == "" || (p.GatewayTransactionID != nil && *p.GatewayTransactionID == tid) {
		return false
	}
	p.GatewayTransactionID = &tid
	return true
}

// IsTerminal checks if the payment is in a terminal state
func (p *Payment) IsTerminal() bool {
	return p.Status == StatusCompleted || p.Status == StatusFailed
}

// InFlight reports whether the attempt still blocks new initiations for its order.
func (p *Payment) InFlight(now time.Time) bool {
	return p.Status == StatusPending && !p.ClientTimeout && now.Sub(p.CreatedAt) < InFlightWindow
}

// IsSession reports whether the attempt is not yet tied to an order.
func (p *Payment) IsSession() bool {
	return p.OrderID == nil || *p.OrderID == ""
}
