package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	domainErrors "github.com/ikazeshop/payments/internal/domain/errors"
	"github.com/ikazeshop/payments/internal/domain/order"
	"github.com/ikazeshop/payments/internal/domain/outbox"
	"github.com/ikazeshop/payments/internal/domain/payment"
	"github.com/ikazeshop/payments/internal/providers"
)

// --- Payment Repository Mock ---

// MockPaymentRepository is an in-memory payment.Repository. Stored rows are
// copies, so tests observe only what was written.
type MockPaymentRepository struct {
	mu       sync.Mutex
	payments map[uuid.UUID]*payment.Payment
	events   map[uuid.UUID][]*payment.PaymentEvent
	updates  int

	CreateOrGetFunc    func(ctx context.Context, p *payment.Payment) (*payment.Payment, bool, error)
	GetByIDFunc        func(ctx context.Context, id uuid.UUID) (*payment.Payment, error)
	GetByReferenceFunc func(ctx context.Context, reference string) (*payment.Payment, error)
	UpdateFunc         func(ctx context.Context, p *payment.Payment) error
	ListFunc           func(ctx context.Context, filter payment.ListFilter) ([]*payment.Payment, error)
	AddEventFunc       func(ctx context.Context, event *payment.PaymentEvent) error
}

func NewMockPaymentRepository() *MockPaymentRepository {
	return &MockPaymentRepository{
		payments: make(map[uuid.UUID]*payment.Payment),
		events:   make(map[uuid.UUID][]*payment.PaymentEvent),
	}
}

// AddPayment pre-populates the mock with a payment.
func (m *MockPaymentRepository) AddPayment(p *payment.Payment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments[p.ID] = clonePayment(p)
}

// Stored returns the stored copy of a payment (test helper, no context needed).
func (m *MockPaymentRepository) Stored(id uuid.UUID) *payment.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.payments[id]; ok {
		return clonePayment(p)
	}
	return nil
}

// All returns every stored payment, oldest first.
func (m *MockPaymentRepository) All() []*payment.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*payment.Payment, 0, len(m.payments))
	for _, p := range m.payments {
		out = append(out, clonePayment(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Updates returns how many times Update was called.
func (m *MockPaymentRepository) Updates() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updates
}

// Events returns the recorded event types for a payment.
func (m *MockPaymentRepository) Events(id uuid.UUID) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var types []string
	for _, e := range m.events[id] {
		types = append(types, e.EventType)
	}
	return types
}

func (m *MockPaymentRepository) CreateOrGet(ctx context.Context, p *payment.Payment) (*payment.Payment, bool, error) {
	if m.CreateOrGetFunc != nil {
		return m.CreateOrGetFunc(ctx, p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.payments {
		if existing.Reference == p.Reference {
			return clonePayment(existing), false, nil
		}
	}
	m.payments[p.ID] = clonePayment(p)
	return p, true, nil
}

func (m *MockPaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return m.find(func(p *payment.Payment) bool { return p.ID == id })
}

func (m *MockPaymentRepository) GetByReference(ctx context.Context, reference string) (*payment.Payment, error) {
	if m.GetByReferenceFunc != nil {
		return m.GetByReferenceFunc(ctx, reference)
	}
	return m.find(func(p *payment.Payment) bool { return p.Reference == reference })
}

func (m *MockPaymentRepository) GetByTransactionID(ctx context.Context, transactionID string) (*payment.Payment, error) {
	return m.find(func(p *payment.Payment) bool {
		return p.GatewayTransactionID != nil && *p.GatewayTransactionID == transactionID
	})
}

func (m *MockPaymentRepository) FindLatestPendingForOrder(ctx context.Context, orderID string) (*payment.Payment, error) {
	return m.find(func(p *payment.Payment) bool {
		return p.OrderID != nil && *p.OrderID == orderID && p.Status == payment.StatusPending && !p.ClientTimeout
	})
}

func (m *MockPaymentRepository) FindCompletedForOrder(ctx context.Context, orderID string) (*payment.Payment, error) {
	return m.find(func(p *payment.Payment) bool {
		return p.OrderID != nil && *p.OrderID == orderID && p.Status == payment.StatusCompleted
	})
}

// find returns the newest match or ErrPaymentNotFound.
func (m *MockPaymentRepository) find(match func(p *payment.Payment) bool) (*payment.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found *payment.Payment
	for _, p := range m.payments {
		if match(p) && (found == nil || p.CreatedAt.After(found.CreatedAt)) {
			found = p
		}
	}
	if found == nil {
		return nil, domainErrors.ErrPaymentNotFound
	}
	return clonePayment(found), nil
}

func (m *MockPaymentRepository) Update(ctx context.Context, p *payment.Payment) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.payments[p.ID]; !ok {
		return domainErrors.ErrPaymentNotFound
	}
	m.payments[p.ID] = clonePayment(p)
	m.updates++
	return nil
}

func (m *MockPaymentRepository) List(ctx context.Context, filter payment.ListFilter) ([]*payment.Payment, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, filter)
	}
	var result []*payment.Payment
	for _, p := range m.All() {
		if filter.Status != nil && p.Status != *filter.Status {
			continue
		}
		if filter.OrderID != nil && (p.OrderID == nil || *p.OrderID != *filter.OrderID) {
			continue
		}
		result = append(result, p)
	}
	return result, nil
}

func (m *MockPaymentRepository) ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]*payment.Payment, error) {
	var result []*payment.Payment
	for _, p := range m.All() {
		if p.Status == payment.StatusPending && p.CreatedAt.Before(createdBefore) {
			result = append(result, p)
		}
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

func (m *MockPaymentRepository) AddEvent(ctx context.Context, event *payment.PaymentEvent) error {
	if m.AddEventFunc != nil {
		return m.AddEventFunc(ctx, event)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[event.PaymentID] = append(m.events[event.PaymentID], event)
	return nil
}

func (m *MockPaymentRepository) GetEvents(ctx context.Context, paymentID uuid.UUID) ([]*payment.PaymentEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events[paymentID], nil
}

func clonePayment(p *payment.Payment) *payment.Payment {
	c := *p
	return &c
}

// --- Order Repository Mock ---

// OrderPaymentUpdate records one UpdatePaymentStatus call.
type OrderPaymentUpdate struct {
	OrderID string
	Status  order.PaymentStatus
	IsPaid  bool
}

// MockOrderRepository is a mock implementation of order.Repository.
type MockOrderRepository struct {
	mu      sync.Mutex
	orders  map[string]*order.Order
	updates []OrderPaymentUpdate

	GetByIDFunc             func(ctx context.Context, id string) (*order.Order, error)
	UpdatePaymentStatusFunc func(ctx context.Context, id string, status order.PaymentStatus, isPaid bool, at time.Time) error
}

func NewMockOrderRepository() *MockOrderRepository {
	return &MockOrderRepository{orders: make(map[string]*order.Order)}
}

// AddOrder pre-populates the mock with an order.
func (m *MockOrderRepository) AddOrder(o *order.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o
}

// PaymentUpdates returns every UpdatePaymentStatus call in order.
func (m *MockOrderRepository) PaymentUpdates() []OrderPaymentUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]OrderPaymentUpdate(nil), m.updates...)
}

func (m *MockOrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, domainErrors.ErrOrderNotFound
	}
	c := *o
	return &c, nil
}

func (m *MockOrderRepository) UpdatePaymentStatus(ctx context.Context, id string, status order.PaymentStatus, isPaid bool, at time.Time) error {
	if m.UpdatePaymentStatusFunc != nil {
		return m.UpdatePaymentStatusFunc(ctx, id, status, isPaid, at)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, OrderPaymentUpdate{OrderID: id, Status: status, IsPaid: isPaid})
	if o, ok := m.orders[id]; ok {
		o.PaymentStatus = &status
		o.IsPaid = isPaid
		o.UpdatedAt = at
	}
	return nil
}

// --- Transaction Manager Mock ---

// MockTransactionManager is a mock implementation of TransactionManager.
type MockTransactionManager struct {
	WithTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error
}

func NewMockTransactionManager() *MockTransactionManager {
	return &MockTransactionManager{}
}

func (m *MockTransactionManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.WithTransactionFunc != nil {
		return m.WithTransactionFunc(ctx, fn)
	}
	return fn(ctx)
}

// --- Outbox Repository Mock ---

// MockOutboxRepository is a mock implementation of outbox.Repository.
type MockOutboxRepository struct {
	mu       sync.Mutex
	Inserted []*outbox.Entry

	InsertFunc        func(ctx context.Context, entry *outbox.Entry) error
	GetPendingFunc    func(ctx context.Context, limit int) ([]*outbox.Entry, error)
	MarkPublishedFunc func(ctx context.Context, id uuid.UUID) error
	MarkFailedFunc    func(ctx context.Context, id uuid.UUID, reason string) error
}

func (m *MockOutboxRepository) Insert(ctx context.Context, entry *outbox.Entry) error {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, entry)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Inserted = append(m.Inserted, entry)
	return nil
}

func (m *MockOutboxRepository) GetPending(ctx context.Context, limit int) ([]*outbox.Entry, error) {
	if m.GetPendingFunc != nil {
		return m.GetPendingFunc(ctx, limit)
	}
	return nil, nil
}

func (m *MockOutboxRepository) MarkPublished(ctx context.Context, id uuid.UUID) error {
	if m.MarkPublishedFunc != nil {
		return m.MarkPublishedFunc(ctx, id)
	}
	return nil
}

func (m *MockOutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	if m.MarkFailedFunc != nil {
		return m.MarkFailedFunc(ctx, id, reason)
	}
	return nil
}

// --- Gateway Mock ---

// MockGateway records gateway calls. Without overrides Initiate accepts every
// request and CheckStatus reports processing.
type MockGateway struct {
	mu            sync.Mutex
	InitiateCalls []providers.InitiateRequest
	StatusCalls   []providers.StatusRequest

	InitiateFunc    func(ctx context.Context, req providers.InitiateRequest) (*providers.GatewayResponse, error)
	CheckStatusFunc func(ctx context.Context, req providers.StatusRequest) (*providers.GatewayResponse, error)
}

func (m *MockGateway) Initiate(ctx context.Context, req providers.InitiateRequest) (*providers.GatewayResponse, error) {
	m.mu.Lock()
	m.InitiateCalls = append(m.InitiateCalls, req)
	m.mu.Unlock()
	if m.InitiateFunc != nil {
		return m.InitiateFunc(ctx, req)
	}
	tid := "TX-" + req.Reference
	return &providers.GatewayResponse{
		TransactionID: tid,
		Reference:     req.Reference,
		AuthKey:       "AUTH-" + req.Reference,
		Reply:         "OK",
		CheckoutURL:   "https://pay.example/checkout/" + tid,
		Raw:           map[string]any{"tid": tid, "refid": req.Reference, "retcode": 0, "url": "https://pay.example/checkout/" + tid},
	}, nil
}

func (m *MockGateway) CheckStatus(ctx context.Context, req providers.StatusRequest) (*providers.GatewayResponse, error) {
	m.mu.Lock()
	m.StatusCalls = append(m.StatusCalls, req)
	m.mu.Unlock()
	if m.CheckStatusFunc != nil {
		return m.CheckStatusFunc(ctx, req)
	}
	return StatusResponse(req, providers.StatusProcessing, "Pending confirmation"), nil
}

// Calls returns the number of initiate and status calls made.
func (m *MockGateway) Calls() (initiate, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.InitiateCalls), len(m.StatusCalls)
}

// StatusResponse builds a checkstatus answer echoing the request identifiers.
func StatusResponse(req providers.StatusRequest, statusID, statusDesc string) *providers.GatewayResponse {
	return &providers.GatewayResponse{
		TransactionID: req.TransactionID,
		Reference:     req.Reference,
		StatusID:      statusID,
		StatusDesc:    statusDesc,
		Raw: map[string]any{
			"tid":        req.TransactionID,
			"refid":      req.Reference,
			"statusid":   statusID,
			"statusdesc": statusDesc,
		},
	}
}

// --- Locker Mock ---

// MockLocker runs fn directly unless the key is marked as held.
type MockLocker struct {
	mu   sync.Mutex
	held map[string]bool
	Keys []string
}

func NewMockLocker() *MockLocker {
	return &MockLocker{held: make(map[string]bool)}
}

// Hold marks key as held by someone else.
func (m *MockLocker) Hold(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.held[key] = true
}

func (m *MockLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	m.Keys = append(m.Keys, key)
	held := m.held[key]
	m.mu.Unlock()
	if held {
		return domainErrors.ErrLockAcquisitionFailed
	}
	return fn(ctx)
}
