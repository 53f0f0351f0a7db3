package providers

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	domainErrors "github.com/ikazeshop/payments/internal/domain/errors"
)

// MockGateway simulates the gateway for local development. Transactions stay
// in processing until the settle delay passes, then succeed or are declined.
type MockGateway struct {
	latency     time.Duration
	failureRate float64 // 0.0 to 1.0, transport failures
	declineRate float64 // 0.0 to 1.0, settled as cancelled
	settleAfter time.Duration
	checkoutURL string

	mu           sync.Mutex
	transactions map[string]*mockTransaction
	byTID        map[string]string
}

type mockTransaction struct {
	tid       string
	reference string
	createdAt time.Time
	declined  bool
}

type MockGatewayOption func(*MockGateway)

func WithLatency(d time.Duration) MockGatewayOption {
	return func(g *MockGateway) { g.latency = d }
}

func WithFailureRate(rate float64) MockGatewayOption {
	return func(g *MockGateway) { g.failureRate = rate }
}

func WithDeclineRate(rate float64) MockGatewayOption {
	return func(g *MockGateway) { g.declineRate = rate }
}

func WithSettleAfter(d time.Duration) MockGatewayOption {
	return func(g *MockGateway) { g.settleAfter = d }
}

func WithCheckoutURL(base string) MockGatewayOption {
	return func(g *MockGateway) { g.checkoutURL = base }
}

func NewMockGateway(opts ...MockGatewayOption) *MockGateway {
	g := &MockGateway{
		latency:      100 * time.Millisecond,
		settleAfter:  20 * time.Second,
		checkoutURL:  "http://localhost:3000/mock-checkout",
		transactions: make(map[string]*mockTransaction),
		byTID:        make(map[string]string),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

func (g *MockGateway) Initiate(ctx context.Context, req InitiateRequest) (*GatewayResponse, error) {
	if err := g.simulateCall(ctx); err != nil {
		return nil, err
	}
	if _, ok := req.Method.Info(); !ok {
		return nil, domainErrors.ErrUnsupportedMethod
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	tx, ok := g.transactions[req.Reference]
	if !ok {
		tx = &mockTransaction{
			tid:       "MOCK" + uuid.New().String()[:12],
			reference: req.Reference,
			createdAt: time.Now(),
			declined:  rand.Float64() < g.declineRate,
		}
		g.transactions[req.Reference] = tx
		g.byTID[tx.tid] = req.Reference
	}

	checkout := fmt.Sprintf("%s?tid=%s", g.checkoutURL, tx.tid)
	raw := map[string]any{
		"tid":     tx.tid,
		"refid":   tx.reference,
		"retcode": 0,
		"reply":   "OK",
		"success": 1,
		"authkey": "mock-" + tx.tid,
		"url":     checkout,
	}
	return &GatewayResponse{
		TransactionID: tx.tid,
		Reference:     tx.reference,
		AuthKey:       "mock-" + tx.tid,
		ReturnCode:    0,
		Reply:         "OK",
		CheckoutURL:   checkout,
		Raw:           raw,
	}, nil
}

func (g *MockGateway) CheckStatus(ctx context.Context, req StatusRequest) (*GatewayResponse, error) {
	if req.TransactionID == "" && req.Reference == "" {
		return nil, domainErrors.ErrMissingIdentifier
	}
	if err := g.simulateCall(ctx); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	ref := req.Reference
	if req.TransactionID != "" {
		if r, ok := g.byTID[req.TransactionID]; ok {
			ref = r
		}
	}
	tx, ok := g.transactions[ref]
	if !ok {
		return &GatewayResponse{
			TransactionID: req.TransactionID,
			Reference:     req.Reference,
			ReturnCode:    ReturnCodeTransactionNotFound,
			Reply:         "Transaction not found",
			Raw:           map[string]any{"retcode": ReturnCodeTransactionNotFound, "reply": "Transaction not found"},
		}, nil
	}

	resp := &GatewayResponse{
		TransactionID: tx.tid,
		Reference:     tx.reference,
		StatusID:      StatusProcessing,
		StatusDesc:    "Pending confirmation",
	}
	if time.Since(tx.createdAt) >= g.settleAfter {
		if tx.declined {
			resp.StatusID = StatusAmbiguous
			resp.StatusDesc = "Cancelled by user"
		} else {
			resp.StatusID = StatusSuccess
			resp.StatusDesc = "Successfully processed transaction."
			resp.MomTransactionID = "MOM" + tx.tid[4:]
		}
	}
	resp.Raw = map[string]any{
		"tid":              resp.TransactionID,
		"refid":            resp.Reference,
		"statusid":         resp.StatusID,
		"statusdesc":       resp.StatusDesc,
		"momtransactionid": resp.MomTransactionID,
	}
	return resp, nil
}

func (g *MockGateway) simulateCall(ctx context.Context) error {
	select {
	case <-time.After(g.latency):
	case <-ctx.Done():
		return ctx.Err()
	}
	if rand.Float64() < g.failureRate {
		return domainErrors.ErrProviderTimeout
	}
	return nil
}
