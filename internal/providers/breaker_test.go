package providers

import (
	"context"
	"errors"
	"testing"
	"time"

	domainErrors "github.com/ikazeshop/payments/internal/domain/errors"
	"github.com/ikazeshop/payments/internal/infrastructure/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGateway struct {
	calls int
	err   error
}

func (s *stubGateway) Initiate(ctx context.Context, req InitiateRequest) (*GatewayResponse, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &GatewayResponse{TransactionID: "T1"}, nil
}

func (s *stubGateway) CheckStatus(ctx context.Context, req StatusRequest) (*GatewayResponse, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &GatewayResponse{StatusID: StatusProcessing}, nil
}

func TestBreakerGateway_PassesThrough(t *testing.T) {
	stub := &stubGateway{}
	g := NewBreakerGateway(stub, DefaultBreakerSettings("kpay"), nil)

	resp, err := g.Initiate(context.Background(), InitiateRequest{})
	require.NoError(t, err)
	assert.Equal(t, "T1", resp.TransactionID)

	_, err = g.CheckStatus(context.Background(), StatusRequest{Reference: "R"})
	require.NoError(t, err)
	assert.Equal(t, 2, stub.calls)
}

func TestBreakerGateway_TripsAfterFailures(t *testing.T) {
	stub := &stubGateway{err: errors.New("dial tcp: connection refused")}
	metrics := observability.NewMetrics("test", prometheus.NewRegistry())
	g := NewBreakerGateway(stub, DefaultBreakerSettings("kpay"), metrics)

	for i := 0; i < 10; i++ {
		_, err := g.Initiate(context.Background(), InitiateRequest{})
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, g.State())

	_, err := g.Initiate(context.Background(), InitiateRequest{})
	assert.ErrorIs(t, err, domainErrors.ErrProviderUnavailable)
	assert.Equal(t, 10, stub.calls)

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.CircuitBreakerState.WithLabelValues("kpay")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CircuitBreakerRequests.WithLabelValues("kpay", "rejected")))
}

func TestBreakerGateway_CallerErrorsDoNotTrip(t *testing.T) {
	stub := &stubGateway{err: domainErrors.ErrMissingIdentifier}
	g := NewBreakerGateway(stub, DefaultBreakerSettings("kpay"), nil)

	for i := 0; i < 20; i++ {
		_, err := g.CheckStatus(context.Background(), StatusRequest{})
		assert.ErrorIs(t, err, domainErrors.ErrMissingIdentifier)
	}
	assert.Equal(t, gobreaker.StateClosed, g.State())
}

func TestBreakerGateway_StaysClosedBelowMinRequests(t *testing.T) {
	stub := &stubGateway{err: errors.New("boom")}
	s := DefaultBreakerSettings("kpay")
	s.OpenTimeout = time.Minute
	g := NewBreakerGateway(stub, s, nil)

	for i := 0; i < 9; i++ {
		_, _ = g.Initiate(context.Background(), InitiateRequest{})
	}
	assert.Equal(t, gobreaker.StateClosed, g.State())
}
