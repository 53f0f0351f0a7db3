package providers

import (
	"context"
	"errors"
	"time"

	domainErrors "github.com/ikazeshop/payments/internal/domain/errors"
	"github.com/ikazeshop/payments/internal/infrastructure/observability"
	"github.com/sony/gobreaker/v2"
)

// BreakerSettings configures the circuit breaker around a gateway.
type BreakerSettings struct {
	Name string
	// MinRequests is the request count in one interval before the failure ratio is considered.
	MinRequests  uint32
	FailureRatio float64
	Interval     time.Duration
	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration
}

// DefaultBreakerSettings trips at 60% failures over at least 10 requests.
func DefaultBreakerSettings(name string) BreakerSettings {
	return BreakerSettings{
		Name:         name,
		MinRequests:  10,
		FailureRatio: 0.6,
		Interval:     60 * time.Second,
		OpenTimeout:  30 * time.Second,
	}
}

// BreakerGateway guards a Gateway with a circuit breaker.
type BreakerGateway struct {
	next    Gateway
	name    string
	breaker *gobreaker.CircuitBreaker[*GatewayResponse]
	metrics *observability.Metrics
}

// NewBreakerGateway wraps next. metrics may be nil.
func NewBreakerGateway(next Gateway, s BreakerSettings, metrics *observability.Metrics) *BreakerGateway {
	g := &BreakerGateway{next: next, name: s.Name, metrics: metrics}
	g.breaker = gobreaker.NewCircuitBreaker[*GatewayResponse](gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: 1,
		Interval:    s.Interval,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < s.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= s.FailureRatio
		},
		// Caller mistakes say nothing about gateway health.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, domainErrors.ErrMissingIdentifier) ||
				errors.Is(err, domainErrors.ErrUnsupportedMethod) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if metrics != nil {
				metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			}
		},
	})
	return g
}

func (g *BreakerGateway) Initiate(ctx context.Context, req InitiateRequest) (*GatewayResponse, error) {
	return g.execute(func() (*GatewayResponse, error) {
		return g.next.Initiate(ctx, req)
	})
}

func (g *BreakerGateway) CheckStatus(ctx context.Context, req StatusRequest) (*GatewayResponse, error) {
	return g.execute(func() (*GatewayResponse, error) {
		return g.next.CheckStatus(ctx, req)
	})
}

// State returns the current breaker state.
func (g *BreakerGateway) State() gobreaker.State {
	return g.breaker.State()
}

func (g *BreakerGateway) execute(fn func() (*GatewayResponse, error)) (*GatewayResponse, error) {
	resp, err := g.breaker.Execute(fn)
	result := "success"
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		result = "rejected"
		err = domainErrors.NewDomainError("circuit_open", "gateway circuit breaker is open", domainErrors.ErrProviderUnavailable)
	case err != nil:
		result = "failure"
	}
	if g.metrics != nil {
		g.metrics.CircuitBreakerRequests.WithLabelValues(g.name, result).Inc()
	}
	return resp, err
}
