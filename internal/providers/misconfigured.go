package providers

import (
	"context"

	domainErrors "github.com/ikazeshop/payments/internal/domain/errors"
)

// ReadyChecker is implemented by gateways that can tell up front whether
// calls will be attempted at all.
type ReadyChecker interface {
	Ready() error
}

// MisconfiguredGateway stands in for a gateway whose configuration was
// rejected at startup. Every call fails with ErrGatewayMisconfigured.
type MisconfiguredGateway struct {
	cause error
}

func NewMisconfiguredGateway(cause error) *MisconfiguredGateway {
	return &MisconfiguredGateway{cause: cause}
}

func (g *MisconfiguredGateway) Ready() error {
	return domainErrors.NewDomainError("gateway_misconfigured", g.message(), domainErrors.ErrGatewayMisconfigured)
}

func (g *MisconfiguredGateway) Initiate(ctx context.Context, req InitiateRequest) (*GatewayResponse, error) {
	return nil, g.Ready()
}

func (g *MisconfiguredGateway) CheckStatus(ctx context.Context, req StatusRequest) (*GatewayResponse, error) {
	return nil, g.Ready()
}

func (g *MisconfiguredGateway) message() string {
	if g.cause == nil {
		return "payment gateway is not configured"
	}
	return g.cause.Error()
}

// Ready reports the readiness of gw, treating gateways without a check as ready.
func Ready(gw Gateway) error {
	if rc, ok := gw.(ReadyChecker); ok {
		return rc.Ready()
	}
	return nil
}
