package bootstrap

import (
	"testing"
	"time"

	domainErrors "github.com/ikazeshop/payments/internal/domain/errors"
	"github.com/ikazeshop/payments/internal/infrastructure/config"
	"github.com/ikazeshop/payments/internal/providers"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kpayConfig(mode string) *config.Config {
	return &config.Config{
		KPay: config.KPayConfig{
			Mode:        mode,
			BaseURL:     "https://pay.example",
			Username:    "user",
			Password:    "pass",
			RetailerID:  "RET1",
			Timeout:     time.Second,
			MaxAttempts: 3,
		},
		Payment: config.PaymentConfig{CircuitBreakerThreshold: 3, CircuitBreakerTimeout: time.Second},
	}
}

func TestBuildGateway(t *testing.T) {
	t.Run("mock mode", func(t *testing.T) {
		gw := BuildGateway(kpayConfig("mock"), zerolog.Nop(), nil)
		assert.IsType(t, &providers.MockGateway{}, gw)
	})

	t.Run("live mode wraps client in breaker", func(t *testing.T) {
		gw := BuildGateway(kpayConfig("live"), zerolog.Nop(), nil)
		assert.IsType(t, &providers.BreakerGateway{}, gw)
		assert.NoError(t, providers.Ready(gw))
	})

	t.Run("missing credentials yield misconfigured gateway", func(t *testing.T) {
		cfg := kpayConfig("live")
		cfg.KPay.Password = ""
		cfg.KPay.RetailerID = ""

		gw := BuildGateway(cfg, zerolog.Nop(), nil)

		err := providers.Ready(gw)
		require.Error(t, err)
		assert.ErrorIs(t, err, domainErrors.ErrGatewayMisconfigured)
		assert.Contains(t, err.Error(), "password")
		assert.Contains(t, err.Error(), "retailer id")
	})
}
