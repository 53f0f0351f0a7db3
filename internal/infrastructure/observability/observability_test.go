package observability

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_RegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("payments", reg)

	m.PaymentsInitiated.WithLabelValues("mtn_momo", "accepted").Inc()
	m.GatewayRequestsTotal.WithLabelValues("pay", "success").Inc()
	m.GatewayRequestsTotal.WithLabelValues("pay", "success").Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.PaymentsInitiated.WithLabelValues("mtn_momo", "accepted")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.GatewayRequestsTotal.WithLabelValues("pay", "success")))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "payments_payments_initiated_total")
	assert.Contains(t, names, "payments_gateway_requests_total")
}

func TestNewMetrics_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics("payments", reg)

	assert.Panics(t, func() { NewMetrics("payments", reg) })
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"INFO":    zerolog.InfoLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"bogus":   zerolog.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLogLevel(in), in)
	}
}

func TestPaymentLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := PaymentLogger(InitLogger("info", &buf), "p-1", "KPAY_1_000001")

	logger.Info().Msg("initiated")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "p-1", entry["payment_id"])
	assert.Equal(t, "KPAY_1_000001", entry["reference"])
	assert.Equal(t, "initiated", entry["message"])
}
