package providers

import (
	"context"
	"testing"
	"time"

	domainErrors "github.com/ikazeshop/payments/internal/domain/errors"
	"github.com/ikazeshop/payments/internal/domain/payment"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initiateReq(ref string) InitiateRequest {
	return InitiateRequest{
		Reference:     ref,
		Amount:        decimal.NewFromInt(5000),
		Method:        payment.MethodMTNMoMo,
		CustomerPhone: "0788123456",
	}
}

func TestMockGateway_Initiate(t *testing.T) {
	g := NewMockGateway(WithLatency(0))

	resp, err := g.Initiate(context.Background(), initiateReq("KPAY_1_000001"))
	require.NoError(t, err)
	assert.True(t, resp.Accepted())
	assert.NotEmpty(t, resp.TransactionID)
	assert.Equal(t, "KPAY_1_000001", resp.Reference)
	assert.Equal(t, resp.CheckoutURL, ExtractCheckoutURL(resp.Raw))
}

func TestMockGateway_InitiateIsIdempotentPerReference(t *testing.T) {
	g := NewMockGateway(WithLatency(0))

	first, err := g.Initiate(context.Background(), initiateReq("KPAY_1_000001"))
	require.NoError(t, err)
	second, err := g.Initiate(context.Background(), initiateReq("KPAY_1_000001"))
	require.NoError(t, err)

	assert.Equal(t, first.TransactionID, second.TransactionID)
}

func TestMockGateway_UnsupportedMethod(t *testing.T) {
	g := NewMockGateway(WithLatency(0))
	req := initiateReq("KPAY_1_000001")
	req.Method = payment.Method("cash")

	_, err := g.Initiate(context.Background(), req)
	assert.ErrorIs(t, err, domainErrors.ErrUnsupportedMethod)
}

func TestMockGateway_StatusLifecycle(t *testing.T) {
	g := NewMockGateway(WithLatency(0), WithSettleAfter(time.Hour))
	resp, err := g.Initiate(context.Background(), initiateReq("KPAY_1_000001"))
	require.NoError(t, err)

	status, err := g.CheckStatus(context.Background(), StatusRequest{TransactionID: resp.TransactionID})
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, status.StatusID)

	settled := NewMockGateway(WithLatency(0), WithSettleAfter(0))
	resp, err = settled.Initiate(context.Background(), initiateReq("KPAY_1_000002"))
	require.NoError(t, err)

	status, err = settled.CheckStatus(context.Background(), StatusRequest{Reference: "KPAY_1_000002"})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, status.StatusID)
	assert.NotEmpty(t, status.MomTransactionID)
}

func TestMockGateway_Declined(t *testing.T) {
	g := NewMockGateway(WithLatency(0), WithSettleAfter(0), WithDeclineRate(1.0))
	_, err := g.Initiate(context.Background(), initiateReq("KPAY_1_000003"))
	require.NoError(t, err)

	status, err := g.CheckStatus(context.Background(), StatusRequest{Reference: "KPAY_1_000003"})
	require.NoError(t, err)
	assert.Equal(t, StatusAmbiguous, status.StatusID)
	assert.Equal(t, "Cancelled by user", status.StatusDesc)
}

func TestMockGateway_UnknownTransaction(t *testing.T) {
	g := NewMockGateway(WithLatency(0))

	status, err := g.CheckStatus(context.Background(), StatusRequest{Reference: "nope"})
	require.NoError(t, err)
	assert.Equal(t, ReturnCodeTransactionNotFound, status.ReturnCode)
}

func TestMockGateway_MissingIdentifier(t *testing.T) {
	g := NewMockGateway(WithLatency(0))

	_, err := g.CheckStatus(context.Background(), StatusRequest{})
	assert.ErrorIs(t, err, domainErrors.ErrMissingIdentifier)
}

func TestMockGateway_FailureRate(t *testing.T) {
	g := NewMockGateway(WithLatency(0), WithFailureRate(1.0))

	_, err := g.Initiate(context.Background(), initiateReq("KPAY_1_000004"))
	assert.ErrorIs(t, err, domainErrors.ErrProviderTimeout)
}

func TestMockGateway_Latency(t *testing.T) {
	latency := 30 * time.Millisecond
	g := NewMockGateway(WithLatency(latency))

	start := time.Now()
	_, err := g.Initiate(context.Background(), initiateReq("KPAY_1_000005"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), latency)
}

func TestMockGateway_ContextCancelled(t *testing.T) {
	g := NewMockGateway(WithLatency(time.Second))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Initiate(ctx, initiateReq("KPAY_1_000006"))
	assert.ErrorIs(t, err, context.Canceled)
}
