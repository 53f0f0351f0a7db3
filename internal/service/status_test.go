package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	domainErrors "github.com/ikazeshop/payments/internal/domain/errors"
	"github.com/ikazeshop/payments/internal/domain/order"
	"github.com/ikazeshop/payments/internal/domain/outbox"
	"github.com/ikazeshop/payments/internal/domain/payment"
	"github.com/ikazeshop/payments/internal/providers"
	"github.com/ikazeshop/payments/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParseUUID(t *testing.T, s string) uuid.UUID {
	t.Helper()
	id, err := uuid.Parse(s)
	require.NoError(t, err)
	return id
}

func respondWith(statusID, statusDesc string) func(ctx context.Context, req providers.StatusRequest) (*providers.GatewayResponse, error) {
	return func(ctx context.Context, req providers.StatusRequest) (*providers.GatewayResponse, error) {
		resp := testutil.StatusResponse(req, statusID, statusDesc)
		if statusID == providers.StatusSuccess {
			resp.MomTransactionID = "MOM-5521"
		}
		return resp, nil
	}
}

func TestInterpret(t *testing.T) {
	tests := []struct {
		statusID string
		desc     string
		want     payment.Status
		ok       bool
	}{
		{"01", "Successfully processed transaction.", payment.StatusCompleted, true},
		{"02", "Awaiting confirmation", payment.StatusPending, true},
		{"03", "Pending confirmation", payment.StatusPending, true},
		{"03", "PENDING", payment.StatusPending, true},
		{"03", "Cancelled by user", payment.StatusFailed, true},
		{"03", "", payment.StatusFailed, true},
		{"", "", "", false},
		{"99", "?", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.statusID+"/"+tt.desc, func(t *testing.T) {
			got, ok := Interpret(tt.statusID, tt.desc)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCheckStatus_RequiresIdentifier(t *testing.T) {
	f := setupPaymentService(t)

	_, err := f.svc.CheckStatus(context.Background(), StatusRequest{})

	var ve *domainErrors.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestCheckStatus_UnknownPaymentIsSoft(t *testing.T) {
	tests := []StatusRequest{
		{PaymentID: uuid.NewString()},
		{PaymentID: "not-a-uuid"},
		{TransactionID: "TX-404"},
		{Reference: "KPAY_1_000000"},
	}
	for _, req := range tests {
		f := setupPaymentService(t)

		resp, err := f.svc.CheckStatus(context.Background(), req)

		require.NoError(t, err)
		assert.Equal(t, StatusUnknown, resp.Status)
		_, status := f.gateway.Calls()
		assert.Zero(t, status)
	}
}

func TestCheckStatus_LookupPriority(t *testing.T) {
	f := setupPaymentService(t)
	byID := testutil.NewTestPayment(nil, 1000, payment.MethodVisa, f.now)
	byRef := testutil.NewTestPayment(nil, 2000, payment.MethodVisa, f.now)
	f.payments.AddPayment(byID)
	f.payments.AddPayment(byRef)

	resp, err := f.svc.CheckStatus(context.Background(), StatusRequest{
		PaymentID: byID.ID.String(),
		Reference: byRef.Reference,
	})
	require.NoError(t, err)
	assert.Equal(t, byID.ID.String(), resp.PaymentID)

	resp, err = f.svc.CheckStatus(context.Background(), StatusRequest{
		PaymentID: uuid.NewString(),
		Reference: byRef.Reference,
	})
	require.NoError(t, err)
	assert.Equal(t, byRef.ID.String(), resp.PaymentID)

	resp, err = f.svc.CheckStatus(context.Background(), StatusRequest{TransactionID: *byRef.GatewayTransactionID})
	require.NoError(t, err)
	assert.Equal(t, byRef.ID.String(), resp.PaymentID)
}

func TestCheckStatus_TerminalRowsSkipGateway(t *testing.T) {
	for _, status := range []payment.Status{payment.StatusCompleted, payment.StatusFailed} {
		t.Run(string(status), func(t *testing.T) {
			f := setupPaymentService(t)
			p := testutil.NewTestPayment(testutil.StringPtr("O1"), 5000, payment.MethodMTNMoMo, f.now.Add(-time.Hour))
			p.Status = status
			f.payments.AddPayment(p)
			f.gateway.CheckStatusFunc = respondWith(providers.StatusAmbiguous, "Cancelled by user")

			resp, err := f.svc.CheckStatus(context.Background(), StatusRequest{PaymentID: p.ID.String()})

			require.NoError(t, err)
			assert.Equal(t, string(status), resp.Status)
			_, calls := f.gateway.Calls()
			assert.Zero(t, calls)
			assert.Zero(t, f.payments.Updates())
			assert.Empty(t, f.orders.PaymentUpdates())
			assert.Equal(t, status, f.payments.Stored(p.ID).Status)
		})
	}
}

func TestCheckStatus_Success(t *testing.T) {
	f := setupPaymentService(t)
	f.orders.AddOrder(testutil.NewTestOrder("O1", 5000))
	p := testutil.NewTestPayment(testutil.StringPtr("O1"), 5000, payment.MethodMTNMoMo, f.now)
	f.payments.AddPayment(p)
	f.gateway.CheckStatusFunc = respondWith(providers.StatusSuccess, "Successfully processed transaction.")

	resp, err := f.svc.CheckStatus(context.Background(), StatusRequest{PaymentID: p.ID.String()})
	require.NoError(t, err)

	assert.Equal(t, "completed", resp.Status)
	require.NotNil(t, resp.Gateway)
	assert.Equal(t, "01", resp.Gateway.StatusID)
	assert.Equal(t, "MOM-5521", resp.Gateway.MomTransactionID)

	stored := f.payments.Stored(p.ID)
	assert.Equal(t, payment.StatusCompleted, stored.Status)
	require.NotNil(t, stored.CompletedAt)
	assert.Equal(t, "MOM-5521", *stored.GatewayMomTransactionID)
	assert.Equal(t, "01", stored.GatewayResponse["statusid"])

	assert.Equal(t, []testutil.OrderPaymentUpdate{{OrderID: "O1", Status: order.PaymentStatusPaid, IsPaid: true}}, f.orders.PaymentUpdates())
	require.Len(t, f.outbox.Inserted, 1)
	assert.Equal(t, payment.EventCompleted, f.outbox.Inserted[0].EventType)
	assert.Equal(t, outbox.AggregatePayment, f.outbox.Inserted[0].AggregateType)
	assert.Equal(t, "O1", f.outbox.Inserted[0].Payload["order_id"])
	assert.Contains(t, f.payments.Events(p.ID), payment.EventCompleted)
}

func TestCheckStatus_SessionPaymentSkipsOrderPropagation(t *testing.T) {
	f := setupPaymentService(t)
	p := testutil.NewTestPayment(nil, 2500, payment.MethodMTNMoMo, f.now)
	f.payments.AddPayment(p)
	f.gateway.CheckStatusFunc = respondWith(providers.StatusSuccess, "Successfully processed transaction.")
	f.orders.UpdatePaymentStatusFunc = func(ctx context.Context, id string, status order.PaymentStatus, isPaid bool, at time.Time) error {
		t.Fatalf("unexpected order update for %s", id)
		return nil
	}

	resp, err := f.svc.CheckStatus(context.Background(), StatusRequest{Reference: p.Reference})
	require.NoError(t, err)

	assert.Equal(t, "completed", resp.Status)
	assert.Nil(t, resp.OrderID)
	assert.Len(t, f.outbox.Inserted, 1)
}

func TestCheckStatus_AmbiguousStatus(t *testing.T) {
	tests := []struct {
		desc       string
		wantStatus payment.Status
		wantWrite  bool
	}{
		{"Pending confirmation", payment.StatusPending, false},
		{"Cancelled by user", payment.StatusFailed, true},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			f := setupPaymentService(t)
			f.orders.AddOrder(testutil.NewTestOrder("O1", 5000))
			p := testutil.NewTestPayment(testutil.StringPtr("O1"), 5000, payment.MethodMTNMoMo, f.now)
			f.payments.AddPayment(p)
			f.gateway.CheckStatusFunc = respondWith(providers.StatusAmbiguous, tt.desc)

			resp, err := f.svc.CheckStatus(context.Background(), StatusRequest{PaymentID: p.ID.String()})
			require.NoError(t, err)

			assert.Equal(t, string(tt.wantStatus), resp.Status)
			stored := f.payments.Stored(p.ID)
			assert.Equal(t, tt.wantStatus, stored.Status)
			if tt.wantWrite {
				require.NotNil(t, stored.FailureReason)
				assert.Equal(t, tt.desc, *stored.FailureReason)
				assert.Equal(t, []testutil.OrderPaymentUpdate{{OrderID: "O1", Status: order.PaymentStatusFailed}}, f.orders.PaymentUpdates())
				assert.Equal(t, payment.EventFailed, f.outbox.Inserted[0].EventType)
			} else {
				assert.Zero(t, f.payments.Updates())
				assert.Nil(t, stored.FailureReason)
				assert.Empty(t, f.orders.PaymentUpdates())
			}
		})
	}
}

func TestCheckStatus_ProcessingDoesNotRewrite(t *testing.T) {
	f := setupPaymentService(t)
	p := testutil.NewTestPayment(nil, 2500, payment.MethodAirtelMoney, f.now)
	f.payments.AddPayment(p)

	for range 3 {
		resp, err := f.svc.CheckStatus(context.Background(), StatusRequest{PaymentID: p.ID.String()})
		require.NoError(t, err)
		assert.Equal(t, "pending", resp.Status)
	}

	assert.Zero(t, f.payments.Updates())
}

func TestCheckStatus_PrefersRequestIdentifiers(t *testing.T) {
	f := setupPaymentService(t)
	p := testutil.NewTestPayment(nil, 2500, payment.MethodMTNMoMo, f.now)
	p.GatewayTransactionID = nil
	f.payments.AddPayment(p)
	f.gateway.CheckStatusFunc = respondWith(providers.StatusProcessing, "Awaiting confirmation")

	_, err := f.svc.CheckStatus(context.Background(), StatusRequest{PaymentID: p.ID.String(), TransactionID: "KP-NEW"})
	require.NoError(t, err)

	require.Len(t, f.gateway.StatusCalls, 1)
	assert.Equal(t, "KP-NEW", f.gateway.StatusCalls[0].TransactionID)
	assert.Equal(t, p.Reference, f.gateway.StatusCalls[0].Reference)

	stored := f.payments.Stored(p.ID)
	require.NotNil(t, stored.GatewayTransactionID)
	assert.Equal(t, "KP-NEW", *stored.GatewayTransactionID)
}

func TestCheckStatus_TransactionNotFoundIsNotAFailure(t *testing.T) {
	f := setupPaymentService(t)
	p := testutil.NewTestPayment(nil, 2500, payment.MethodMTNMoMo, f.now)
	f.payments.AddPayment(p)
	f.gateway.CheckStatusFunc = func(ctx context.Context, req providers.StatusRequest) (*providers.GatewayResponse, error) {
		return &providers.GatewayResponse{ReturnCode: providers.ReturnCodeTransactionNotFound, Reply: "Transaction not found"}, nil
	}

	resp, err := f.svc.CheckStatus(context.Background(), StatusRequest{PaymentID: p.ID.String()})
	require.NoError(t, err)

	assert.Equal(t, "pending", resp.Status)
	assert.Equal(t, msgTransactionNotFound, resp.Error)
	require.NotNil(t, resp.Gateway)
	assert.Equal(t, providers.ReturnCodeTransactionNotFound, *resp.Gateway.ReturnCode)
	assert.Zero(t, f.payments.Updates())
}

func TestCheckStatus_GatewayErrorReturnsLastKnownStatus(t *testing.T) {
	f := setupPaymentService(t)
	p := testutil.NewTestPayment(nil, 2500, payment.MethodMTNMoMo, f.now)
	f.payments.AddPayment(p)
	f.gateway.CheckStatusFunc = func(ctx context.Context, req providers.StatusRequest) (*providers.GatewayResponse, error) {
		return nil, errors.New("kpay checkstatus: unexpected status 502")
	}

	resp, err := f.svc.CheckStatus(context.Background(), StatusRequest{PaymentID: p.ID.String()})
	require.NoError(t, err)

	assert.Equal(t, "pending", resp.Status)
	assert.Equal(t, msgGatewayUnreachable, resp.Error)
	assert.Equal(t, "https://pay.example/checkout/"+*p.GatewayTransactionID, resp.CheckoutURL)
	assert.Zero(t, f.payments.Updates())
}

func TestCheckStatus_StoreFailureDoesNotFailRequest(t *testing.T) {
	f := setupPaymentService(t)
	f.orders.AddOrder(testutil.NewTestOrder("O1", 5000))
	p := testutil.NewTestPayment(testutil.StringPtr("O1"), 5000, payment.MethodMTNMoMo, f.now)
	f.payments.AddPayment(p)
	f.gateway.CheckStatusFunc = respondWith(providers.StatusSuccess, "Successfully processed transaction.")
	f.orders.UpdatePaymentStatusFunc = func(ctx context.Context, id string, status order.PaymentStatus, isPaid bool, at time.Time) error {
		return errors.New("orders table locked")
	}

	resp, err := f.svc.CheckStatus(context.Background(), StatusRequest{PaymentID: p.ID.String()})

	require.NoError(t, err)
	assert.Equal(t, "completed", resp.Status)
}

// --- Webhook ---

func TestHandleWebhook_AppliesStatus(t *testing.T) {
	f := setupPaymentService(t)
	f.orders.AddOrder(testutil.NewTestOrder("O1", 5000))
	p := testutil.NewTestPayment(testutil.StringPtr("O1"), 5000, payment.MethodMTNMoMo, f.now)
	f.payments.AddPayment(p)

	resp, err := f.svc.HandleWebhook(context.Background(), &providers.GatewayResponse{
		TransactionID:    *p.GatewayTransactionID,
		Reference:        p.Reference,
		StatusID:         providers.StatusSuccess,
		StatusDesc:       "Successfully processed transaction.",
		MomTransactionID: "MOM-1",
		Raw:              map[string]any{"statusid": "01"},
	})
	require.NoError(t, err)

	assert.Equal(t, "completed", resp.Status)
	_, calls := f.gateway.Calls()
	assert.Zero(t, calls)
	assert.Equal(t, payment.StatusCompleted, f.payments.Stored(p.ID).Status)
	assert.Len(t, f.orders.PaymentUpdates(), 1)
}

func TestHandleWebhook_UnknownPaymentIsAcknowledged(t *testing.T) {
	f := setupPaymentService(t)

	resp, err := f.svc.HandleWebhook(context.Background(), &providers.GatewayResponse{Reference: "KPAY_0_000000", StatusID: "01"})

	require.NoError(t, err)
	assert.Equal(t, StatusUnknown, resp.Status)
}

func TestHandleWebhook_TerminalRowUnchanged(t *testing.T) {
	f := setupPaymentService(t)
	p := testutil.NewCompletedPayment(nil, 2500, payment.MethodVisa)
	f.payments.AddPayment(p)

	resp, err := f.svc.HandleWebhook(context.Background(), &providers.GatewayResponse{
		Reference:  p.Reference,
		StatusID:   providers.StatusAmbiguous,
		StatusDesc: "Cancelled by user",
	})

	require.NoError(t, err)
	assert.Equal(t, "completed", resp.Status)
	assert.Zero(t, f.payments.Updates())
}

func TestHandleWebhook_RequiresIdentifier(t *testing.T) {
	f := setupPaymentService(t)

	_, err := f.svc.HandleWebhook(context.Background(), &providers.GatewayResponse{StatusID: "01"})

	var ve *domainErrors.ValidationError
	assert.ErrorAs(t, err, &ve)
}
