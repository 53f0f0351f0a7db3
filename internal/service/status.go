package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	domainErrors "github.com/ikazeshop/payments/internal/domain/errors"
	"github.com/ikazeshop/payments/internal/domain/order"
	"github.com/ikazeshop/payments/internal/domain/outbox"
	"github.com/ikazeshop/payments/internal/domain/payment"
	"github.com/ikazeshop/payments/internal/infrastructure/observability"
	"github.com/ikazeshop/payments/internal/providers"
)

const (
	msgGatewayUnreachable  = "Unable to reach the payment gateway, showing the last known status"
	msgTransactionNotFound = "Transaction not yet known to the payment gateway"
)

// Sources of a status change, used in logs, events and metrics.
const (
	sourcePoll    = "poll"
	sourceWebhook = "webhook"
)

// CheckStatus reports the status of an attempt, asking the gateway when the
// attempt is not terminal yet. Lookup misses and gateway failures are not
// errors: polling clients get a soft status they can retry on.
func (s *PaymentService) CheckStatus(ctx context.Context, req StatusRequest) (*StatusResponse, error) {
	if req.empty() {
		return nil, domainErrors.NewValidationError("paymentId", "one of paymentId, transactionId or reference is required")
	}

	p, err := s.lookup(ctx, req)
	if err != nil {
		return nil, err
	}
	if p == nil {
		s.countStatusCheck("unknown")
		return &StatusResponse{PaymentID: req.PaymentID, Reference: req.Reference, Status: StatusUnknown}, nil
	}
	if p.IsTerminal() {
		s.countStatusCheck("terminal")
		return statusResponse(p), nil
	}

	statusReq := providers.StatusRequest{TransactionID: req.TransactionID, Reference: req.Reference}
	if statusReq.TransactionID == "" && p.GatewayTransactionID != nil {
		statusReq.TransactionID = *p.GatewayTransactionID
	}
	if statusReq.Reference == "" {
		statusReq.Reference = p.Reference
	}

	log := observability.PaymentLogger(s.logger, p.ID.String(), p.Reference)

	resp, err := s.gateway.CheckStatus(context.WithoutCancel(ctx), statusReq)
	if err != nil {
		log.Warn().Err(err).Msg("Status check failed, returning last known status")
		s.countStatusCheck("gateway_error")
		out := statusResponse(p)
		out.Error = msgGatewayUnreachable
		return out, nil
	}

	if resp.ReturnCode == providers.ReturnCodeTransactionNotFound {
		s.countStatusCheck("not_found")
		out := statusResponse(p)
		out.Gateway = gatewayStatus(resp)
		out.Error = msgTransactionNotFound
		return out, nil
	}

	s.apply(ctx, p, resp, sourcePoll)
	s.countStatusCheck(string(p.Status))

	out := statusResponse(p)
	out.Gateway = gatewayStatus(resp)
	return out, nil
}

// HandleWebhook applies a gateway callback. Callbacks for unknown attempts
// are acknowledged with StatusUnknown.
func (s *PaymentService) HandleWebhook(ctx context.Context, cb *providers.GatewayResponse) (*StatusResponse, error) {
	if cb == nil || (cb.TransactionID == "" && cb.Reference == "") {
		return nil, domainErrors.NewValidationError("refid", "one of tid or refid is required")
	}

	p, err := s.lookup(ctx, StatusRequest{TransactionID: cb.TransactionID, Reference: cb.Reference})
	if err != nil {
		return nil, err
	}
	if p == nil {
		s.logger.Warn().
			Str("transaction_id", cb.TransactionID).
			Str("reference", cb.Reference).
			Msg("Webhook for unknown payment")
		return &StatusResponse{Reference: cb.Reference, Status: StatusUnknown}, nil
	}
	if !p.IsTerminal() {
		s.apply(ctx, p, cb, sourceWebhook)
	}
	out := statusResponse(p)
	out.Gateway = gatewayStatus(cb)
	return out, nil
}

// lookup finds the attempt by id, then transaction id, then reference.
// It returns nil when nothing matches.
func (s *PaymentService) lookup(ctx context.Context, req StatusRequest) (*payment.Payment, error) {
	type finder func() (*payment.Payment, error)
	var finders []finder

	if req.PaymentID != "" {
		if id, err := uuid.Parse(req.PaymentID); err == nil {
			finders = append(finders, func() (*payment.Payment, error) { return s.paymentRepo.GetByID(ctx, id) })
		}
	}
	if req.TransactionID != "" {
		finders = append(finders, func() (*payment.Payment, error) {
			return s.paymentRepo.GetByTransactionID(ctx, req.TransactionID)
		})
	}
	if req.Reference != "" {
		finders = append(finders, func() (*payment.Payment, error) {
			return s.paymentRepo.GetByReference(ctx, req.Reference)
		})
	}

	for _, find := range finders {
		p, err := find()
		if errors.Is(err, domainErrors.ErrPaymentNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if p != nil {
			return p, nil
		}
	}
	return nil, nil
}

// Interpret maps a gateway status to the attempt status it implies. Status
// 03 is ambiguous: a description mentioning "pending" means the customer has
// not confirmed yet, anything else is a failure. ok is false for codes that
// carry no status.
func Interpret(statusID, statusDesc string) (status payment.Status, ok bool) {
	switch statusID {
	case providers.StatusSuccess:
		return payment.StatusCompleted, true
	case providers.StatusProcessing:
		return payment.StatusPending, true
	case providers.StatusAmbiguous:
		if strings.Contains(strings.ToLower(statusDesc), "pending") {
			return payment.StatusPending, true
		}
		return payment.StatusFailed, true
	default:
		return "", false
	}
}

// apply moves p to the status implied by resp. Completion is always written
// so a late success is never missed; other outcomes are written only when
// something changed. Store failures are logged, the gateway stays
// authoritative for the response.
func (s *PaymentService) apply(ctx context.Context, p *payment.Payment, resp *providers.GatewayResponse, source string) {
	log := observability.PaymentLogger(s.logger, p.ID.String(), p.Reference)

	target, ok := Interpret(resp.StatusID, resp.StatusDesc)
	if !ok {
		log.Warn().Str("status_id", resp.StatusID).Str("source", source).Msg("Unrecognized gateway status")
		return
	}

	before := *p
	learned := p.LearnTransactionID(resp.TransactionID)

	var err error
	switch target {
	case payment.StatusCompleted:
		err = p.MarkCompleted(resp.MomTransactionID)
	case payment.StatusFailed:
		reason := resp.StatusDesc
		if reason == "" {
			reason = "Payment failed"
		}
		err = p.MarkFailed(reason)
	case payment.StatusPending:
		err = p.TransitionTo(payment.StatusPending)
	}
	if err != nil {
		*p = before
		log.Warn().Err(err).Str("target", string(target)).Str("source", source).Msg("Ignoring gateway status")
		return
	}

	changed := before.Status != p.Status
	if !changed && !learned && target != payment.StatusCompleted {
		return
	}
	if resp.Raw != nil {
		p.GatewayResponse = resp.Raw
	}

	if err := s.persist(ctx, p, changed, source); err != nil {
		log.Error().Err(err).Str("source", source).Msg("Failed to persist payment status")
		return
	}
	if changed {
		s.countTransition(p.Status, source)
		log.Info().
			Str("from", string(before.Status)).
			Str("to", string(p.Status)).
			Str("source", source).
			Msg("Payment status changed")
	}
}

// persist writes p. A status change also records the audit event, the
// outbox entry and the order payment status in the same transaction.
func (s *PaymentService) persist(ctx context.Context, p *payment.Payment, changed bool, source string) error {
	return s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.paymentRepo.Update(txCtx, p); err != nil {
			return err
		}
		if !changed || !p.IsTerminal() {
			return nil
		}

		eventType := payment.EventCompleted
		if p.Status == payment.StatusFailed {
			eventType = payment.EventFailed
		}
		data := map[string]any{"source": source}
		if p.FailureReason != nil {
			data["failure_reason"] = *p.FailureReason
		}
		if err := s.paymentRepo.AddEvent(txCtx, payment.NewEvent(p, eventType, data)); err != nil {
			return err
		}
		if err := s.outboxRepo.Insert(txCtx, outbox.NewEntry(outbox.AggregatePayment, p.ID, eventType, outboxPayload(p))); err != nil {
			return err
		}
		return s.propagateToOrder(txCtx, p)
	})
}

// propagateToOrder records the payment outcome on the linked order. Session
// payments have no order yet and are finalized elsewhere.
func (s *PaymentService) propagateToOrder(ctx context.Context, p *payment.Payment) error {
	if p.IsSession() {
		return nil
	}
	switch p.Status {
	case payment.StatusCompleted:
		return s.orderRepo.UpdatePaymentStatus(ctx, *p.OrderID, order.PaymentStatusPaid, true, p.UpdatedAt)
	case payment.StatusFailed:
		return s.orderRepo.UpdatePaymentStatus(ctx, *p.OrderID, order.PaymentStatusFailed, false, p.UpdatedAt)
	}
	return nil
}

func outboxPayload(p *payment.Payment) map[string]any {
	payload := map[string]any{
		"payment_id": p.ID.String(),
		"reference":  p.Reference,
		"status":     string(p.Status),
		"amount":     p.Amount.StringFixed(2),
		"currency":   p.Currency,
		"method":     string(p.Method),
	}
	if p.OrderID != nil {
		payload["order_id"] = *p.OrderID
	}
	if p.GatewayTransactionID != nil {
		payload["transaction_id"] = *p.GatewayTransactionID
	}
	if p.FailureReason != nil {
		payload["failure_reason"] = *p.FailureReason
	}
	return payload
}

func statusResponse(p *payment.Payment) *StatusResponse {
	out := &StatusResponse{
		PaymentID:     p.ID.String(),
		Status:        string(p.Status),
		Amount:        p.Amount,
		Currency:      p.Currency,
		Reference:     p.Reference,
		OrderID:       p.OrderID,
		CheckoutURL:   providers.ExtractCheckoutURL(p.GatewayResponse),
		FailureReason: p.FailureReason,
	}
	if p.GatewayReturnCode != nil || p.GatewayMomTransactionID != nil {
		out.Gateway = &GatewayStatus{ReturnCode: p.GatewayReturnCode}
		if p.GatewayMomTransactionID != nil {
			out.Gateway.MomTransactionID = *p.GatewayMomTransactionID
		}
	}
	return out
}

func gatewayStatus(resp *providers.GatewayResponse) *GatewayStatus {
	code := resp.ReturnCode
	return &GatewayStatus{
		StatusID:         resp.StatusID,
		StatusDesc:       resp.StatusDesc,
		ReturnCode:       &code,
		MomTransactionID: resp.MomTransactionID,
	}
}

func (s *PaymentService) countStatusCheck(result string) {
	if s.metrics != nil {
		s.metrics.StatusChecks.WithLabelValues(result).Inc()
	}
}
