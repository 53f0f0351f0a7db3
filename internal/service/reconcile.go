package service

import (
	"context"
	"errors"
	"time"

	domainErrors "github.com/ikazeshop/payments/internal/domain/errors"
	"github.com/ikazeshop/payments/internal/domain/payment"
)

func lockKey(p *payment.Payment) string {
	return "payment:" + p.ID.String()
}

// ReconcileStale polls the gateway for pending attempts created more than
// olderThan ago. Each attempt is checked under its lock so concurrent
// workers skip attempts another worker is already checking.
func (s *PaymentService) ReconcileStale(ctx context.Context, olderThan time.Duration, limit int) (ReconcileResult, error) {
	var res ReconcileResult

	stale, err := s.paymentRepo.ListStalePending(ctx, s.now().Add(-olderThan), limit)
	if err != nil {
		return res, err
	}

	for _, p := range stale {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}

		var out *StatusResponse
		check := func(ctx context.Context) error {
			var err error
			out, err = s.CheckStatus(ctx, StatusRequest{PaymentID: p.ID.String()})
			return err
		}

		if s.locker != nil {
			err = s.locker.WithLock(ctx, lockKey(p), check)
		} else {
			err = check(ctx)
		}

		switch {
		case errors.Is(err, domainErrors.ErrLockAcquisitionFailed):
			res.Skipped++
			s.countReconciliation("locked")
			continue
		case err != nil:
			res.Errors++
			s.countReconciliation("error")
			s.logger.Error().Err(err).Str("payment_id", p.ID.String()).Msg("Reconciliation failed")
			continue
		}

		res.Checked++
		switch payment.Status(out.Status) {
		case payment.StatusCompleted:
			res.Completed++
			s.countReconciliation("completed")
		case payment.StatusFailed:
			res.Failed++
			s.countReconciliation("failed")
		default:
			s.countReconciliation("pending")
		}
	}

	if len(stale) > 0 {
		s.logger.Info().
			Int("checked", res.Checked).
			Int("completed", res.Completed).
			Int("failed", res.Failed).
			Int("skipped", res.Skipped).
			Int("errors", res.Errors).
			Msg("Reconciled stale payments")
	}
	return res, nil
}

func (s *PaymentService) countReconciliation(result string) {
	if s.metrics != nil {
		s.metrics.Reconciliations.WithLabelValues(result).Inc()
	}
}
