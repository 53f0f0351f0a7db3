package service

import (
	"context"
	"time"

	"github.com/ikazeshop/payments/internal/domain/outbox"
	"github.com/ikazeshop/payments/internal/infrastructure/observability"
	"github.com/rs/zerolog"
)

// OutboxRelay publishes pending outbox entries written alongside payment
// status changes.
type OutboxRelay struct {
	outboxRepo outbox.Repository
	txManager  TransactionManager
	publisher  EventPublisher
	batchSize  int
	logger     zerolog.Logger
	metrics    *observability.Metrics
}

func NewOutboxRelay(
	outboxRepo outbox.Repository,
	txManager TransactionManager,
	publisher EventPublisher,
	batchSize int,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *OutboxRelay {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &OutboxRelay{
		outboxRepo: outboxRepo,
		txManager:  txManager,
		publisher:  publisher,
		batchSize:  batchSize,
		logger:     logger,
		metrics:    metrics,
	}
}

// PublishBatch publishes one batch inside a transaction so the row locks
// taken by GetPending hold until each entry is marked. It returns the number
// of entries published.
func (r *OutboxRelay) PublishBatch(ctx context.Context) (int, error) {
	published := 0
	err := r.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		entries, err := r.outboxRepo.GetPending(txCtx, r.batchSize)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			start := time.Now()
			if err := r.publisher.PublishOutboxEntry(ctx, entry); err != nil {
				r.logger.Error().Err(err).
					Str("outbox_id", entry.ID.String()).
					Str("event_type", entry.EventType).
					Bool("parked", entry.Exhausted()).
					Msg("Failed to publish outbox event")
				r.observe("failed", start)
				if err := r.outboxRepo.MarkFailed(txCtx, entry.ID, err.Error()); err != nil {
					return err
				}
				continue
			}
			if err := r.outboxRepo.MarkPublished(txCtx, entry.ID); err != nil {
				return err
			}
			r.observe("published", start)
			published++
		}
		return nil
	})
	return published, err
}

// Run publishes a batch every interval until ctx is cancelled.
func (r *OutboxRelay) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if _, err := r.PublishBatch(ctx); err != nil {
			r.logger.Error().Err(err).Msg("Outbox relay error")
		}
	}
}

func (r *OutboxRelay) observe(status string, start time.Time) {
	if r.metrics == nil {
		return
	}
	r.metrics.WorkerMessagesProcessed.WithLabelValues("outbox", status).Inc()
	r.metrics.WorkerProcessingDuration.WithLabelValues("outbox").Observe(time.Since(start).Seconds())
}
