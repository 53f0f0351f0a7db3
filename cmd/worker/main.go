package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ikazeshop/payments/internal/bootstrap"
	infraRedis "github.com/ikazeshop/payments/internal/infrastructure/redis"
	"github.com/ikazeshop/payments/internal/service"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := bootstrap.New(ctx, "payments-worker", "payments_worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	workerCfg := app.Config.Worker
	svc := app.PaymentService()
	relay := service.NewOutboxRelay(
		app.Outbox, app.TxManager, infraRedis.NewStreamProducer(app.Redis),
		int(workerCfg.BatchSize), app.Logger, app.Metrics,
	)

	app.Logger.Info().
		Str("stream", infraRedis.PaymentEventsStream).
		Dur("reconcile_interval", workerCfg.ReconcileInterval).
		Dur("reconcile_older_than", workerCfg.ReconcileOlderThan).
		Msg("Worker started")

	g, gCtx := errgroup.WithContext(ctx)

	// Publishes committed status changes to the payment events stream.
	g.Go(func() error {
		return relay.Run(gCtx, workerCfg.OutboxPollInterval)
	})

	// Polls the gateway for attempts nobody is watching anymore.
	g.Go(func() error {
		return runReconciler(gCtx, app.Logger, svc, workerCfg.ReconcileInterval, workerCfg.ReconcileOlderThan, int(workerCfg.BatchSize))
	})

	// Drops expired idempotency keys.
	g.Go(func() error {
		return runIdempotencyCleanup(gCtx, app.Logger, app, time.Hour)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		app.Logger.Error().Err(err).Msg("Worker error")
	}
	app.Logger.Info().Msg("Worker exited")
}

func runReconciler(
	ctx context.Context,
	logger zerolog.Logger,
	svc *service.PaymentService,
	interval, olderThan time.Duration,
	batch int,
) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		res, err := svc.ReconcileStale(ctx, olderThan, batch)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("Reconciliation run failed")
			continue
		}
		if res.Checked > 0 || res.Skipped > 0 {
			logger.Info().
				Int("checked", res.Checked).
				Int("completed", res.Completed).
				Int("failed", res.Failed).
				Int("skipped", res.Skipped).
				Int("errors", res.Errors).
				Msg("Reconciliation run finished")
		}
	}
}

func runIdempotencyCleanup(ctx context.Context, logger zerolog.Logger, app *bootstrap.App, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		n, err := app.Idempotency.Cleanup(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("Idempotency cleanup failed")
			continue
		}
		if n > 0 {
			logger.Info().Int64("deleted", n).Msg("Expired idempotency keys removed")
		}
	}
}
