package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/ikazeshop/payments/internal/infrastructure/config"
	"github.com/ikazeshop/payments/internal/infrastructure/observability"
	infraRedis "github.com/ikazeshop/payments/internal/infrastructure/redis"
	"github.com/ikazeshop/payments/internal/providers"
	"github.com/ikazeshop/payments/internal/providers/kpay"
	"github.com/ikazeshop/payments/internal/repository/postgres"
	"github.com/ikazeshop/payments/internal/service"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Metrics *observability.Metrics
	Gateway providers.Gateway

	Payments    *postgres.PaymentRepository
	Orders      *postgres.OrderRepository
	Outbox      *postgres.OutboxRepository
	Idempotency *postgres.IdempotencyRepository
	TxManager   *postgres.TxManager
}

func New(ctx context.Context, serviceName string, metricsNamespace string) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := observability.InitLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.Info().Str("service", serviceName).Msg("Starting")

	if cfg.Observability.EnableTracing {
		tp, err := observability.InitTracer(serviceName, cfg.Observability.JaegerEndpoint)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		} else {
			go func() {
				<-ctx.Done()
				observability.Shutdown(context.Background(), tp)
			}()
			logger.Info().Msg("Tracing enabled")
		}
	}

	metrics := observability.NewMetrics(metricsNamespace, nil)

	pool, err := postgres.NewPool(ctx, &cfg.Database, serviceName)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Info().Msg("Connected to PostgreSQL")

	redisClient, err := infraRedis.NewClient(ctx, &cfg.Redis)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info().Msg("Connected to Redis")

	return &App{
		Config:      cfg,
		Logger:      logger,
		Pool:        pool,
		Redis:       redisClient,
		Metrics:     metrics,
		Gateway:     BuildGateway(cfg, logger, metrics),
		Payments:    postgres.NewPaymentRepository(pool),
		Orders:      postgres.NewOrderRepository(pool),
		Outbox:      postgres.NewOutboxRepository(pool),
		Idempotency: postgres.NewIdempotencyRepository(pool),
		TxManager:   postgres.NewTxManager(pool),
	}, nil
}

// BuildGateway returns the gateway selected by kpay.mode. Invalid live
// credentials do not stop the process: the returned gateway fails every call
// with ErrGatewayMisconfigured so status polling keeps serving stored state.
func BuildGateway(cfg *config.Config, logger zerolog.Logger, metrics *observability.Metrics) providers.Gateway {
	if cfg.KPay.Mode == "mock" {
		logger.Warn().Msg("Using mock KPay gateway")
		return providers.NewMockGateway()
	}

	k := cfg.KPay
	client, err := kpay.New(kpay.Config{
		BaseURL:          k.BaseURL,
		AlternateBaseURL: k.AlternateBaseURL,
		Username:         k.Username,
		Password:         k.Password,
		RetailerID:       k.RetailerID,
		WebhookURL:       k.WebhookURL,
		LogoURL:          k.LogoURL,
		Timeout:          k.Timeout,
		MaxAttempts:      k.MaxAttempts,
		BackoffMin:       k.BackoffMin,
		BackoffMax:       k.BackoffMax,
	},
		kpay.WithHTTPClient(&http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}),
		kpay.WithLogger(logger.With().Str("component", "kpay").Logger()),
		kpay.WithMetrics(metrics),
	)
	if err != nil {
		logger.Error().Err(err).Msg("KPay gateway misconfigured, payments will be rejected")
		return providers.NewMisconfiguredGateway(err)
	}

	settings := providers.DefaultBreakerSettings("kpay")
	if p := cfg.Payment; p.CircuitBreakerThreshold > 0 {
		settings.MinRequests = uint32(p.CircuitBreakerThreshold)
	}
	if p := cfg.Payment; p.CircuitBreakerInterval > 0 {
		settings.Interval = p.CircuitBreakerInterval
	}
	if p := cfg.Payment; p.CircuitBreakerTimeout > 0 {
		settings.OpenTimeout = p.CircuitBreakerTimeout
	}
	return providers.NewBreakerGateway(client, settings, metrics)
}

// PaymentService wires the orchestrator to the app's stores and gateway.
// Reconciliation runs take a Redis lock per attempt.
func (a *App) PaymentService() *service.PaymentService {
	return service.NewPaymentService(
		a.Payments, a.Orders, a.Outbox, a.TxManager, a.Gateway,
		service.Config{
			AppBaseURL:       a.Config.App.BaseURL,
			GuestEmailDomain: a.Config.App.GuestEmailDomain,
		},
		service.WithLogger(a.Logger),
		service.WithMetrics(a.Metrics),
		service.WithLocker(infraRedis.NewLocker(a.Redis, a.Config.Payment.LockTTL)),
	)
}

func (a *App) Close() {
	a.Redis.Close()
	a.Pool.Close()
}
