package controller

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/ikazeshop/payments/internal/infrastructure/config"
	"github.com/ikazeshop/payments/internal/infrastructure/observability"
	customMW "github.com/ikazeshop/payments/internal/middleware"
	"github.com/ikazeshop/payments/internal/providers"
	"github.com/ikazeshop/payments/internal/service"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

type RouterDeps struct {
	DB               Pinger
	Redis            redis.UniversalClient
	Gateway          providers.Gateway
	PaymentService   *service.PaymentService
	IdempotencyStore customMW.IdempotencyStore
	IdempotencyTTL   time.Duration
	Metrics          *observability.Metrics
	// MetricsHandler defaults to promhttp.Handler().
	MetricsHandler    http.Handler
	CORSConfig        config.CORSConfig
	JWTSecret         string
	WebhookSecret     string
	InitiateRateLimit int
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(customMW.Tracing())
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORSConfig.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		AllowCredentials: deps.CORSConfig.AllowCredentials,
		MaxAge:           300,
	}))
	r.Use(customMW.SecurityHeaders())
	r.Use(customMW.Metrics(deps.Metrics))

	healthH := NewHealthController(deps.DB, deps.Redis, deps.Gateway)
	paymentH := NewPaymentController(deps.PaymentService)

	r.Get("/health", healthH.Health)
	r.Get("/health/live", healthH.Liveness)
	r.Get("/health/ready", healthH.Readiness)

	metricsHandler := deps.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Handle("/metrics", metricsHandler)

	r.Route("/api/payments/kpay", func(r chi.Router) {
		initiate := r.With()
		if deps.InitiateRateLimit > 0 {
			initiate = initiate.With(customMW.RateLimit(deps.InitiateRateLimit))
		}
		if deps.IdempotencyStore != nil {
			initiate = initiate.With(customMW.Idempotency(deps.IdempotencyStore, deps.IdempotencyTTL))
		}
		initiate.Post("/initiate", paymentH.Initiate)

		r.Post("/status", paymentH.Status)
		r.Get("/status", paymentH.StatusQuery)
		r.Post("/abandon", paymentH.Abandon)
		r.With(customMW.WebhookToken(deps.WebhookSecret)).Post("/webhook", paymentH.Webhook)
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(customMW.RequireAuth(deps.JWTSecret, customMW.RoleAdmin))
		r.Get("/payments", paymentH.ListPayments)
		r.Get("/payments/{id}", paymentH.GetPayment)
	})

	return r
}
