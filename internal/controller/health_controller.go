package controller

import (
	"context"
	"net/http"
	"time"

	"github.com/ikazeshop/payments/internal/providers"
	"github.com/redis/go-redis/v9"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthController struct {
	db      Pinger
	redis   redis.UniversalClient
	gateway providers.Gateway
}

func NewHealthController(db Pinger, redis redis.UniversalClient, gateway providers.Gateway) *HealthController {
	return &HealthController{db: db, redis: redis, gateway: gateway}
}

func (h *HealthController) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HealthController) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// Readiness checks the stores. A misconfigured gateway is reported but does
// not fail readiness: status polling still serves stored state.
func (h *HealthController) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			writeNotReady(w, "database unavailable")
			return
		}
	}
	if h.redis != nil {
		if err := h.redis.Ping(ctx).Err(); err != nil {
			writeNotReady(w, "redis unavailable")
			return
		}
	}

	gateway := "ok"
	if err := providers.Ready(h.gateway); err != nil {
		gateway = "misconfigured"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready", "gateway": gateway})
}

func writeNotReady(w http.ResponseWriter, reason string) {
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{
		"status": "not ready",
		"reason": reason,
	})
}
