package handler

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/KlinikCare/attendance-service/internal/client"
	"github.com/KlinikCare/attendance-service/internal/telemetry"
)

// HealthHandler reports the state of the service's dependencies. Degraded
// dependencies do not fail the endpoint; only a dead database does, since
// every decision path needs it.
type HealthHandler struct {
	db      *sql.DB
	redis   *client.RedisClient
	shipper *telemetry.KafkaAuditShipper
}

func NewHealthHandler(db *sql.DB, redis *client.RedisClient, shipper *telemetry.KafkaAuditShipper) *HealthHandler {
	return &HealthHandler{db: db, redis: redis, shipper: shipper}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := map[string]interface{}{}

	if err := h.db.PingContext(ctx); err != nil {
		checks["postgres"] = "down: " + err.Error()
		status = http.StatusServiceUnavailable
	} else {
		checks["postgres"] = "ok"
	}

	if h.redis != nil {
		if err := h.redis.HealthCheck(ctx); err != nil {
			checks["redis"] = "degraded: " + err.Error()
		} else {
			checks["redis"] = "ok"
		}
		checks["redis_circuit"] = h.redis.CircuitBreakerState()
	} else {
		checks["redis"] = "disabled"
	}

	if h.shipper != nil && h.shipper.Enabled() {
		checks["kafka"] = map[string]interface{}{
			"status":      "ok",
			"queue_depth": h.shipper.QueueDepth(),
		}
	} else {
		checks["kafka"] = "disabled"
	}

	writeJSON(w, status, map[string]interface{}{
		"status": http.StatusText(status),
		"checks": checks,
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
