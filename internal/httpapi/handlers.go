package httpapi

import (
	"context"
	"net/http"
	"time"
)

const readinessTimeout = 2 * time.Second

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeMessage(w, http.StatusOK, "ok")
}

// readyz reports 503 until both Redis and the account store answer a ping.
func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	st := h.health.Health(ctx)
	payload := map[string]any{
		"redis": map[string]any{
			"available":  st.RedisAvailable,
			"latency_ms": st.RedisLatency.Milliseconds(),
		},
		"database": map[string]any{
			"available":  st.DatabaseAvailable,
			"latency_ms": st.DatabaseLatency.Milliseconds(),
		},
	}

	if !st.RedisAvailable || !st.DatabaseAvailable {
		h.logger.WarnContext(ctx, "readiness check failed",
			"operation", "readyz",
			"outcome", "failure",
			"redis_available", st.RedisAvailable,
			"database_available", st.DatabaseAvailable,
			"request_id", requestIDFromContext(ctx),
		)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "error",
			"code":   "NOT_READY",
			"data":   payload,
		})
		return
	}
	writeSuccess(w, http.StatusOK, payload)
}
