package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hts/authsvc"
)

// HealthChecker reports backend reachability. *authsvc.Engine implements it.
type HealthChecker interface {
	Health(ctx context.Context) authsvc.HealthStatus
}

// Handler serves the operational endpoints next to the gRPC listener.
type Handler struct {
	health  HealthChecker
	metrics http.Handler
	logger  *slog.Logger
}

// NewHandler builds the ops handler. A nil metrics handler makes /metrics
// answer 404.
func NewHandler(health HealthChecker, metrics http.Handler, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		health:  health,
		metrics: metrics,
		logger:  logger.With("module", "http", "layer", "adapter"),
	}
}

func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(handler.recoverMiddleware)
	r.Use(handler.loggingMiddleware)

	r.Get("/healthz", handler.healthz)
	r.Get("/readyz", handler.readyz)
	if handler.metrics != nil {
		r.Method(http.MethodGet, "/metrics", handler.metrics)
	}
	return r
}
