package handler

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Pinger is anything that can report whether its backend is reachable.
// *mongodb.DB satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler answers load balancer and orchestrator probes.
type HealthHandler struct {
	store   Pinger // nil when the store is in-process
	backend string
	logger  *zap.Logger
}

// NewHealthHandler creates a HealthHandler. store may be nil.
func NewHealthHandler(store Pinger, backend string, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{store: store, backend: backend, logger: logger}
}

type healthStatus struct {
	Status string `json:"status"`
	Store  string `json:"store"`
}

// HandleHealth reports 200 while the store answers a ping, 503 otherwise.
//
// HTTP: GET /healthz
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if h.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := h.store.Ping(ctx); err != nil {
			h.logger.Warn("health check failed", zap.String("store", h.backend), zap.Error(err))
			writeJSON(w, h.logger, http.StatusServiceUnavailable, Envelope{
				Message: "Store unavailable",
				Error:   KindInternal,
				Data:    healthStatus{Status: "unavailable", Store: h.backend},
			})
			return
		}
	}
	writeData(w, h.logger, http.StatusOK, "", healthStatus{Status: "ok", Store: h.backend})
}
