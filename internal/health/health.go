// Package health provides liveness and readiness handlers.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/frozlabs/todovault/internal/store"
)

// HealthCheck reports process liveness and registry readiness.
type HealthCheck struct {
	registry store.AccountRegistry
	logger   *zap.Logger
}

// NewHealthCheck creates a new health checker.
func NewHealthCheck(registry store.AccountRegistry, logger *zap.Logger) *HealthCheck {
	return &HealthCheck{registry: registry, logger: logger}
}

// LivenessHandler always reports healthy while the process is running.
func (h *HealthCheck) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	h.writeStatus(w, http.StatusOK, "alive")
}

// ReadinessHandler reports ready only when the registry database answers.
// The registry is the one dependency every request path needs.
func (h *HealthCheck) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.registry.Ping(ctx); err != nil {
		h.logger.Warn("readiness check failed", zap.Error(err))
		h.writeStatus(w, http.StatusServiceUnavailable, "registry unreachable")
		return
	}

	h.writeStatus(w, http.StatusOK, "ready")
}

func (h *HealthCheck) writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}
