package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/upb/llm-governance/utils"
	"go.uber.org/zap"
)

// Pinger is a dependency that can report liveness
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger
type PingFunc func(ctx context.Context) error

// Ping calls f
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	checks map[string]Pinger
	logger *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. A nil Pinger marks a
// dependency that is not configured; it is reported but never fails readiness.
func NewHealthHandler(checks map[string]Pinger, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{checks: checks, logger: logger}
}

// HandleHealth handles GET /healthz
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleReadiness handles GET /readyz
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string, len(h.checks))
	ready := true
	for name, pinger := range h.checks {
		if pinger == nil {
			checks[name] = "not_configured"
			continue
		}
		if err := pinger.Ping(ctx); err != nil {
			h.logger.Warn("readiness check failed", zap.String("check", name), zap.Error(err))
			checks[name] = "unhealthy"
			ready = false
			continue
		}
		checks[name] = "healthy"
	}

	status, code := "ready", http.StatusOK
	if !ready {
		status, code = "not_ready", http.StatusServiceUnavailable
	}

	if err := utils.WriteJSON(w, code, HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}
