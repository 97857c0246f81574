package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/upb/llm-governance/middleware"
	"github.com/upb/llm-governance/services"
	"github.com/upb/llm-governance/utils"
	"go.uber.org/zap"
)

// RateLimitResetter clears admission counters
type RateLimitResetter interface {
	Reset(ctx context.Context, key string) error
}

// AdminHandler serves operator endpoints
type AdminHandler struct {
	limiter RateLimitResetter
	logger  *zap.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(limiter RateLimitResetter, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{limiter: limiter, logger: logger}
}

// HandleResetRateLimit handles DELETE /api/v1/admin/ratelimit/{key}
func (h *AdminHandler) HandleResetRateLimit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := chi.URLParam(r, "key")
	if key == "" {
		_ = utils.WriteBadRequest(w, "key is required", nil)
		return
	}

	if err := h.limiter.Reset(ctx, key); err != nil {
		HandleServiceError(w, services.WrapCollaborator("rate limit reset failed", err), h.logger)
		return
	}

	actor := ""
	if p := middleware.GetPrincipalFromContext(ctx); p != nil {
		actor = p.Subject
	}
	h.logger.Info("rate limit reset",
		zap.String("request_id", middleware.GetRequestIDFromContext(ctx)),
		zap.String("key", key),
		zap.String("actor", actor))

	utils.WriteNoContent(w)
}
