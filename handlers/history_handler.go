package handlers

import (
	"net/http"
	"strconv"

	"github.com/upb/llm-governance/middleware"
	"github.com/upb/llm-governance/models"
	"github.com/upb/llm-governance/services/memory"
	"github.com/upb/llm-governance/utils"
	"go.uber.org/zap"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = memory.DefaultHistory
)

// HistoryStore exposes a caller's session history
type HistoryStore interface {
	History(userID string, limit int) []*models.Interaction
	Summary(userID string) memory.SessionSummary
	Clear(userID string)
}

// HistoryResponse is the body of GET /api/v1/history
type HistoryResponse struct {
	memory.SessionSummary
	Interactions []*models.Interaction `json:"interactions"`
}

// HistoryHandler serves the caller's own interaction history
type HistoryHandler struct {
	store  HistoryStore
	logger *zap.Logger
}

// NewHistoryHandler creates a new HistoryHandler
func NewHistoryHandler(store HistoryStore, logger *zap.Logger) *HistoryHandler {
	return &HistoryHandler{store: store, logger: logger}
}

// HandleHistory handles GET /api/v1/history?limit=N, oldest first
func (h *HistoryHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipalFromContext(r.Context())
	if principal == nil {
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxHistoryLimit {
			_ = utils.WriteBadRequest(w, "Invalid limit", map[string]interface{}{
				"limit": raw,
				"max":   maxHistoryLimit,
			})
			return
		}
		limit = n
	}

	resp := HistoryResponse{
		SessionSummary: h.store.Summary(principal.Subject),
		Interactions:   h.store.History(principal.Subject, limit),
	}
	if err := utils.WriteOK(w, resp); err != nil {
		h.logger.Error("failed to write history response", zap.Error(err))
	}
}

// HandleClearHistory handles DELETE /api/v1/history
func (h *HistoryHandler) HandleClearHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal := middleware.GetPrincipalFromContext(ctx)
	if principal == nil {
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}

	h.store.Clear(principal.Subject)
	h.logger.Info("session history cleared",
		zap.String("request_id", middleware.GetRequestIDFromContext(ctx)),
		zap.String("user_id", principal.Subject))

	utils.WriteNoContent(w)
}
