package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/upb/llm-governance/middleware"
	"github.com/upb/llm-governance/services/orchestrator"
	"github.com/upb/llm-governance/utils"
	"go.uber.org/zap"
)

// CredentialHeader carries a caller-supplied Gemini key for a single request
const CredentialHeader = "X-GEMINI-API-KEY"

// QueryRequest is the body of POST /api/v1/query
type QueryRequest struct {
	Query string `json:"query" validate:"required,max=8000"`
}

// QueryExecutor runs one governed query
type QueryExecutor interface {
	ExecuteQuery(ctx context.Context, query string, qc orchestrator.QueryContext) *orchestrator.AnswerEnvelope
}

// QueryHandler serves governed queries
type QueryHandler struct {
	executor QueryExecutor
	logger   *zap.Logger
}

// NewQueryHandler creates a new QueryHandler
func NewQueryHandler(executor QueryExecutor, logger *zap.Logger) *QueryHandler {
	return &QueryHandler{executor: executor, logger: logger}
}

// HandleQuery handles POST /api/v1/query. Admission and role checks run in
// middleware; every governance outcome, including denials, is a 200 with
// the answer envelope.
func (h *QueryHandler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	principal := middleware.GetPrincipalFromContext(ctx)
	if principal == nil {
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to parse request body",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	if err := utils.ValidateStruct(&req); err != nil {
		h.logger.Warn("request validation failed",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleValidationError(w, err, h.logger)
		return
	}

	env := h.executor.ExecuteQuery(ctx, req.Query, orchestrator.QueryContext{
		UserID:             principal.Subject,
		TenantID:           principal.Tenant,
		Role:               principal.Role,
		CredentialOverride: r.Header.Get(CredentialHeader),
	})

	if env.Failed() {
		h.logger.Info("query completed with error",
			zap.String("request_id", requestID),
			zap.String("code", env.Error))
	}

	if err := utils.WriteJSON(w, http.StatusOK, env); err != nil {
		h.logger.Error("failed to write query response", zap.Error(err))
	}
}
