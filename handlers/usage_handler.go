package handlers

import (
	"context"
	"net/http"

	"github.com/upb/llm-governance/internal/auth"
	"github.com/upb/llm-governance/middleware"
	"github.com/upb/llm-governance/models"
	"github.com/upb/llm-governance/services/governance"
	"github.com/upb/llm-governance/services/orchestrator"
	"github.com/upb/llm-governance/utils"
	"go.uber.org/zap"
)

// UsageReader reports the in-process governance state of a tenant and caller
type UsageReader interface {
	Usage(tenantID string) governance.TenantUsage
	Limits() governance.Limits
	RequestsRemaining(ctx context.Context, key string) int
}

// SpendReader reports journaled spend; optional
type SpendReader interface {
	SpendSummary(ctx context.Context, tenantID string) (*models.SpendSummary, error)
}

// UsageResponse is the body of GET /api/v1/usage
type UsageResponse struct {
	governance.TenantUsage
	RequestsPerMinute int                  `json:"requests_per_minute"`
	RequestsRemaining int                  `json:"requests_remaining"`
	Actions           []string             `json:"actions"`
	Journal           *models.SpendSummary `json:"journal,omitempty"`
}

// UsageHandler serves per-tenant usage
type UsageHandler struct {
	usage  UsageReader
	spend  SpendReader
	scope  string
	logger *zap.Logger
}

// NewUsageHandler creates a new UsageHandler. spend may be nil. scope is the
// admission scope whose remaining requests are reported for the caller.
func NewUsageHandler(usage UsageReader, spend SpendReader, scope string, logger *zap.Logger) *UsageHandler {
	return &UsageHandler{usage: usage, spend: spend, scope: scope, logger: logger}
}

// HandleUsage handles GET /api/v1/usage for the caller's tenant
func (h *UsageHandler) HandleUsage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	principal := middleware.GetPrincipalFromContext(ctx)
	if principal == nil {
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}
	tenant := principal.Tenant
	if tenant == "" {
		tenant = orchestrator.DefaultTenant
	}

	resp := UsageResponse{
		TenantUsage:       h.usage.Usage(tenant),
		RequestsPerMinute: h.usage.Limits().RequestsPerMinute,
		RequestsRemaining: h.usage.RequestsRemaining(ctx, middleware.AdmissionKey(h.scope, principal.Subject)),
		Actions:           auth.Actions(principal.Role),
	}
	if h.spend != nil {
		summary, err := h.spend.SpendSummary(ctx, tenant)
		if err != nil {
			h.logger.Warn("usage journal unavailable",
				zap.String("request_id", middleware.GetRequestIDFromContext(ctx)),
				zap.String("tenant_id", tenant),
				zap.Error(err))
		} else {
			resp.Journal = summary
		}
	}

	if err := utils.WriteOK(w, resp); err != nil {
		h.logger.Error("failed to write usage response", zap.Error(err))
	}
}
