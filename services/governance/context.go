// Package governance holds the shared enforcement state for one process:
// the cost ledger, the token window limiter and the request admission
// controller. A Context is built once at startup and handed to everything
// that enforces limits.
package governance

import (
	"context"
	"time"

	"github.com/upb/llm-governance/config"
	"github.com/upb/llm-governance/services/budget"
	"github.com/upb/llm-governance/services/ratelimit"
	"github.com/upb/llm-governance/services/tokenwindow"
	"go.uber.org/zap"
)

// Limits are the per-tenant ceilings applied through the Context
type Limits struct {
	TokensPerMinute   int
	RequestsPerMinute int
	RequestWindow     time.Duration
}

// LimitsFrom extracts the ceilings from the governance settings
func LimitsFrom(g config.GovernanceConfig) Limits {
	return Limits{
		TokensPerMinute:   g.TokensPerMinute,
		RequestsPerMinute: g.RequestsPerMinute,
		RequestWindow:     g.RequestWindow,
	}
}

// Context owns the enforcement state shared by all executions
type Context struct {
	Ledger    *budget.Ledger
	Tokens    *tokenwindow.Limiter
	Admission *ratelimit.Service
	limits    Limits
	logger    *zap.Logger
}

// New assembles a Context from already constructed parts
func New(ledger *budget.Ledger, tokens *tokenwindow.Limiter, admission *ratelimit.Service, limits Limits, logger *zap.Logger) *Context {
	return &Context{
		Ledger:    ledger,
		Tokens:    tokens,
		Admission: admission,
		limits:    limits,
		logger:    logger,
	}
}

// AllowTokens charges tokens to the tenant's current window if they fit
func (c *Context) AllowTokens(tenantID string, tokens int) bool {
	allowed := c.Tokens.Allow(tenantID, tokens, c.limits.TokensPerMinute)
	if !allowed {
		c.logger.Info("token budget exceeded",
			zap.String("tenant_id", tenantID),
			zap.Int("requested", tokens),
			zap.Int("limit", c.limits.TokensPerMinute))
	}
	return allowed
}

// AllowRequest counts one request under key against the request ceiling
func (c *Context) AllowRequest(ctx context.Context, key string) bool {
	return c.Admission.AllowRequest(ctx, key, c.limits.RequestsPerMinute, c.limits.RequestWindow)
}

// RequestsRemaining reports how many requests key may still make in its window without counting one
func (c *Context) RequestsRemaining(ctx context.Context, key string) int {
	return c.Admission.GetRemaining(ctx, key, c.limits.RequestsPerMinute)
}

// Limits returns the configured ceilings
func (c *Context) Limits() Limits {
	return c.limits
}

// TenantUsage is a read-only view of a tenant's standing
type TenantUsage struct {
	Budget          budget.UsageSummary `json:"budget"`
	TokensPerMinute int                 `json:"tokens_per_minute"`
	TokensRemaining int                 `json:"tokens_remaining"`
	TokenWindow     string              `json:"token_window"`
}

// Usage summarizes the tenant's budget and token window without mutating either
func (c *Context) Usage(tenantID string) TenantUsage {
	return TenantUsage{
		Budget:          c.Ledger.UsageSummary(tenantID),
		TokensPerMinute: c.limits.TokensPerMinute,
		TokensRemaining: c.Tokens.Remaining(tenantID, c.limits.TokensPerMinute),
		TokenWindow:     c.Tokens.Window().String(),
	}
}

// Close releases the admission controller's connections
func (c *Context) Close() error {
	if c.Admission == nil {
		return nil
	}
	return c.Admission.Close()
}
