package middleware

import (
	"context"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/upb/llm-governance/internal/auth"
)

// Context key type to avoid collisions
type contextKey string

const (
	// PrincipalKey is the context key for the authenticated caller
	PrincipalKey contextKey = "principal"
)

// GetRequestIDFromContext returns the id assigned by chi's RequestID middleware
func GetRequestIDFromContext(ctx context.Context) string {
	return chimw.GetReqID(ctx)
}

// WithPrincipal adds the authenticated caller to the context
func WithPrincipal(ctx context.Context, p *auth.Principal) context.Context {
	return context.WithValue(ctx, PrincipalKey, p)
}

// GetPrincipalFromContext retrieves the authenticated caller, or nil
func GetPrincipalFromContext(ctx context.Context) *auth.Principal {
	if val := ctx.Value(PrincipalKey); val != nil {
		if p, ok := val.(*auth.Principal); ok {
			return p
		}
	}
	return nil
}
