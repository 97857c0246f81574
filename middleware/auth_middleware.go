package middleware

import (
	"net/http"
	"strings"

	"github.com/upb/llm-governance/internal/auth"
	"github.com/upb/llm-governance/utils"
	"go.uber.org/zap"
)

// TokenValidator verifies a bearer token
type TokenValidator interface {
	Validate(token string) (*auth.Principal, error)
}

// AuthMiddleware authenticates callers and enforces the role matrix
type AuthMiddleware struct {
	validator TokenValidator
	logger    *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(validator TokenValidator, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		validator: validator,
		logger:    logger,
	}
}

// authTokenCookieName is read when no Authorization header is sent
const authTokenCookieName = "auth_token"

// RequireAuth rejects requests without a valid bearer token
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := GetRequestIDFromContext(ctx)

		token := extractToken(r)
		if token == "" {
			m.logger.Warn("request without bearer token",
				zap.String("request_id", requestID),
				zap.String("path", r.URL.Path))
			_ = utils.WriteUnauthorized(w, "Bearer token required")
			return
		}

		principal, err := m.validator.Validate(token)
		if err != nil {
			m.logger.Warn("token validation failed",
				zap.String("request_id", requestID),
				zap.Error(err))
			_ = utils.WriteUnauthorized(w, "Invalid or expired token")
			return
		}

		m.logger.Debug("caller authenticated",
			zap.String("request_id", requestID),
			zap.String("user_id", principal.Subject),
			zap.String("tenant_id", principal.Tenant),
			zap.String("role", principal.Role))

		next.ServeHTTP(w, r.WithContext(WithPrincipal(ctx, principal)))
	})
}

// RequireAction rejects callers whose role may not perform action.
// It must run after RequireAuth.
func (m *AuthMiddleware) RequireAction(action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := GetRequestIDFromContext(ctx)

			principal := GetPrincipalFromContext(ctx)
			if principal == nil {
				m.logger.Error("principal not found in context",
					zap.String("request_id", requestID))
				_ = utils.WriteUnauthorized(w, "Authentication required")
				return
			}

			if !auth.Authorize(principal.Role, action) {
				m.logger.Warn("role not permitted",
					zap.String("request_id", requestID),
					zap.String("action", action),
					zap.String("role", principal.Role))
				_ = utils.WriteForbidden(w, "Role "+principal.Role+" may not "+action)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// extractToken reads the bearer token, falling back to the auth_token cookie
func extractToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if ok && strings.EqualFold(scheme, "bearer") {
		if token = strings.TrimSpace(token); token != "" {
			return token
		}
	}
	if cookie, err := r.Cookie(authTokenCookieName); err == nil {
		return cookie.Value
	}
	return ""
}
