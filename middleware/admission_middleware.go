package middleware

import (
	"context"
	"net/http"

	"github.com/upb/llm-governance/services"
	"github.com/upb/llm-governance/utils"
	"go.uber.org/zap"
)

// AdmissionController decides whether one more request fits a key's window
type AdmissionController interface {
	AllowRequest(ctx context.Context, key string) bool
}

// AdmissionMiddleware applies per-caller request admission
type AdmissionMiddleware struct {
	admission AdmissionController
	logger    *zap.Logger
}

// NewAdmissionMiddleware creates a new AdmissionMiddleware
func NewAdmissionMiddleware(admission AdmissionController, logger *zap.Logger) *AdmissionMiddleware {
	return &AdmissionMiddleware{admission: admission, logger: logger}
}

// AdmissionKey is the counter key of subject under scope
func AdmissionKey(scope, subject string) string {
	return scope + ":" + subject
}

// Limit admits at most the configured number of requests per window for
// "<scope>:<subject>". It must run after RequireAuth.
func (m *AdmissionMiddleware) Limit(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := GetRequestIDFromContext(ctx)

			principal := GetPrincipalFromContext(ctx)
			if principal == nil {
				_ = utils.WriteUnauthorized(w, "Authentication required")
				return
			}

			key := AdmissionKey(scope, principal.Subject)
			if !m.admission.AllowRequest(ctx, key) {
				m.logger.Warn("request rejected by admission control",
					zap.String("request_id", requestID),
					zap.String("key", key))
				_ = utils.WriteTooManyRequests(w, "Rate limit exceeded. Please retry later.", map[string]interface{}{
					"code": services.CodeRateLimitExceeded,
					"key":  key,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
