package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/upb/llm-governance/internal/auth"
	"go.uber.org/zap"
)

// MockTokenValidator is a mock implementation of TokenValidator
type MockTokenValidator struct {
	mock.Mock
}

func (m *MockTokenValidator) Validate(token string) (*auth.Principal, error) {
	args := m.Called(token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.Principal), args.Error(1)
}

func TestRequireAuth(t *testing.T) {
	logger := zap.NewNop()

	t.Run("valid JWT in Authorization header allows request", func(t *testing.T) {
		mockValidator := new(MockTokenValidator)
		middleware := NewAuthMiddleware(mockValidator, logger)

		principal := &auth.Principal{Subject: "user-123", Tenant: "acme", Role: "analyst"}
		mockValidator.On("Validate", "valid-token").Return(principal, nil)

		handler := middleware.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := GetPrincipalFromContext(r.Context())
			assert.Equal(t, principal, got)
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Authorization", "Bearer valid-token")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		mockValidator.AssertExpectations(t)
	})

	t.Run("valid JWT in cookie allows request", func(t *testing.T) {
		mockValidator := new(MockTokenValidator)
		middleware := NewAuthMiddleware(mockValidator, logger)

		mockValidator.On("Validate", "cookie-token-value").
			Return(&auth.Principal{Subject: "user-456", Role: "viewer"}, nil)

		handler := middleware.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.AddCookie(&http.Cookie{Name: "auth_token", Value: "cookie-token-value"})
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		mockValidator.AssertExpectations(t)
	})

	t.Run("missing token returns 401", func(t *testing.T) {
		mockValidator := new(MockTokenValidator)
		middleware := NewAuthMiddleware(mockValidator, logger)

		handler := middleware.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not be called")
		}))

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		mockValidator.AssertNotCalled(t, "Validate", mock.Anything)
	})

	t.Run("invalid authorization header format returns 401", func(t *testing.T) {
		mockValidator := new(MockTokenValidator)
		middleware := NewAuthMiddleware(mockValidator, logger)

		handler := middleware.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not be called")
		}))

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Authorization", "InvalidFormat")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		mockValidator.AssertNotCalled(t, "Validate", mock.Anything)
	})

	t.Run("expired token returns 401", func(t *testing.T) {
		mockValidator := new(MockTokenValidator)
		middleware := NewAuthMiddleware(mockValidator, logger)

		mockValidator.On("Validate", "expired-token").Return(nil, auth.ErrTokenExpired)

		handler := middleware.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not be called")
		}))

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Authorization", "Bearer expired-token")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		mockValidator.AssertExpectations(t)
	})
}

func TestRequireAction(t *testing.T) {
	logger := zap.NewNop()
	middleware := NewAuthMiddleware(new(MockTokenValidator), logger)

	tests := []struct {
		name           string
		principal      *auth.Principal
		action         string
		expectedStatus int
	}{
		{"admin may delete", &auth.Principal{Subject: "a", Role: "admin"}, auth.ActionDelete, http.StatusOK},
		{"analyst may view", &auth.Principal{Subject: "b", Role: "analyst"}, auth.ActionView, http.StatusOK},
		{"viewer may not edit", &auth.Principal{Subject: "c", Role: "viewer"}, auth.ActionEdit, http.StatusForbidden},
		{"unknown role denied", &auth.Principal{Subject: "d", Role: "guest"}, auth.ActionView, http.StatusForbidden},
		{"no principal", nil, auth.ActionView, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := middleware.RequireAction(tt.action)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.principal != nil {
				req = req.WithContext(WithPrincipal(req.Context(), tt.principal))
			}
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestGetPrincipalFromContext(t *testing.T) {
	t.Run("principal exists in context", func(t *testing.T) {
		p := &auth.Principal{Subject: "x", Role: "viewer"}
		assert.Equal(t, p, GetPrincipalFromContext(WithPrincipal(context.Background(), p)))
	})

	t.Run("principal does not exist in context", func(t *testing.T) {
		assert.Nil(t, GetPrincipalFromContext(context.Background()))
	})

	t.Run("wrong type in context", func(t *testing.T) {
		ctx := context.WithValue(context.Background(), PrincipalKey, errors.New("not a principal"))
		assert.Nil(t, GetPrincipalFromContext(ctx))
	})
}
