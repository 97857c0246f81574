package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/llm-governance/config"
	"github.com/upb/llm-governance/services/providers"
	"go.uber.org/zap"
)

func TestAdapter_MockWithoutKey(t *testing.T) {
	adapter := NewAdapter(config.GeminiConfig{BaseURL: "http://127.0.0.1:1"}, nil, zap.NewNop())

	resp, err := adapter.Run(context.Background(), providers.Request{Prompt: "hello"})
	require.NoError(t, err)

	assert.Equal(t, "Mock Gemini response - API key not configured", resp.Answer)
	assert.Equal(t, "mock-gemma", resp.Model)
	assert.Equal(t, 80, resp.TokensUsed)
	assert.Equal(t, 0.5, resp.Confidence)
	assert.Equal(t, "gemini-mock", resp.Provider)
	assert.True(t, resp.Mock)
}

func TestAdapter_Run(t *testing.T) {
	var gotPath, gotKey string
	var got generateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{
			"candidates": [{"content": {"role": "model", "parts": [{"text": "Revenue "}, {"text": "grew."}]}, "finishReason": "STOP"}],
			"usageMetadata": {"promptTokenCount": 7, "candidatesTokenCount": 3, "totalTokenCount": 10}
		}`))
	}))
	defer server.Close()

	creds := providers.StaticCredentials{"gemini": "configured-key"}
	adapter := NewAdapter(config.GeminiConfig{BaseURL: server.URL, Timeout: time.Second}, creds, zap.NewNop())

	t.Run("configured key and default model", func(t *testing.T) {
		resp, err := adapter.Run(context.Background(), providers.Request{Prompt: "summarize", Temperature: 0.5, MaxTokens: 1000})
		require.NoError(t, err)

		assert.Equal(t, "/models/gemma-2-9b-it:generateContent", gotPath)
		assert.Equal(t, "configured-key", gotKey)
		require.Len(t, got.Contents, 1)
		assert.Equal(t, "summarize", got.Contents[0].Parts[0].Text)
		assert.Equal(t, 1000, got.GenerationConfig.MaxOutputTokens)
		assert.Equal(t, 0.5, *got.GenerationConfig.Temperature)

		assert.Equal(t, "Revenue grew.", resp.Answer)
		assert.Equal(t, "gemma-2-9b-it", resp.Model)
		assert.Equal(t, 10, resp.TokensUsed)
		assert.Equal(t, 0.85, resp.Confidence)
		assert.Equal(t, "gemini", resp.Provider)
		assert.False(t, resp.Mock)
	})

	t.Run("override key and family hint", func(t *testing.T) {
		_, err := adapter.Run(context.Background(), providers.Request{
			Prompt:             "summarize",
			ModelHint:          "gemini-pro",
			CredentialOverride: "caller-key",
		})
		require.NoError(t, err)

		assert.Equal(t, "/models/gemini-pro:generateContent", gotPath)
		assert.Equal(t, "caller-key", gotKey)
	})

	t.Run("foreign hint ignored", func(t *testing.T) {
		_, err := adapter.Run(context.Background(), providers.Request{Prompt: "x", ModelHint: "gpt-4"})
		require.NoError(t, err)
		assert.Equal(t, "/models/gemma-2-9b-it:generateContent", gotPath)
	})
}

func TestAdapter_Errors(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantKind      providers.ErrorKind
		wantRetryable bool
	}{
		{"invalid key", http.StatusForbidden, `{"error":{"code":403,"message":"API key not valid","status":"PERMISSION_DENIED"}}`, providers.KindInvalidCredentials, false},
		{"quota", http.StatusTooManyRequests, `{"error":{"code":429,"message":"quota","status":"RESOURCE_EXHAUSTED"}}`, providers.KindRateLimited, true},
		{"unavailable", http.StatusServiceUnavailable, `{}`, providers.KindUnknown, true},
		{"gateway timeout", http.StatusGatewayTimeout, ``, providers.KindTimeout, true},
		{"blocked prompt", http.StatusOK, `{"candidates": [], "promptFeedback": {"blockReason": "SAFETY"}}`, providers.KindInvalidResponse, false},
		{"malformed body", http.StatusOK, `{not json`, providers.KindInvalidResponse, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			adapter := NewAdapter(config.GeminiConfig{APIKey: "k", BaseURL: server.URL}, nil, zap.NewNop())
			_, err := adapter.Run(context.Background(), providers.Request{Prompt: "x"})

			require.Error(t, err)
			assert.Equal(t, tt.wantKind, providers.KindOf(err))
			assert.Equal(t, tt.wantRetryable, providers.IsRetryable(err))
		})
	}
}
