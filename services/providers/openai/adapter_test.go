package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/upb/llm-governance/config"
	"github.com/upb/llm-governance/services/providers"
	"github.com/upb/llm-governance/services/routing"
	"go.uber.org/zap"
)

func newTestAdapter(t *testing.T, baseURL, key string) *Adapter {
	t.Helper()
	return NewAdapter(config.OpenAIConfig{
		APIKey:  key,
		BaseURL: baseURL,
		Timeout: 2 * time.Second,
	}, nil, zap.NewNop())
}

func TestNewAdapter_Defaults(t *testing.T) {
	adapter := NewAdapter(config.OpenAIConfig{}, nil, zap.NewNop())

	if adapter.Name() != "openai" {
		t.Errorf("Name() = %s, want openai", adapter.Name())
	}
	if adapter.cfg.BaseURL != defaultBaseURL {
		t.Errorf("BaseURL = %s, want %s", adapter.cfg.BaseURL, defaultBaseURL)
	}
	if adapter.cfg.Model != "gpt-3.5-turbo" {
		t.Errorf("Model = %s, want gpt-3.5-turbo", adapter.cfg.Model)
	}
	if adapter.cfg.MaxTokens != 2000 {
		t.Errorf("MaxTokens = %d, want 2000", adapter.cfg.MaxTokens)
	}
}

func TestAdapter_MockWithoutKey(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	resp, err := newTestAdapter(t, server.URL, "").Run(context.Background(), providers.Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if called {
		t.Error("mock mode must not contact upstream")
	}
	if resp.Provider != "openai-mock" || !resp.Mock {
		t.Errorf("Provider = %s, Mock = %v", resp.Provider, resp.Mock)
	}
	if resp.Answer != "Mock OpenAI response - API key not configured" {
		t.Errorf("Answer = %q", resp.Answer)
	}
	if resp.Model != "mock-gpt-4" || resp.TokensUsed != 100 || resp.Confidence != 0.5 {
		t.Errorf("unexpected mock response %+v", resp)
	}
}

func TestAdapter_Run(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("Authorization = %s", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"model": "gpt-3.5-turbo-0125",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "42"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 2, "total_tokens": 12}
		}`))
	}))
	defer server.Close()

	adapter := newTestAdapter(t, server.URL, "sk-test")

	tests := []struct {
		name      string
		hint      string
		wantModel string
	}{
		{name: "no hint uses configured model", hint: "", wantModel: "gpt-3.5-turbo"},
		{name: "gpt hint honoured", hint: "gpt-4", wantModel: "gpt-4"},
		{name: "foreign hint ignored", hint: "gemini-pro", wantModel: "gpt-3.5-turbo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := adapter.Run(context.Background(), providers.Request{
				Prompt:      "what is the answer",
				ModelHint:   tt.hint,
				Temperature: 0.5,
				MaxTokens:   1000,
			})
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if got.Model != tt.wantModel {
				t.Errorf("request model = %s, want %s", got.Model, tt.wantModel)
			}
			if len(got.Messages) != 2 || got.Messages[0].Content != systemPrompt || got.Messages[1].Content != "what is the answer" {
				t.Errorf("unexpected messages %+v", got.Messages)
			}
			if got.MaxTokens != 1000 || got.Temperature == nil || *got.Temperature != 0.5 {
				t.Errorf("unexpected sampling params %+v", got)
			}
			if resp.Answer != "42" || resp.TokensUsed != 12 || resp.Confidence != 0.9 || resp.Provider != "openai" {
				t.Errorf("unexpected response %+v", resp)
			}
			if resp.Model != tt.wantModel {
				t.Errorf("response model = %s, want %s", resp.Model, tt.wantModel)
			}
		})
	}
}

func TestAdapter_ErrorClassification(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantKind      providers.ErrorKind
		wantRetryable bool
	}{
		{
			name:          "unauthorized",
			status:        http.StatusUnauthorized,
			body:          `{"error":{"message":"Incorrect API key","type":"invalid_request_error"}}`,
			wantKind:      providers.KindInvalidCredentials,
			wantRetryable: false,
		},
		{
			name:          "rate limited",
			status:        http.StatusTooManyRequests,
			body:          `{"error":{"message":"Rate limit reached","type":"requests"}}`,
			wantKind:      providers.KindRateLimited,
			wantRetryable: true,
		},
		{
			name:          "server error",
			status:        http.StatusInternalServerError,
			body:          `oops`,
			wantKind:      providers.KindUnknown,
			wantRetryable: true,
		},
		{
			name:          "bad request",
			status:        http.StatusBadRequest,
			body:          `{"error":{"message":"bad","type":"invalid_request_error"}}`,
			wantKind:      providers.KindUnknown,
			wantRetryable: false,
		},
		{
			name:          "malformed success body",
			status:        http.StatusOK,
			body:          `{not json`,
			wantKind:      providers.KindInvalidResponse,
			wantRetryable: false,
		},
		{
			name:          "no choices",
			status:        http.StatusOK,
			body:          `{"choices":[],"usage":{"total_tokens":0}}`,
			wantKind:      providers.KindInvalidResponse,
			wantRetryable: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := newTestAdapter(t, server.URL, "sk-test").Run(context.Background(), providers.Request{Prompt: "x"})

			var ce *providers.ClassifiedError
			if !errors.As(err, &ce) {
				t.Fatalf("expected *ClassifiedError, got %v", err)
			}
			if ce.Kind != tt.wantKind {
				t.Errorf("Kind = %s, want %s", ce.Kind, tt.wantKind)
			}
			if ce.Retryable != tt.wantRetryable {
				t.Errorf("Retryable = %v, want %v", ce.Retryable, tt.wantRetryable)
			}
		})
	}
}

func TestAdapter_BadBodiesFailOverWithoutBackoff(t *testing.T) {
	for name, body := range map[string]string{
		"malformed":  `{not json`,
		"no choices": `{"choices":[],"usage":{"total_tokens":0}}`,
	} {
		t.Run(name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				_, _ = w.Write([]byte(body))
			}))
			defer server.Close()

			catalog := providers.NewCatalog()
			if err := catalog.Register(providers.Descriptor{Name: "openai", PricingModel: "gpt-3.5-turbo", CostCeiling: 0.02, Rank: 1}, newTestAdapter(t, server.URL, "sk-test")); err != nil {
				t.Fatal(err)
			}

			var sleeps []time.Duration
			router := routing.NewRouter(catalog, routing.Config{MaxRetries: 3, BaseDelay: time.Second}, nil, zap.NewNop(),
				routing.WithSleeper(routing.SleeperFunc(func(ctx context.Context, d time.Duration) error {
					sleeps = append(sleeps, d)
					return nil
				})))

			out := router.Route(context.Background(), providers.Request{Prompt: "x", MaxTokens: 10})

			if out.Succeeded() {
				t.Fatalf("expected failure, got %+v", out.Response)
			}
			if got := calls.Load(); got != 1 {
				t.Errorf("upstream calls = %d, want 1", got)
			}
			if len(sleeps) != 0 {
				t.Errorf("sleeps = %v, want none", sleeps)
			}
		})
	}
}

func TestAdapter_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	adapter := NewAdapter(config.OpenAIConfig{
		APIKey:  "sk-test",
		BaseURL: server.URL,
		Timeout: 50 * time.Millisecond,
	}, nil, zap.NewNop())

	_, err := adapter.Run(context.Background(), providers.Request{Prompt: "x"})
	if providers.KindOf(err) != providers.KindTimeout {
		t.Fatalf("KindOf() = %s, want timeout (err = %v)", providers.KindOf(err), err)
	}
	if !providers.IsRetryable(err) {
		t.Error("timeouts must be retryable")
	}
}
