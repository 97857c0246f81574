package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/upb/llm-governance/config"
	"github.com/upb/llm-governance/services/providers"
	"go.uber.org/zap"
)

const (
	// ProviderName is the adapter name and the credential lookup key
	ProviderName = "openai"

	defaultBaseURL   = "https://api.openai.com/v1"
	defaultModel     = "gpt-3.5-turbo"
	defaultMaxTokens = 2000
	systemPrompt     = "You are a helpful analytics assistant."

	mockAnswer     = "Mock OpenAI response - API key not configured"
	mockModel      = "mock-gpt-4"
	mockTokens     = 100
	mockConfidence = 0.5
	liveConfidence = 0.9
)

// Adapter calls the OpenAI chat completions endpoint
type Adapter struct {
	cfg        config.OpenAIConfig
	creds      providers.CredentialSource
	httpClient *http.Client
	logger     *zap.Logger
}

// NewAdapter creates a new OpenAI adapter. A nil creds uses cfg.APIKey.
func NewAdapter(cfg config.OpenAIConfig, creds providers.CredentialSource, logger *zap.Logger) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if creds == nil {
		creds = providers.StaticCredentials{ProviderName: cfg.APIKey}
	}

	return &Adapter{
		cfg:        cfg,
		creds:      creds,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// Name returns the provider name
func (a *Adapter) Name() string {
	return ProviderName
}

// Run performs one chat completion call, or returns the mock response when
// no API key is configured.
func (a *Adapter) Run(ctx context.Context, req providers.Request) (*providers.Response, error) {
	apiKey := a.creds.APIKey(ProviderName)
	if apiKey == "" {
		a.logger.Warn("OpenAI API key not set, using mock response")
		return mockResponse(), nil
	}

	model := a.modelFor(req.ModelHint)
	body, err := json.Marshal(a.buildRequest(model, req))
	if err != nil {
		return nil, providers.NewClassifiedError(ProviderName, providers.KindUnknown, 0, "failed to marshal request", false, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, providers.NewClassifiedError(ProviderName, providers.KindUnknown, 0, "failed to create request", false, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	respBody, err := providers.Send(a.httpClient, httpReq, ProviderName, errorMessage)
	if err != nil {
		return nil, err
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, providers.NewClassifiedError(ProviderName, providers.KindInvalidResponse, http.StatusOK, "failed to unmarshal response", false, err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, providers.NewClassifiedError(ProviderName, providers.KindInvalidResponse, http.StatusOK, "no choices returned", false, nil)
	}

	return &providers.Response{
		Answer:     chatResp.Choices[0].Message.Content,
		Model:      model,
		TokensUsed: chatResp.Usage.TotalTokens,
		Confidence: liveConfidence,
		Provider:   ProviderName,
	}, nil
}

// modelFor honours a hint only when it names a GPT model
func (a *Adapter) modelFor(hint string) string {
	if strings.HasPrefix(strings.ToLower(hint), "gpt-") {
		return hint
	}
	return a.cfg.Model
}

func (a *Adapter) buildRequest(model string, req providers.Request) *chatRequest {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = a.cfg.MaxTokens
	}
	temperature := req.Temperature

	return &chatRequest{
		Model: model,
		Messages: []message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: req.Prompt},
		},
		MaxTokens:   maxTokens,
		Temperature: &temperature,
	}
}

func mockResponse() *providers.Response {
	return &providers.Response{
		Answer:     mockAnswer,
		Model:      mockModel,
		TokensUsed: mockTokens,
		Confidence: mockConfidence,
		Provider:   ProviderName + "-mock",
		Mock:       true,
	}
}

func errorMessage(body []byte) string {
	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err != nil {
		return ""
	}
	return errResp.Error.Message
}

// OpenAI wire types

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []choice `json:"choices"`
	Usage   usage    `json:"usage"`
}

type choice struct {
	Index        int     `json:"index"`
	Message      message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}
