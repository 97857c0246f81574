package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/upb/llm-governance/config"
	"github.com/upb/llm-governance/services/providers"
	"go.uber.org/zap"
)

const (
	// ProviderName is the adapter name and the credential lookup key
	ProviderName = "gemini"

	defaultBaseURL   = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel     = "gemma-2-9b-it"
	defaultMaxTokens = 1000

	mockAnswer     = "Mock Gemini response - API key not configured"
	mockModel      = "mock-gemma"
	mockTokens     = 80
	mockConfidence = 0.5
	liveConfidence = 0.85
)

// Adapter calls the Generative Language generateContent endpoint.
// It serves both Gemma and Gemini models.
type Adapter struct {
	cfg        config.GeminiConfig
	creds      providers.CredentialSource
	httpClient *http.Client
	logger     *zap.Logger
}

// NewAdapter creates a new Gemini adapter. A nil creds uses cfg.APIKey.
func NewAdapter(cfg config.GeminiConfig, creds providers.CredentialSource, logger *zap.Logger) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = defaultModel
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

// Run performs one generateContent call. The request's credential override
// takes precedence over the configured key; with neither, a mock response
// is returned.
func (a *Adapter) Run(ctx context.Context, req providers.Request) (*providers.Response, error) {
	apiKey := req.CredentialOverride
	if apiKey == "" {
		apiKey = a.creds.APIKey(ProviderName)
	}
	if apiKey == "" {
		a.logger.Warn("Gemini API key not set, using mock response")
		return mockResponse(), nil
	}

	model := a.modelFor(req.ModelHint)
	body, err := json.Marshal(buildRequest(req))
	if err != nil {
		return nil, providers.NewClassifiedError(ProviderName, providers.KindUnknown, 0, "failed to marshal request", false, err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", a.cfg.BaseURL, url.PathEscape(model))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, providers.NewClassifiedError(ProviderName, providers.KindUnknown, 0, "failed to create request", false, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", apiKey)

	respBody, err := providers.Send(a.httpClient, httpReq, ProviderName, errorMessage)
	if err != nil {
		return nil, err
	}

	var genResp generateResponse
	if err := json.Unmarshal(respBody, &genResp); err != nil {
		return nil, providers.NewClassifiedError(ProviderName, providers.KindInvalidResponse, http.StatusOK, "failed to unmarshal response", false, err)
	}
	if len(genResp.Candidates) == 0 {
		reason := "no candidates returned"
		if genResp.PromptFeedback != nil && genResp.PromptFeedback.BlockReason != "" {
			reason = "prompt blocked: " + genResp.PromptFeedback.BlockReason
		}
		return nil, providers.NewClassifiedError(ProviderName, providers.KindInvalidResponse, http.StatusOK, reason, false, nil)
	}

	var text strings.Builder
	for _, part := range genResp.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}

	tokens := 0
	if genResp.UsageMetadata != nil {
		tokens = genResp.UsageMetadata.TotalTokenCount
	}

	return &providers.Response{
		Answer:     text.String(),
		Model:      model,
		TokensUsed: tokens,
		Confidence: liveConfidence,
		Provider:   ProviderName,
	}, nil
}

// modelFor honours a hint only when it names a Gemma or Gemini model
func (a *Adapter) modelFor(hint string) string {
	lower := strings.ToLower(hint)
	if strings.HasPrefix(lower, "gemma") || strings.HasPrefix(lower, "gemini") {
		return hint
	}
	return a.cfg.Model
}

func buildRequest(req providers.Request) *generateRequest {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	temperature := req.Temperature

	return &generateRequest{
		Contents: []content{{
			Role:  "user",
			Parts: []part{{Text: req.Prompt}},
		}},
		GenerationConfig: &generationConfig{
			Temperature:     &temperature,
			MaxOutputTokens: maxTokens,
		},
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
	var errResp struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err != nil {
		return ""
	}
	return errResp.Error.Message
}

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text,omitempty"`
}

type generationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
}

type generateResponse struct {
	Candidates     []candidate     `json:"candidates"`
	UsageMetadata  *usageMetadata  `json:"usageMetadata,omitempty"`
	PromptFeedback *promptFeedback `json:"promptFeedback,omitempty"`
}

type candidate struct {
	Content      content `json:"content"`
	FinishReason string  `json:"finishReason"`
}

type usageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type promptFeedback struct {
	BlockReason string `json:"blockReason,omitempty"`
}
