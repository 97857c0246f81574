package providers

import (
	"context"
)

// Request is the provider-agnostic envelope handed to an Adapter.
// It is passed by value and never mutated by adapters.
type Request struct {
	// Prompt is the full text sent as the user message
	Prompt string `json:"prompt"`

	// ModelHint optionally names a model; adapters ignore hints outside their family
	ModelHint string `json:"model,omitempty"`

	// Temperature controls randomness
	Temperature float64 `json:"temperature"`

	// MaxTokens caps the completion length
	MaxTokens int `json:"max_tokens"`

	// TenantID is the billing scope of the request
	TenantID string `json:"tenant_id,omitempty"`

	// CredentialOverride is a caller-supplied Gemini API key
	CredentialOverride string `json:"-"`
}

// Response is the normalized result of one provider call
type Response struct {
	Answer        string  `json:"response"`
	Model         string  `json:"model"`
	TokensUsed    int     `json:"tokens_used"`
	Confidence    float64 `json:"confidence"`
	Provider      string  `json:"provider"`
	EstimatedCost float64 `json:"estimated_cost"`
	ErrorCode     string  `json:"error,omitempty"`
	Mock          bool    `json:"mock,omitempty"`
}

// Succeeded reports whether the response carries an answer rather than an error code
func (r *Response) Succeeded() bool {
	return r != nil && r.ErrorCode == ""
}

// Descriptor is one routing candidate. Rank breaks ties between candidates
// in catalog order; CostCeiling is the largest estimate the candidate accepts.
type Descriptor struct {
	Name         string  `json:"name" yaml:"name"`
	PricingModel string  `json:"pricing_model" yaml:"pricing_model"`
	CostCeiling  float64 `json:"cost_ceiling" yaml:"cost_ceiling"`
	Rank         int     `json:"rank" yaml:"rank"`
}

// Adapter translates a Request into exactly one upstream call.
// Failures are returned as *ClassifiedError.
type Adapter interface {
	// Name returns the adapter name (e.g. "openai", "gemini")
	Name() string

	// Run performs the call
	Run(ctx context.Context, req Request) (*Response, error)
}

// CredentialSource supplies the default API key for an adapter.
// An empty key puts the adapter in mock mode.
type CredentialSource interface {
	APIKey(provider string) string
}

// StaticCredentials is a CredentialSource backed by a fixed map
type StaticCredentials map[string]string

// APIKey implements CredentialSource
func (s StaticCredentials) APIKey(provider string) string {
	return s[provider]
}
