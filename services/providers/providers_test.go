package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/llm-governance/config"
)

type stubAdapter struct{ name string }

func (s stubAdapter) Name() string { return s.name }

func (s stubAdapter) Run(ctx context.Context, req Request) (*Response, error) {
	return &Response{Answer: "ok", Provider: s.name}, nil
}

func TestCatalog_Ordered(t *testing.T) {
	c := NewCatalog()
	require.NoError(t, c.Register(Descriptor{Name: "expensive", CostCeiling: 1, Rank: 3}, stubAdapter{"a"}))
	require.NoError(t, c.Register(Descriptor{Name: "first-cheap", CostCeiling: 0.1, Rank: 1}, stubAdapter{"a"}))
	require.NoError(t, c.Register(Descriptor{Name: "second-cheap", CostCeiling: 0.1, Rank: 1}, stubAdapter{"b"}))

	ordered := c.Ordered()
	require.Len(t, ordered, 3)
	assert.Equal(t, "first-cheap", ordered[0].Name)
	assert.Equal(t, "second-cheap", ordered[1].Name)
	assert.Equal(t, "expensive", ordered[2].Name)
	assert.Equal(t, "expensive", ordered[2].PricingModel, "pricing model defaults to the name")
}

func TestCatalog_Register(t *testing.T) {
	c := NewCatalog()

	assert.Error(t, c.Register(Descriptor{Name: "x"}, nil))
	assert.Error(t, c.Register(Descriptor{}, stubAdapter{"a"}))
	assert.Error(t, c.Register(Descriptor{Name: "neg", CostCeiling: -1}, stubAdapter{"a"}))

	require.NoError(t, c.Register(Descriptor{Name: "x"}, stubAdapter{"a"}))
	assert.ErrorIs(t, c.Register(Descriptor{Name: "x"}, stubAdapter{"b"}), ErrProviderAlreadyRegistered)

	a, err := c.Adapter("x")
	require.NoError(t, err)
	assert.Equal(t, "a", a.Name())

	_, err = c.Adapter("missing")
	assert.ErrorIs(t, err, ErrProviderNotFound)
	assert.Equal(t, 1, c.Len())
}

func TestBuildCatalog(t *testing.T) {
	gemini := stubAdapter{"gemini"}
	openai := stubAdapter{"openai"}

	c, err := BuildCatalog(config.DefaultCatalog(), map[string]Adapter{"gemma": gemini, "openai": openai})
	require.NoError(t, err)

	ordered := c.Ordered()
	require.Len(t, ordered, 2)
	assert.Equal(t, Descriptor{Name: "gemma", PricingModel: "gemma", CostCeiling: 0.002, Rank: 1}, ordered[0])
	assert.Equal(t, Descriptor{Name: "openai", PricingModel: "gpt-3.5-turbo", CostCeiling: 0.02, Rank: 2}, ordered[1])

	_, err = BuildCatalog(config.DefaultCatalog(), map[string]Adapter{"gemma": gemini})
	assert.ErrorContains(t, err, `no adapter for provider "openai"`)
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status    int
		kind      ErrorKind
		retryable bool
	}{
		{http.StatusUnauthorized, KindInvalidCredentials, false},
		{http.StatusForbidden, KindInvalidCredentials, false},
		{http.StatusTooManyRequests, KindRateLimited, true},
		{http.StatusRequestTimeout, KindTimeout, true},
		{http.StatusGatewayTimeout, KindTimeout, true},
		{http.StatusBadGateway, KindUnknown, true},
		{http.StatusNotFound, KindUnknown, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			err := ClassifyStatus("p", tt.status, "msg")
			assert.Equal(t, tt.kind, err.Kind)
			assert.Equal(t, tt.retryable, err.Retryable)
			assert.Contains(t, err.Error(), "msg")
		})
	}
}

func TestClassifyTransport(t *testing.T) {
	assert.Equal(t, KindTimeout, ClassifyTransport("p", context.DeadlineExceeded).Kind)
	assert.False(t, ClassifyTransport("p", context.Canceled).Retryable)

	other := ClassifyTransport("p", errors.New("connection refused"))
	assert.Equal(t, KindUnknown, other.Kind)
	assert.True(t, other.Retryable)
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.True(t, IsRetryable(errors.New("unclassified")))

	wrapped := fmt.Errorf("call failed: %w", NewClassifiedError("p", KindInvalidCredentials, 401, "", false, nil))
	assert.False(t, IsRetryable(wrapped))
	assert.Equal(t, KindInvalidCredentials, KindOf(wrapped))
	assert.Equal(t, KindUnknown, KindOf(errors.New("x")))
}

func TestResponse_Succeeded(t *testing.T) {
	var nilResp *Response
	assert.False(t, nilResp.Succeeded())
	assert.True(t, (&Response{}).Succeeded())
	assert.False(t, (&Response{ErrorCode: "LLM_ROUTING_FAILED"}).Succeeded())
}
