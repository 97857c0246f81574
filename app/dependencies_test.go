package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/llm-governance/config"
	"github.com/upb/llm-governance/internal/auth"
	"github.com/upb/llm-governance/services/orchestrator"
	"go.uber.org/zap/zaptest"
)

func TestNewDependencies(t *testing.T) {
	t.Run("process-local wiring without database or redis", func(t *testing.T) {
		ctx := context.Background()
		deps, err := NewDependencies(ctx, testConfig(), zaptest.NewLogger(t))
		require.NoError(t, err)
		defer deps.Close(ctx)

		assert.Nil(t, deps.DB)
		assert.Nil(t, deps.Redis)
		assert.Nil(t, deps.UsageRecorder)
		assert.NotNil(t, deps.Metrics)
		assert.Equal(t, "memory", deps.Governance.Admission.Backend())
		assert.Equal(t, 2, deps.Catalog.Len())
		assert.Same(t, deps.Sessions, deps.Memory)
		assert.NotNil(t, deps.TokenValidator)
	})

	t.Run("redis backend when reachable", func(t *testing.T) {
		ctx := context.Background()
		mr := miniredis.RunT(t)
		cfg := testConfig()
		cfg.Redis.URL = "redis://" + mr.Addr()

		deps, err := NewDependencies(ctx, cfg, zaptest.NewLogger(t))
		require.NoError(t, err)
		defer deps.Close(ctx)

		assert.NotNil(t, deps.Redis)
		assert.Equal(t, "redis", deps.Governance.Admission.Backend())
		assert.True(t, deps.Governance.AllowRequest(ctx, "query:alice"))
		assert.Equal(t, "1", mustGet(t, mr, "query:alice"))
	})

	t.Run("unreachable redis falls back to memory", func(t *testing.T) {
		ctx := context.Background()
		cfg := testConfig()
		cfg.Redis.URL = "redis://127.0.0.1:1"
		cfg.Redis.DialTimeout = 100 * time.Millisecond

		deps, err := NewDependencies(ctx, cfg, zaptest.NewLogger(t))
		require.NoError(t, err)
		defer deps.Close(ctx)

		assert.Nil(t, deps.Redis)
		assert.Equal(t, "memory", deps.Governance.Admission.Backend())
	})

	t.Run("catalog without matching adapter fails", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "catalog.yaml")
		require.NoError(t, os.WriteFile(path, []byte("providers:\n  - name: anthropic\n    cost_ceiling: 0.01\n"), 0o600))
		cfg := testConfig()
		cfg.Providers.CatalogFile = path

		_, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
		assert.ErrorContains(t, err, "no adapter for provider")
	})

	t.Run("orchestrator answers with mock providers", func(t *testing.T) {
		ctx := context.Background()
		deps, err := NewDependencies(ctx, testConfig(), zaptest.NewLogger(t))
		require.NoError(t, err)
		defer deps.Close(ctx)

		env := deps.Orchestrator.ExecuteQuery(ctx, "How many orders shipped?", orchestrator.QueryContext{UserID: "alice", TenantID: "acme"})
		require.False(t, env.Failed(), env.Detail)
		assert.Equal(t, "Mock Gemini response - API key not configured", env.Answer)
		assert.Equal(t, "gemini-mock", env.Metadata.Provider)
		assert.Greater(t, deps.Governance.Usage("acme").Budget.Usage, 0.0)
		assert.Len(t, deps.Sessions.History("alice", 0), 1)
	})
}

func TestDependencies_Validate(t *testing.T) {
	t.Run("rejects everything without a secret", func(t *testing.T) {
		cfg := testConfig()
		cfg.Auth.JWTSecret = ""
		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
		require.NoError(t, err)
		defer deps.Close(context.Background())

		_, err = deps.Validate("anything")
		assert.ErrorIs(t, err, auth.ErrNoSecret)
	})

	t.Run("accepts tokens signed with the configured secret", func(t *testing.T) {
		deps, err := NewDependencies(context.Background(), testConfig(), zaptest.NewLogger(t))
		require.NoError(t, err)
		defer deps.Close(context.Background())

		token, err := deps.TokenValidator.Issue(auth.Principal{Subject: "alice", Tenant: "acme", Role: "viewer"}, time.Minute)
		require.NoError(t, err)

		p, err := deps.Validate(token)
		require.NoError(t, err)
		assert.Equal(t, "alice", p.Subject)
	})
}

func TestPricingFrom(t *testing.T) {
	assert.Same(t, PricingFrom(nil), PricingFrom(&config.Catalog{}))

	m := PricingFrom(&config.Catalog{Pricing: map[string]config.CatalogPrice{
		"gemma": {InputPer1K: 0.001, OutputPer1K: 0.002},
	}})
	p, ok := m.Price("gemma")
	require.True(t, ok)
	assert.Equal(t, 0.001, p.InputCostPer1K)
	assert.Equal(t, 0.002, p.OutputCostPer1K)

	_, ok = m.Price("gpt-4")
	assert.True(t, ok, "built-in entries are kept")
}

func mustGet(t *testing.T, mr *miniredis.Miniredis, key string) string {
	t.Helper()
	v, err := mr.Get(key)
	require.NoError(t, err)
	return v
}

func testConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		Server: config.ServerConfig{
			Host:            "localhost",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 5 * time.Second,
			RequestTimeout:  10 * time.Second,
			AllowedOrigins:  []string{"http://localhost:8501"},
		},
		Redis: config.RedisConfig{DialTimeout: time.Second},
		Auth: config.AuthConfig{
			JWTSecret: "test-secret",
			Issuer:    "llm-governance",
		},
		Governance: config.GovernanceConfig{
			DefaultDailyAllowance: 100,
			TokensPerMinute:       50000,
			TokenWindow:           time.Minute,
			RequestsPerMinute:     100,
			RequestWindow:         time.Minute,
			MaxRetries:            3,
			RetryBaseDelay:        time.Millisecond,
			MaxOutputTokens:       1000,
			DefaultQuality:        "medium",
			MaxModelBudget:        0.05,
			MemorySnippets:        3,
			SessionHistory:        50,
		},
		Observability: config.ObservabilityConfig{
			LogLevel:       "error",
			LogFormat:      "json",
			MetricsEnabled: true,
		},
	}
}
