package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/llm-governance/app"
	"github.com/upb/llm-governance/config"
	"github.com/upb/llm-governance/routes"
	"go.uber.org/zap/zaptest"
)

func TestInitLogger(t *testing.T) {
	t.Run("json logger", func(t *testing.T) {
		cfg := testConfig()
		logger, err := initLogger(cfg)
		require.NoError(t, err)
		require.NotNil(t, logger)
		defer logger.Sync()
	})

	t.Run("text logger at debug", func(t *testing.T) {
		cfg := testConfig()
		cfg.Observability.LogLevel = "debug"
		cfg.Observability.LogFormat = "text"

		logger, err := initLogger(cfg)
		require.NoError(t, err)
		require.NotNil(t, logger)
		defer logger.Sync()
	})
}

func TestNewServer(t *testing.T) {
	cfg := testConfig()
	srv := newServer(cfg, http.NotFoundHandler())

	assert.Equal(t, "localhost:8080", srv.Addr)
	assert.Equal(t, 30*time.Second, srv.ReadTimeout)
	assert.Equal(t, 90*time.Second, srv.WriteTimeout)
	assert.Equal(t, 180*time.Second, srv.IdleTimeout)
}

func TestApplicationStartup(t *testing.T) {
	ctx := context.Background()
	deps, err := app.NewDependencies(ctx, testConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer deps.Close(ctx)

	ts := httptest.NewServer(routes.SetupRoutes(deps))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestIntegrationWithRealDependencies(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	if os.Getenv("DB_HOST") == "" {
		t.Skip("DB_HOST not set")
	}

	ctx := context.Background()
	cfg := testConfig()
	cfg.Database = config.DatabaseConfig{
		Host:            os.Getenv("DB_HOST"),
		Port:            5432,
		User:            getEnvOrDefault("DB_USER", "governance"),
		Password:        getEnvOrDefault("DB_PASSWORD", "governance"),
		Database:        getEnvOrDefault("DB_NAME", "governance_test"),
		SSLMode:         "disable",
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
	}

	deps, err := app.NewDependencies(ctx, cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Skipf("skipping integration test: %v", err)
	}
	defer deps.Close(ctx)

	ts := httptest.NewServer(routes.SetupRoutes(deps))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/readyz")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ready", body["status"])
	checks := body["checks"].(map[string]interface{})
	assert.Equal(t, "healthy", checks["database"])
}

func testConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		Server: config.ServerConfig{
			Host:            "localhost",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    90 * time.Second,
			ShutdownTimeout: 5 * time.Second,
			RequestTimeout:  10 * time.Second,
		},
		Auth: config.AuthConfig{JWTSecret: "gateway-test-secret"},
		Governance: config.GovernanceConfig{
			DefaultDailyAllowance: 100,
			TokensPerMinute:       50000,
			TokenWindow:           time.Minute,
			RequestsPerMinute:     100,
			RequestWindow:         time.Minute,
			MaxRetries:            1,
			RetryBaseDelay:        time.Millisecond,
			MaxOutputTokens:       1000,
			DefaultQuality:        "medium",
			MaxModelBudget:        0.05,
			SessionHistory:        50,
		},
		Observability: config.ObservabilityConfig{
			LogLevel:  "error",
			LogFormat: "json",
		},
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
