package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// MaxRetriesLimit is the largest accepted LLM_MAX_RETRIES value.
const MaxRetriesLimit = 10

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Auth          AuthConfig
	Providers     ProvidersConfig
	Governance    GovernanceConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration
	AllowedOrigins  []string
}

// DatabaseConfig holds PostgreSQL configuration for the memory store and usage journal.
// Both are optional: with neither DATABASE_URL nor DB_HOST set, in-process stores are used.
type DatabaseConfig struct {
	ConnectionString string // From DATABASE_URL when set
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// RedisConfig holds the shared admission counter store configuration
type RedisConfig struct {
	URL         string
	DialTimeout time.Duration
}

// AuthConfig holds bearer token validation settings
type AuthConfig struct {
	JWTSecret string
	Issuer    string
	Audience  string
}

// ProvidersConfig holds LLM provider configurations
type ProvidersConfig struct {
	OpenAI      OpenAIConfig
	Gemini      GeminiConfig
	CatalogFile string
}

// OpenAIConfig holds OpenAI provider configuration
type OpenAIConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// GeminiConfig holds Gemini provider configuration (serves the gemma descriptor)
type GeminiConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// GovernanceConfig holds the budget, token window, admission and retry knobs
type GovernanceConfig struct {
	DefaultDailyAllowance float64
	TokensPerMinute       int
	TokenWindow           time.Duration
	RequestsPerMinute     int
	RequestWindow         time.Duration
	MaxRetries            int
	RetryBaseDelay        time.Duration
	RetryJitter           time.Duration
	MaxOutputTokens       int
	DefaultQuality        string
	MaxModelBudget        float64
	MemorySnippets        int
	SessionHistory        int
}

// ObservabilityConfig holds monitoring and logging configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string // json or text
	MetricsEnabled bool
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 90*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			RequestTimeout:  getEnvAsDuration("SERVER_REQUEST_TIMEOUT", 60*time.Second),
			AllowedOrigins:  getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:8501"}),
		},
		Database: loadDatabaseConfig(),
		Redis: RedisConfig{
			URL:         getEnv("REDIS_URL", ""),
			DialTimeout: getEnvAsDuration("REDIS_DIAL_TIMEOUT", 2*time.Second),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			Issuer:    getEnv("JWT_ISSUER", "llm-governance"),
			Audience:  getEnv("JWT_AUDIENCE", ""),
		},
		Providers: ProvidersConfig{
			OpenAI: OpenAIConfig{
				APIKey:    getEnv("OPENAI_API_KEY", ""),
				BaseURL:   getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
				Model:     getEnv("OPENAI_MODEL", "gpt-3.5-turbo"),
				MaxTokens: getEnvAsInt("OPENAI_MAX_TOKENS", 2000),
				Timeout:   getEnvAsDuration("LLM_TIMEOUT", 30*time.Second),
			},
			Gemini: GeminiConfig{
				APIKey:  getEnv("GEMINI_API_KEY", ""),
				BaseURL: getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
				Model:   getEnv("GEMMA_MODEL", "gemma-2-9b-it"),
				Timeout: getEnvAsDuration("LLM_TIMEOUT", 30*time.Second),
			},
			CatalogFile: getEnv("PROVIDER_CATALOG_FILE", ""),
		},
		Governance: GovernanceConfig{
			DefaultDailyAllowance: getEnvAsFloat("DEFAULT_DAILY_ALLOWANCE", 100.0),
			TokensPerMinute:       getEnvAsInt("MAX_TOKENS_PER_MIN", 50000),
			TokenWindow:           getEnvAsDuration("TOKEN_WINDOW", time.Minute),
			RequestsPerMinute:     getEnvAsInt("MAX_REQUESTS_PER_MINUTE", 100),
			RequestWindow:         getEnvAsDuration("REQUEST_WINDOW", time.Minute),
			MaxRetries:            getEnvAsInt("LLM_MAX_RETRIES", 3),
			RetryBaseDelay:        getEnvAsDuration("LLM_RETRY_BASE_DELAY", time.Second),
			RetryJitter:           getEnvAsDuration("LLM_RETRY_JITTER", 250*time.Millisecond),
			MaxOutputTokens:       getEnvAsInt("LLM_MAX_OUTPUT_TOKENS", 1000),
			DefaultQuality:        getEnv("LLM_DEFAULT_QUALITY", "medium"),
			MaxModelBudget:        getEnvAsFloat("LLM_MAX_MODEL_BUDGET", 0.05),
			MemorySnippets:        getEnvAsInt("MEMORY_SNIPPETS", 3),
			SessionHistory:        getEnvAsInt("SESSION_HISTORY", 50),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks configuration invariants
func (c *Config) Validate() error {
	if c.Database.ConnectionString == "" && c.Database.Host != "" {
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	}

	if c.IsProduction() && c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT secret is required in production")
	}

	g := c.Governance
	if g.DefaultDailyAllowance < 0 {
		return fmt.Errorf("default daily allowance must not be negative")
	}
	if g.TokensPerMinute <= 0 {
		return fmt.Errorf("tokens per minute must be positive")
	}
	if g.TokenWindow <= 0 || g.RequestWindow <= 0 {
		return fmt.Errorf("token and request windows must be positive")
	}
	if g.RequestsPerMinute <= 0 {
		return fmt.Errorf("requests per minute must be positive")
	}
	if g.MaxRetries < 1 || g.MaxRetries > MaxRetriesLimit {
		return fmt.Errorf("max retries must be between 1 and %d", MaxRetriesLimit)
	}
	if g.RetryBaseDelay < 0 || g.RetryJitter < 0 {
		return fmt.Errorf("retry delays must not be negative")
	}

	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// Enabled reports whether a Postgres database was configured.
func (c *DatabaseConfig) Enabled() bool {
	return c.ConnectionString != "" || c.Host != ""
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password)
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			return fmt.Sprintf("host=%s port=%s database=%s", u.Hostname(), port, strings.TrimPrefix(u.Path, "/"))
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// loadDatabaseConfig loads database config from DATABASE_URL or DB_* env vars
func loadDatabaseConfig() DatabaseConfig {
	pool := DatabaseConfig{
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
	if dbURL := getEnv("DATABASE_URL", ""); dbURL != "" {
		pool.ConnectionString = dbURL
		return pool
	}
	pool.Host = getEnv("DB_HOST", "")
	pool.Port = getEnvAsInt("DB_PORT", 5432)
	pool.User = getEnv("DB_USER", "governance")
	pool.Password = getEnv("DB_PASSWORD", "")
	pool.Database = getEnv("DB_NAME", "governance")
	pool.SSLMode = getEnv("DB_SSLMODE", "disable")
	return pool
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8000)
func getPort() int {
	for _, key := range []string{"PORT", "SERVER_PORT"} {
		if value := os.Getenv(key); value != "" {
			if p, err := strconv.Atoi(value); err == nil {
				return p
			}
		}
	}
	return 8000
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	value, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
