package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/upb/llm-governance/config"
	"github.com/upb/llm-governance/internal/auth"
	"github.com/upb/llm-governance/internal/observability"
	"github.com/upb/llm-governance/repositories"
	"github.com/upb/llm-governance/repositories/postgres"
	"github.com/upb/llm-governance/services/budget"
	"github.com/upb/llm-governance/services/cost"
	"github.com/upb/llm-governance/services/governance"
	"github.com/upb/llm-governance/services/memory"
	"github.com/upb/llm-governance/services/orchestrator"
	"github.com/upb/llm-governance/services/providers"
	"github.com/upb/llm-governance/services/providers/gemini"
	"github.com/upb/llm-governance/services/providers/openai"
	"github.com/upb/llm-governance/services/ratelimit"
	"github.com/upb/llm-governance/services/routing"
	"github.com/upb/llm-governance/services/tokenwindow"
	"go.uber.org/zap"
)

const (
	usageCleanupInterval = 24 * time.Hour
	usageRetention       = 90 * 24 * time.Hour
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *observability.Metrics
	DB      *postgres.DB
	Redis   *redis.Client

	RepoFactory *postgres.RepositoryFactory
	TxManager   repositories.TransactionManager

	// Governance
	Governance    *governance.Context
	Pricing       *cost.Model
	Catalog       *providers.Catalog
	Router        *routing.Router
	Sessions      *memory.SessionStore
	Memory        memory.Store
	UsageRecorder *budget.Recorder
	Orchestrator  *orchestrator.Orchestrator

	// Auth
	TokenValidator *auth.Validator

	stopWorkers context.CancelFunc
}

// NewDependencies creates and wires up all application dependencies.
// Postgres and Redis are optional: without them memory is process-local and
// admission counters fall back to the in-process store.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config:  cfg,
		Logger:  logger,
		Metrics: observability.NewMetrics(),
	}

	if err := deps.initDatabase(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	deps.initRedis(ctx, cfg)
	deps.initGovernance(cfg)

	if err := deps.initProviders(cfg); err != nil {
		deps.closeInfrastructure()
		return nil, fmt.Errorf("failed to initialize providers: %w", err)
	}

	deps.initMemory(ctx, cfg)
	deps.initOrchestrator(cfg)

	if err := deps.initAuth(cfg); err != nil {
		deps.closeInfrastructure()
		return nil, fmt.Errorf("failed to initialize auth: %w", err)
	}

	logger.Info("all dependencies initialized successfully",
		zap.Bool("database", deps.DB != nil),
		zap.String("admission_backend", deps.Governance.Admission.Backend()),
		zap.Int("providers", deps.Catalog.Len()))
	return deps, nil
}

// initDatabase opens the pool and creates the schema when a database is configured
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	if !cfg.Database.Enabled() {
		d.Logger.Warn("database not configured, memory and usage journal are process-local")
		return nil
	}

	factory, err := postgres.NewRepositoryFactory(cfg.Database, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}
	if err := factory.GetDB().InitSchema(ctx); err != nil {
		_ = factory.Close()
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	d.RepoFactory = factory
	d.DB = factory.GetDB()
	d.TxManager = factory.GetTransactionManager()
	return nil
}

// initRedis connects the shared admission store; failure degrades to process-local counters
func (d *Dependencies) initRedis(ctx context.Context, cfg *config.Config) {
	if cfg.Redis.URL == "" {
		d.Logger.Warn("redis not configured, admission counters are process-local")
		return
	}
	client, err := ratelimit.NewRedisClient(ctx, cfg.Redis.URL, cfg.Redis.DialTimeout)
	if err != nil {
		d.Logger.Warn("redis unavailable, admission counters are process-local", zap.Error(err))
		d.Metrics.ObserveBackendFailure("ratelimit", "redis")
		return
	}
	d.Redis = client
}

func (d *Dependencies) initGovernance(cfg *config.Config) {
	g := cfg.Governance
	d.Governance = governance.New(
		budget.NewLedger(g.DefaultDailyAllowance, d.Logger),
		tokenwindow.NewLimiter(g.TokenWindow, d.Logger),
		ratelimit.NewService(d.Redis, d.Metrics, d.Logger),
		governance.LimitsFrom(g),
		d.Logger,
	)
}

// initProviders builds the adapters, price table, catalog and router
func (d *Dependencies) initProviders(cfg *config.Config) error {
	catalogCfg, err := config.LoadCatalog(cfg.Providers.CatalogFile)
	if err != nil {
		return err
	}
	d.Pricing = PricingFrom(catalogCfg)

	creds := providers.StaticCredentials{
		openai.ProviderName: cfg.Providers.OpenAI.APIKey,
		gemini.ProviderName: cfg.Providers.Gemini.APIKey,
	}
	gem := gemini.NewAdapter(cfg.Providers.Gemini, creds, d.Logger)
	oai := openai.NewAdapter(cfg.Providers.OpenAI, creds, d.Logger)
	adapters := map[string]providers.Adapter{
		"gemma":             gem,
		gemini.ProviderName: gem,
		openai.ProviderName: oai,
	}

	catalog, err := providers.BuildCatalog(catalogCfg, adapters)
	if err != nil {
		return err
	}
	d.Catalog = catalog

	if cfg.Providers.OpenAI.APIKey == "" {
		d.Logger.Warn("openai api key not configured, adapter will return mock responses")
	}
	if cfg.Providers.Gemini.APIKey == "" {
		d.Logger.Warn("gemini api key not configured, adapter will return mock responses unless a caller supplies one")
	}

	d.Router = routing.NewRouter(catalog, routing.ConfigFrom(cfg.Governance), d.Metrics, d.Logger,
		routing.WithPricing(d.Pricing))
	return nil
}

// initMemory picks the memory store and starts the usage journal when Postgres is present
func (d *Dependencies) initMemory(ctx context.Context, cfg *config.Config) {
	d.Sessions = memory.NewSessionStore(cfg.Governance.SessionHistory)
	d.Memory = d.Sessions
	if d.RepoFactory == nil {
		return
	}

	repos := d.RepoFactory.NewRepositories()
	d.Memory = memory.NewPersistentStore(repos.Interactions, d.TxManager, cfg.Governance.SessionHistory, d.Logger)
	d.UsageRecorder = budget.NewRecorder(repos.Usage, d.TxManager, d.Logger)

	workerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	d.stopWorkers = cancel
	go d.UsageRecorder.StartCleanupWorker(workerCtx, usageCleanupInterval, usageRetention)
}

func (d *Dependencies) initOrchestrator(cfg *config.Config) {
	opts := []orchestrator.Option{
		orchestrator.WithHistory(d.Sessions),
		orchestrator.WithPricing(d.Pricing),
	}
	if d.UsageRecorder != nil {
		opts = append(opts, orchestrator.WithUsageRecorder(d.UsageRecorder))
	}
	d.Orchestrator = orchestrator.New(d.Governance, d.Router, d.Memory, orchestrator.ConfigFrom(cfg),
		d.Metrics, d.Logger, opts...)
}

// initAuth builds the bearer token validator. Without a secret every token is
// rejected; config validation forbids that in production.
func (d *Dependencies) initAuth(cfg *config.Config) error {
	if cfg.Auth.JWTSecret == "" {
		d.Logger.Warn("JWT secret not configured, authenticated endpoints will reject all requests")
		return nil
	}
	v, err := auth.NewValidator(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience)
	if err != nil {
		return err
	}
	d.TokenValidator = v
	return nil
}

// Validate implements middleware.TokenValidator, rejecting everything when
// no validator is configured.
func (d *Dependencies) Validate(token string) (*auth.Principal, error) {
	if d.TokenValidator == nil {
		return nil, auth.ErrNoSecret
	}
	return d.TokenValidator.Validate(token)
}

// PricingFrom applies the catalog's price overrides to the built-in table
func PricingFrom(cat *config.Catalog) *cost.Model {
	if cat == nil || len(cat.Pricing) == 0 {
		return cost.Default()
	}
	overrides := make([]cost.ModelPricing, 0, len(cat.Pricing))
	for model, price := range cat.Pricing {
		overrides = append(overrides, cost.ModelPricing{
			Model:           model,
			InputCostPer1K:  price.InputPer1K,
			OutputCostPer1K: price.OutputPer1K,
		})
	}
	return cost.NewModel(overrides)
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	if d.stopWorkers != nil {
		d.stopWorkers()
	}
	err := d.closeInfrastructure()

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}
	return err
}

func (d *Dependencies) closeInfrastructure() error {
	var errs []error

	if d.Governance != nil {
		if err := d.Governance.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close admission store: %w", err))
		}
	} else if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close redis: %w", err))
		}
	}

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	return errors.Join(errs...)
}
