// Package orchestrator runs a query end to end: memory lookup, planning,
// token and cost admission, provider routing, settlement and memory write-back.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/upb/llm-governance/config"
	"github.com/upb/llm-governance/internal/observability"
	"github.com/upb/llm-governance/models"
	"github.com/upb/llm-governance/services"
	"github.com/upb/llm-governance/services/budget"
	"github.com/upb/llm-governance/services/cost"
	"github.com/upb/llm-governance/services/governance"
	"github.com/upb/llm-governance/services/memory"
	"github.com/upb/llm-governance/services/providers"
	"github.com/upb/llm-governance/services/routing"
	"go.uber.org/zap"
)

const (
	// DefaultTenant bills queries that arrive without a tenant
	DefaultTenant = "default"

	ActionAnalyzeQuery = "analyze_query"

	answerTokenBudgetExceeded = "Token budget exceeded. Please retry later."
	answerCostBudgetExceeded  = "Cost budget exceeded. Please retry later."
	answerInternalError       = "I encountered an error processing your query. Please try again."

	defaultTemperature = 0.5
	defaultMaxTokens   = 1000
	defaultSnippets    = 3
)

// QueryContext identifies who a query runs for
type QueryContext struct {
	UserID             string
	TenantID           string
	Role               string
	CredentialOverride string
}

// Step is one entry of an execution plan
type Step struct {
	Index       int    `json:"step"`
	Action      string `json:"action"`
	Description string `json:"description"`
}

// Plan is the ordered list of steps for one query
type Plan []Step

// Metadata describes how an answer was produced
type Metadata struct {
	ExecutionID     string  `json:"execution_id"`
	Model           string  `json:"model"`
	Provider        string  `json:"provider"`
	TokensUsed      int     `json:"tokens_used"`
	ExecutionTimeMs int64   `json:"execution_time_ms"`
	EstimatedCost   float64 `json:"estimated_cost"`
	ContextSnippets int     `json:"context_snippets"`
}

// AnswerEnvelope is the result of ExecuteQuery. Error carries a machine code
// when the query was denied or degraded; Detail carries a readable reason.
type AnswerEnvelope struct {
	Answer     string    `json:"answer"`
	Confidence float64   `json:"confidence"`
	Steps      []Step    `json:"steps"`
	Metadata   *Metadata `json:"metadata,omitempty"`
	Error      string    `json:"error,omitempty"`
	Detail     string    `json:"detail,omitempty"`
}

// Failed reports whether the envelope carries an error code
func (e *AnswerEnvelope) Failed() bool {
	return e.Error != ""
}

// Router is the routing dependency of the Orchestrator
type Router interface {
	Route(ctx context.Context, req providers.Request) routing.Outcome
}

// Config holds the per-query request shaping knobs
type Config struct {
	MaxOutputTokens int
	Temperature     float64
	Quality         cost.Quality
	MaxModelBudget  float64
	MemorySnippets  int
}

// ConfigFrom extracts the orchestrator settings from the full configuration.
// The output cap is the smaller of the governance cap and the OpenAI cap.
func ConfigFrom(cfg *config.Config) Config {
	maxTokens := cfg.Governance.MaxOutputTokens
	if cfg.Providers.OpenAI.MaxTokens > 0 && cfg.Providers.OpenAI.MaxTokens < maxTokens {
		maxTokens = cfg.Providers.OpenAI.MaxTokens
	}
	return Config{
		MaxOutputTokens: maxTokens,
		Temperature:     defaultTemperature,
		Quality:         cost.Quality(cfg.Governance.DefaultQuality),
		MaxModelBudget:  cfg.Governance.MaxModelBudget,
		MemorySnippets:  cfg.Governance.MemorySnippets,
	}
}

// Orchestrator executes queries against the shared governance state
type Orchestrator struct {
	gov     *governance.Context
	router  Router
	memory  memory.Store
	history memory.HistoryRecorder
	usage   budget.UsageRecorder
	pricing *cost.Model
	cfg     Config
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithHistory records every answered query in h
func WithHistory(h memory.HistoryRecorder) Option {
	return func(o *Orchestrator) { o.history = h }
}

// WithUsageRecorder journals every billed query
func WithUsageRecorder(r budget.UsageRecorder) Option {
	return func(o *Orchestrator) { o.usage = r }
}

// WithPricing replaces the default price table
func WithPricing(m *cost.Model) Option {
	return func(o *Orchestrator) { o.pricing = m }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an orchestrator. store may be nil, which disables memory.
func New(gov *governance.Context, router Router, store memory.Store, cfg Config, metrics *observability.Metrics, logger *zap.Logger, opts ...Option) *Orchestrator {
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = defaultMaxTokens
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = defaultTemperature
	}
	if cfg.Quality == "" {
		cfg.Quality = cost.QualityMedium
	}
	if cfg.MaxModelBudget <= 0 {
		cfg.MaxModelBudget = cost.DefaultMaxBudget
	}
	if cfg.MemorySnippets <= 0 {
		cfg.MemorySnippets = defaultSnippets
	}

	o := &Orchestrator{
		gov:     gov,
		router:  router,
		memory:  store,
		pricing: cost.Default(),
		cfg:     cfg,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ExecuteQuery runs the full pipeline. It never panics and never returns nil:
// denials, routing failures and internal faults all come back as envelopes
// with an error code.
func (o *Orchestrator) ExecuteQuery(ctx context.Context, query string, qc QueryContext) (env *AnswerEnvelope) {
	start := o.now()
	executionID := uuid.NewString()
	logger := observability.FromContext(ctx, o.logger).With(
		zap.String("execution_id", executionID),
		zap.String("user_id", qc.UserID),
		zap.String("tenant_id", qc.TenantID))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("query execution panicked", zap.Any("panic", r))
			env = internalEnvelope(fmt.Errorf("panic: %v", r))
		}
		outcome := "ok"
		if env.Failed() {
			outcome = strings.ToLower(env.Error)
		}
		o.metrics.ObserveQuery(outcome, o.now().Sub(start))
	}()

	if strings.TrimSpace(query) == "" {
		return &AnswerEnvelope{Answer: answerInternalError, Error: services.ErrEmptyPrompt.Code, Detail: services.ErrEmptyPrompt.Message}
	}
	if qc.TenantID == "" {
		qc.TenantID = DefaultTenant
	}

	logger.Info("executing query")

	snippets := o.relevantContext(ctx, logger, query, qc.UserID)
	plan := o.createPlan(query)
	env = o.executePlan(ctx, logger, plan, snippets, qc, executionID)
	env.Steps = plan
	if env.Metadata != nil {
		env.Metadata.ExecutionTimeMs = o.now().Sub(start).Milliseconds()
	}

	if !env.Failed() {
		o.storeResult(ctx, logger, query, env, qc)
	}
	return env
}

// relevantContext looks up memory for the user; failures only cost context
func (o *Orchestrator) relevantContext(ctx context.Context, logger *zap.Logger, query, userID string) []string {
	if userID == "" || o.memory == nil {
		return nil
	}
	snippets, err := o.memory.Retrieve(ctx, userID, query, o.cfg.MemorySnippets)
	if err != nil {
		logger.Warn("context retrieval failed", zap.Error(err))
		o.metrics.ObserveBackendFailure("memory", "retrieve")
		return nil
	}
	if len(snippets) > o.cfg.MemorySnippets {
		snippets = snippets[:o.cfg.MemorySnippets]
	}
	return snippets
}

func (o *Orchestrator) createPlan(query string) Plan {
	return Plan{{
		Index:       1,
		Action:      ActionAnalyzeQuery,
		Description: "Analyze and answer: " + query,
	}}
}

// executePlan runs steps in order and stops at the first failed step
func (o *Orchestrator) executePlan(ctx context.Context, logger *zap.Logger, plan Plan, snippets []string, qc QueryContext, executionID string) *AnswerEnvelope {
	var env *AnswerEnvelope
	for _, step := range plan {
		env = o.executeStep(ctx, logger, step, snippets, qc, executionID)
		if env.Failed() {
			return env
		}
	}
	return env
}

func (o *Orchestrator) executeStep(ctx context.Context, logger *zap.Logger, step Step, snippets []string, qc QueryContext, executionID string) *AnswerEnvelope {
	req := providers.Request{
		Prompt:             buildPrompt(step.Description, snippets),
		Temperature:        o.cfg.Temperature,
		MaxTokens:          o.cfg.MaxOutputTokens,
		TenantID:           qc.TenantID,
		CredentialOverride: qc.CredentialOverride,
	}

	estimatedTokens := cost.EstimateTokens(req.Prompt) + req.MaxTokens
	if !o.gov.AllowTokens(qc.TenantID, estimatedTokens) {
		o.metrics.ObserveBudgetDenial("token")
		return deniedEnvelope(answerTokenBudgetExceeded, services.ErrTokenBudgetExceeded)
	}

	model := o.pricing.SelectModel(o.cfg.MaxModelBudget, o.cfg.Quality)
	estimatedCost := o.pricing.EstimateCost(model, estimatedTokens)
	reservation, check := o.gov.Ledger.Reserve(qc.TenantID, estimatedCost)
	if reservation == nil {
		logger.Info("cost budget exceeded",
			zap.String("model", model),
			zap.Float64("estimated_cost", estimatedCost),
			zap.String("reason", check.ViolationReason))
		o.metrics.ObserveBudgetDenial("cost")
		return deniedEnvelope(answerCostBudgetExceeded, services.ErrCostBudgetExceeded)
	}

	outcome := o.routeReleasing(ctx, reservation, req)
	if !outcome.Succeeded() {
		reservation.Release()
		logger.Error("routing failed", zap.Error(outcome.Err))
		resp := routing.DegradedResponse()
		return &AnswerEnvelope{
			Answer:     resp.Answer,
			Confidence: resp.Confidence,
			Metadata:   &Metadata{ExecutionID: executionID, Model: resp.Model, Provider: resp.Provider},
			Error:      resp.ErrorCode,
			Detail:     outcome.Err.Error(),
		}
	}

	resp := outcome.Response
	billed := resp.EstimatedCost
	if billed <= 0 {
		billed = estimatedCost
	}
	reservation.Commit(billed)
	o.recordUsage(ctx, logger, executionID, qc, resp, billed)

	return &AnswerEnvelope{
		Answer:     resp.Answer,
		Confidence: resp.Confidence,
		Metadata: &Metadata{
			ExecutionID:     executionID,
			Model:           resp.Model,
			Provider:        resp.Provider,
			TokensUsed:      resp.TokensUsed,
			EstimatedCost:   billed,
			ContextSnippets: len(snippets),
		},
	}
}

// routeReleasing calls the router and returns the reservation if it panics
func (o *Orchestrator) routeReleasing(ctx context.Context, reservation *budget.Reservation, req providers.Request) routing.Outcome {
	defer func() {
		if r := recover(); r != nil {
			reservation.Release()
			panic(r)
		}
	}()
	return o.router.Route(ctx, req)
}

func (o *Orchestrator) recordUsage(ctx context.Context, logger *zap.Logger, executionID string, qc QueryContext, resp *providers.Response, billed float64) {
	if o.usage == nil {
		return
	}
	rec := &models.UsageRecord{
		ExecutionID: executionID,
		TenantID:    qc.TenantID,
		UserID:      qc.UserID,
		Provider:    resp.Provider,
		Model:       resp.Model,
		TokensUsed:  resp.TokensUsed,
		Cost:        billed,
	}
	if err := o.usage.RecordUsage(ctx, rec); err != nil {
		logger.Warn("usage journal write failed", zap.Error(err))
		o.metrics.ObserveBackendFailure("usage_journal", "postgres")
	}
}

// storeResult writes the exchange back to memory with PII redacted; failures are logged only
func (o *Orchestrator) storeResult(ctx context.Context, logger *zap.Logger, query string, env *AnswerEnvelope, qc QueryContext) {
	if qc.UserID == "" {
		return
	}
	text := memory.RedactPII(fmt.Sprintf("Query: %s\nAnswer: %s", query, env.Answer))

	if o.memory != nil {
		if err := o.memory.Store(ctx, qc.UserID, text); err != nil {
			logger.Warn("memory store failed", zap.Error(err))
			o.metrics.ObserveBackendFailure("memory", "store")
		}
	}
	if o.history != nil {
		it := models.NewInteraction(qc.UserID, qc.TenantID, memory.RedactPII(query), memory.RedactPII(env.Answer), text, o.now())
		if err := o.history.AddInteraction(ctx, it); err != nil {
			logger.Warn("session history write failed", zap.Error(err))
			o.metrics.ObserveBackendFailure("memory", "history")
		}
	}
}

// buildPrompt prefixes the step description with remembered context, if any
func buildPrompt(description string, snippets []string) string {
	if len(snippets) == 0 {
		return description
	}
	var b strings.Builder
	b.WriteString("Relevant context from earlier questions:\n")
	for _, s := range snippets {
		b.WriteString("- ")
		b.WriteString(strings.ReplaceAll(s, "\n", " "))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(description)
	return b.String()
}

func deniedEnvelope(answer string, err *services.DomainError) *AnswerEnvelope {
	return &AnswerEnvelope{
		Answer:     answer,
		Confidence: 0,
		Error:      err.Code,
		Detail:     err.Message,
	}
}

func internalEnvelope(err error) *AnswerEnvelope {
	return &AnswerEnvelope{
		Answer:     answerInternalError,
		Confidence: 0,
		Error:      services.CodeInternal,
		Detail:     err.Error(),
	}
}
