package routing

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/upb/llm-governance/config"
	"github.com/upb/llm-governance/internal/observability"
	"github.com/upb/llm-governance/services"
	"github.com/upb/llm-governance/services/cost"
	"github.com/upb/llm-governance/services/providers"
	"go.uber.org/zap"
)

const (
	// DegradedAnswer is returned to callers when no provider produced a response
	DegradedAnswer = "LLM routing failed. Please retry later."

	noProvider = "none"
)

// Config holds the retry schedule
type Config struct {
	// MaxRetries is the number of attempts per provider, at least 1
	MaxRetries int

	// BaseDelay is the first backoff; attempt n sleeps BaseDelay*2^n plus jitter
	BaseDelay time.Duration

	// Jitter is the exclusive upper bound of the uniform random addition
	Jitter time.Duration
}

// ConfigFrom extracts the retry schedule from the governance settings
func ConfigFrom(g config.GovernanceConfig) Config {
	return Config{
		MaxRetries: g.MaxRetries,
		BaseDelay:  g.RetryBaseDelay,
		Jitter:     g.RetryJitter,
	}
}

// Sleeper waits between attempts. Implementations must return early with
// ctx.Err() when ctx is done.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc adapts a function to Sleeper
type SleeperFunc func(ctx context.Context, d time.Duration) error

// Sleep implements Sleeper
func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error {
	return f(ctx, d)
}

// ContextSleeper sleeps on a timer and aborts when the context is done
var ContextSleeper Sleeper = SleeperFunc(func(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
})

// OutcomeKind tags an Outcome
type OutcomeKind int

const (
	// OutcomeSuccess means Response holds a provider answer
	OutcomeSuccess OutcomeKind = iota
	// OutcomeExhausted means every provider was skipped or ran out of attempts
	OutcomeExhausted
)

// String implements fmt.Stringer
func (k OutcomeKind) String() string {
	if k == OutcomeSuccess {
		return "success"
	}
	return "exhausted"
}

// Outcome is the router's tagged result. Exactly one of Response and Err is set.
type Outcome struct {
	Kind     OutcomeKind
	Response *providers.Response
	Err      error
	Skipped  []string
	Attempts int
}

// Succeeded reports whether the outcome carries a response
func (o Outcome) Succeeded() bool {
	return o.Kind == OutcomeSuccess
}

// Router tries providers cheapest-first, skipping those whose estimate
// exceeds their ceiling and retrying transient failures with backoff.
type Router struct {
	catalog *providers.Catalog
	pricing *cost.Model
	cfg     Config
	sleeper Sleeper
	jitter  func(ceiling time.Duration) time.Duration
	metrics *observability.Metrics
	logger  *zap.Logger
}

// Option configures a Router
type Option func(*Router)

// WithSleeper replaces the timer-based sleeper
func WithSleeper(s Sleeper) Option {
	return func(r *Router) { r.sleeper = s }
}

// WithJitter replaces the random jitter source
func WithJitter(fn func(ceiling time.Duration) time.Duration) Option {
	return func(r *Router) { r.jitter = fn }
}

// WithPricing replaces the default price table
func WithPricing(m *cost.Model) Option {
	return func(r *Router) { r.pricing = m }
}

// NewRouter creates a router over catalog
func NewRouter(catalog *providers.Catalog, cfg Config, metrics *observability.Metrics, logger *zap.Logger, opts ...Option) *Router {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	r := &Router{
		catalog: catalog,
		pricing: cost.Default(),
		cfg:     cfg,
		sleeper: ContextSleeper,
		jitter:  uniformJitter,
		metrics: metrics,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route returns the first successful provider response, or an exhausted
// outcome once every candidate has been skipped or has failed.
func (r *Router) Route(ctx context.Context, req providers.Request) Outcome {
	tokens := cost.EstimateTokens(req.Prompt) + req.MaxTokens
	if tokens <= 0 {
		tokens = cost.DefaultTokenEstimate
	}

	out := Outcome{Kind: OutcomeExhausted}
	var lastErr error

	for _, desc := range r.catalog.Ordered() {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}

		estimate := r.pricing.EstimateCost(desc.PricingModel, tokens)
		if estimate > desc.CostCeiling {
			r.logger.Info("skipping provider over cost ceiling",
				zap.String("provider", desc.Name),
				zap.Float64("estimated_cost", estimate),
				zap.Float64("cost_ceiling", desc.CostCeiling))
			r.metrics.ObserveProviderSkip(desc.Name)
			out.Skipped = append(out.Skipped, desc.Name)
			continue
		}

		adapter, err := r.catalog.Adapter(desc.Name)
		if err != nil {
			lastErr = err
			continue
		}

		r.logger.Info("routing request",
			zap.String("provider", desc.Name),
			zap.String("tenant_id", req.TenantID),
			zap.Float64("estimated_cost", estimate))

		resp, attempts, err := r.callWithRetries(ctx, desc.Name, adapter, req)
		out.Attempts += attempts
		if err != nil {
			r.logger.Error("provider exhausted",
				zap.String("provider", desc.Name),
				zap.Int("attempts", attempts),
				zap.Error(err))
			lastErr = err
			continue
		}

		resp.EstimatedCost = estimate
		r.metrics.ObserveRouting(desc.Name, OutcomeSuccess.String(), estimate)
		out.Kind = OutcomeSuccess
		out.Response = resp
		return out
	}

	if lastErr == nil {
		lastErr = errors.New("no provider within cost ceiling")
	}
	out.Err = services.ErrRoutingFailed.Wrap(lastErr)
	r.metrics.ObserveRouting(noProvider, OutcomeExhausted.String(), 0)
	return out
}

// RouteRequest is Route with the exhausted case folded into the degraded
// response. It never returns nil.
func (r *Router) RouteRequest(ctx context.Context, req providers.Request) *providers.Response {
	out := r.Route(ctx, req)
	if out.Succeeded() {
		return out.Response
	}
	return DegradedResponse()
}

// DegradedResponse is the terminal response when routing fails
func DegradedResponse() *providers.Response {
	return &providers.Response{
		Answer:     DegradedAnswer,
		Model:      noProvider,
		TokensUsed: 0,
		Confidence: 0,
		Provider:   noProvider,
		ErrorCode:  services.CodeRoutingFailed,
	}
}

// callWithRetries runs one provider's attempt loop. Each iteration either
// returns a response, stops on a permanent failure, or backs off and tries
// again until MaxRetries attempts were made.
func (r *Router) callWithRetries(ctx context.Context, name string, adapter providers.Adapter, req providers.Request) (*providers.Response, int, error) {
	var lastErr error
	for attempt := 0; attempt < r.cfg.MaxRetries; attempt++ {
		start := time.Now()
		resp, err := adapter.Run(ctx, req)
		if err == nil && resp == nil {
			err = providers.NewClassifiedError(name, providers.KindInvalidResponse, 0, "empty response", false, nil)
		}
		if err == nil {
			r.metrics.ObserveProviderAttempt(name, "success", time.Since(start))
			return resp, attempt + 1, nil
		}

		lastErr = err
		r.metrics.ObserveProviderAttempt(name, string(providers.KindOf(err)), time.Since(start))

		if !providers.IsRetryable(err) {
			r.logger.Warn("permanent provider failure, not retrying",
				zap.String("provider", name),
				zap.Int("attempt", attempt+1),
				zap.Error(err))
			return nil, attempt + 1, err
		}
		if attempt == r.cfg.MaxRetries-1 {
			break
		}

		delay := r.backoff(attempt)
		r.logger.Warn("provider attempt failed, retrying",
			zap.String("provider", name),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", r.cfg.MaxRetries),
			zap.Duration("backoff", delay),
			zap.Error(err))
		r.metrics.ObserveBackoff(delay)

		if err := r.sleeper.Sleep(ctx, delay); err != nil {
			return nil, attempt + 1, fmt.Errorf("backoff interrupted: %w", err)
		}
	}
	return nil, r.cfg.MaxRetries, lastErr
}

// maxBackoff bounds a single retry wait, jitter excluded.
const (
	maxBackoffShift = 16
	maxBackoff      = time.Minute
)

// backoff returns BaseDelay*2^attempt, capped at maxBackoff, plus jitter in [0, Jitter)
func (r *Router) backoff(attempt int) time.Duration {
	d := r.cfg.BaseDelay << min(max(attempt, 0), maxBackoffShift)
	if d < 0 || d > maxBackoff {
		d = maxBackoff
	}
	if r.cfg.Jitter > 0 {
		d += r.jitter(r.cfg.Jitter)
	}
	return d
}

func uniformJitter(ceiling time.Duration) time.Duration {
	if ceiling <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(ceiling)))
}
