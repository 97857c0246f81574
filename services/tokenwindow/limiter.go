// Package tokenwindow enforces per-tenant token ceilings over fixed time windows.
package tokenwindow

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultWindow is the window length used when none is configured.
const DefaultWindow = time.Minute

// window is one tenant's usage in the current window
type window struct {
	start      time.Time
	tokensUsed int
}

// Result represents the outcome of an Allow call
type Result struct {
	Allowed         bool
	TokensUsed      int
	TokensRemaining int
	ResetAt         time.Time
}

// Limiter tracks token usage per tenant. Reading, resetting, checking and
// incrementing a tenant's window happen inside one critical section.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window
	length  time.Duration
	now     func() time.Time
	logger  *zap.Logger
}

// Option configures a Limiter
type Option func(*Limiter)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// NewLimiter creates a limiter with the given window length
func NewLimiter(length time.Duration, logger *zap.Logger, opts ...Option) *Limiter {
	if length <= 0 {
		length = DefaultWindow
	}
	l := &Limiter{
		windows: make(map[string]*window),
		length:  length,
		now:     time.Now,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow admits requested tokens for tenant when they fit under limit in the
// current window. A denied request leaves the window untouched; negative
// requests are always denied.
func (l *Limiter) Allow(tenant string, requested, limit int) bool {
	return l.Check(tenant, requested, limit).Allowed
}

// Check is Allow with the window state after the decision
func (l *Limiter) Check(tenant string, requested, limit int) Result {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if requested < 0 {
		l.logger.Warn("negative token request denied",
			zap.String("tenant_id", tenant),
			zap.Int("requested", requested))
		return Result{TokensRemaining: l.remaining(tenant, limit, now)}
	}

	w, ok := l.windows[tenant]
	if !ok || now.Sub(w.start) >= l.length {
		w = &window{start: now}
		l.windows[tenant] = w
	}

	res := Result{ResetAt: w.start.Add(l.length)}
	if w.tokensUsed+requested > limit {
		res.TokensUsed = w.tokensUsed
		res.TokensRemaining = max(0, limit-w.tokensUsed)
		l.logger.Debug("token window exhausted",
			zap.String("tenant_id", tenant),
			zap.Int("requested", requested),
			zap.Int("used", w.tokensUsed),
			zap.Int("limit", limit))
		return res
	}

	w.tokensUsed += requested
	res.Allowed = true
	res.TokensUsed = w.tokensUsed
	res.TokensRemaining = limit - w.tokensUsed
	return res
}

// Remaining returns how many tokens tenant may still use in the current window
func (l *Limiter) Remaining(tenant string, limit int) int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.remaining(tenant, limit, now)
}

// remaining reads the window without resetting it. Caller holds mu.
func (l *Limiter) remaining(tenant string, limit int, now time.Time) int {
	w, ok := l.windows[tenant]
	if !ok || now.Sub(w.start) >= l.length {
		return limit
	}
	return max(0, limit-w.tokensUsed)
}

// Window returns the configured window length
func (l *Limiter) Window() time.Duration {
	return l.length
}
