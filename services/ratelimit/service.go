package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"github.com/upb/llm-governance/internal/observability"
	"go.uber.org/zap"
)

const (
	// DefaultLimit is the request ceiling used when a caller passes a non-positive limit
	DefaultLimit = 100
	// DefaultWindow is the counter lifetime used when a caller passes a non-positive window
	DefaultWindow = time.Minute

	backendRedis  = "redis"
	backendMemory = "memory"
)

// incrScript increments the counter and arms its expiry on the first hit only,
// so the window is fixed from the first request.
var incrScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
    redis.call('EXPIRE', KEYS[1], ARGV[1])
end
return count
`)

// RateLimitResult represents the outcome of one admission check
type RateLimitResult struct {
	Allowed           bool
	Count             int64
	RequestsRemaining int
	Backend           string
	ViolationReason   string
}

// Service is a fixed-window request counter keyed by caller identity.
// Redis is the primary store; a process-local go-cache counter takes over
// when Redis is not configured or fails. Every decision fails open.
type Service struct {
	client   *redis.Client
	fallback *cache.Cache
	mu       sync.Mutex
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewService creates a rate limiter. client may be nil, in which case all
// counting happens in process.
func NewService(client *redis.Client, metrics *observability.Metrics, logger *zap.Logger) *Service {
	return &Service{
		client:   client,
		fallback: cache.New(DefaultWindow, 2*DefaultWindow),
		metrics:  metrics,
		logger:   logger,
	}
}

// NewRedisClient parses a redis:// URL and verifies the server answers PING.
func NewRedisClient(ctx context.Context, url string, dialTimeout time.Duration) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if dialTimeout > 0 {
		opts.DialTimeout = dialTimeout
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// AllowRequest reports whether one more request under key fits the limit
func (s *Service) AllowRequest(ctx context.Context, key string, limit int, window time.Duration) bool {
	return s.Check(ctx, key, limit, window).Allowed
}

// Check counts one request under key and returns the decision with details
func (s *Service) Check(ctx context.Context, key string, limit int, window time.Duration) (result *RateLimitResult) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("rate limit check panicked, allowing request",
				zap.String("key", key),
				zap.Any("panic", r))
			result = &RateLimitResult{Allowed: true, RequestsRemaining: limit, Backend: "none"}
		}
		s.metrics.ObserveAdmission(result.Backend, result.Allowed)
	}()

	if s.client != nil {
		count, err := s.incrRedis(ctx, key, window)
		if err == nil {
			return decide(count, limit, backendRedis)
		}
		s.logger.Warn("redis rate limit failed, using in-process counter",
			zap.String("key", key),
			zap.Error(err))
		s.metrics.ObserveBackendFailure("ratelimit", backendRedis)
	}

	count, err := s.incrMemory(key, window)
	if err != nil {
		s.logger.Error("in-process rate limit failed, allowing request",
			zap.String("key", key),
			zap.Error(err))
		s.metrics.ObserveBackendFailure("ratelimit", backendMemory)
		return &RateLimitResult{Allowed: true, RequestsRemaining: limit, Backend: backendMemory}
	}
	return decide(count, limit, backendMemory)
}

// Reset clears the counter for key in both stores
func (s *Service) Reset(ctx context.Context, key string) error {
	s.mu.Lock()
	s.fallback.Delete(key)
	s.mu.Unlock()

	if s.client == nil {
		return nil
	}
	if err := s.client.Del(ctx, key).Err(); err != nil {
		s.logger.Error("failed to reset rate limit", zap.String("key", key), zap.Error(err))
		s.metrics.ObserveBackendFailure("ratelimit", backendRedis)
		return fmt.Errorf("failed to reset rate limit for %s: %w", key, err)
	}
	return nil
}

// GetRemaining returns how many requests key may still make in its current
// window. It never increments. On a store failure the full limit is returned.
func (s *Service) GetRemaining(ctx context.Context, key string, limit int) int {
	if limit <= 0 {
		limit = DefaultLimit
	}

	if s.client != nil {
		raw, err := s.client.Get(ctx, key).Result()
		switch {
		case errors.Is(err, redis.Nil):
			return limit
		case err != nil:
			s.logger.Warn("failed to read rate limit counter", zap.String("key", key), zap.Error(err))
			s.metrics.ObserveBackendFailure("ratelimit", backendRedis)
		default:
			count, convErr := strconv.ParseInt(raw, 10, 64)
			if convErr != nil {
				return limit
			}
			return remaining(count, limit)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if v, found := s.fallback.Get(key); found {
		if count, ok := v.(int64); ok {
			return remaining(count, limit)
		}
	}
	return limit
}

// Ping checks the Redis connection; it is a no-op without Redis
func (s *Service) Ping(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Ping(ctx).Err()
}

// Backend names the store currently used for counting
func (s *Service) Backend() string {
	if s.client == nil {
		return backendMemory
	}
	return backendRedis
}

// Close releases the Redis connection
func (s *Service) Close() error {
	s.fallback.Flush()
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *Service) incrRedis(ctx context.Context, key string, window time.Duration) (int64, error) {
	seconds := int64(window / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	return incrScript.Run(ctx, s.client, []string{key}, seconds).Int64()
}

func (s *Service) incrMemory(key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, found := s.fallback.Get(key); !found {
		s.fallback.Set(key, int64(1), window)
		return 1, nil
	}
	// IncrementInt64 keeps the expiry set on the first hit
	return s.fallback.IncrementInt64(key, 1)
}

func decide(count int64, limit int, backend string) *RateLimitResult {
	res := &RateLimitResult{
		Allowed:           count <= int64(limit),
		Count:             count,
		RequestsRemaining: remaining(count, limit),
		Backend:           backend,
	}
	if !res.Allowed {
		res.ViolationReason = fmt.Sprintf("request limit exceeded: %d/%d", count, limit)
	}
	return res
}

func remaining(count int64, limit int) int {
	return int(max(0, int64(limit)-count))
}
