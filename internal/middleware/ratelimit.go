package middleware

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	apierrors "github.com/zfogg/snapgram/internal/errors"
	"github.com/zfogg/snapgram/internal/logger"
	"github.com/zfogg/snapgram/internal/util"
	"go.uber.org/zap"
)

// RateLimitConfig holds configuration for rate limiting
type RateLimitConfig struct {
	// Requests per window
	Limit int
	// Window duration
	Window time.Duration
}

// AuthRateLimitConfig returns the limits for login and registration
func AuthRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Limit:  10,
		Window: time.Minute,
	}
}

// Limiter decides whether key may make another request
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, time.Duration, error)
}

// RateLimit rejects clients that exceed the limiter with 429. A limiter
// error rejects with 503 rather than letting the request through.
func RateLimit(limiter Limiter, cfg RateLimitConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()

		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		allowed, retryAfter, err := limiter.Allow(ctx, clientIP)
		cancel()

		if err != nil {
			logger.Log.Error("Rate limit check failed - rejecting request",
				logger.WithIP(clientIP),
				zap.Error(err),
			)
			util.RespondWithAPIError(c, apierrors.ServiceUnavailable("rate limiter"))
			c.Abort()
			return
		}
		if !allowed {
			seconds := int(math.Ceil(retryAfter.Seconds()))
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", strconv.Itoa(seconds))
			c.Header("X-RateLimit-Limit", strconv.Itoa(cfg.Limit))
			c.Header("X-RateLimit-Remaining", "0")
			util.RespondWithAPIError(c, apierrors.New(apierrors.ErrRateLimited, "rate limit exceeded"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// tokenBucket refills continuously at refillRate tokens per second
type tokenBucket struct {
	tokens     float64
	lastRefill time.Time
}

// MemoryLimiter keeps one token bucket per key in process memory
type MemoryLimiter struct {
	mu         sync.Mutex
	buckets    map[string]*tokenBucket
	maxTokens  float64
	refillRate float64
	idle       time.Duration
	lastSweep  time.Time
	now        func() time.Time
}

// NewMemoryLimiter creates a limiter allowing cfg.Limit requests per cfg.Window
func NewMemoryLimiter(cfg RateLimitConfig) *MemoryLimiter {
	return &MemoryLimiter{
		buckets:    make(map[string]*tokenBucket),
		maxTokens:  float64(cfg.Limit),
		refillRate: float64(cfg.Limit) / cfg.Window.Seconds(),
		idle:       cfg.Window,
		now:        time.Now,
	}
}

// Allow takes a token from key's bucket
func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	b, ok := l.buckets[key]
	if !ok {
		b = &tokenBucket{tokens: l.maxTokens, lastRefill: now}
		l.buckets[key] = b
	}

	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens = math.Min(l.maxTokens, b.tokens+elapsed*l.refillRate)
	b.lastRefill = now

	if b.tokens >= 1 {
		b.tokens--
		return true, 0, nil
	}
	wait := time.Duration((1 - b.tokens) / l.refillRate * float64(time.Second))
	return false, wait, nil
}

// sweep drops buckets that have been idle long enough to be full again
func (l *MemoryLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.idle {
		return
	}
	l.lastSweep = now
	for key, b := range l.buckets {
		if now.Sub(b.lastRefill) >= l.idle {
			delete(l.buckets, key)
		}
	}
}

// RedisLimiter is a fixed-window counter shared by every instance
type RedisLimiter struct {
	client *redis.Client
	cfg    RateLimitConfig
	prefix string
}

// NewRedisLimiter creates a limiter storing counters under prefix
func NewRedisLimiter(client *redis.Client, prefix string, cfg RateLimitConfig) *RedisLimiter {
	return &RedisLimiter{client: client, cfg: cfg, prefix: prefix}
}

// Allow increments key's counter for the current window
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	redisKey := fmt.Sprintf("%s:%s", l.prefix, key)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.ExpireNX(ctx, redisKey, l.cfg.Window)
	ttl := pipe.PTTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("redis rate limit: %w", err)
	}

	if incr.Val() > int64(l.cfg.Limit) {
		return false, ttl.Val(), nil
	}
	return true, 0, nil
}
