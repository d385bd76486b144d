package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	ometrics "github.com/Kocoro-lab/Shannon/go/prosearch/internal/metrics"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateLimiter limits /chat per user id. With Redis it counts requests in fixed one-minute
// windows shared across replicas; without Redis each user gets an in-process token bucket.
type RateLimiter struct {
	redis  *redis.Client
	logger *zap.Logger
	now    func() time.Time

	requestsPerMinute int
	burst             int

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

// NewRateLimiter builds a limiter. rdb may be nil. A non-positive rpm disables limiting.
func NewRateLimiter(rdb *redis.Client, requestsPerMinute, burst int, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		redis:             rdb,
		logger:            logger,
		now:               time.Now,
		requestsPerMinute: requestsPerMinute,
		burst:             burst,
		buckets:           make(map[string]*rate.Limiter),
	}
}

// Middleware must run after RequireCredentials.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		creds, ok := CredentialsFrom(r.Context())
		if !ok || rl.requestsPerMinute <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		allowed, remaining, resetAt := rl.allow(r.Context(), creds.UserID)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.requestsPerMinute))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if !allowed {
			rl.logger.Warn("Rate limit exceeded",
				zap.String("user_id", creds.UserID),
				zap.String("path", r.URL.Path),
			)
			ometrics.RateLimited.Inc()
			retry := int(resetAt.Sub(rl.now()).Seconds() + 0.5)
			if retry < 1 {
				retry = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			writeError(w, http.StatusTooManyRequests, "Rate limit exceeded",
				"Too many requests. Please retry after the rate limit window resets.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) allow(ctx context.Context, userID string) (bool, int, time.Time) {
	if rl.redis != nil {
		return rl.checkRedis(ctx, "ratelimit:user:"+userID)
	}
	return rl.checkLocal(userID)
}

func (rl *RateLimiter) checkRedis(ctx context.Context, key string) (allowed bool, remaining int, resetAt time.Time) {
	window := rl.now().Truncate(time.Minute)
	resetAt = window.Add(time.Minute)
	windowKey := fmt.Sprintf("%s:%d", key, window.Unix())

	pipe := rl.redis.Pipeline()
	incr := pipe.Incr(ctx, windowKey)
	pipe.Expire(ctx, windowKey, time.Minute+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		// fail open
		rl.logger.Error("Rate limit check failed", zap.Error(err))
		return true, rl.requestsPerMinute, resetAt
	}

	count := incr.Val()
	remaining = max(rl.requestsPerMinute-int(count), 0)
	return count <= int64(rl.requestsPerMinute), remaining, resetAt
}

func (rl *RateLimiter) checkLocal(userID string) (bool, int, time.Time) {
	rl.mu.Lock()
	lim, ok := rl.buckets[userID]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(float64(rl.requestsPerMinute)/60.0), rl.burst)
		rl.buckets[userID] = lim
	}
	rl.mu.Unlock()

	now := rl.now()
	allowed := lim.AllowN(now, 1)
	remaining := max(int(lim.TokensAt(now)), 0)
	perToken := time.Duration(float64(time.Minute) / float64(rl.requestsPerMinute))
	return allowed, remaining, now.Add(perToken)
}
