package middleware

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RateLimit defines a request budget for an endpoint.
type RateLimit struct {
	Requests int64
	Window   time.Duration
}

// RateLimiter implements fixed-window rate limiting backed by Redis.
// Login is limited per IP; sends are limited per authenticated user.
type RateLimiter struct {
	client *redis.Client
	logger zerolog.Logger
	limits map[string]RateLimit
}

// NewRateLimiter creates a rate limiter. A nil client disables limiting,
// which is the local development mode without Redis.
func NewRateLimiter(client *redis.Client, logger zerolog.Logger) *RateLimiter {
	return &RateLimiter{
		client: client,
		logger: logger,
		limits: map[string]RateLimit{
			"POST /api/users/login": {10, time.Minute},
			"POST /api/users":       {5, time.Hour},
			"POST /api/chats":       {60, time.Minute},
		},
	}
}

// Middleware enforces the configured limits.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.client == nil {
			next.ServeHTTP(w, r)
			return
		}

		limit, ok := rl.matchLimit(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		key := "ip:" + RealIP(r) + ":" + r.Method + ":" + r.URL.Path
		count, err := rl.increment(r, key, limit.Window)
		if err != nil {
			// Redis trouble must not take the API down.
			rl.logger.Warn().Err(err).Msg("rate limit check failed")
			next.ServeHTTP(w, r)
			return
		}

		if count > limit.Requests {
			w.Header().Set("Retry-After", limit.Window.String())
			http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) matchLimit(r *http.Request) (RateLimit, bool) {
	limit, ok := rl.limits[r.Method+" "+r.URL.Path]
	if ok {
		return limit, true
	}
	// Message sends hit "POST /api/chats/{chatId}".
	if r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/api/chats/") {
		return rl.limits["POST /api/chats"], true
	}
	return RateLimit{}, false
}

func (rl *RateLimiter) increment(r *http.Request, key string, window time.Duration) (int64, error) {
	ctx := r.Context()
	pipe := rl.client.Pipeline()
	incr := pipe.Incr(ctx, "ratelimit:"+key)
	pipe.Expire(ctx, "ratelimit:"+key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// RealIP extracts the real client IP from headers or connection.
func RealIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return strings.TrimSpace(strings.Split(ip, ",")[0])
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
