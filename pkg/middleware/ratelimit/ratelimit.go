// Package ratelimit throttles API callers with per key token buckets.
package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/nimburion/storefront/pkg/auth"
	"github.com/nimburion/storefront/pkg/middleware"
	"github.com/nimburion/storefront/pkg/server/router"
)

// RateLimiter decides whether a request for key may proceed.
// Implementations must be safe for concurrent use.
type RateLimiter interface {
	Allow(key string) bool
}

// TokenBucketLimiter keeps one token bucket per key.
//
// The bucket allows bursts up to burst requests while holding the average at
// requestsPerSecond.
type TokenBucketLimiter struct {
	limiters sync.Map // map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// NewTokenBucketLimiter creates a new token bucket rate limiter.
//
// Example:
//
//	limiter := NewTokenBucketLimiter(50, 100) // 50 req/s, burst of 100
//	if !limiter.Allow("ip:10.0.0.1") {
//	    // reject with 429
//	}
func NewTokenBucketLimiter(requestsPerSecond float64, burst int) *TokenBucketLimiter {
	return &TokenBucketLimiter{
		rate:  rate.Limit(requestsPerSecond),
		burst: burst,
	}
}

// Allow consumes a token from the bucket of key.
func (l *TokenBucketLimiter) Allow(key string) bool {
	return l.getLimiter(key).Allow()
}

func (l *TokenBucketLimiter) getLimiter(key string) *rate.Limiter {
	if limiter, ok := l.limiters.Load(key); ok {
		return limiter.(*rate.Limiter)
	}
	limiter, _ := l.limiters.LoadOrStore(key, rate.NewLimiter(l.rate, l.burst))
	return limiter.(*rate.Limiter)
}

// Config defines the configuration for rate limiting middleware.
type Config struct {
	// KeyFunc extracts the bucket key. Defaults to ClientKey.
	KeyFunc func(router.Context) string
	// ExcludedPathPrefixes are never throttled, such as health probes.
	ExcludedPathPrefixes []string
}

// RateLimit rejects requests over the limit with 429 and a Retry-After header.
func RateLimit(limiter RateLimiter, cfg Config) router.MiddlewareFunc {
	keyFunc := cfg.KeyFunc
	if keyFunc == nil {
		keyFunc = ClientKey
	}
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			path := c.Request().URL.Path
			for _, prefix := range cfg.ExcludedPathPrefixes {
				if prefix != "" && strings.HasPrefix(path, prefix) {
					return next(c)
				}
			}

			if limiter.Allow(keyFunc(c)) {
				return next(c)
			}
			c.Response().Header().Set("Retry-After", "1")
			return c.JSON(http.StatusTooManyRequests, map[string]any{
				"error":      "rate_limited",
				"code":       "rate_limited",
				"message":    "rate limit exceeded",
				"request_id": middleware.RequestIDFrom(c.Request().Context()),
			})
		}
	}
}

// ClientKey keys authenticated callers by user id and everyone else by IP.
func ClientKey(c router.Context) string {
	if id := ExtractUserIDFromContext(c); id != "" {
		return "user:" + id
	}
	return "ip:" + ExtractIPFromRequest(c.Request())
}

// ExtractIPFromRequest returns the client IP, preferring the first
// X-Forwarded-For hop, then X-Real-IP, then RemoteAddr.
func ExtractIPFromRequest(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ExtractUserIDFromContext returns the token subject of the caller, or "".
func ExtractUserIDFromContext(c router.Context) string {
	if claims := auth.GetClaims(c.Request().Context()); claims != nil {
		return claims.Subject
	}
	return ""
}
