package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/kiranshivaraju/dealerdial/internal/api/response"
	"github.com/kiranshivaraju/dealerdial/internal/cache"
)

const (
	defaultRequestsPerMinute = 60
	defaultAnalyzePerHour    = 20
)

// Counter is the cache operation the limiter needs.
type Counter interface {
	IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error)
}

// RateLimit provides fixed-window rate limiting via Redis.
type RateLimit struct {
	cache          Counter
	requestsPerMin int
	analyzePerHour int
}

// NewRateLimit creates a new RateLimit middleware. Non-positive limits fall
// back to the defaults.
func NewRateLimit(c Counter, requestsPerMin, analyzePerHour int) *RateLimit {
	if requestsPerMin <= 0 {
		requestsPerMin = defaultRequestsPerMinute
	}
	if analyzePerHour <= 0 {
		analyzePerHour = defaultAnalyzePerHour
	}
	return &RateLimit{cache: c, requestsPerMin: requestsPerMin, analyzePerHour: analyzePerHour}
}

// Limit applies the per-minute request limit keyed by the API key prefix.
func (rl *RateLimit) Limit(next http.Handler) http.Handler {
	return rl.window(next, cache.RateLimitKey, rl.requestsPerMin, time.Minute,
		"RATE_LIMIT_EXCEEDED", "Too many requests")
}

// AnalyzeQuota caps how many outreach runs one API key may start per hour.
// Every run places real calls, so it is metered separately from Limit.
func (rl *RateLimit) AnalyzeQuota(next http.Handler) http.Handler {
	return rl.window(next, cache.AnalyzeQuotaKey, rl.analyzePerHour, time.Hour,
		"ANALYZE_QUOTA_EXCEEDED", "Too many analysis runs started this hour")
}

func (rl *RateLimit) window(next http.Handler, keyFn func(string) string, limit int, window time.Duration, code, msg string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		prefix, ok := GetKeyPrefix(r)
		if !ok {
			// No key prefix means auth middleware didn't run; pass through
			next.ServeHTTP(w, r)
			return
		}

		count, err := rl.cache.IncrWithExpiry(r.Context(), keyFn(prefix), window)
		if err != nil {
			// Fail open on Redis errors
			slog.Warn("rate limit counter unavailable", "key_prefix", prefix, "error", err)
			next.ServeHTTP(w, r)
			return
		}

		remaining := limit - int(count)
		if remaining < 0 {
			remaining = 0
		}
		resetTime := time.Now().Add(window).Unix()

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetTime, 10))

		if count > int64(limit) {
			w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
			response.Error(w, http.StatusTooManyRequests, code, msg, nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}
