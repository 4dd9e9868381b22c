package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/AnshRaj112/somnia-backend/internal/metrics"
	"github.com/AnshRaj112/somnia-backend/pkg/clientip"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// OTPRateLimitWindow is the fixed window for code requests.
	OTPRateLimitWindow = 15 * time.Minute
	// OTPRateLimitMaxRequests is how many codes one IP may request per window.
	OTPRateLimitMaxRequests = 5
	// RateLimitKeyPrefix is the Redis key prefix for rate limiting
	RateLimitKeyPrefix = "ratelimit:otp:"
)

// OTPRateLimit caps how often a single IP can trigger code emails, shared
// across instances through Redis. Each request increments a counter whose
// TTL is set on first use. Redis failures let the request through.
type OTPRateLimit struct {
	client *redis.Client
	max    int64
	window time.Duration
	log    *zap.Logger
}

func NewOTPRateLimit(client *redis.Client, limit int64, window time.Duration, log *zap.Logger) *OTPRateLimit {
	if limit <= 0 {
		limit = OTPRateLimitMaxRequests
	}
	if window <= 0 {
		window = OTPRateLimitWindow
	}
	return &OTPRateLimit{client: client, max: limit, window: window, log: log}
}

func (l *OTPRateLimit) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		key := RateLimitKeyPrefix + clientip.RealClientIP(r)

		count, err := l.client.Incr(ctx, key).Result()
		if err == nil && count == 1 {
			err = l.client.Expire(ctx, key, l.window).Err()
		}
		if err != nil {
			l.log.Warn("otp rate limit unavailable", zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}
		reset, err := l.client.PTTL(ctx, key).Result()
		if err != nil || reset < 0 {
			reset = l.window
		}

		w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(l.max, 10))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(max(l.max-count, 0), 10))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(reset).Unix(), 10))

		if count > l.max {
			metrics.RateLimited.WithLabelValues("otp").Inc()
			retryAfter := int(reset.Round(time.Second).Seconds())
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"success":     false,
				"message":     "Too many code requests. Please try again later.",
				"retry_after": retryAfter,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"message": message,
	})
}
