package middleware

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ayush/personal-library/internal/response"
)

const rateLimitPrefix = "ratelimit:"

// RateLimiter counts requests per client IP in fixed Redis windows. The IP is the
// request RemoteAddr, so it only reflects forwarding headers when the router trusts
// a proxy.
type RateLimiter struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
	log    *zap.Logger
	now    func() time.Time
}

func NewRateLimiter(rdb *redis.Client, limit int, window time.Duration, log *zap.Logger) *RateLimiter {
	return &RateLimiter{rdb: rdb, limit: limit, window: window, log: log, now: time.Now}
}

// Handler rejects clients over the limit with 429. When Redis cannot be reached the
// request is let through.
func (l *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		now := l.now()
		slot := now.UnixNano() / int64(l.window)
		reset := time.Unix(0, (slot+1)*int64(l.window))
		key := rateLimitPrefix + clientIP(r) + ":" + strconv.FormatInt(slot, 10)

		n, err := l.rdb.Incr(r.Context(), key).Result()
		if err != nil {
			l.log.Warn("rate limiter unavailable", zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}
		if n == 1 {
			if err := l.rdb.Expire(r.Context(), key, l.window).Err(); err != nil {
				l.log.Warn("rate limiter expire failed", zap.Error(err))
			}
		}

		remaining := l.limit - int(n)
		if remaining < 0 {
			remaining = 0
		}
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

		if int(n) > l.limit {
			retry := int(reset.Sub(now).Seconds() + 0.999)
			if retry < 1 {
				retry = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			response.Fail(w, http.StatusTooManyRequests, response.CodeRateLimited, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
