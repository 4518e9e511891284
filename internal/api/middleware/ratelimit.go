package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/kiranshivaraju/webgenie/internal/api/response"
	"github.com/kiranshivaraju/webgenie/internal/cache"
)

const (
	defaultRequestsPerMinute = 60
	rateWindow               = time.Minute
)

// RateLimit counts requests per client in fixed one-minute windows kept in
// the cache. When the cache is unreachable requests are let through.
type RateLimit struct {
	cache          cache.Cache
	requestsPerMin int
	now            func() time.Time
}

func NewRateLimit(c cache.Cache, requestsPerMin int) *RateLimit {
	if requestsPerMin <= 0 {
		requestsPerMin = defaultRequestsPerMinute
	}
	return &RateLimit{cache: c, requestsPerMin: requestsPerMin, now: time.Now}
}

func (rl *RateLimit) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl == nil || rl.cache == nil {
			next.ServeHTTP(w, r)
			return
		}

		now := rl.now()
		client := ClientID(r)
		count, err := rl.cache.IncrWithExpiry(r.Context(), cache.RateLimitKey(client, now, rateWindow), rateWindow)
		if err != nil {
			slog.Warn("rate limit unavailable", "client", client, "error", err)
			next.ServeHTTP(w, r)
			return
		}

		reset := now.Truncate(rateWindow).Add(rateWindow)
		remaining := max(rl.requestsPerMin-int(count), 0)

		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(rl.requestsPerMin))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

		if count > int64(rl.requestsPerMin) {
			retryAfter := int(reset.Sub(now).Seconds()) + 1
			h.Set("Retry-After", strconv.Itoa(retryAfter))
			response.Error(w, http.StatusTooManyRequests,
				"RATE_LIMIT_EXCEEDED", "Too many requests", map[string]int{"retry_after": retryAfter})
			return
		}

		next.ServeHTTP(w, r)
	})
}
