package middleware

import (
	"math"
	"net/http"
	"strconv"

	"servlite/pkg/httpx"
	"servlite/pkg/logger"
	"servlite/pkg/ratelimit"
	"servlite/pkg/telemetry"
)

// RateLimit returns a middleware performing per-client admission control
// against pool. The identity is the X-Client-ID header when present,
// otherwise the client IP. A denied request short-circuits with 429 and a
// Retry-After header computed from the bucket's refill rate.
func RateLimit(pool *ratelimit.Pool) httpx.Middleware {
	return func(next httpx.Handler) httpx.Handler {
		return func(r *httpx.Request) (*httpx.Response, error) {
			id := r.Header.Get("X-Client-ID")
			if id == "" {
				id = r.ClientIP()
			}
			ok, retryAfter := pool.Admit(id)
			if !ok {
				secs := int64(math.Ceil(retryAfter.Seconds()))
				if secs < 1 {
					secs = 1
				}
				resp := httpx.Error(http.StatusTooManyRequests, "rate limit exceeded")
				resp.SetHeader("Retry-After", strconv.FormatInt(secs, 10))
				telemetry.RateLimited.Inc()
				logger.Warn("rate_limited", "identity", id, "path", r.Path, "retry_after_s", secs)
				return resp, nil
			}
			return next(r)
		}
	}
}
