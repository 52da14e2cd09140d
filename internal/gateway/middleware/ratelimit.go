package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/auth/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/respond"
)

// RateLimit enforces each key's configured requests-per-minute budget.
// Key identity comes from the request context, so Auth must sit earlier
// in the chain. Requests without key info pass through untouched:
// rejecting anonymous callers is Auth's job, and health probes carry no
// key at all.
func RateLimit(limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/health") {
				next.ServeHTTP(w, r)
				return
			}

			info := GetKeyInfo(r.Context())
			if info == nil {
				next.ServeHTTP(w, r)
				return
			}

			if !limiter.Allow(info.ID, info.RateLimit) {
				w.Header().Set("Retry-After", retryAfterSeconds(limiter, info))
				respond.Error(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// retryAfterSeconds reports how long the caller should wait for the window
// to free a slot, rounded up so clients never retry too early.
func retryAfterSeconds(limiter *ratelimit.Limiter, info *apikey.KeyInfo) string {
	wait := limiter.RetryAfter(info.ID, info.RateLimit)
	secs := int((wait + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
