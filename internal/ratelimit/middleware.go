package ratelimit

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/agentpay/agentpay/internal/auth"
)

// Middleware returns an HTTP middleware that enforces the per-agent rate
// limit. It expects an authenticated agent in the request context (set by
// auth.AgentAuthMiddleware). onReject callbacks fire when a request is
// refused, for audit logging and metrics.
func Middleware(limiter *Limiter, onReject ...func(r *http.Request, count int64)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			agent := auth.AgentFromContext(r.Context())
			if agent == nil {
				// No agent in context; skip rate limiting.
				next.ServeHTTP(w, r)
				return
			}

			allowed, count, err := limiter.Allow(r.Context(), agent.ID)
			if err != nil {
				// A broken limiter store must not take the API down.
				next.ServeHTTP(w, r)
				return
			}

			remaining := int64(limiter.Limit()) - count
			if remaining < 0 {
				remaining = 0
			}
			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", limiter.Limit()))
			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))

			if !allowed {
				for _, fn := range onReject {
					fn(r, count)
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]interface{}{
					"error": map[string]interface{}{
						"code":        "rate_limited",
						"message":     "Rate limit exceeded. Try again later.",
						"retry_after": int(limiter.Window().Seconds()),
					},
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
