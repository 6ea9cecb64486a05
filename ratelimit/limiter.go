// Package ratelimit throttles abusive clients. It is never relied on for
// correctness, so every limiter failure lets the request through.
package ratelimit

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"

	"eventpass-backend/models"
	"eventpass-backend/monitoring"
)

type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// KeyFunc picks the identity a request is counted against.
type KeyFunc func(r *http.Request) string

// ClientIP keys on the remote address. Run it behind chi's RealIP middleware.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Middleware rejects requests over the limit with 429.
func Middleware(limiter Limiter, route string, key KeyFunc, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, err := limiter.Allow(r.Context(), route+":"+key(r))
			if err != nil {
				logger.Warn("rate limiter unavailable, allowing request", "route", route, "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				monitoring.RecordRateLimitRejection(route)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(models.ErrorResponse{
					Error:   "RATE_LIMITED",
					Message: "Too many requests. Please try again later.",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
