// Package ratelimit caps API calls per caller. It protects the engine's own
// API surface; it is not one of the risk signals.
package ratelimit

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"warden/pkg/platform/httputil"
	"warden/pkg/requestcontext"
)

// PerCaller limits each caller to perMinute requests per minute, keyed by the
// client IP resolved by the metadata middleware.
func PerCaller(perMinute int) func(http.Handler) http.Handler {
	if perMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(
		perMinute,
		time.Minute,
		httprate.WithKeyFuncs(callerKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			httputil.WriteJSON(w, http.StatusTooManyRequests, map[string]string{
				"error": "rate_limit_exceeded",
			})
		}),
	)
}

func callerKey(r *http.Request) (string, error) {
	if ip := requestcontext.ClientIP(r.Context()); ip != "" {
		return ip, nil
	}
	return httprate.KeyByIP(r)
}
