// Package requesttime provides middleware that pins a single "now" for the
// whole request, so every signal evaluated for the request sees the same clock.
package requesttime

import (
	"net/http"
	"time"

	"warden/pkg/requestcontext"
)

// Middleware pins the wall clock.
func Middleware(next http.Handler) http.Handler {
	return New(time.Now)(next)
}

// New pins the time returned by now. Replay tools and tests pass a fixed
// clock; a nil clock means time.Now.
func New(now func() time.Time) func(http.Handler) http.Handler {
	if now == nil {
		now = time.Now
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := requestcontext.WithTime(r.Context(), now())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
