package device

import (
	"net/http"

	"warden/pkg/requestcontext"
)

// Config holds configuration for the Device middleware.
type Config struct {
	// FingerprintFn derives the device fingerprint for a request, typically
	// internal/risk/device.FromRequest.
	FingerprintFn func(r *http.Request) string
}

// Device pre-computes the device fingerprint and stores it in the context.
// It should be registered after the metadata middleware.
func Device(cfg *Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg == nil || cfg.FingerprintFn == nil {
				next.ServeHTTP(w, r)
				return
			}
			if fp := cfg.FingerprintFn(r); fp != "" {
				r = r.WithContext(requestcontext.WithDeviceFingerprint(r.Context(), fp))
			}
			next.ServeHTTP(w, r)
		})
	}
}
