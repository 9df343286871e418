package device

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"warden/pkg/requestcontext"
)

func TestDeviceMiddleware(t *testing.T) {
	capture := func(got *string) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			*got = requestcontext.DeviceFingerprint(r.Context())
			w.WriteHeader(http.StatusOK)
		})
	}

	t.Run("stores the computed fingerprint", func(t *testing.T) {
		var got string
		cfg := &Config{FingerprintFn: func(r *http.Request) string { return "fp-" + r.Header.Get("User-Agent") }}

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("User-Agent", "curl")
		Device(cfg)(capture(&got)).ServeHTTP(httptest.NewRecorder(), req)

		assert.Equal(t, "fp-curl", got)
	})

	t.Run("empty fingerprint leaves context untouched", func(t *testing.T) {
		var got string
		cfg := &Config{FingerprintFn: func(*http.Request) string { return "" }}

		Device(cfg)(capture(&got)).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Empty(t, got)
	})

	t.Run("nil config is a passthrough", func(t *testing.T) {
		var got string
		rec := httptest.NewRecorder()

		Device(nil)(capture(&got)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, got)
	})
}
