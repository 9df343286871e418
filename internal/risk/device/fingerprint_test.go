package device

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

const (
	chrome120 = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.6099.71 Safari/537.36"
	chrome121 = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.6167.85 Safari/537.36"
	chromePt  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.1111.1 Safari/537.36"
	iphone    = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1"
)

func headers(ua, lang string) http.Header {
	h := http.Header{}
	if ua != "" {
		h.Set("User-Agent", ua)
	}
	if lang != "" {
		h.Set("Accept-Language", lang)
	}
	return h
}

func TestFingerprint(t *testing.T) {
	t.Run("stable across patch versions", func(t *testing.T) {
		assert.Equal(t, Fingerprint(headers(chrome120, "en-GB,en;q=0.9")), Fingerprint(headers(chromePt, "en-GB")))
	})

	t.Run("major version changes the fingerprint", func(t *testing.T) {
		assert.NotEqual(t, Fingerprint(headers(chrome120, "en-GB")), Fingerprint(headers(chrome121, "en-GB")))
	})

	t.Run("language changes the fingerprint", func(t *testing.T) {
		assert.NotEqual(t, Fingerprint(headers(chrome120, "en-GB")), Fingerprint(headers(chrome120, "de-DE")))
	})

	t.Run("mobile and desktop differ", func(t *testing.T) {
		assert.NotEqual(t, Fingerprint(headers(chrome120, "")), Fingerprint(headers(iphone, "")))
	})

	t.Run("hex sha256", func(t *testing.T) {
		assert.Len(t, Fingerprint(headers(iphone, "")), 64)
	})

	t.Run("empty user agent", func(t *testing.T) {
		assert.Empty(t, Fingerprint(headers("", "en")))
	})
}

func TestFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("User-Agent", chrome120)
	derived := FromRequest(r)
	assert.Equal(t, Fingerprint(r.Header), derived)

	r.Header.Set(HeaderFingerprint, "  ABCDEF  ")
	assert.Equal(t, "abcdef", FromRequest(r))
}

func TestDescribe(t *testing.T) {
	assert.Contains(t, Describe(chrome120), "Chrome on Windows")
	assert.Equal(t, "unknown device", Describe(""))
}
