// Package device derives a stable device fingerprint from request headers for
// deployments where the front-end does not supply one.
package device

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/mssola/useragent"
)

// HeaderFingerprint carries a front-end computed fingerprint. When present it
// wins over the derived one.
const HeaderFingerprint = "X-Device-Fingerprint"

// Fingerprint hashes the parsed user-agent (browser, major version, OS and
// platform class) together with the primary Accept-Language tag. It does not
// include the client IP, which is scored separately. An empty user-agent
// yields an empty fingerprint.
func Fingerprint(h http.Header) string {
	ua := strings.TrimSpace(h.Get("User-Agent"))
	if ua == "" {
		return ""
	}

	parsed := useragent.New(ua)
	browser, version := parsed.Browser()

	major := "unknown"
	if v, _, _ := strings.Cut(version, "."); v != "" {
		major = v
	}

	platform := "desktop"
	switch {
	case parsed.Bot():
		platform = "bot"
	case parsed.Mobile():
		platform = "mobile"
	}

	data := strings.Join([]string{
		orUnknown(browser),
		major,
		orUnknown(parsed.OS()),
		platform,
		orUnknown(primaryLanguage(h.Get("Accept-Language"))),
	}, "|")
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

// FromRequest returns the supplied fingerprint header if set, otherwise the
// derived one.
func FromRequest(r *http.Request) string {
	if fp := strings.TrimSpace(r.Header.Get(HeaderFingerprint)); fp != "" {
		return strings.ToLower(fp)
	}
	return Fingerprint(r.Header)
}

// Describe renders "Browser on OS" for logs.
func Describe(userAgent string) string {
	if userAgent == "" {
		return "unknown device"
	}
	ua := useragent.New(userAgent)
	browser, _ := ua.Browser()
	if browser == "" {
		browser = "unknown browser"
	}
	os := ua.OS()
	if os == "" {
		os = "unknown os"
	}
	return browser + " on " + os
}

func primaryLanguage(accept string) string {
	tag, _, _ := strings.Cut(accept, ",")
	tag, _, _ = strings.Cut(tag, ";")
	return tag
}

func orUnknown(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "unknown"
	}
	return s
}
