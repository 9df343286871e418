// Package tracing is a thin span abstraction over OpenTelemetry. Engine code
// depends on the Tracer interface; production wires the OTel adapter and
// tests use the no-op tracer.
package tracing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Span is an active trace span. End must be called exactly once.
type Span interface {
	// End completes the span; a non-nil err marks it failed.
	End(err error)
	SetAttributes(attrs ...Attribute)
	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute is a key-value pair attached to spans.
type Attribute struct {
	Key   string
	Value any
}

func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

func Int(key string, value int) Attribute {
	return Attribute{Key: key, Value: value}
}

func Strings(key string, value []string) Attribute {
	return Attribute{Key: key, Value: value}
}

// Duration creates a duration attribute in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// HashFingerprint returns a short SHA-256 digest of a device fingerprint so
// traces can be correlated without carrying the raw value.
func HashFingerprint(fp string) string {
	if fp == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(fp))
	return hex.EncodeToString(hash[:8])
}

// Span names.
const (
	SpanEvaluate        = "risk.evaluate"
	SpanLoginOutcome    = "risk.login_outcome"
	SpanChallengeReport = "risk.challenge_outcome"
	SpanSweep           = "risk.sweep"
)

// Attribute keys.
const (
	AttrIP           = "client.ip_prefix"
	AttrFingerprint  = "device.fingerprint_hash"
	AttrAction       = "risk.action"
	AttrScore        = "risk.score"
	AttrReasonCodes  = "risk.reason_codes"
	AttrFailedSignal = "risk.failed_signals"
	AttrRateCount    = "risk.rate_count"
	AttrBanLevel     = "risk.ban_level"
)
