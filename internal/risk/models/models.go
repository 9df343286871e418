package models

import (
	"time"

	"github.com/google/uuid"
)

// Action is the engine's decision for a request.
type Action string

const (
	ActionAllow     Action = "ALLOW"
	ActionChallenge Action = "CHALLENGE"
	ActionBlock     Action = "BLOCK"
)

// RequestContext is the per-request input supplied by the front-end.
// The engine never mutates it.
type RequestContext struct {
	IP                string    `json:"ip"`
	DeviceFingerprint string    `json:"device_fingerprint"`
	UserAgent         string    `json:"user_agent"`
	Timestamp         time.Time `json:"timestamp"`
	SessionID         string    `json:"session_id,omitempty"`
	Path              string    `json:"path,omitempty"`
}

// Normalized returns a copy with canonical keys and a non-zero timestamp.
func (r RequestContext) Normalized(now time.Time) RequestContext {
	r.IP = NormalizeIP(r.IP)
	r.DeviceFingerprint = NormalizeFingerprint(r.DeviceFingerprint)
	if r.Timestamp.IsZero() {
		r.Timestamp = now
	}
	return r
}

// Verdict is the engine's answer for one request.
type Verdict struct {
	Action      Action   `json:"action"`
	Score       int      `json:"score"`
	ReasonCodes []string `json:"reason_codes"`
}

// LoginOutcome is reported by the authentication collaborator and feeds the
// device profile for the fingerprint.
type LoginOutcome struct {
	DeviceFingerprint string    `json:"device_fingerprint"`
	Success           bool      `json:"success"`
	At                time.Time `json:"at,omitzero"`
}

// IPClassification is the external classifier's view of an address.
type IPClassification struct {
	IsVPN        bool `json:"is_vpn"`
	IsDatacenter bool `json:"is_datacenter"`
}

// AttackPatternRecord is the per-IP summary used by the coordinated-attack
// detector. LastRequestAt is the timing sample.
type AttackPatternRecord struct {
	IP            string    `json:"ip"`
	LastSeen      time.Time `json:"last_seen"`
	RequestCount  int       `json:"request_count"`
	LastUserAgent string    `json:"last_user_agent"`
	LastRequestAt time.Time `json:"last_request_at"`
}

// DeviceProfile is the long-lived record for a device fingerprint.
type DeviceProfile struct {
	Fingerprint      string    `json:"fingerprint"`
	FirstSeen        time.Time `json:"first_seen"`
	LastSeen         time.Time `json:"last_seen"`
	SuccessfulLogins int       `json:"successful_logins"`
	FailedAttempts   int       `json:"failed_attempts"`
	TrustScore       int       `json:"trust_score"`
}

// IPActivity is one entry of the global threat snapshot.
type IPActivity struct {
	IP       string    `json:"ip"`
	Count    int       `json:"count"`
	LastSeen time.Time `json:"last_seen"`
}

// ThreatSnapshot is recomputed by the sweeper for external reporting only.
type ThreatSnapshot struct {
	GeneratedAt   time.Time    `json:"generated_at"`
	Threshold     int          `json:"threshold"`
	TrackedIPs    int          `json:"tracked_ips"`
	SuspiciousIPs []IPActivity `json:"suspicious_ips"`
}

// EventType names an entry in the outbound event stream.
type EventType string

const (
	EventHighThreatAlert  EventType = "HIGH_THREAT_ALERT"
	EventSweepCompleted   EventType = "SWEEP_COMPLETED"
	EventSignalError      EventType = "SIGNAL_ERROR"
	EventStoreUnavailable EventType = "STORE_UNAVAILABLE"
	EventBanEscalated     EventType = "BAN_ESCALATED"
	EventEngineError      EventType = "ENGINE_ERROR"
)

// Event is published for alerting and observability consumers.
type Event struct {
	ID        uuid.UUID      `json:"id"`
	Type      EventType      `json:"type"`
	Payload   map[string]any `json:"payload"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewEvent stamps a new event with a random ID.
func NewEvent(t EventType, payload map[string]any, at time.Time) Event {
	if payload == nil {
		payload = map[string]any{}
	}
	return Event{ID: uuid.New(), Type: t, Payload: payload, Timestamp: at}
}
