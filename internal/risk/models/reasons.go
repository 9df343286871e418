package models

// Reason codes reported in Verdict.ReasonCodes, one per fired signal.
const (
	ReasonBlacklisted         = "BLACKLISTED"
	ReasonVPN                 = "VPN"
	ReasonDatacenter          = "DATACENTER"
	ReasonRateLimit           = "RATE_LIMIT"
	ReasonAutoClick           = "AUTO_CLICK"
	ReasonCoordinatedAttack   = "COORDINATED_ATTACK"
	ReasonLowDeviceTrust      = "LOW_DEVICE_TRUST"
	ReasonAutomationSignature = "AUTOMATION_SIGNATURE"
	ReasonSuspiciousKeyword   = "SUSPICIOUS_KEYWORD"
	ReasonHoneypotPath        = "HONEYPOT_PATH"

	// ReasonEngineError marks a verdict produced by the panic fallback.
	ReasonEngineError = "ENGINE_ERROR"
	// ReasonTrustedCaller marks a verdict short-circuited by a verified
	// service token.
	ReasonTrustedCaller = "TRUSTED_CALLER"
)
