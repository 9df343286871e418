package models

import "time"

// Trust score bounds.
const (
	TrustScoreMin      = 0
	TrustScoreMax      = 100
	TrustScoreBaseline = 30
)

// NewDeviceProfile creates the profile for a first sighting at now.
func NewDeviceProfile(fingerprint string, now time.Time) *DeviceProfile {
	p := &DeviceProfile{
		Fingerprint: fingerprint,
		FirstSeen:   now,
		LastSeen:    now,
	}
	p.TrustScore = p.ComputeTrust(now)
	return p
}

// ComputeTrust evaluates the trust formula at now:
//
//	50 + min(days*5, 30) + min(logins*2, 20) - failed*5, clamped to [0, 100]
//
// days counts whole days since FirstSeen.
func (p *DeviceProfile) ComputeTrust(now time.Time) int {
	days := 0
	if now.After(p.FirstSeen) {
		days = int(now.Sub(p.FirstSeen) / (24 * time.Hour))
	}
	score := 50 +
		min(days*5, 30) +
		min(p.SuccessfulLogins*2, 20) -
		p.FailedAttempts*5
	return max(TrustScoreMin, min(score, TrustScoreMax))
}

// ApplyLogin records a login outcome and refreshes the cached trust score.
func (p *DeviceProfile) ApplyLogin(success bool, at time.Time) {
	if success {
		p.SuccessfulLogins++
	} else {
		p.FailedAttempts++
	}
	if at.After(p.LastSeen) {
		p.LastSeen = at
	}
	p.TrustScore = p.ComputeTrust(at)
}

// Touch marks a sighting at now.
func (p *DeviceProfile) Touch(now time.Time) {
	if now.After(p.LastSeen) {
		p.LastSeen = now
	}
	p.TrustScore = p.ComputeTrust(now)
}
