package handler

import (
	"time"

	"warden/internal/risk/models"
)

type VerdictResponse struct {
	Action      string   `json:"action"`
	Score       int      `json:"score"`
	ReasonCodes []string `json:"reason_codes"`
}

func toVerdictResponse(v models.Verdict) *VerdictResponse {
	reasons := v.ReasonCodes
	if reasons == nil {
		reasons = []string{}
	}
	return &VerdictResponse{Action: string(v.Action), Score: v.Score, ReasonCodes: reasons}
}

type BanResponse struct {
	ID        string     `json:"id"`
	IP        string     `json:"ip"`
	Level     string     `json:"level"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Reason    string     `json:"reason"`
	CreatedAt time.Time  `json:"created_at"`
	Offenses  int        `json:"offenses"`
}

func toBanResponse(b *models.BanRecord) *BanResponse {
	if b == nil {
		return nil
	}
	return &BanResponse{
		ID:        b.ID.String(),
		IP:        b.IP,
		Level:     string(b.Level),
		ExpiresAt: b.ExpiresAt,
		Reason:    b.Reason,
		CreatedAt: b.CreatedAt,
		Offenses:  b.Offenses,
	}
}

type ChallengeOutcomeResponse struct {
	IP     string       `json:"ip"`
	Passed bool         `json:"passed"`
	Ban    *BanResponse `json:"ban"`
}

type SnapshotResponse struct {
	GeneratedAt   *time.Time          `json:"generated_at"`
	Threshold     int                 `json:"threshold"`
	TrackedIPs    int                 `json:"tracked_ips"`
	SuspiciousIPs []models.IPActivity `json:"suspicious_ips"`
}

func toSnapshotResponse(s models.ThreatSnapshot) *SnapshotResponse {
	resp := &SnapshotResponse{
		Threshold:     s.Threshold,
		TrackedIPs:    s.TrackedIPs,
		SuspiciousIPs: s.SuspiciousIPs,
	}
	if !s.GeneratedAt.IsZero() {
		at := s.GeneratedAt
		resp.GeneratedAt = &at
	}
	if resp.SuspiciousIPs == nil {
		resp.SuspiciousIPs = []models.IPActivity{}
	}
	return resp
}
