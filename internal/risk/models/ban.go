package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// BanLevel is a rung of the escalation ladder.
type BanLevel string

const (
	BanLevel1         BanLevel = "L1"
	BanLevel2         BanLevel = "L2"
	BanLevel3         BanLevel = "L3"
	BanLevel4         BanLevel = "L4"
	BanLevelPermanent BanLevel = "PERMANENT"
)

var ladder = []BanLevel{BanLevel1, BanLevel2, BanLevel3, BanLevel4, BanLevelPermanent}

var banDurations = map[BanLevel]time.Duration{
	BanLevel1: 5 * time.Minute,
	BanLevel2: 30 * time.Minute,
	BanLevel3: 2 * time.Hour,
	BanLevel4: 24 * time.Hour,
}

// ParseBanLevel validates a stored level string.
func ParseBanLevel(s string) (BanLevel, error) {
	l := BanLevel(s)
	if !l.IsValid() {
		return "", fmt.Errorf("unknown ban level %q", s)
	}
	return l, nil
}

func (l BanLevel) IsValid() bool {
	for _, v := range ladder {
		if v == l {
			return true
		}
	}
	return false
}

// Duration returns the ban length. ok is false for PERMANENT.
func (l BanLevel) Duration() (d time.Duration, ok bool) {
	d, ok = banDurations[l]
	return d, ok
}

// Next returns the following rung. PERMANENT is absorbing.
func (l BanLevel) Next() BanLevel {
	for i, v := range ladder {
		if v == l && i+1 < len(ladder) {
			return ladder[i+1]
		}
	}
	return BanLevelPermanent
}

// Rank orders levels; higher is more severe. Unknown levels rank 0.
func (l BanLevel) Rank() int {
	for i, v := range ladder {
		if v == l {
			return i + 1
		}
	}
	return 0
}

// Ban reason codes.
const (
	BanReasonHighThreat       = "HIGH_THREAT"
	BanReasonChallengeFailure = "CHALLENGE_FAILED"
)

// BanRecord is the per-IP ban. A nil ExpiresAt means the ban never expires.
type BanRecord struct {
	ID        uuid.UUID  `json:"id"`
	IP        string     `json:"ip"`
	Level     BanLevel   `json:"level"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Reason    string     `json:"reason"`
	CreatedAt time.Time  `json:"created_at"`
	Offenses  int        `json:"offenses"`
}

// NewBanRecord creates a record at level for ip, effective from now.
func NewBanRecord(ip string, level BanLevel, reason string, now time.Time) *BanRecord {
	b := &BanRecord{
		ID:        uuid.New(),
		IP:        ip,
		Level:     level,
		Reason:    reason,
		CreatedAt: now,
		Offenses:  1,
	}
	b.setExpiry(now)
	return b
}

func (b *BanRecord) setExpiry(now time.Time) {
	if d, ok := b.Level.Duration(); ok {
		exp := now.Add(d)
		b.ExpiresAt = &exp
		return
	}
	b.ExpiresAt = nil
}

func (b *BanRecord) IsPermanent() bool {
	return b.Level == BanLevelPermanent
}

// IsActive reports whether the ban is in force at now.
func (b *BanRecord) IsActive(now time.Time) bool {
	if b == nil {
		return false
	}
	if b.IsPermanent() || b.ExpiresAt == nil {
		return true
	}
	return now.Before(*b.ExpiresAt)
}

// Expired reports whether a non-permanent ban has run out at now.
func (b *BanRecord) Expired(now time.Time) bool {
	return !b.IsPermanent() && b.ExpiresAt != nil && !now.Before(*b.ExpiresAt)
}

// Promote moves the ban to level and restarts its clock. Bans are never
// demoted: a level at or below the current one is a no-op returning false.
func (b *BanRecord) Promote(level BanLevel, reason string, now time.Time) bool {
	if level.Rank() <= b.Level.Rank() {
		return false
	}
	b.Level = level
	b.Reason = reason
	b.Offenses++
	b.setExpiry(now)
	return true
}

// Clone returns a deep copy.
func (b *BanRecord) Clone() *BanRecord {
	if b == nil {
		return nil
	}
	c := *b
	if b.ExpiresAt != nil {
		exp := *b.ExpiresAt
		c.ExpiresAt = &exp
	}
	return &c
}
