// Package ports defines shared interfaces for the risk module.
// Interfaces are placed here when consumed by more than one component.
package ports

import (
	"context"
	"time"

	"warden/internal/risk/models"
)

// WindowStore holds the bounded per-IP histories: click windows, rate
// windows, and attack pattern records. Every write stamps lastSeen.
type WindowStore interface {
	// RecordClick appends a click sample for ip.
	RecordClick(ctx context.Context, ip string, at time.Time) error

	// RecordRequest updates the attack pattern record for ip.
	RecordRequest(ctx context.Context, ip, userAgent string, at time.Time) error

	// ClickHistory returns up to ClickWindowSize samples, oldest first.
	ClickHistory(ctx context.Context, ip string) ([]time.Time, error)

	// CountRequest advances the fixed rate window for ip and returns the
	// count including this request.
	CountRequest(ctx context.Context, ip string, at time.Time) (int, error)

	// RecentPatterns returns records with lastSeen at or after since,
	// newest first, at most limit.
	RecentPatterns(ctx context.Context, since time.Time, limit int) ([]models.AttackPatternRecord, error)

	// ExpireStale removes all windowed state last seen before cutoff.
	ExpireStale(ctx context.Context, cutoff time.Time) (int, error)

	// ActivitySnapshot returns IPs whose request count exceeds threshold and
	// the number of tracked IPs.
	ActivitySnapshot(ctx context.Context, threshold int) (suspicious []models.IPActivity, tracked int, err error)
}

// DeviceStore manages long-lived device profiles.
type DeviceStore interface {
	// Get returns nil, nil for an unseen fingerprint.
	Get(ctx context.Context, fingerprint string) (*models.DeviceProfile, error)

	// GetOrCreate returns the profile, creating it at now on first sighting.
	GetOrCreate(ctx context.Context, fingerprint string, now time.Time) (*models.DeviceProfile, error)

	// RecordLogin applies a login outcome and refreshes the cached trust score.
	RecordLogin(ctx context.Context, fingerprint string, success bool, at time.Time) (*models.DeviceProfile, error)
}

// BanStore persists ban records keyed by normalized IP.
type BanStore interface {
	// Get returns nil, nil when the IP has no record.
	Get(ctx context.Context, ip string) (*models.BanRecord, error)

	// Put inserts or replaces the record for record.IP.
	Put(ctx context.Context, record *models.BanRecord) error

	// Delete removes the record for ip. Missing records are a no-op.
	Delete(ctx context.Context, ip string) error

	// ExpireBefore removes non-permanent bans whose expiry is at or before
	// now. Permanent bans are never removed.
	ExpireBefore(ctx context.Context, now time.Time) (int, error)

	// List returns every record.
	List(ctx context.Context) ([]*models.BanRecord, error)
}

// OffenseLedger remembers ladder rungs issued per IP.
type OffenseLedger interface {
	Get(ctx context.Context, ip string) (*models.OffenseRecord, error)
	Record(ctx context.Context, ip string, level models.BanLevel, at time.Time) (*models.OffenseRecord, error)
	ForgetBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// IPClassifier reports VPN and datacenter membership for an address.
type IPClassifier interface {
	ClassifyIP(ctx context.Context, ip string) (models.IPClassification, error)
}

// Publisher accepts events for the outbound stream. Implementations must not
// block the caller on I/O.
type Publisher interface {
	Publish(ctx context.Context, event models.Event) error
}
