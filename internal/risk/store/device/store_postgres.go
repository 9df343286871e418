package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"warden/internal/risk/models"
)

// PostgresStore persists device profiles. Counter arithmetic happens in the
// domain model; this store only upserts snapshots.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, fingerprint string) (*models.DeviceProfile, error) {
	query := `
		SELECT fingerprint, first_seen, last_seen, successful_logins, failed_attempts, trust_score
		FROM device_profiles
		WHERE fingerprint = $1
	`
	p, err := scanProfile(s.db.QueryRowContext(ctx, query, fingerprint))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get device profile: %w", err)
	}
	return p, nil
}

// Upsert writes the snapshot. Counters only move forward so that a stale
// snapshot applied late cannot roll a profile back.
func (s *PostgresStore) Upsert(ctx context.Context, p *models.DeviceProfile) error {
	if p == nil {
		return fmt.Errorf("device profile is required")
	}
	query := `
		INSERT INTO device_profiles (fingerprint, first_seen, last_seen, successful_logins, failed_attempts, trust_score)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (fingerprint) DO UPDATE SET
			first_seen = LEAST(device_profiles.first_seen, EXCLUDED.first_seen),
			last_seen = GREATEST(device_profiles.last_seen, EXCLUDED.last_seen),
			successful_logins = GREATEST(device_profiles.successful_logins, EXCLUDED.successful_logins),
			failed_attempts = GREATEST(device_profiles.failed_attempts, EXCLUDED.failed_attempts),
			trust_score = EXCLUDED.trust_score
	`
	_, err := s.db.ExecContext(ctx, query,
		p.Fingerprint,
		p.FirstSeen,
		p.LastSeen,
		p.SuccessfulLogins,
		p.FailedAttempts,
		p.TrustScore,
	)
	if err != nil {
		return fmt.Errorf("upsert device profile: %w", err)
	}
	return nil
}

// ListRecent returns up to limit profiles, most recently seen first.
func (s *PostgresStore) ListRecent(ctx context.Context, limit int) ([]*models.DeviceProfile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT fingerprint, first_seen, last_seen, successful_logins, failed_attempts, trust_score
		FROM device_profiles
		ORDER BY last_seen DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list device profiles: %w", err)
	}
	defer rows.Close()

	var out []*models.DeviceProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan device profile: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate device profiles: %w", err)
	}
	return out, nil
}

type profileRow interface {
	Scan(dest ...any) error
}

func scanProfile(row profileRow) (*models.DeviceProfile, error) {
	var p models.DeviceProfile
	if err := row.Scan(&p.Fingerprint, &p.FirstSeen, &p.LastSeen, &p.SuccessfulLogins, &p.FailedAttempts, &p.TrustScore); err != nil {
		return nil, err
	}
	return &p, nil
}
