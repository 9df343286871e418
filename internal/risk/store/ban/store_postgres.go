package ban

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"warden/internal/risk/models"
)

// PostgresStore persists ban records in PostgreSQL. It is pure I/O; ladder
// and expiry rules live in the dispatcher.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, ip string) (*models.BanRecord, error) {
	query := `
		SELECT id, ip, level, reason, offenses, expires_at, created_at
		FROM ban_records
		WHERE ip = $1
	`
	record, err := scanBanRecord(s.db.QueryRowContext(ctx, query, ip))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get ban record: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) Put(ctx context.Context, record *models.BanRecord) error {
	if record == nil {
		return fmt.Errorf("ban record is required")
	}
	query := `
		INSERT INTO ban_records (id, ip, level, reason, offenses, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (ip) DO UPDATE SET
			id = EXCLUDED.id,
			level = EXCLUDED.level,
			reason = EXCLUDED.reason,
			offenses = EXCLUDED.offenses,
			expires_at = EXCLUDED.expires_at,
			created_at = EXCLUDED.created_at,
			updated_at = NOW()
	`
	_, err := s.db.ExecContext(ctx, query,
		record.ID,
		record.IP,
		string(record.Level),
		record.Reason,
		record.Offenses,
		record.ExpiresAt,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("put ban record: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, ip string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM ban_records WHERE ip = $1`, ip); err != nil {
		return fmt.Errorf("delete ban record: %w", err)
	}
	return nil
}

// ExpireBefore deletes ladder bans whose expiry has passed. The PERMANENT
// level is excluded explicitly in addition to the NULL expiry.
func (s *PostgresStore) ExpireBefore(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM ban_records
		WHERE level <> 'PERMANENT' AND expires_at IS NOT NULL AND expires_at <= $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("expire ban records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expire ban records rows affected: %w", err)
	}
	return int(n), nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.BanRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ip, level, reason, offenses, expires_at, created_at
		FROM ban_records
		ORDER BY ip
	`)
	if err != nil {
		return nil, fmt.Errorf("list ban records: %w", err)
	}
	defer rows.Close()

	var out []*models.BanRecord
	for rows.Next() {
		record, err := scanBanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ban record: %w", err)
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ban records: %w", err)
	}
	return out, nil
}

type banRow interface {
	Scan(dest ...any) error
}

func scanBanRecord(row banRow) (*models.BanRecord, error) {
	var (
		record    models.BanRecord
		level     string
		expiresAt sql.NullTime
	)
	if err := row.Scan(&record.ID, &record.IP, &level, &record.Reason, &record.Offenses, &expiresAt, &record.CreatedAt); err != nil {
		return nil, err
	}
	parsed, err := models.ParseBanLevel(level)
	if err != nil {
		return nil, err
	}
	record.Level = parsed
	if expiresAt.Valid {
		t := expiresAt.Time
		record.ExpiresAt = &t
	}
	return &record, nil
}
