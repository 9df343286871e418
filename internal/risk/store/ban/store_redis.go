package ban

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"warden/internal/risk/models"
)

const redisKeyPrefix = "warden:ban:"

// RedisStore keeps ban records as JSON values. Ladder bans carry a TTL equal
// to their remaining duration, so Redis expires them on its own; PERMANENT
// bans are stored without a TTL.
type RedisStore struct {
	client redis.Cmdable
	now    func() time.Time
}

func NewRedis(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

func redisKey(ip string) string {
	return redisKeyPrefix + ip
}

func (s *RedisStore) Get(ctx context.Context, ip string) (*models.BanRecord, error) {
	raw, err := s.client.Get(ctx, redisKey(ip)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get ban record: %w", err)
	}
	var record models.BanRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("decode ban record: %w", err)
	}
	return &record, nil
}

func (s *RedisStore) Put(ctx context.Context, record *models.BanRecord) error {
	if record == nil {
		return fmt.Errorf("ban record is required")
	}
	var ttl time.Duration
	if !record.IsPermanent() && record.ExpiresAt != nil {
		ttl = record.ExpiresAt.Sub(s.now())
		if ttl <= 0 {
			return s.Delete(ctx, record.IP)
		}
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode ban record: %w", err)
	}
	if err := s.client.Set(ctx, redisKey(record.IP), raw, ttl).Err(); err != nil {
		return fmt.Errorf("put ban record: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, ip string) error {
	if err := s.client.Del(ctx, redisKey(ip)).Err(); err != nil {
		return fmt.Errorf("delete ban record: %w", err)
	}
	return nil
}

// ExpireBefore removes ladder bans that are past expiry but still present,
// which only happens when the TTL and the caller's clock disagree.
func (s *RedisStore) ExpireBefore(ctx context.Context, now time.Time) (int, error) {
	records, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, r := range records {
		if !r.Expired(now) {
			continue
		}
		if err := s.Delete(ctx, r.IP); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func (s *RedisStore) List(ctx context.Context) ([]*models.BanRecord, error) {
	var out []*models.BanRecord
	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", 256).Iterator()
	for iter.Next(ctx) {
		ip := strings.TrimPrefix(iter.Val(), redisKeyPrefix)
		record, err := s.Get(ctx, ip)
		if err != nil {
			return nil, err
		}
		if record != nil {
			out = append(out, record)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan ban records: %w", err)
	}
	slices.SortFunc(out, func(a, b *models.BanRecord) int {
		return strings.Compare(a.IP, b.IP)
	})
	return out, nil
}
