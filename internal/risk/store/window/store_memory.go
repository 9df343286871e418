package window

import (
	"cmp"
	"context"
	"slices"
	"time"

	"warden/internal/risk/models"
	wsync "warden/pkg/platform/sync"
)

const defaultRateWindow = time.Second

// InMemoryWindowStore keeps per-IP windowed state in sharded maps. Requests on
// different IPs never share a lock; requests on the same IP are serialized by
// the IP's shard.
type InMemoryWindowStore struct {
	clicks     *wsync.ShardedMap[models.ClickWindow]
	rates      *wsync.ShardedMap[models.RateWindow]
	patterns   *wsync.ShardedMap[models.AttackPatternRecord]
	recent     *recentIndex
	rateWindow time.Duration
	maxKeys    int
	recentSize int
}

type Option func(*InMemoryWindowStore)

// WithMaxKeys bounds each map. The least recently seen IP in a full shard is
// evicted on insert.
func WithMaxKeys(n int) Option {
	return func(s *InMemoryWindowStore) {
		if n > 0 {
			s.maxKeys = n
		}
	}
}

// WithRecentSize sets how many distinct recently active IPs RecentPatterns
// can sample from.
func WithRecentSize(n int) Option {
	return func(s *InMemoryWindowStore) {
		if n > 0 {
			s.recentSize = n
		}
	}
}

func WithRateWindow(d time.Duration) Option {
	return func(s *InMemoryWindowStore) {
		if d > 0 {
			s.rateWindow = d
		}
	}
}

func New(opts ...Option) *InMemoryWindowStore {
	s := &InMemoryWindowStore{rateWindow: defaultRateWindow, recentSize: defaultRecentSize}
	for _, opt := range opts {
		opt(s)
	}
	s.recent = newRecentIndex(s.recentSize)
	s.clicks = wsync.NewShardedMap(wsync.WithMaxKeys(s.maxKeys, func(w models.ClickWindow) time.Time {
		return w.LastSeen
	}))
	s.rates = wsync.NewShardedMap(wsync.WithMaxKeys(s.maxKeys, func(w models.RateWindow) time.Time {
		return w.WindowStart
	}))
	s.patterns = wsync.NewShardedMap(wsync.WithMaxKeys(s.maxKeys, func(r models.AttackPatternRecord) time.Time {
		return r.LastSeen
	}))
	return s
}

func (s *InMemoryWindowStore) RecordClick(_ context.Context, ip string, at time.Time) error {
	s.clicks.Update(ip, func(w models.ClickWindow, _ bool) models.ClickWindow {
		return w.Append(at)
	})
	return nil
}

func (s *InMemoryWindowStore) RecordRequest(_ context.Context, ip, userAgent string, at time.Time) error {
	s.patterns.Update(ip, func(r models.AttackPatternRecord, _ bool) models.AttackPatternRecord {
		r.IP = ip
		r.RequestCount++
		r.LastUserAgent = userAgent
		r.LastRequestAt = at
		if at.After(r.LastSeen) {
			r.LastSeen = at
		}
		return r
	})
	s.recent.touch(ip, at)
	return nil
}

func (s *InMemoryWindowStore) ClickHistory(_ context.Context, ip string) ([]time.Time, error) {
	w, ok := s.clicks.Load(ip)
	if !ok {
		return nil, nil
	}
	return w.Samples(), nil
}

func (s *InMemoryWindowStore) CountRequest(_ context.Context, ip string, at time.Time) (int, error) {
	w := s.rates.Update(ip, func(w models.RateWindow, _ bool) models.RateWindow {
		return w.Advance(at, s.rateWindow)
	})
	return w.Count, nil
}

// RecentPatterns samples the recent-activity index rather than every tracked
// IP, so only the last recentSize distinct IPs are candidates.
func (s *InMemoryWindowStore) RecentPatterns(_ context.Context, since time.Time, limit int) ([]models.AttackPatternRecord, error) {
	ips := s.recent.since(since)
	out := make([]models.AttackPatternRecord, 0, len(ips))
	for _, ip := range ips {
		r, ok := s.patterns.Load(ip)
		if !ok || r.LastSeen.Before(since) {
			continue
		}
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b models.AttackPatternRecord) int {
		return b.LastSeen.Compare(a.LastSeen)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ExpireStale drops click windows, rate windows, and pattern records last
// seen before cutoff. It returns the number of pattern records removed.
func (s *InMemoryWindowStore) ExpireStale(_ context.Context, cutoff time.Time) (int, error) {
	s.clicks.DeleteFunc(func(_ string, w models.ClickWindow) bool {
		return w.LastSeen.Before(cutoff)
	})
	s.rates.DeleteFunc(func(_ string, w models.RateWindow) bool {
		return w.WindowStart.Before(cutoff)
	})
	removed := s.patterns.DeleteFunc(func(_ string, r models.AttackPatternRecord) bool {
		return r.LastSeen.Before(cutoff)
	})
	s.recent.expire(cutoff)
	return removed, nil
}

func (s *InMemoryWindowStore) ActivitySnapshot(_ context.Context, threshold int) ([]models.IPActivity, int, error) {
	var out []models.IPActivity
	tracked := 0
	s.patterns.Range(func(ip string, r models.AttackPatternRecord) bool {
		tracked++
		if r.RequestCount > threshold {
			out = append(out, models.IPActivity{IP: ip, Count: r.RequestCount, LastSeen: r.LastSeen})
		}
		return true
	})
	slices.SortFunc(out, func(a, b models.IPActivity) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.IP, b.IP)
	})
	return out, tracked, nil
}
