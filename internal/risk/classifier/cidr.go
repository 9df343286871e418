// Package classifier provides the in-process IP classifier behind the vpn and
// datacenter signals.
package classifier

import (
	"context"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"warden/internal/risk/config"
	"warden/internal/risk/models"
	dErrors "warden/pkg/domain-errors"
	wsync "warden/pkg/platform/sync"
)

type cached struct {
	class    models.IPClassification
	storedAt time.Time
}

// CIDRClassifier answers VPN and datacenter membership from static prefix
// lists. Results are cached per normalized address.
type CIDRClassifier struct {
	vpn        []netip.Prefix
	datacenter []netip.Prefix
	cache      *wsync.ShardedMap[cached]
	ttl        time.Duration
	now        func() time.Time
}

// Option configures a CIDRClassifier.
type Option func(*CIDRClassifier)

// WithClock overrides the time source used for cache expiry.
func WithClock(now func() time.Time) Option {
	return func(c *CIDRClassifier) {
		if now != nil {
			c.now = now
		}
	}
}

// New parses the configured prefix lists. A malformed prefix is a
// CodeConfiguration error.
func New(cfg config.NetworkConfig, opts ...Option) (*CIDRClassifier, error) {
	vpn, err := parsePrefixes(cfg.VPNCIDRs)
	if err != nil {
		return nil, err
	}
	dc, err := parsePrefixes(cfg.DatacenterCIDRs)
	if err != nil {
		return nil, err
	}

	c := &CIDRClassifier{
		vpn:        vpn,
		datacenter: dc,
		ttl:        cfg.CacheTTL,
		now:        time.Now,
	}
	if cfg.CacheSize > 0 {
		c.cache = wsync.NewShardedMap(
			wsync.WithMaxKeys(cfg.CacheSize, func(v cached) time.Time { return v.storedAt }),
		)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ClassifyIP reports whether ip falls inside a VPN or datacenter range.
// Unparseable addresses are an error so the caller can fail open. The lookup
// is in-memory and runs to completion whatever the state of ctx.
func (c *CIDRClassifier) ClassifyIP(_ context.Context, ip string) (models.IPClassification, error) {
	key := models.NormalizeIP(ip)
	addr, err := netip.ParseAddr(key)
	if err != nil {
		return models.IPClassification{}, fmt.Errorf("unparseable address %q: %w", key, err)
	}

	now := c.now()
	if c.cache != nil {
		if hit, ok := c.cache.Load(key); ok && now.Sub(hit.storedAt) < c.ttl {
			return hit.class, nil
		}
	}

	class := models.IPClassification{
		IsVPN:        containsAddr(c.vpn, addr),
		IsDatacenter: containsAddr(c.datacenter, addr),
	}
	if c.cache != nil {
		c.cache.Update(key, func(cached, bool) cached {
			return cached{class: class, storedAt: now}
		})
	}
	return class, nil
}

// Purge drops cache entries older than the TTL and returns how many were
// removed.
func (c *CIDRClassifier) Purge() int {
	if c.cache == nil {
		return 0
	}
	cutoff := c.now().Add(-c.ttl)
	return c.cache.DeleteFunc(func(_ string, v cached) bool {
		return v.storedAt.Before(cutoff)
	})
}

func containsAddr(prefixes []netip.Prefix, addr netip.Addr) bool {
	for _, p := range prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func parsePrefixes(raw []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		p, err := netip.ParsePrefix(r)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeConfiguration, fmt.Sprintf("invalid cidr %q", r))
		}
		out = append(out, p.Masked())
	}
	return out, nil
}
