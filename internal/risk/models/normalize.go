package models

import (
	"net/netip"
	"strings"
)

// NormalizeIP returns the canonical key for an address: IPv4-mapped IPv6 is
// unmapped, IPv6 is compressed and lowercased, zones are dropped. Strings that
// do not parse are trimmed and lowercased so they still key consistently.
func NormalizeIP(ip string) string {
	ip = strings.TrimSpace(ip)
	if addr, err := netip.ParseAddr(ip); err == nil {
		return addr.Unmap().WithZone("").String()
	}
	if ap, err := netip.ParseAddrPort(ip); err == nil {
		return ap.Addr().Unmap().WithZone("").String()
	}
	return strings.ToLower(ip)
}

// NormalizeFingerprint trims and lowercases a device fingerprint.
func NormalizeFingerprint(fp string) string {
	return strings.ToLower(strings.TrimSpace(fp))
}
