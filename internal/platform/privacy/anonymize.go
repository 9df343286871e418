// Package privacy keeps raw client identifiers out of logs and events.
package privacy

import (
	"net/netip"
	"strings"
)

// AnonymizeIP masks the host part of an address: IPv4 to /24, IPv6 to /48.
// Returns "unknown" for empty input and "invalid" for unparseable input.
func AnonymizeIP(ip string) string {
	ip = strings.TrimSpace(ip)
	if ip == "" || ip == "unknown" {
		return "unknown"
	}

	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return "invalid"
	}
	addr = addr.Unmap()

	bits := 48
	if addr.Is4() {
		bits = 24
	}
	prefix, err := addr.WithZone("").Prefix(bits)
	if err != nil {
		return "invalid"
	}
	return prefix.Addr().String()
}

// AnonymizeFingerprint shortens a device fingerprint to a prefix that is still
// useful for correlating log lines.
func AnonymizeFingerprint(fp string) string {
	const keep = 8
	if fp == "" {
		return "unknown"
	}
	if len(fp) <= keep {
		return fp
	}
	return fp[:keep] + "…"
}
