package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToSnakeCase(t *testing.T) {
	cases := map[string]string{
		"RateThreshold":   "rate_threshold",
		"MaxTrackedKeys":  "max_tracked_keys",
		"IP":              "ip",
		"HTTPAddr":        "http_addr",
		"ip":              "ip",
		"DatacenterCIDRs": "datacenter_cidrs",
		"VPNWeight":       "vpn_weight",
		"Level1Bans":      "level1_bans",
	}
	for in, want := range cases {
		assert.Equal(t, want, ToSnakeCase(in), in)
	}
}
