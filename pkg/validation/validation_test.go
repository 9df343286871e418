package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "warden/pkg/domain-errors"
)

type thresholds struct {
	RateThreshold  int     `validate:"gte=1"`
	ChallengeScore int     `validate:"gte=1,lte=10"`
	BlockScore     int     `validate:"gtfield=ChallengeScore,lte=10"`
	Variance       float64 `validate:"gt=0"`
	Label          string  `validate:"notblank"`
	ClientIP       string  `validate:"omitempty,ip"`
}

func valid() thresholds {
	return thresholds{RateThreshold: 2, ChallengeScore: 5, BlockScore: 8, Variance: 100, Label: "x"}
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate(valid()))

	tests := []struct {
		name   string
		mutate func(*thresholds)
		msg    string
	}{
		{"zero rate threshold", func(c *thresholds) { c.RateThreshold = 0 }, "rate_threshold must be at least 1"},
		{"block not above challenge", func(c *thresholds) { c.BlockScore = 5 }, "block_score must be greater than challenge_score"},
		{"non-positive variance", func(c *thresholds) { c.Variance = 0 }, "variance must be greater than 0"},
		{"blank label", func(c *thresholds) { c.Label = "  " }, "label must not be blank"},
		{"bad ip", func(c *thresholds) { c.ClientIP = "999.1.1.1" }, "client_ip must be a valid ip address"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := Validate(cfg)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
			assert.Equal(t, tt.msg, err.Error())
		})
	}
}

func TestValidateWithCode(t *testing.T) {
	cfg := valid()
	cfg.RateThreshold = 0
	err := ValidateWithCode(cfg, dErrors.CodeConfiguration)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConfiguration))
}
