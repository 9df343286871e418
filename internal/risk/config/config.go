package config

import (
	"time"

	platformconfig "warden/internal/platform/config"
	dErrors "warden/pkg/domain-errors"
	"warden/pkg/validation"
)

// Config holds every threshold and contribution used by the risk engine.
// All fields are required: a missing value must never silently become 0.
type Config struct {
	Signals    SignalConfig
	Thresholds ThresholdConfig
	Windows    WindowConfig
	Sweeper    SweeperConfig
	Ladder     LadderConfig
	Persist    PersistConfig
	Network    NetworkConfig

	// HoneypotPaths contribute Signals.HoneypotWeight when requested.
	HoneypotPaths []string `validate:"dive,notblank"`

	// AutomationTokens and SuspiciousKeywords are matched case-insensitively
	// against the user-agent.
	AutomationTokens   []string `validate:"min=1,dive,notblank"`
	SuspiciousKeywords []string `validate:"min=1,dive,notblank"`
}

// SignalConfig holds per-signal contributions and detector thresholds.
type SignalConfig struct {
	BlacklistWeight  int `validate:"gte=1,lte=10"`
	VPNWeight        int `validate:"gte=0,lte=10"`
	DatacenterWeight int `validate:"gte=0,lte=10"`

	RateThreshold int           `validate:"gte=1"` // requests per RateWindow
	RateWeight    int           `validate:"gte=0,lte=10"`
	RateWindow    time.Duration `validate:"gt=0"`

	AutoClickMinSamples  int     `validate:"gte=2,lte=20"`
	AutoClickMaxVariance float64 `validate:"gt=0"` // ms²
	AutoClickMaxMeanMS   float64 `validate:"gt=0"`
	AutoClickWeight      int     `validate:"gte=0,lte=10"`

	CoordinatedMinRecords  int           `validate:"gte=2"`
	CoordinatedWindow      time.Duration `validate:"gt=0"`
	CoordinatedMaxVariance float64       `validate:"gt=0"` // ms²
	CoordinatedSampleLimit int           `validate:"gtefield=CoordinatedMinRecords"`
	CoordinatedWeight      int           `validate:"gte=0,lte=10"`

	DeviceTrustMin      int `validate:"gte=1,lte=100"`
	DeviceTrustBaseline int `validate:"gte=0,lte=100"`
	DeviceTrustWeight   int `validate:"gte=0,lte=10"`

	AutomationWeight int `validate:"gte=0,lte=10"`
	KeywordWeight    int `validate:"gte=0,lte=10"`
	HoneypotWeight   int `validate:"gte=0,lte=10"`
}

// ThresholdConfig maps scores to actions.
type ThresholdConfig struct {
	MaxScore       int `validate:"gte=1"`
	ChallengeScore int `validate:"gte=1,ltfield=BlockScore"`
	BlockScore     int `validate:"gte=1,ltefield=MaxScore"`
}

// WindowConfig bounds the windowed state stores.
type WindowConfig struct {
	MaxTrackedKeys int `validate:"gte=32"`
}

// SweeperConfig controls the background sweep.
type SweeperConfig struct {
	Interval           time.Duration `validate:"gt=0"`
	StaleAfter         time.Duration `validate:"gt=0"`
	SuspicionThreshold int           `validate:"gte=1"`
	OffenseMemory      time.Duration `validate:"gt=0"`
	TaskTimeout        time.Duration `validate:"gt=0"`
}

// LadderConfig controls escalation through L1..PERMANENT.
type LadderConfig struct {
	// EscalateChallengeFailures wires failed challenges into the ladder.
	EscalateChallengeFailures bool
}

// PersistConfig controls write-behind persistence to durable stores.
type PersistConfig struct {
	QueueSize        int           `validate:"gte=1"`
	OpTimeout        time.Duration `validate:"gt=0"`
	FailureThreshold int           `validate:"gte=1"`
	Cooldown         time.Duration `validate:"gt=0"`
}

// NetworkConfig feeds the CIDR classifier. Empty lists are valid: the
// network signals then never fire.
type NetworkConfig struct {
	VPNCIDRs        []string      `validate:"dive,cidr"`
	DatacenterCIDRs []string      `validate:"dive,cidr"`
	CacheSize       int           `validate:"gte=0"`
	CacheTTL        time.Duration `validate:"gt=0"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() *Config {
	return &Config{
		Signals: SignalConfig{
			BlacklistWeight:  10,
			VPNWeight:        3,
			DatacenterWeight: 5,

			RateThreshold: 2,
			RateWeight:    4,
			RateWindow:    time.Second,

			AutoClickMinSamples:  5,
			AutoClickMaxVariance: 100,
			AutoClickMaxMeanMS:   100,
			AutoClickWeight:      6,

			CoordinatedMinRecords:  3,
			CoordinatedWindow:      60 * time.Second,
			CoordinatedMaxVariance: 1000,
			CoordinatedSampleLimit: 50,
			CoordinatedWeight:      7,

			DeviceTrustMin:      85,
			DeviceTrustBaseline: 30,
			DeviceTrustWeight:   3,

			AutomationWeight: 8,
			KeywordWeight:    5,
			HoneypotWeight:   10,
		},
		Thresholds: ThresholdConfig{
			MaxScore:       10,
			ChallengeScore: 5,
			BlockScore:     8,
		},
		Windows: WindowConfig{
			MaxTrackedKeys: 100_000,
		},
		Sweeper: SweeperConfig{
			Interval:           30 * time.Second,
			StaleAfter:         time.Hour,
			SuspicionThreshold: 15,
			OffenseMemory:      24 * time.Hour,
			TaskTimeout:        10 * time.Second,
		},
		Ladder: LadderConfig{
			EscalateChallengeFailures: true,
		},
		Persist: PersistConfig{
			QueueSize:        1024,
			OpTimeout:        2 * time.Second,
			FailureThreshold: 5,
			Cooldown:         10 * time.Second,
		},
		Network: NetworkConfig{
			CacheSize: 50_000,
			CacheTTL:  10 * time.Minute,
		},
		HoneypotPaths: []string{
			"/admin.php", "/wp-admin", "/login.php",
			"/phpmyadmin", "/administrator", "/manage",
		},
		AutomationTokens: []string{
			"headless", "phantom", "selenium", "webdriver",
			"playwright", "puppeteer", "bot", "crawler", "spider",
		},
		SuspiciousKeywords: []string{
			"bot", "crawler", "spider", "scraper", "hack", "attack",
		},
	}
}

// Validate rejects configurations that would weaken detection. Failures are
// CodeConfiguration errors and must stop startup.
func (c *Config) Validate() error {
	if c == nil {
		return dErrors.New(dErrors.CodeConfiguration, "risk config is required")
	}
	return validation.ValidateWithCode(c, dErrors.CodeConfiguration)
}

// FromEnv overlays environment overrides on DefaultConfig and validates the
// result.
func FromEnv(env *platformconfig.Env) (*Config, error) {
	c := DefaultConfig()
	s := &c.Signals

	s.RateThreshold = env.Int("RISK_RATE_THRESHOLD", s.RateThreshold)
	s.RateWindow = env.Duration("RISK_RATE_WINDOW", s.RateWindow)
	s.AutoClickMinSamples = env.Int("RISK_AUTOCLICK_MIN_SAMPLES", s.AutoClickMinSamples)
	s.AutoClickMaxVariance = env.Float("RISK_AUTOCLICK_MAX_VARIANCE_MS2", s.AutoClickMaxVariance)
	s.AutoClickMaxMeanMS = env.Float("RISK_AUTOCLICK_MAX_MEAN_MS", s.AutoClickMaxMeanMS)
	s.CoordinatedMinRecords = env.Int("RISK_COORDINATED_MIN_RECORDS", s.CoordinatedMinRecords)
	s.CoordinatedWindow = env.Duration("RISK_COORDINATED_WINDOW", s.CoordinatedWindow)
	s.CoordinatedMaxVariance = env.Float("RISK_COORDINATED_MAX_VARIANCE_MS2", s.CoordinatedMaxVariance)
	s.CoordinatedSampleLimit = env.Int("RISK_COORDINATED_SAMPLE_LIMIT", s.CoordinatedSampleLimit)
	s.DeviceTrustMin = env.Int("RISK_DEVICE_TRUST_MIN", s.DeviceTrustMin)

	c.Thresholds.ChallengeScore = env.Int("RISK_CHALLENGE_SCORE", c.Thresholds.ChallengeScore)
	c.Thresholds.BlockScore = env.Int("RISK_BLOCK_SCORE", c.Thresholds.BlockScore)
	c.Windows.MaxTrackedKeys = env.Int("RISK_MAX_TRACKED_KEYS", c.Windows.MaxTrackedKeys)

	c.Sweeper.Interval = env.Duration("RISK_SWEEP_INTERVAL", c.Sweeper.Interval)
	c.Sweeper.StaleAfter = env.Duration("RISK_STALE_AFTER", c.Sweeper.StaleAfter)
	c.Sweeper.SuspicionThreshold = env.Int("RISK_SUSPICION_THRESHOLD", c.Sweeper.SuspicionThreshold)
	c.Sweeper.OffenseMemory = env.Duration("RISK_OFFENSE_MEMORY", c.Sweeper.OffenseMemory)

	c.Ladder.EscalateChallengeFailures = env.Bool("RISK_ESCALATE_CHALLENGE_FAILURES", c.Ladder.EscalateChallengeFailures)
	c.Persist.QueueSize = env.Int("RISK_PERSIST_QUEUE_SIZE", c.Persist.QueueSize)

	c.Network.VPNCIDRs = env.List("RISK_VPN_CIDRS", c.Network.VPNCIDRs)
	c.Network.DatacenterCIDRs = env.List("RISK_DATACENTER_CIDRS", c.Network.DatacenterCIDRs)
	c.Network.CacheSize = env.Int("RISK_CLASSIFIER_CACHE_SIZE", c.Network.CacheSize)
	c.Network.CacheTTL = env.Duration("RISK_CLASSIFIER_CACHE_TTL", c.Network.CacheTTL)

	c.HoneypotPaths = env.List("RISK_HONEYPOT_PATHS", c.HoneypotPaths)
	c.AutomationTokens = env.List("RISK_AUTOMATION_TOKENS", c.AutomationTokens)
	c.SuspiciousKeywords = env.List("RISK_SUSPICIOUS_KEYWORDS", c.SuspiciousKeywords)

	if err := env.Err(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}
