package signals

import (
	"context"
	"errors"
	"strings"
	"time"

	"warden/internal/risk/models"
	"warden/internal/risk/ports"
	dErrors "warden/pkg/domain-errors"
	wstrings "warden/pkg/platform/strings"
)

// Signal names, used as metric labels and in SIGNAL_ERROR payloads.
const (
	NameBlacklist    = "blacklist"
	NameVPN          = "vpn"
	NameDatacenter   = "datacenter"
	NameNetwork      = "network"
	NameRateLimit    = "rate_limit"
	NameAutoClick    = "auto_click"
	NameCoordinated  = "coordinated_attack"
	NameDeviceTrust  = "device_trust"
	NameAutomation   = "automation_signature"
	NameKeyword      = "suspicious_keyword"
	NameHoneypotPath = "honeypot_path"
)

var errMissingIP = errors.New("request has no client ip")

// Blacklist fires when the IP has an active ban.
type Blacklist struct {
	Bans   ports.BanStore
	Weight int
}

func (c *Blacklist) Name() string { return NameBlacklist }

func (c *Blacklist) Collect(ctx context.Context, in Input) ([]Signal, error) {
	if in.Request.IP == "" {
		return nil, dErrors.SignalError(NameBlacklist, errMissingIP)
	}
	ban, err := c.Bans.Get(ctx, in.Request.IP)
	if err != nil {
		return nil, dErrors.StoreUnavailable("ban", err)
	}
	return single(NameBlacklist, models.ReasonBlacklisted, ban.IsActive(in.Now), c.Weight), nil
}

// Network reports the external classifier's VPN and datacenter verdicts as
// two independent signals.
type Network struct {
	Classifier       ports.IPClassifier
	VPNWeight        int
	DatacenterWeight int
}

func (c *Network) Name() string { return NameNetwork }

func (c *Network) Collect(ctx context.Context, in Input) ([]Signal, error) {
	if in.Request.IP == "" {
		return nil, dErrors.SignalError(NameNetwork, errMissingIP)
	}
	class, err := c.Classifier.ClassifyIP(ctx, in.Request.IP)
	if err != nil {
		return nil, dErrors.SignalError(NameNetwork, err)
	}
	return []Signal{
		{Name: NameVPN, Reason: models.ReasonVPN, Fired: class.IsVPN, Weight: c.VPNWeight},
		{Name: NameDatacenter, Reason: models.ReasonDatacenter, Fired: class.IsDatacenter, Weight: c.DatacenterWeight},
	}, nil
}

// RateLimit fires when the fixed-window count exceeds Threshold.
type RateLimit struct {
	Threshold int
	Weight    int
}

func (c *RateLimit) Name() string { return NameRateLimit }

func (c *RateLimit) Collect(_ context.Context, in Input) ([]Signal, error) {
	if in.RequestsInWindow < 0 {
		return nil, dErrors.SignalError(NameRateLimit, errors.New("rate window unavailable"))
	}
	return single(NameRateLimit, models.ReasonRateLimit, in.RequestsInWindow > c.Threshold, c.Weight), nil
}

// AutoClick fires when recent click intervals are both fast and uniform.
type AutoClick struct {
	Windows     ports.WindowStore
	MinSamples  int
	MaxVariance float64 // ms²
	MaxMeanMS   float64
	Weight      int
}

func (c *AutoClick) Name() string { return NameAutoClick }

func (c *AutoClick) Collect(ctx context.Context, in Input) ([]Signal, error) {
	history, err := c.Windows.ClickHistory(ctx, in.Request.IP)
	if err != nil {
		return nil, dErrors.StoreUnavailable("window", err)
	}
	return single(NameAutoClick, models.ReasonAutoClick, c.detect(history), c.Weight), nil
}

func (c *AutoClick) detect(history []time.Time) bool {
	if len(history) < c.MinSamples {
		return false
	}
	mean, variance, ok := meanVariance(intervalsMS(history))
	return ok && variance < c.MaxVariance && mean < c.MaxMeanMS
}

// Coordinated fires when many distinct IPs seen within Window issued their
// latest requests in near lockstep.
type Coordinated struct {
	Windows     ports.WindowStore
	Window      time.Duration
	MinRecords  int
	SampleLimit int
	MaxVariance float64 // ms²
	Weight      int
}

func (c *Coordinated) Name() string { return NameCoordinated }

func (c *Coordinated) Collect(ctx context.Context, in Input) ([]Signal, error) {
	records, err := c.Windows.RecentPatterns(ctx, in.Now.Add(-c.Window), c.SampleLimit)
	if err != nil {
		return nil, dErrors.StoreUnavailable("window", err)
	}
	return single(NameCoordinated, models.ReasonCoordinatedAttack, c.detect(records), c.Weight), nil
}

func (c *Coordinated) detect(records []models.AttackPatternRecord) bool {
	if len(records) < c.MinRecords {
		return false
	}
	samples := make([]time.Time, len(records))
	for i, r := range records {
		samples[i] = r.LastRequestAt
	}
	_, variance, ok := meanVariance(offsetsMS(samples))
	return ok && variance < c.MaxVariance
}

// DeviceTrust fires when the fingerprint's trust score is below MinTrust.
// Unseen and missing fingerprints report Baseline.
type DeviceTrust struct {
	Devices  ports.DeviceStore
	MinTrust int
	Baseline int
	Weight   int
}

func (c *DeviceTrust) Name() string { return NameDeviceTrust }

func (c *DeviceTrust) Collect(ctx context.Context, in Input) ([]Signal, error) {
	trust, err := c.Trust(ctx, in.Request.DeviceFingerprint, in.Now)
	if err != nil {
		return nil, err
	}
	return single(NameDeviceTrust, models.ReasonLowDeviceTrust, trust < c.MinTrust, c.Weight), nil
}

// Trust returns the score used for fingerprint at now.
func (c *DeviceTrust) Trust(ctx context.Context, fingerprint string, now time.Time) (int, error) {
	if fingerprint == "" {
		return c.Baseline, nil
	}
	profile, err := c.Devices.Get(ctx, fingerprint)
	if err != nil {
		return 0, dErrors.StoreUnavailable("device", err)
	}
	if profile == nil {
		return c.Baseline, nil
	}
	return profile.ComputeTrust(now), nil
}

// UserAgentMatch fires when the user-agent contains any token,
// case-insensitively.
type UserAgentMatch struct {
	SignalName string
	Reason     string
	Tokens     []string // lowercase
	Weight     int
}

// NewAutomationSignature matches headless browsers and automation drivers.
func NewAutomationSignature(tokens []string, weight int) *UserAgentMatch {
	return &UserAgentMatch{
		SignalName: NameAutomation,
		Reason:     models.ReasonAutomationSignature,
		Tokens:     wstrings.DedupeAndTrimLower(tokens),
		Weight:     weight,
	}
}

// NewSuspiciousKeyword matches scraper and attack-tool keywords.
func NewSuspiciousKeyword(tokens []string, weight int) *UserAgentMatch {
	return &UserAgentMatch{
		SignalName: NameKeyword,
		Reason:     models.ReasonSuspiciousKeyword,
		Tokens:     wstrings.DedupeAndTrimLower(tokens),
		Weight:     weight,
	}
}

func (c *UserAgentMatch) Name() string { return c.SignalName }

func (c *UserAgentMatch) Collect(_ context.Context, in Input) ([]Signal, error) {
	_, hit := wstrings.ContainsAny(in.Request.UserAgent, c.Tokens)
	return single(c.SignalName, c.Reason, hit, c.Weight), nil
}

// HoneypotPath fires when the request targets a decoy path or anything
// beneath it.
type HoneypotPath struct {
	Paths  []string // lowercase, no trailing slash
	Weight int
}

func NewHoneypotPath(paths []string, weight int) *HoneypotPath {
	clean := make([]string, 0, len(paths))
	for _, p := range paths {
		if p = normalizePath(p); p != "" {
			clean = append(clean, p)
		}
	}
	return &HoneypotPath{Paths: clean, Weight: weight}
}

func (c *HoneypotPath) Name() string { return NameHoneypotPath }

func (c *HoneypotPath) Collect(_ context.Context, in Input) ([]Signal, error) {
	path := normalizePath(in.Request.Path)
	hit := false
	if path != "" {
		for _, p := range c.Paths {
			if path == p || strings.HasPrefix(path, p+"/") {
				hit = true
				break
			}
		}
	}
	return single(NameHoneypotPath, models.ReasonHoneypotPath, hit, c.Weight), nil
}

func normalizePath(p string) string {
	p = strings.ToLower(strings.TrimSpace(p))
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
	}
	if p == "/" {
		return ""
	}
	return p
}
