package signals

import (
	"warden/internal/risk/config"
	"warden/internal/risk/ports"
)

// Deps are the stores and classifier the default collectors read.
type Deps struct {
	Bans       ports.BanStore
	Windows    ports.WindowStore
	Devices    ports.DeviceStore
	Classifier ports.IPClassifier
}

// Default builds every collector from cfg.
func Default(cfg *config.Config, deps Deps) []Collector {
	sc := cfg.Signals
	return []Collector{
		&Blacklist{Bans: deps.Bans, Weight: sc.BlacklistWeight},
		&Network{
			Classifier:       deps.Classifier,
			VPNWeight:        sc.VPNWeight,
			DatacenterWeight: sc.DatacenterWeight,
		},
		&RateLimit{Threshold: sc.RateThreshold, Weight: sc.RateWeight},
		&AutoClick{
			Windows:     deps.Windows,
			MinSamples:  sc.AutoClickMinSamples,
			MaxVariance: sc.AutoClickMaxVariance,
			MaxMeanMS:   sc.AutoClickMaxMeanMS,
			Weight:      sc.AutoClickWeight,
		},
		&Coordinated{
			Windows:     deps.Windows,
			Window:      sc.CoordinatedWindow,
			MinRecords:  sc.CoordinatedMinRecords,
			SampleLimit: sc.CoordinatedSampleLimit,
			MaxVariance: sc.CoordinatedMaxVariance,
			Weight:      sc.CoordinatedWeight,
		},
		&DeviceTrust{
			Devices:  deps.Devices,
			MinTrust: sc.DeviceTrustMin,
			Baseline: sc.DeviceTrustBaseline,
			Weight:   sc.DeviceTrustWeight,
		},
		NewAutomationSignature(cfg.AutomationTokens, sc.AutomationWeight),
		NewSuspiciousKeyword(cfg.SuspiciousKeywords, sc.KeywordWeight),
		NewHoneypotPath(cfg.HoneypotPaths, sc.HoneypotWeight),
	}
}
