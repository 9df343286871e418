package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"warden/internal/risk/config"
	"warden/internal/risk/models"
	"warden/internal/risk/ports"
	"warden/internal/risk/store/ban"
	"warden/internal/risk/store/device"
	"warden/internal/risk/store/window"
	dErrors "warden/pkg/domain-errors"
)

const (
	browserUA   = "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_0) AppleWebKit/605.1.15 Safari/605.1.15"
	trustedFP   = "fp-trusted-laptop"
	untrustedFP = "fp-new-phone"
)

type stubClassifier struct {
	class models.IPClassification
	err   error
}

func (s *stubClassifier) ClassifyIP(context.Context, string) (models.IPClassification, error) {
	return s.class, s.err
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.Event
}

func (r *recordingPublisher) Publish(_ context.Context, e models.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingPublisher) count(t models.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

type panickingWindows struct {
	ports.WindowStore
}

func (panickingWindows) CountRequest(context.Context, string, time.Time) (int, error) {
	panic("corrupted shard")
}

// contextBoundClassifier and contextBoundBans fail once ctx is done, like a
// remote lookup would.
type contextBoundClassifier struct {
	class models.IPClassification
}

func (c contextBoundClassifier) ClassifyIP(ctx context.Context, _ string) (models.IPClassification, error) {
	if err := ctx.Err(); err != nil {
		return models.IPClassification{}, err
	}
	return c.class, nil
}

type contextBoundBans struct {
	*ban.InMemoryBanStore
}

func (b contextBoundBans) Get(ctx context.Context, ip string) (*models.BanRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return b.InMemoryBanStore.Get(ctx, ip)
}

func (b contextBoundBans) Put(ctx context.Context, record *models.BanRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.InMemoryBanStore.Put(ctx, record)
}

type EngineSuite struct {
	suite.Suite
	ctx        context.Context
	now        time.Time
	cfg        *config.Config
	bans       *ban.InMemoryBanStore
	windows    *window.InMemoryWindowStore
	devices    *device.InMemoryDeviceStore
	classifier *stubClassifier
	pub        *recordingPublisher
	engine     *Engine
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	s.cfg = config.DefaultConfig()
	s.bans = ban.New()
	s.windows = window.New()
	s.devices = device.New(0)
	s.classifier = &stubClassifier{}
	s.pub = &recordingPublisher{}
	s.engine = s.newEngine(s.deps())

	// A device seen for a week with ten good logins has trust 100.
	for range 10 {
		s.Require().NoError(s.engine.RecordLoginOutcome(s.ctx, models.LoginOutcome{
			DeviceFingerprint: trustedFP,
			Success:           true,
			At:                s.now.Add(-7 * 24 * time.Hour),
		}))
	}
}

func (s *EngineSuite) deps() Deps {
	return Deps{
		Bans:       s.bans,
		Windows:    s.windows,
		Devices:    s.devices,
		Offenses:   ban.NewOffenseLedger(0),
		Classifier: s.classifier,
		Publisher:  s.pub,
	}
}

func (s *EngineSuite) newEngine(deps Deps) *Engine {
	e, err := New(s.cfg, deps, WithClock(func() time.Time { return s.now }))
	s.Require().NoError(err)
	return e
}

func (s *EngineSuite) request(ip string, mutate ...func(*models.RequestContext)) models.RequestContext {
	req := models.RequestContext{
		IP:                ip,
		DeviceFingerprint: trustedFP,
		UserAgent:         browserUA,
		Timestamp:         s.now,
		Path:              "/checkout",
	}
	for _, m := range mutate {
		m(&req)
	}
	return req
}

func (s *EngineSuite) TestTrustedBrowserIsAllowed() {
	v := s.engine.Evaluate(s.ctx, s.request("198.51.100.7"))
	s.Equal(models.ActionAllow, v.Action)
	s.Zero(v.Score)
	s.Empty(v.ReasonCodes)
}

func (s *EngineSuite) TestUnknownDeviceScoresBaselineTrust() {
	v := s.engine.Evaluate(s.ctx, s.request("198.51.100.7", func(r *models.RequestContext) {
		r.DeviceFingerprint = untrustedFP
	}))
	s.Equal(models.ActionAllow, v.Action)
	s.Equal(3, v.Score)
	s.Equal([]string{models.ReasonLowDeviceTrust}, v.ReasonCodes)

	profile, err := s.devices.Get(s.ctx, untrustedFP)
	s.Require().NoError(err)
	s.Require().NotNil(profile, "profile is created after scoring")
	s.Equal(50, profile.TrustScore)
}

func (s *EngineSuite) TestRateLimitFiresOnThirdRequestInOneSecond() {
	ip := "198.51.100.7"
	for i := range 2 {
		v := s.engine.Evaluate(s.ctx, s.request(ip, func(r *models.RequestContext) {
			r.Timestamp = s.now.Add(time.Duration(i) * 100 * time.Millisecond)
		}))
		s.NotContains(v.ReasonCodes, models.ReasonRateLimit)
	}
	v := s.engine.Evaluate(s.ctx, s.request(ip, func(r *models.RequestContext) {
		r.Timestamp = s.now.Add(200 * time.Millisecond)
	}))
	s.Contains(v.ReasonCodes, models.ReasonRateLimit)
	s.Equal(4, v.Score)

	// A new window starts after a full second.
	v = s.engine.Evaluate(s.ctx, s.request(ip, func(r *models.RequestContext) {
		r.Timestamp = s.now.Add(1500 * time.Millisecond)
	}))
	s.NotContains(v.ReasonCodes, models.ReasonRateLimit)
}

func (s *EngineSuite) TestEscalationThresholds() {
	cases := []struct {
		name   string
		mutate func(*models.RequestContext)
		class  models.IPClassification
		score  int
		action models.Action
	}{
		{
			name:   "datacenter plus untrusted device blocks at 8",
			mutate: func(r *models.RequestContext) { r.DeviceFingerprint = untrustedFP },
			class:  models.IPClassification{IsDatacenter: true},
			score:  8,
			action: models.ActionBlock,
		},
		{
			name:   "vpn plus untrusted device challenges",
			mutate: func(r *models.RequestContext) { r.DeviceFingerprint = untrustedFP },
			class:  models.IPClassification{IsVPN: true},
			score:  6,
			action: models.ActionChallenge,
		},
		{
			name:   "vpn alone is allowed",
			mutate: func(*models.RequestContext) {},
			class:  models.IPClassification{IsVPN: true},
			score:  3,
			action: models.ActionAllow,
		},
		{
			name:   "keyword plus vpn blocks",
			mutate: func(r *models.RequestContext) { r.UserAgent = "SiteScraper/2.0" },
			class:  models.IPClassification{IsVPN: true},
			score:  8,
			action: models.ActionBlock,
		},
	}
	for i, tc := range cases {
		s.Run(tc.name, func() {
			s.classifier.class = tc.class
			v := s.engine.Evaluate(s.ctx, s.request(fmt.Sprintf("203.0.113.%d", i+1), tc.mutate))
			s.Equal(tc.score, v.Score)
			s.Equal(tc.action, v.Action)
		})
	}
}

func (s *EngineSuite) TestHoneypotBansPermanentlyAndBlacklistHolds() {
	ip := "203.0.113.50"
	v := s.engine.Evaluate(s.ctx, s.request(ip, func(r *models.RequestContext) { r.Path = "/wp-admin/install.php" }))
	s.Equal(models.ActionBlock, v.Action)
	s.Equal(10, v.Score)
	s.Equal(1, s.pub.count(models.EventHighThreatAlert))

	record, err := s.engine.Ban(s.ctx, ip)
	s.Require().NoError(err)
	s.Equal(models.BanLevelPermanent, record.Level)

	// Clean follow-up traffic from the same address stays blocked without
	// creating a second ban or alert.
	s.now = s.now.Add(48 * time.Hour)
	for i := range 3 {
		v = s.engine.Evaluate(s.ctx, s.request(ip, func(r *models.RequestContext) {
			r.Timestamp = s.now.Add(time.Duration(i) * 2 * time.Second)
		}))
		s.Equal(models.ActionBlock, v.Action)
		s.Equal([]string{models.ReasonBlacklisted}, v.ReasonCodes)
	}
	list, _ := s.bans.List(s.ctx)
	s.Len(list, 1)
	s.Equal(1, s.pub.count(models.EventHighThreatAlert))
}

func (s *EngineSuite) TestIPKeysAreNormalized() {
	s.engine.Evaluate(s.ctx, s.request("::ffff:203.0.113.9", func(r *models.RequestContext) { r.Path = "/phpmyadmin" }))
	v := s.engine.Evaluate(s.ctx, s.request(" 203.0.113.9 "))
	s.Equal(models.ActionBlock, v.Action)
	s.Contains(v.ReasonCodes, models.ReasonBlacklisted)
}

func (s *EngineSuite) TestHeadlessBotIsBlockedAndCapped() {
	v := s.engine.Evaluate(s.ctx, s.request("203.0.113.60", func(r *models.RequestContext) {
		r.UserAgent = "Mozilla/5.0 HeadlessChrome/121.0 (compatible; crawler)"
	}))
	s.Equal(models.ActionBlock, v.Action)
	s.Equal(10, v.Score)
	s.ElementsMatch([]string{models.ReasonAutomationSignature, models.ReasonSuspiciousKeyword}, v.ReasonCodes)
}

func (s *EngineSuite) TestClassifierFailureFailsOpen() {
	s.classifier.err = errors.New("geoip service timeout")
	v := s.engine.Evaluate(s.ctx, s.request("198.51.100.7"))
	s.Equal(models.ActionAllow, v.Action)
	s.Zero(v.Score)
	s.Equal(1, s.pub.count(models.EventSignalError))
}

func (s *EngineSuite) TestPanicProducesFallbackVerdict() {
	deps := s.deps()
	deps.Windows = panickingWindows{}
	e := s.newEngine(deps)

	v := e.Evaluate(s.ctx, s.request("198.51.100.7"))
	s.Equal(models.ActionChallenge, v.Action)
	s.Zero(v.Score)
	s.Equal([]string{models.ReasonEngineError}, v.ReasonCodes)
	s.Equal(1, s.pub.count(models.EventEngineError))
}

func (s *EngineSuite) TestChallengeFailuresEscalate() {
	ip := "203.0.113.70"
	record, err := s.engine.ReportChallengeOutcome(s.ctx, ip, false)
	s.Require().NoError(err)
	s.Equal(models.BanLevel1, record.Level)

	v := s.engine.Evaluate(s.ctx, s.request(ip))
	s.Equal(models.ActionBlock, v.Action)
	s.Equal([]string{models.ReasonBlacklisted}, v.ReasonCodes)

	// Still L1: a block carried only by the ban does not promote it.
	record, err = s.engine.Ban(s.ctx, ip)
	s.Require().NoError(err)
	s.Equal(models.BanLevel1, record.Level)

	// After L1 expires the IP is allowed again; the next failure climbs.
	s.now = s.now.Add(6 * time.Minute)
	s.Equal(models.ActionAllow, s.engine.Evaluate(s.ctx, s.request(ip)).Action)
	record, err = s.engine.ReportChallengeOutcome(s.ctx, ip, false)
	s.Require().NoError(err)
	s.Equal(models.BanLevel2, record.Level)
}

func (s *EngineSuite) TestRecordLoginOutcomeValidation() {
	err := s.engine.RecordLoginOutcome(s.ctx, models.LoginOutcome{DeviceFingerprint: "  "})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))

	_, err = s.engine.ReportChallengeOutcome(s.ctx, "", false)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))

	_, err = s.engine.Ban(s.ctx, "192.0.2.1")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *EngineSuite) TestFailedLoginsLowerTrust() {
	fp := "fp-shared-kiosk"
	for range 3 {
		s.Require().NoError(s.engine.RecordLoginOutcome(s.ctx, models.LoginOutcome{DeviceFingerprint: fp, Success: false}))
	}
	profile, _ := s.devices.Get(s.ctx, fp)
	s.Equal(35, profile.TrustScore)
}

func (s *EngineSuite) TestSnapshotRoundTrip() {
	empty := s.engine.ThreatSnapshot()
	s.NotNil(empty.SuspiciousIPs)
	s.Equal(s.cfg.Sweeper.SuspicionThreshold, empty.Threshold)

	s.engine.StoreSnapshot(models.ThreatSnapshot{
		GeneratedAt:   s.now,
		Threshold:     15,
		TrackedIPs:    3,
		SuspiciousIPs: []models.IPActivity{{IP: "203.0.113.1", Count: 40, LastSeen: s.now}},
	})
	got := s.engine.ThreatSnapshot()
	s.Equal(3, got.TrackedIPs)
	s.Len(got.SuspiciousIPs, 1)
}

func (s *EngineSuite) TestConcurrentEvaluationsStayBounded() {
	var wg sync.WaitGroup
	verdicts := make(chan models.Verdict, 200)
	for i := range 200 {
		wg.Go(func() {
			ip := fmt.Sprintf("203.0.113.%d", i%5)
			verdicts <- s.engine.Evaluate(s.ctx, s.request(ip, func(r *models.RequestContext) {
				r.Timestamp = s.now.Add(time.Duration(i) * time.Millisecond)
			}))
		})
	}
	wg.Wait()
	close(verdicts)
	for v := range verdicts {
		s.GreaterOrEqual(v.Score, 0)
		s.LessOrEqual(v.Score, s.cfg.Thresholds.MaxScore)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Thresholds.BlockScore = 0
	_, err := New(cfg, Deps{})
	if !dErrors.HasCode(err, dErrors.CodeConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}

	_, err = New(config.DefaultConfig(), Deps{})
	if !dErrors.HasCode(err, dErrors.CodeConfiguration) {
		t.Fatalf("expected configuration error for missing deps, got %v", err)
	}
}

func (s *EngineSuite) TestCancelledRequestKeepsVerdictAndBan() {
	deps := s.deps()
	deps.Bans = contextBoundBans{s.bans}
	deps.Classifier = contextBoundClassifier{class: models.IPClassification{IsDatacenter: true}}
	e := s.newEngine(deps)

	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	v := e.Evaluate(ctx, s.request("203.0.113.9", func(r *models.RequestContext) {
		r.DeviceFingerprint = untrustedFP
	}))
	s.Equal(models.ActionBlock, v.Action)
	s.Equal(8, v.Score)

	record, err := s.bans.Get(s.ctx, "203.0.113.9")
	s.Require().NoError(err)
	s.Require().NotNil(record, "the ban is issued even though the caller went away")
	s.Equal(models.BanLevelPermanent, record.Level)
	s.Equal(1, s.pub.count(models.EventHighThreatAlert))
	s.Zero(s.pub.count(models.EventStoreUnavailable))
}

func (s *EngineSuite) TestCancelledChallengeReportStillEscalates() {
	deps := s.deps()
	deps.Bans = contextBoundBans{s.bans}
	e := s.newEngine(deps)

	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	record, err := e.ReportChallengeOutcome(ctx, "203.0.113.10", false)
	s.Require().NoError(err)
	s.Require().NotNil(record)
	s.Equal(models.BanLevel1, record.Level)
}
