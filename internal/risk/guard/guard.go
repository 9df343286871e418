// Package guard turns engine verdicts into HTTP responses for deployments
// where warden sits in front of the protected application.
package guard

import (
	"context"
	"log/slog"
	"net/http"

	"warden/internal/platform/privacy"
	"warden/internal/risk/models"
	"warden/internal/risk/trustedcaller"
	"warden/pkg/platform/httputil"
	"warden/pkg/requestcontext"
)

const (
	// HeaderChallenge is set on CHALLENGE responses so the front-end knows to
	// present a challenge rather than treat the 429 as plain throttling.
	HeaderChallenge = "X-Risk-Challenge"
	// HeaderSession and CookieSession carry the optional session identifier.
	HeaderSession = "X-Session-ID"
	CookieSession = "session_id"
)

// Evaluator scores a request.
type Evaluator interface {
	Evaluate(ctx context.Context, req models.RequestContext) models.Verdict
}

// TokenVerifier validates a trusted-caller token and returns its subject.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

type Guard struct {
	engine   Evaluator
	verifier TokenVerifier
	logger   *slog.Logger
}

// Option configures a Guard.
type Option func(*Guard)

func WithLogger(l *slog.Logger) Option {
	return func(g *Guard) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithVerifier enables the trusted-caller fast path.
func WithVerifier(v TokenVerifier) Option {
	return func(g *Guard) {
		g.verifier = v
	}
}

func New(engine Evaluator, opts ...Option) *Guard {
	g := &Guard{engine: engine, logger: slog.Default()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Middleware must run after the metadata, device and requesttime middleware:
// it reads client IP, user-agent, fingerprint and the pinned clock from the
// request context.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if g.trusted(ctx, r) {
			next.ServeHTTP(w, r)
			return
		}

		req := requestContext(r)
		verdict := g.engine.Evaluate(ctx, req)

		switch verdict.Action {
		case models.ActionBlock:
			g.logger.InfoContext(ctx, "request_blocked",
				"ip", privacy.AnonymizeIP(req.IP),
				"score", verdict.Score,
				"reason_codes", verdict.ReasonCodes,
				"request_id", requestcontext.RequestID(ctx),
			)
			httputil.WriteJSON(w, http.StatusForbidden, map[string]string{
				"error": "forbidden",
			})
		case models.ActionChallenge:
			w.Header().Set(HeaderChallenge, "required")
			httputil.WriteJSON(w, http.StatusTooManyRequests, map[string]string{
				"error": "challenge_required",
			})
		default:
			next.ServeHTTP(w, r)
		}
	})
}

// trusted reports whether the request carries a valid service token. A bad
// token is logged and the request is scored like any other.
func (g *Guard) trusted(ctx context.Context, r *http.Request) bool {
	if g.verifier == nil {
		return false
	}
	token := r.Header.Get(trustedcaller.Header)
	if token == "" {
		return false
	}
	subject, err := g.verifier.Verify(token)
	if err != nil {
		g.logger.WarnContext(ctx, "trusted_caller_rejected",
			"error", err,
			"ip", privacy.AnonymizeIP(requestcontext.ClientIP(ctx)),
			"request_id", requestcontext.RequestID(ctx),
		)
		return false
	}
	g.logger.DebugContext(ctx, "trusted_caller_bypass",
		"subject", subject,
		"reason_code", models.ReasonTrustedCaller,
		"request_id", requestcontext.RequestID(ctx),
	)
	return true
}

func requestContext(r *http.Request) models.RequestContext {
	ctx := r.Context()
	ua := requestcontext.UserAgent(ctx)
	if ua == "" {
		ua = r.UserAgent()
	}
	ip := requestcontext.ClientIP(ctx)
	if ip == "unknown" {
		ip = ""
	}
	return models.RequestContext{
		IP:                ip,
		DeviceFingerprint: requestcontext.DeviceFingerprint(ctx),
		UserAgent:         ua,
		Timestamp:         requestcontext.Now(ctx),
		SessionID:         sessionID(r),
		Path:              r.URL.Path,
	}
}

func sessionID(r *http.Request) string {
	if v := r.Header.Get(HeaderSession); v != "" {
		return v
	}
	if c, err := r.Cookie(CookieSession); err == nil {
		return c.Value
	}
	return ""
}
