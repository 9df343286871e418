package main

import (
	"fmt"
	"net/http"
	nethttputil "net/http/httputil"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	riskdevice "warden/internal/risk/device"
	"warden/internal/risk/guard"
	"warden/internal/risk/handler"
	"warden/pkg/platform/middleware/device"
	"warden/pkg/platform/middleware/metadata"
	"warden/pkg/platform/middleware/ratelimit"
	"warden/pkg/platform/middleware/request"
	"warden/pkg/platform/middleware/requesttime"
)

const maxBodyBytes = 64 << 10

func newRouter(a *app) (http.Handler, error) {
	proxies, err := metadata.ParseTrustedProxies(a.cfg.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("parse TRUSTED_PROXIES: %w", err)
	}

	r := chi.NewRouter()
	r.Use(request.Recovery(a.logger))
	r.Use(request.RequestID)
	r.Use(metadata.NewMiddleware(&metadata.Config{TrustedProxies: proxies}).Handler)
	r.Use(requesttime.Middleware)
	r.Use(device.Device(&device.Config{FingerprintFn: riskdevice.FromRequest}))
	r.Use(request.Logger(a.logger))
	r.Use(request.LatencyMiddleware(request.NewMetrics(a.registry), routePattern))
	if len(a.cfg.CORSAllowedOrigins) > 0 {
		// Preflights match no route; this must wrap the root router.
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: a.cfg.CORSAllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID"},
			MaxAge:         300,
		}))
	}

	a.health.Register(r)
	r.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{Registry: a.registry}))

	r.Group(func(r chi.Router) {
		r.Use(request.Timeout(a.cfg.RequestTimeout))
		r.Use(request.BodyLimit(maxBodyBytes))
		r.Use(request.ContentTypeJSON)
		r.Use(ratelimit.PerCaller(a.cfg.APIRateLimit))
		handler.New(a.engine, a.logger).Register(r)
	})

	if a.cfg.UpstreamURL != "" {
		proxy, err := upstreamProxy(a.cfg.UpstreamURL)
		if err != nil {
			return nil, err
		}
		opts := []guard.Option{guard.WithLogger(a.logger)}
		if a.verifier != nil {
			opts = append(opts, guard.WithVerifier(a.verifier))
		}
		r.With(guard.New(a.engine, opts...).Middleware).Handle("/*", proxy)
	}
	return r, nil
}

// upstreamProxy forwards guarded traffic to the protected application.
func upstreamProxy(raw string) (http.Handler, error) {
	target, err := url.Parse(raw)
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("invalid UPSTREAM_URL %q", raw)
	}
	return nethttputil.NewSingleHostReverseProxy(target), nil
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		return rc.RoutePattern()
	}
	return ""
}
