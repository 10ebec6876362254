// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

package api

import (
	"net/http"
	"strconv"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/tomtom215/knockwatch/internal/logging"
	"github.com/tomtom215/knockwatch/internal/metrics"
)

// RequestBudget is the request allowance for one endpoint class.
type RequestBudget struct {
	Requests int
	Window   time.Duration
}

// perMinute builds a one-minute budget.
func perMinute(n int) RequestBudget {
	return RequestBudget{Requests: n, Window: time.Minute}
}

// Budgets per endpoint class. The ingest budget assumes a sensor
// posting batches every second with headroom for retries; health stays
// permissive so monitoring never trips it; the upgrade budget bounds
// websocket handshakes, not established connections.
var (
	ingestBudget    = perMinute(600)
	healthBudget    = perMinute(1000)
	websocketBudget = perMinute(30)
)

// MiddlewareConfig configures the CORS and rate limiting middleware
// applied across the API routes.
type MiddlewareConfig struct {
	// AllowedOrigins lists the origins permitted to call the API.
	// A single "*" entry disables the origin check.
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string

	// PreflightMaxAge is how long browsers may cache preflight
	// results, in seconds.
	PreflightMaxAge int

	// Budget is the default per-client allowance. Endpoint classes
	// with a budget of their own override it.
	Budget RequestBudget

	// LimitDisabled turns every limiter into a pass-through.
	LimitDisabled bool
}

// DefaultMiddlewareConfig returns the settings used when no API
// configuration is supplied: permissive CORS and a hundred requests
// per minute per client.
func DefaultMiddlewareConfig() *MiddlewareConfig {
	return &MiddlewareConfig{
		AllowedOrigins:  []string{"*"},
		AllowedMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:  []string{"Content-Type", "X-Request-ID"},
		PreflightMaxAge: 86400,
		Budget:          perMinute(100),
	}
}

// MiddlewareSet builds the middleware stack shared by the API routes.
type MiddlewareSet struct {
	cfg  *MiddlewareConfig
	cors func(http.Handler) http.Handler
}

// NewMiddlewareSet constructs the middleware set. A nil cfg selects
// the defaults.
func NewMiddlewareSet(cfg *MiddlewareConfig) *MiddlewareSet {
	if cfg == nil {
		cfg = DefaultMiddlewareConfig()
	}

	return &MiddlewareSet{
		cfg: cfg,
		cors: cors.Handler(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: cfg.AllowedMethods,
			AllowedHeaders: cfg.AllowedHeaders,
			MaxAge:         cfg.PreflightMaxAge,
		}),
	}
}

// CORS returns the preflight-aware CORS middleware.
func (m *MiddlewareSet) CORS() func(http.Handler) http.Handler { return m.cors }

// rateLimitExceeded responds 429 and records the rejection.
func rateLimitExceeded(w http.ResponseWriter, r *http.Request) {
	metrics.RecordRateLimitHit(r.URL.Path)
	respondError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests", nil)
}

// passthrough substitutes for every limiter when limiting is disabled.
func passthrough(next http.Handler) http.Handler { return next }

// Limiter returns the default limiter built from the construction
// config.
func (m *MiddlewareSet) Limiter() func(http.Handler) http.Handler {
	return m.LimiterFor(m.cfg.Budget)
}

// LimiterFor returns a per-IP limiter enforcing the given budget.
// Rejections get a JSON 429 body and a metrics sample.
func (m *MiddlewareSet) LimiterFor(b RequestBudget) func(http.Handler) http.Handler {
	if m.cfg.LimitDisabled {
		return passthrough
	}

	return httprate.Limit(b.Requests, b.Window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(rateLimitExceeded),
	)
}

// IngestLimiter returns the limiter for the event ingest endpoint.
func (m *MiddlewareSet) IngestLimiter() func(http.Handler) http.Handler {
	return m.LimiterFor(ingestBudget)
}

// HealthLimiter returns the limiter for the health endpoints.
func (m *MiddlewareSet) HealthLimiter() func(http.Handler) http.Handler {
	return m.LimiterFor(healthBudget)
}

// UpgradeLimiter returns the limiter for websocket upgrades.
func (m *MiddlewareSet) UpgradeLimiter() func(http.Handler) http.Handler {
	return m.LimiterFor(websocketBudget)
}

// RequestTracing wraps chi's RequestID middleware and threads the same
// ID through the logging context, so every log line for a request
// carries the X-Request-ID the client sees.
func RequestTracing() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		wrapped := chimiddleware.RequestID(next)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-ID")
			if id == "" {
				// Generate here rather than letting chi do it, so the
				// logging context carries the same ID.
				id = logging.NewRequestID()
				r.Header.Set("X-Request-ID", id)
			}

			ctx := logging.WithRequestID(r.Context(), id)
			ctx = logging.WithCorrelationID(ctx, logging.NewCorrelationID())
			wrapped.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SecurityHeaders sets nosniff, frame denial and referrer policy on
// every response. HSTS is added only when the request arrived over TLS,
// directly or behind a terminating proxy.
func SecurityHeaders() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")

			if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}

			next.ServeHTTP(w, r)
		})
	}
}

// HTTPMetrics records the request count, duration and in-flight gauge
// for every API request, labeled by method, path and status.
func HTTPMetrics() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			metrics.TrackActiveRequest(true)
			defer metrics.TrackActiveRequest(false)

			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			metrics.RecordAPIRequest(r.Method, r.URL.Path, strconv.Itoa(rec.status), time.Since(start))
		})
	}
}

// statusRecorder captures the response status for the metrics
// middleware.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
