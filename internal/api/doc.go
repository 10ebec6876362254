// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

/*
Package api provides the HTTP REST API layer for Knockwatch.

It exposes the detection engine over HTTP: querying the detection log,
inspecting the pattern catalog and engine counters, pushing connection
events from remote sensors, and upgrading to the live websocket feed.

Key Components:

  - Router: Chi route configuration and middleware stack
  - Handler: Request handlers over the DetectionEngine interface
  - Response formatting: Standardized JSON envelopes with metadata
  - Error handling: Consistent error codes with appropriate HTTP status codes
  - Rate limiting: Per-IP limits via go-chi/httprate, with a separate
    budget for the event ingest endpoint
  - CORS: go-chi/cors, global so OPTIONS preflight always answers

Endpoints:

 1. Health (/api/v1/health):
    Process status, engine state, uptime, pattern and detection counts.

 2. Detection Queries (/api/v1/):
    - GET /detections            filtered detection log (severity, source, pattern, limit)
    - GET /detections/summary    totals by severity
    - GET /patterns              active pattern catalog
    - GET /engine/stats          engine counters and queue depth

 3. Event Ingest (POST /api/v1/events):
    JSON connection event -> engine. 202 queued, 400 invalid,
    429 queue full, 503 engine not running.

 4. WebSocket (/ws):
    Live detection feed; every detection is pushed as it fires.

 5. Observability (/metrics):
    Prometheus exposition via promhttp.

Usage Example:

	handler := api.NewHandler(api.HandlerConfig{
	    Engine:          engine,
	    Hub:             hub,
	    CORSOrigins:     cfg.API.CORSOrigins,
	    DefaultPageSize: cfg.API.DefaultPageSize,
	    MaxPageSize:     cfg.API.MaxPageSize,
	    Version:         version,
	})
	router := api.NewRouter(handler, api.NewMiddlewareSet(&api.MiddlewareConfig{
	    AllowedOrigins: cfg.API.CORSOrigins,
	    Budget:         api.RequestBudget{Requests: cfg.API.RateLimitReqs, Window: cfg.API.RateLimitWindow},
	    LimitDisabled:  cfg.API.RateLimitDisabled,
	}))
	srv := &http.Server{Addr: addr, Handler: router.Setup()}

Thread Safety:

Handlers only read engine snapshots or enqueue events; all state lives
behind the engine's own synchronization. The router is safe for
concurrent requests.
*/
package api
