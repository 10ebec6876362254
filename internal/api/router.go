// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

// Package api provides the HTTP surface: a Chi router exposing engine
// queries, event ingest, Prometheus metrics and the websocket feed.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router wires handlers and middleware into an http.Handler.
type Router struct {
	handler *Handler
	mw      *MiddlewareSet
}

// NewRouter creates a router from a handler and middleware factory.
// A nil middleware factory gets the defaults.
func NewRouter(handler *Handler, mw *MiddlewareSet) *Router {
	if mw == nil {
		mw = NewMiddlewareSet(nil)
	}
	return &Router{handler: handler, mw: mw}
}

// Setup configures all HTTP routes and returns the root handler.
func (rt *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global stack. CORS stays global so OPTIONS preflight is answered
	// before any route-scoped middleware runs.
	r.Use(RequestTracing())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(rt.mw.CORS())

	// Health lives outside the query subtree so monitoring polls never
	// count against the interactive budget.
	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(rt.mw.HealthLimiter(), SecurityHeaders())
		r.Get("/", rt.handler.Health)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rt.mw.Limiter(), SecurityHeaders(), HTTPMetrics())

		r.Get("/detections", rt.handler.Detections)
		r.Get("/detections/summary", rt.handler.DetectionSummary)
		r.Get("/patterns", rt.handler.Patterns)
		r.Get("/engine/stats", rt.handler.EngineStats)

		// Sensors post event batches, so ingest carries its own budget.
		r.With(rt.mw.IngestLimiter()).Post("/events", rt.handler.IngestEvent)
	})

	r.With(rt.mw.UpgradeLimiter()).Get("/ws", rt.handler.WebSocket)
	r.Handle("/metrics", promhttp.Handler())

	return r
}
