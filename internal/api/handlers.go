// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/knockwatch/internal/knock"
	"github.com/tomtom215/knockwatch/internal/logging"
	ws "github.com/tomtom215/knockwatch/internal/websocket"
)

// maxEventBodyBytes caps the ingest request body. Connection events are
// three small fields; anything larger is not a legitimate event.
const maxEventBodyBytes = 4096

// DetectionEngine is the engine surface the handlers consume.
type DetectionEngine interface {
	State() knock.EngineState
	InstanceID() string
	Ingest(event knock.ConnectionEvent) error
	Log() *knock.DetectionLog
	Patterns() []knock.Pattern
	Window() time.Duration
	QueueDepth() int
	Summary() knock.Summary
	Metrics() knock.EngineMetrics
}

// Handler holds dependencies for all HTTP handlers.
type Handler struct {
	engine      DetectionEngine
	feed        *ws.Hub
	upgrader    websocket.Upgrader
	corsOrigins []string
	defaultPage int
	maxPage     int
	version     string
	startTime   time.Time
}

// HandlerConfig configures a Handler.
type HandlerConfig struct {
	Engine          DetectionEngine
	Hub             *ws.Hub
	CORSOrigins     []string
	DefaultPageSize int
	MaxPageSize     int
	Version         string
}

// NewHandler creates a handler with the given dependencies.
func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = 50
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = 500
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	h := &Handler{
		engine:      cfg.Engine,
		feed:        cfg.Hub,
		corsOrigins: cfg.CORSOrigins,
		defaultPage: cfg.DefaultPageSize,
		maxPage:     cfg.MaxPageSize,
		version:     cfg.Version,
		startTime:   time.Now(),
	}

	// The handshake timeout guards against clients that stall the
	// upgrade on purpose.
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.allowOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
	return h
}

// Health handles GET /api/v1/health.
// The process is healthy while the engine accepts events and degraded in
// any other state; probes can still distinguish states via engine_state.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	state := h.engine.State()

	status := "healthy"
	if state != knock.StateRunning {
		status = "degraded"
	}

	respondSuccess(w, http.StatusOK, HealthStatus{
		Status:        status,
		EngineState:   state.String(),
		InstanceID:    h.engine.InstanceID(),
		Version:       h.version,
		UptimeSeconds: time.Since(h.startTime).Seconds(),
		Patterns:      len(h.engine.Patterns()),
		Detections:    h.engine.Log().Len(),
	})
}

// detectionsQuery carries the validated query parameters for Detections.
type detectionsQuery struct {
	Severity string `validate:"omitempty,severity"`
	Source   string `validate:"omitempty,max=256"`
	Pattern  string `validate:"omitempty,max=128"`
	Limit    int    `validate:"omitempty,min=1,max=10000"`
}

// Detections handles GET /api/v1/detections.
// Supported filters: severity, source, pattern, limit. A limit above the
// configured maximum page size is clamped, not rejected.
func (h *Handler) Detections(w http.ResponseWriter, r *http.Request) {
	q := detectionsQuery{
		Severity: r.URL.Query().Get("severity"),
		Source:   r.URL.Query().Get("source"),
		Pattern:  r.URL.Query().Get("pattern"),
		Limit:    getIntParam(r, "limit", h.defaultPage),
	}

	if apiErr := validateRequest(&q); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}

	limit := q.Limit
	if limit > h.maxPage {
		limit = h.maxPage
	}

	log := h.engine.Log()
	detections := log.Filter(knock.DetectionFilter{
		Severity:       knock.Severity(strings.ToUpper(q.Severity)),
		SourceIdentity: q.Source,
		PatternID:      q.Pattern,
		Limit:          limit,
	})
	if detections == nil {
		detections = []knock.Detection{}
	}

	respondSuccess(w, http.StatusOK, DetectionList{
		Detections: detections,
		Count:      len(detections),
		Total:      log.Len(),
		Limit:      limit,
	})
}

// DetectionSummary handles GET /api/v1/detections/summary.
func (h *Handler) DetectionSummary(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, http.StatusOK, h.engine.Summary())
}

// Patterns handles GET /api/v1/patterns.
func (h *Handler) Patterns(w http.ResponseWriter, r *http.Request) {
	patterns := h.engine.Patterns()
	if patterns == nil {
		patterns = []knock.Pattern{}
	}

	respondSuccess(w, http.StatusOK, PatternList{
		Patterns: patterns,
		Count:    len(patterns),
	})
}

// EngineStats handles GET /api/v1/engine/stats.
func (h *Handler) EngineStats(w http.ResponseWriter, r *http.Request) {
	m := h.engine.Metrics()

	var lastProcessed *time.Time
	if !m.LastProcessedAt.IsZero() {
		lastProcessed = &m.LastProcessedAt
	}

	respondSuccess(w, http.StatusOK, EngineStats{
		State:                h.engine.State().String(),
		InstanceID:           h.engine.InstanceID(),
		UptimeSeconds:        time.Since(h.startTime).Seconds(),
		WindowMs:             h.engine.Window().Milliseconds(),
		QueueDepth:           h.engine.QueueDepth(),
		EventsIngested:       m.EventsIngested,
		EventsProcessed:      m.EventsProcessed,
		EventsInvalid:        m.EventsInvalid,
		EventsOverflowed:     m.EventsOverflowed,
		DetectionsEmitted:    m.DetectionsEmitted,
		DetectionsSuppressed: m.DetectionsSuppressed,
		SourcesEvicted:       m.SourcesEvicted,
		LastProcessedAt:      lastProcessed,
		BySeverity:           m.BySeverity,
	})
}

// ingestEventRequest carries a single connection event to ingest.
// A zero timestamp is stamped with the current time by the engine.
type ingestEventRequest struct {
	SourceIdentity  string `json:"source_identity" validate:"required,min=1,max=256"`
	DestinationPort int    `json:"destination_port" validate:"min=0,max=65535"`
	Timestamp       int64  `json:"timestamp" validate:"omitempty,gte=0"`
}

// IngestEvent handles POST /api/v1/events.
// 202 when queued, 400 for malformed or invalid events, 429 when the
// ingest queue is saturated, 503 when the engine is not running.
func (h *Handler) IngestEvent(w http.ResponseWriter, r *http.Request) {
	var req ingestEventRequest

	r.Body = http.MaxBytesReader(w, r.Body, maxEventBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body", err)
		return
	}

	if apiErr := validateRequest(&req); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}

	err := h.engine.Ingest(knock.ConnectionEvent{
		SourceIdentity:  req.SourceIdentity,
		DestinationPort: req.DestinationPort,
		Timestamp:       req.Timestamp,
	})
	switch {
	case err == nil:
		respondSuccess(w, http.StatusAccepted, IngestAccepted{
			Queued:     true,
			QueueDepth: h.engine.QueueDepth(),
		})
	case knock.IsInvalidEvent(err):
		respondError(w, http.StatusBadRequest, "INVALID_EVENT", err.Error(), nil)
	case knock.IsOverflow(err):
		w.Header().Set("Retry-After", "1")
		respondError(w, http.StatusTooManyRequests, "QUEUE_FULL", "Ingest queue is full", err)
	default:
		respondError(w, http.StatusServiceUnavailable, "ENGINE_UNAVAILABLE", err.Error(), nil)
	}
}

// allowOrigin decides whether a websocket upgrade may proceed.
// Browser WebSockets always send Origin; an empty header means a
// non-browser client, which is allowed since sensors and CLIs connect
// without one. Browser origins must match the configured CORS origins.
func (h *Handler) allowOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	for _, allowed := range h.corsOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}

	logging.Warn().Str("origin", escapeLogValue(origin)).Msg("websocket origin rejected")
	return false
}

// WebSocket handles GET /ws: upgrades the connection and attaches the
// client to the detection feed hub.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	if h.feed == nil {
		logging.Warn().Msg("websocket upgrade refused: feed hub disabled")
		respondError(w, http.StatusServiceUnavailable, "FEED_UNAVAILABLE", "Detection feed is not running", nil)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := ws.NewClient(h.feed, conn)
	h.feed.Attach(client)
	client.Start()
}
