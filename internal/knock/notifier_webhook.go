// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

package knock

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/knockwatch/internal/logging"
	"github.com/tomtom215/knockwatch/internal/metrics"
)

const (
	defaultWebhookInterval = 500 * time.Millisecond
	webhookTimeout         = 10 * time.Second
)

// WebhookNotifier posts detections to an HTTP endpoint. Deliveries are
// rate limited and guarded by a circuit breaker so a dead endpoint
// cannot stall the fan-out loop. The target and headers are fixed at
// construction; only the delivery clock is mutable.
type WebhookNotifier struct {
	url       string
	headers   map[string]string
	client    *http.Client
	breaker   *gobreaker.CircuitBreaker[int]
	enabled   bool
	rateLimit time.Duration

	mu       sync.Mutex
	lastSent time.Time
}

// WebhookConfig configures the webhook notifier.
type WebhookConfig struct {
	WebhookURL  string            `json:"webhook_url" koanf:"url"`
	Headers     map[string]string `json:"headers,omitempty" koanf:"headers"`
	Enabled     bool              `json:"enabled" koanf:"enabled"`
	RateLimitMs int               `json:"rate_limit_ms" koanf:"rate_limit_ms"`

	// FailureThreshold is the number of consecutive delivery failures
	// before the circuit opens. Default 5.
	FailureThreshold uint32 `json:"failure_threshold" koanf:"failure_threshold"`
}

// WebhookPayload is the JSON body posted for each detection.
type WebhookPayload struct {
	Detection *Detection `json:"detection"`
	EventType string     `json:"event_type"`
	Timestamp time.Time  `json:"timestamp"`
	Source    string     `json:"source"`
}

// NewWebhookNotifier builds a notifier from the config. The headers map
// is copied so later mutation by the caller cannot leak into requests.
func NewWebhookNotifier(cfg WebhookConfig) *WebhookNotifier {
	interval := time.Duration(cfg.RateLimitMs) * time.Millisecond
	if interval <= 0 {
		interval = defaultWebhookInterval
	}

	headers := make(map[string]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers[k] = v
	}

	return &WebhookNotifier{
		url:       cfg.WebhookURL,
		headers:   headers,
		client:    &http.Client{Timeout: webhookTimeout},
		breaker:   newWebhookBreaker(cfg.FailureThreshold),
		enabled:   cfg.Enabled,
		rateLimit: interval,
	}
}

// newWebhookBreaker trips after threshold consecutive failures and
// probes the endpoint again after a cool-down.
func newWebhookBreaker(threshold uint32) *gobreaker.CircuitBreaker[int] {
	if threshold == 0 {
		threshold = 5
	}

	return gobreaker.NewCircuitBreaker[int](gobreaker.Settings{
		Name:        "webhook",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("webhook circuit breaker state changed")
			metrics.SetCircuitBreakerState(name, to.String())
		},
	})
}

// Name returns "webhook".
func (n *WebhookNotifier) Name() string { return "webhook" }

// Enabled reports whether the notifier has a target and is switched on.
func (n *WebhookNotifier) Enabled() bool {
	return n.enabled && n.url != ""
}

// Send delivers one detection, honoring the rate limit and the circuit
// breaker. A disabled notifier accepts and drops silently.
func (n *WebhookNotifier) Send(ctx context.Context, detection *Detection) error {
	if !n.Enabled() {
		return nil
	}

	if err := n.waitTurn(ctx); err != nil {
		return err
	}

	body, err := json.Marshal(WebhookPayload{
		Detection: detection,
		EventType: "knock_detection",
		Timestamp: time.Now().UTC(),
		Source:    "knockwatch",
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	if _, err := n.breaker.Execute(func() (int, error) { return n.post(ctx, body) }); err != nil {
		metrics.RecordWebhookDelivery("error")
		return err
	}

	n.mu.Lock()
	n.lastSent = time.Now()
	n.mu.Unlock()

	metrics.RecordWebhookDelivery("success")
	return nil
}

// waitTurn blocks until the rate limit interval since the previous
// delivery has passed, or the context ends first.
func (n *WebhookNotifier) waitTurn(ctx context.Context) error {
	n.mu.Lock()
	wait := n.rateLimit - time.Since(n.lastSent)
	n.mu.Unlock()

	if wait <= 0 {
		return nil
	}

	select {
	case <-time.After(wait):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post issues the HTTP request and maps 4xx/5xx answers to errors so
// the breaker counts them as failures.
func (n *WebhookNotifier) post(ctx context.Context, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build webhook request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range n.headers {
		req.Header.Set(k, v)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("deliver webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return resp.StatusCode, fmt.Errorf("webhook endpoint returned %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}
