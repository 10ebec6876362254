// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

package knock

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// captureServer records the last webhook request it served so tests can
// inspect method, headers and decoded payload after Send returns.
type captureServer struct {
	*httptest.Server

	mu      sync.Mutex
	hits    int
	method  string
	header  http.Header
	payload WebhookPayload
}

func newCaptureServer(t *testing.T, status int) *captureServer {
	t.Helper()
	cs := &captureServer{}
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cs.mu.Lock()
		defer cs.mu.Unlock()
		cs.hits++
		cs.method = r.Method
		cs.header = r.Header.Clone()
		if err := json.NewDecoder(r.Body).Decode(&cs.payload); err != nil {
			t.Errorf("decode webhook body: %v", err)
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(cs.Close)
	return cs
}

func (cs *captureServer) deliveries() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.hits
}

func (cs *captureServer) last() (method string, header http.Header, payload WebhookPayload) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.method, cs.header, cs.payload
}

func unlockDetection() *Detection {
	return &Detection{
		SourceIdentity: "192.0.2.31",
		PatternID:      "ssh_unlock",
		Description:    "Classic SSH unlock knock sequence",
		Severity:       SeverityHigh,
		Ports:          []int{7000, 8000, 9000},
		DetectedAt:     1700000000000,
	}
}

func TestNewWebhookNotifier(t *testing.T) {
	notifier := NewWebhookNotifier(WebhookConfig{
		WebhookURL: "https://hooks.internal/knock",
		Enabled:    true,
	})

	if got := notifier.Name(); got != "webhook" {
		t.Errorf("Name() = %q, want webhook", got)
	}
	if !notifier.Enabled() {
		t.Error("notifier with a URL and Enabled set should report enabled")
	}
	// RateLimitMs was left zero, so the delivery interval falls back.
	if notifier.rateLimit != defaultWebhookInterval {
		t.Errorf("rateLimit = %v, want %v", notifier.rateLimit, defaultWebhookInterval)
	}
}

func TestWebhookNotifierEnabled(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		enabled bool
		want    bool
	}{
		{"configured", "https://hooks.internal/knock", true, true},
		{"switched off", "https://hooks.internal/knock", false, false},
		{"no url", "", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			notifier := NewWebhookNotifier(WebhookConfig{WebhookURL: tt.url, Enabled: tt.enabled})
			if got := notifier.Enabled(); got != tt.want {
				t.Errorf("Enabled() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWebhookNotifierDisabledSendsNothing(t *testing.T) {
	srv := newCaptureServer(t, http.StatusOK)

	notifier := NewWebhookNotifier(WebhookConfig{WebhookURL: srv.URL, Enabled: false})
	if err := notifier.Send(context.Background(), unlockDetection()); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got := srv.deliveries(); got != 0 {
		t.Errorf("disabled notifier issued %d requests", got)
	}
}

func TestWebhookNotifierDeliversPayload(t *testing.T) {
	srv := newCaptureServer(t, http.StatusOK)

	notifier := NewWebhookNotifier(WebhookConfig{
		WebhookURL:  srv.URL,
		Headers:     map[string]string{"Authorization": "Bearer sensor-key"},
		Enabled:     true,
		RateLimitMs: 5,
	})

	detection := unlockDetection()
	if err := notifier.Send(context.Background(), detection); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got := srv.deliveries(); got != 1 {
		t.Fatalf("deliveries = %d, want 1", got)
	}

	method, header, payload := srv.last()
	if method != http.MethodPost {
		t.Errorf("method = %s, want POST", method)
	}
	if ct := header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	if auth := header.Get("Authorization"); auth != "Bearer sensor-key" {
		t.Errorf("Authorization = %q, want the configured bearer token", auth)
	}

	if payload.EventType != "knock_detection" {
		t.Errorf("EventType = %q, want knock_detection", payload.EventType)
	}
	if payload.Source != "knockwatch" {
		t.Errorf("Source = %q, want knockwatch", payload.Source)
	}
	if payload.Detection == nil {
		t.Fatal("payload carries no detection")
	}
	if payload.Detection.PatternID != detection.PatternID {
		t.Errorf("PatternID = %q, want %q", payload.Detection.PatternID, detection.PatternID)
	}
	if len(payload.Detection.Ports) != len(detection.Ports) {
		t.Errorf("Ports = %v, want %v", payload.Detection.Ports, detection.Ports)
	}
}

func TestWebhookNotifierServerError(t *testing.T) {
	srv := newCaptureServer(t, http.StatusBadGateway)

	notifier := NewWebhookNotifier(WebhookConfig{WebhookURL: srv.URL, Enabled: true, RateLimitMs: 5})
	if err := notifier.Send(context.Background(), unlockDetection()); err == nil {
		t.Error("Send should surface a 502 from the endpoint")
	}
}

func TestWebhookNotifierThrottlesDeliveries(t *testing.T) {
	srv := newCaptureServer(t, http.StatusOK)

	notifier := NewWebhookNotifier(WebhookConfig{WebhookURL: srv.URL, Enabled: true, RateLimitMs: 100})

	start := time.Now()
	for i := 0; i < 2; i++ {
		if err := notifier.Send(context.Background(), unlockDetection()); err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
	}
	elapsed := time.Since(start)

	if got := srv.deliveries(); got != 2 {
		t.Fatalf("deliveries = %d, want 2", got)
	}
	// Some slack below the configured 100ms keeps slow CI from flaking
	// on timer granularity.
	if elapsed < 80*time.Millisecond {
		t.Errorf("second delivery after %v, want the interval waited out", elapsed)
	}
}

func TestWebhookNotifierCanceledWait(t *testing.T) {
	srv := newCaptureServer(t, http.StatusOK)

	notifier := NewWebhookNotifier(WebhookConfig{WebhookURL: srv.URL, Enabled: true, RateLimitMs: 5000})

	if err := notifier.Send(context.Background(), unlockDetection()); err != nil {
		t.Fatalf("first Send: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := notifier.Send(ctx, unlockDetection()); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Send during wait = %v, want deadline exceeded", err)
	}
	if got := srv.deliveries(); got != 1 {
		t.Errorf("deliveries = %d, want the throttled send abandoned", got)
	}
}

func TestWebhookNotifierBreakerOpens(t *testing.T) {
	srv := newCaptureServer(t, http.StatusInternalServerError)

	notifier := NewWebhookNotifier(WebhookConfig{
		WebhookURL:       srv.URL,
		Enabled:          true,
		RateLimitMs:      1,
		FailureThreshold: 3,
	})

	for i := 0; i < 3; i++ {
		if err := notifier.Send(context.Background(), unlockDetection()); err == nil {
			t.Fatalf("delivery %d: want error from failing endpoint", i)
		}
	}

	before := srv.deliveries()
	if err := notifier.Send(context.Background(), unlockDetection()); err == nil {
		t.Error("want error while the circuit is open")
	}
	if got := srv.deliveries(); got != before {
		t.Errorf("open circuit issued %d extra requests", got-before)
	}
}

func TestWebhookNotifierCopiesHeaders(t *testing.T) {
	hdr := map[string]string{"Authorization": "Bearer sensor-key"}
	notifier := NewWebhookNotifier(WebhookConfig{
		WebhookURL: "https://hooks.internal/knock",
		Headers:    hdr,
		Enabled:    true,
	})

	hdr["X-Extra"] = "later"

	if _, ok := notifier.headers["X-Extra"]; ok {
		t.Error("caller mutations after construction must not leak into the notifier")
	}
}
