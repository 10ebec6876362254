// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

package websocket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/knockwatch/internal/knock"
	"github.com/tomtom215/knockwatch/internal/logging"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{Level: "info", Format: "console", Output: io.Discard})
}

// startHub creates a hub and runs its event loop until the test ends.
func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = hub.RunWithContext(ctx) }()
	return hub
}

// runHub starts the hub loop and returns the channel its result lands on.
func runHub(ctx context.Context, hub *Hub) <-chan error {
	errCh := make(chan error, 1)
	go func() { errCh <- hub.RunWithContext(ctx) }()
	return errCh
}

// waitErr collects the run loop result, failing the test if the loop
// does not return within a second.
func waitErr(t *testing.T, errCh <-chan error) error {
	t.Helper()
	select {
	case err := <-errCh:
		return err
	case <-time.After(time.Second):
		t.Fatal("RunWithContext did not return")
		return nil
	}
}

// newTestClient builds a client with no connection and an out queue
// of the given capacity.
func newTestClient(hub *Hub, queueCap int) *Client {
	return &Client{id: nextClientID.Add(1), hub: hub, out: make(chan Message, queueCap)}
}

// register hands a client to the hub and waits until the count reflects it.
func register(t *testing.T, hub *Hub, client *Client) {
	t.Helper()
	want := hub.ClientCount() + 1
	hub.Attach(client)
	waitForCount(t, hub, want)
}

// waitForCount polls until the hub reports the wanted client count.
func waitForCount(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.After(time.Second)
	for hub.ClientCount() != want {
		select {
		case <-deadline:
			t.Fatalf("client count = %d, want %d", hub.ClientCount(), want)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// nextMessage waits for one message on the client queue.
func nextMessage(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case msg := <-c.out:
		return msg
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timed out waiting for message")
		return Message{}
	}
}

// muteLogs silences zerolog for tests that intentionally trip warning paths.
func muteLogs(t *testing.T) {
	t.Helper()
	old := zerolog.GlobalLevel()
	zerolog.SetGlobalLevel(zerolog.Disabled)
	t.Cleanup(func() { zerolog.SetGlobalLevel(old) })
}

// sampleDetection returns a detection matching the stock ssh_unlock pattern.
func sampleDetection() knock.Detection {
	return knock.Detection{
		SourceIdentity: "192.168.1.100",
		PatternID:      "ssh_unlock",
		Description:    "SSH port-knock unlock sequence",
		Severity:       knock.SeverityHigh,
		Ports:          []int{7000, 8000, 9000},
		DetectedAt:     time.Now().UnixMilli(),
	}
}

func TestNewHub(t *testing.T) {
	hub := NewHub()
	switch {
	case hub == nil:
		t.Fatal("NewHub returned nil")
	case hub.clients == nil || hub.register == nil || hub.unregister == nil:
		t.Fatal("client set or lifecycle channels not initialized")
	case cap(hub.outbox) != outboxSize:
		t.Fatalf("outbox cap = %d, want %d", cap(hub.outbox), outboxSize)
	}
	if got := hub.ClientCount(); got != 0 {
		t.Errorf("ClientCount() = %d, want 0", got)
	}
}

func TestHubClientCount(t *testing.T) {
	hub := NewHub()
	for i := 0; i < 5; i++ {
		hub.clients[newTestClient(hub, 1)] = struct{}{}
	}
	if got := hub.ClientCount(); got != 5 {
		t.Errorf("ClientCount() = %d, want 5", got)
	}
}

// Broadcasting into an empty hub must be a quiet no-op, not a panic or
// a stall.
func TestHubBroadcastWithoutClients(t *testing.T) {
	hub := startHub(t)
	hub.BroadcastDetection(sampleDetection())
	hub.BroadcastSummary(knock.Summary{Total: 3, BySeverity: map[knock.Severity]int{knock.SeverityHigh: 3}})
	hub.BroadcastJSON("test_type", map[string]interface{}{"count": 42})
	time.Sleep(10 * time.Millisecond)
}

func TestHubRegisterUnregister(t *testing.T) {
	hub := startHub(t)
	client := newTestClient(hub, 8)
	register(t, hub, client)

	hub.mu.RLock()
	_, registered := hub.clients[client]
	hub.mu.RUnlock()
	if !registered {
		t.Error("client missing from hub after register")
	}

	hub.unregister <- client
	waitForCount(t, hub, 0)

	if _, open := <-client.out; open {
		t.Error("out channel should be closed after unregister")
	}
}

func TestHubUnregisterUnknownClient(t *testing.T) {
	hub := startHub(t)

	hub.unregister <- newTestClient(hub, 1)
	time.Sleep(20 * time.Millisecond)

	if got := hub.ClientCount(); got != 0 {
		t.Errorf("ClientCount() = %d, want 0", got)
	}
}

func TestHubFanOutReachesEveryClient(t *testing.T) {
	hub := startHub(t)

	clients := make([]*Client, 3)
	for i := range clients {
		clients[i] = newTestClient(hub, 8)
		register(t, hub, clients[i])
	}

	hub.BroadcastDetection(sampleDetection())

	for i, c := range clients {
		if msg := nextMessage(t, c); msg.Type != MessageTypeDetection {
			t.Errorf("client %d got type %q, want %q", i, msg.Type, MessageTypeDetection)
		}
	}
}

func TestHubBroadcastDetectionPayload(t *testing.T) {
	hub := startHub(t)
	client := newTestClient(hub, 8)
	register(t, hub, client)

	hub.BroadcastDetection(sampleDetection())

	msg := nextMessage(t, client)
	if msg.Type != MessageTypeDetection {
		t.Fatalf("Type = %q, want %q", msg.Type, MessageTypeDetection)
	}
	d, ok := msg.Data.(knock.Detection)
	if !ok {
		t.Fatalf("Data = %T, want knock.Detection", msg.Data)
	}
	if d.PatternID != "ssh_unlock" || d.Severity != knock.SeverityHigh || len(d.Ports) != 3 {
		t.Errorf("unexpected detection payload: %+v", d)
	}
}

func TestHubBroadcastSummaryPayload(t *testing.T) {
	hub := startHub(t)
	client := newTestClient(hub, 8)
	register(t, hub, client)

	hub.BroadcastSummary(knock.Summary{Total: 7, BySeverity: map[knock.Severity]int{knock.SeverityMedium: 7}})

	msg := nextMessage(t, client)
	if msg.Type != MessageTypeSummary {
		t.Fatalf("Type = %q, want %q", msg.Type, MessageTypeSummary)
	}
	s, ok := msg.Data.(knock.Summary)
	if !ok {
		t.Fatalf("Data = %T, want knock.Summary", msg.Data)
	}
	if s.Total != 7 || s.BySeverity[knock.SeverityMedium] != 7 {
		t.Errorf("unexpected summary payload: %+v", s)
	}
}

func TestHubBroadcastChannelFull(t *testing.T) {
	muteLogs(t)

	// No run loop, so the outbox fills and the overflow message must
	// hit the drop path without blocking.
	hub := NewHub()
	for i := 0; i < outboxSize; i++ {
		hub.BroadcastJSON("filler", i)
	}

	done := make(chan struct{})
	go func() {
		hub.BroadcastDetection(sampleDetection())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a full outbox")
	}
}

func TestHubSlowClientDropped(t *testing.T) {
	muteLogs(t)
	hub := startHub(t)

	client := newTestClient(hub, 1)
	register(t, hub, client)
	client.out <- Message{Type: "filler"}

	hub.BroadcastDetection(sampleDetection())
	waitForCount(t, hub, 0)

	// The queue still holds the filler; after that the channel is closed.
	<-client.out
	if _, open := <-client.out; open {
		t.Error("out channel should be closed after the drop")
	}
}

func TestHubRunStopsOnCancel(t *testing.T) {
	muteLogs(t)
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := runHub(ctx, hub)

	time.Sleep(20 * time.Millisecond)
	cancel()

	if err := waitErr(t, errCh); !errors.Is(err, context.Canceled) {
		t.Errorf("RunWithContext() = %v, want context.Canceled", err)
	}
}

func TestHubRunStopsOnDeadline(t *testing.T) {
	muteLogs(t)
	hub := NewHub()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	if err := waitErr(t, runHub(ctx, hub)); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("RunWithContext() = %v, want context.DeadlineExceeded", err)
	}
}

func TestHubShutdownClosesClients(t *testing.T) {
	muteLogs(t)
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := runHub(ctx, hub)

	clients := make([]*Client, 3)
	for i := range clients {
		clients[i] = newTestClient(hub, 8)
		register(t, hub, clients[i])
	}

	cancel()
	waitErr(t, errCh)

	if got := hub.ClientCount(); got != 0 {
		t.Errorf("ClientCount() = %d after shutdown, want 0", got)
	}
	for i, c := range clients {
		if _, open := <-c.out; open {
			t.Errorf("client %d out channel still open after shutdown", i)
		}
	}
}

func TestHubDeliversBeforeShutdown(t *testing.T) {
	muteLogs(t)
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := runHub(ctx, hub)

	client := newTestClient(hub, 8)
	register(t, hub, client)

	hub.BroadcastDetection(sampleDetection())
	if msg := nextMessage(t, client); msg.Type != MessageTypeDetection {
		t.Errorf("Type = %q, want %q", msg.Type, MessageTypeDetection)
	}

	cancel()
	waitErr(t, errCh)
}

func TestHubDisconnectAll(t *testing.T) {
	hub := NewHub()

	clients := make([]*Client, 5)
	hub.mu.Lock()
	for i := range clients {
		clients[i] = newTestClient(hub, 8)
		hub.clients[clients[i]] = struct{}{}
	}
	hub.mu.Unlock()

	hub.disconnectAll()

	if got := hub.ClientCount(); got != 0 {
		t.Errorf("ClientCount() = %d after disconnectAll, want 0", got)
	}
	for i, client := range clients {
		select {
		case _, open := <-client.out:
			if open {
				t.Errorf("client %d out channel should be closed", i)
			}
		default:
			t.Errorf("client %d out channel not closed", i)
		}
	}
}

func TestShutdownCause(t *testing.T) {
	causes := map[error]string{
		nil:                      "context_canceled",
		context.Canceled:         "context_canceled",
		context.DeadlineExceeded: "context_deadline",
		fmt.Errorf("hub: %w", context.DeadlineExceeded): "context_deadline",
	}
	for cause, want := range causes {
		if got := shutdownCause(cause); got != want {
			t.Errorf("shutdownCause(%v) = %q, want %q", cause, got, want)
		}
	}
}

func TestMessageTypeValues(t *testing.T) {
	types := []struct{ got, want string }{
		{MessageTypeDetection, "detection"},
		{MessageTypeSummary, "summary"},
		{MessageTypePing, "ping"},
		{MessageTypePong, "pong"},
	}
	for _, tt := range types {
		if tt.got != tt.want {
			t.Errorf("message type = %q, want %q", tt.got, tt.want)
		}
	}
}

func TestHubConcurrentOperations(t *testing.T) {
	hub := startHub(t)

	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		for i := 0; i < 10; i++ {
			// Queues sized past the broadcast volume so no client is
			// dropped as slow mid-test.
			hub.Attach(newTestClient(hub, 32))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 25; i++ {
			hub.BroadcastJSON("tick", map[string]int{"seq": i})
			time.Sleep(2 * time.Millisecond)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 40; i++ {
			hub.ClientCount()
			time.Sleep(time.Millisecond)
		}
	}()

	wg.Wait()
	waitForCount(t, hub, 10)
}
