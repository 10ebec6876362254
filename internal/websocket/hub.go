// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

package websocket

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/tomtom215/knockwatch/internal/knock"
	"github.com/tomtom215/knockwatch/internal/logging"
	"github.com/tomtom215/knockwatch/internal/metrics"
)

// Message type tags understood by feed consumers.
const (
	MessageTypeDetection = "detection"
	MessageTypeSummary   = "summary"
	MessageTypePing      = "ping"
	MessageTypePong      = "pong"
)

// Message is the envelope every feed frame travels in.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Hub maintains the set of active clients and fans detections out to
// them. Lifecycle events are handled before broadcasts so client state
// is consistent when a message goes out, and clients are iterated in
// ID order so delivery order is reproducible.
type Hub struct {
	clients map[*Client]struct{}
	outbox  chan Message

	// register and unregister queue lifecycle changes for the hub
	// loop; Attach feeds newly upgraded connections in.
	register   chan *Client
	unregister chan *Client

	mu sync.RWMutex
}

// outboxSize bounds pending broadcasts before callers start dropping
// messages instead of blocking.
const outboxSize = 256

// NewHub builds a hub with no clients attached.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		outbox:     make(chan Message, outboxSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Attach queues a freshly upgraded client for registration. The hub
// loop picks it up before the next broadcast goes out.
func (h *Hub) Attach(c *Client) {
	h.register <- c
}

// RunWithContext runs the hub event loop until the context is
// canceled, then closes every connected client and returns ctx.Err().
// Designed for suture supervision: a restart starts with a clean
// client set.
//
// When several channels are ready Go's select picks randomly, so each
// iteration checks in priority order: shutdown first, then pending
// lifecycle events, and only then blocks for broadcasts.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			h.shutdown(err)
			return err
		}

		if h.drainLifecycle() {
			continue
		}

		select {
		case <-ctx.Done():
			h.shutdown(ctx.Err())
			return ctx.Err()
		case c := <-h.register:
			h.addClient(c)
		case c := <-h.unregister:
			h.removeClient(c)
		case msg := <-h.outbox:
			h.fanOut(msg)
		}
	}
}

// drainLifecycle applies at most one pending register or unregister
// without blocking. It reports whether it handled anything so the
// caller can re-check for shutdown before waiting on broadcasts.
func (h *Hub) drainLifecycle() bool {
	select {
	case c := <-h.register:
		h.addClient(c)
		return true
	case c := <-h.unregister:
		h.removeClient(c)
		return true
	default:
		return false
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()

	metrics.TrackWSConnection(true)
	logging.Info().Int("total_clients", total).Msg("websocket client connected")
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.out)
	total := len(h.clients)
	h.mu.Unlock()

	metrics.TrackWSConnection(false)
	logging.Info().Int("total_clients", total).Msg("websocket client disconnected")
}

// shutdown closes every connected client and logs why. The context
// error is the expected trigger here, so it is reported as a reason
// string rather than through Err.
func (h *Hub) shutdown(cause error) {
	connected := h.ClientCount()
	h.disconnectAll()

	logger := logging.WithComponent("websocket-hub")
	logger.Info().
		Str("reason", shutdownCause(cause)).
		Int("clients_closed", connected).
		Msg("websocket hub stopped")
}

// shutdownCause names the reason recorded in shutdown logs:
// "context_deadline" when the deadline fired, which may indicate a
// hung operation, and "context_canceled" for normal termination.
func shutdownCause(cause error) string {
	if errors.Is(cause, context.DeadlineExceeded) {
		return "context_deadline"
	}
	return "context_canceled"
}

// sortedClientsLocked returns the connected clients in ID order.
// Callers must hold mu.
func (h *Hub) sortedClientsLocked() []*Client {
	out := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// dropLocked removes one client and counts the disconnect. A non-empty
// cause is recorded as a websocket error. Callers must hold mu.
func (h *Hub) dropLocked(c *Client, cause string) {
	delete(h.clients, c)
	close(c.out)
	metrics.TrackWSConnection(false)
	if cause != "" {
		metrics.RecordWSError(cause)
		logging.Warn().Uint64("client_id", c.id).Str("cause", cause).Msg("dropping websocket client")
	}
}

// fanOut delivers one message to every connected client in ID order.
// A full out queue means the reader stopped draining, so the client
// is cut loose rather than allowed to stall the feed.
func (h *Hub) fanOut(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var stale []*Client
	for _, c := range h.sortedClientsLocked() {
		select {
		case c.out <- msg:
			metrics.RecordWSMessageSent()
		default:
			stale = append(stale, c)
		}
	}

	for _, c := range stale {
		h.dropLocked(c, "slow_client")
	}
}

// disconnectAll drops every connected client in ID order. Runs once,
// at shutdown.
func (h *Hub) disconnectAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, c := range h.sortedClientsLocked() {
		h.dropLocked(c, "")
	}
}

// BroadcastDetection sends a detection to all connected clients.
func (h *Hub) BroadcastDetection(d knock.Detection) {
	h.BroadcastJSON(MessageTypeDetection, d)
}

// BroadcastSummary sends a severity summary to all connected clients.
func (h *Hub) BroadcastSummary(s knock.Summary) {
	h.BroadcastJSON(MessageTypeSummary, s)
}

// BroadcastJSON sends an arbitrary typed message to all connected
// clients. The hub never blocks the caller; if the broadcast channel
// is full the message is dropped and counted.
func (h *Hub) BroadcastJSON(msgType string, data interface{}) {
	select {
	case h.outbox <- Message{Type: msgType, Data: data}:
	default:
		metrics.RecordWSError("broadcast_channel_full")
		logging.Warn().Str("message_type", msgType).Msg("broadcast channel full, dropping message")
	}
}

// ClientCount reports how many clients are currently connected.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	n := len(h.clients)
	h.mu.RUnlock()
	return n
}
