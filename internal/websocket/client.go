// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

package websocket

import (
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/knockwatch/internal/logging"
	"github.com/tomtom215/knockwatch/internal/metrics"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// Clients only ever send control messages (ping). Anything larger
	// is a misbehaving client.
	maxMessageSize = 4096

	// clientQueueSize bounds the per-client backlog before the hub
	// declares the client too slow and drops it.
	clientQueueSize = 256
)

// nextClientID generates unique, monotonically increasing IDs.
// Clients are sorted by ID wherever iteration order matters.
var nextClientID atomic.Uint64

// Client owns one websocket connection. The hub hands it messages
// through the out queue, and the two loops launched by Start are the
// only goroutines that touch the connection.
type Client struct {
	conn *websocket.Conn
	hub  *Hub
	out  chan Message
	id   uint64
}

// NewClient wraps a freshly upgraded connection for hub registration.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		conn: conn,
		hub:  hub,
		out:  make(chan Message, clientQueueSize),
		id:   nextClientID.Add(1),
	}
}

// ID returns the client's unique identifier
func (c *Client) ID() uint64 { return c.id }

// Start launches the read and write loops.
func (c *Client) Start() {
	go c.readLoop()
	go c.writeLoop()
}

// teardown hands the client back to the hub and drops the connection.
// Runs once the read loop exits for any reason.
func (c *Client) teardown() {
	c.hub.unregister <- c
	_ = c.conn.Close()
}

// readLoop drains the connection until it closes or errors. The
// detection feed is one-directional; the only inbound traffic handled
// is the ping/pong keepalive.
func (c *Client) readLoop() {
	defer c.teardown()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.armReadDeadline(); err != nil {
		logging.Error().Err(err).Msg("failed to arm read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error { return c.armReadDeadline() })

	for {
		var in Message
		if err := c.conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				metrics.RecordWSError("unexpected_close")
				logging.Error().Err(err).Msg("websocket closed unexpectedly")
			}
			return
		}
		c.handleInbound(in)
	}
}

// armReadDeadline pushes the read deadline out by one pong interval.
func (c *Client) armReadDeadline() error {
	return c.conn.SetReadDeadline(time.Now().Add(pongWait))
}

// handleInbound answers application-level pings. Everything else from
// the client is ignored.
func (c *Client) handleInbound(in Message) {
	if in.Type != MessageTypePing {
		return
	}
	select {
	case c.out <- Message{Type: MessageTypePong}:
	default:
	}
}

// writeLoop owns all writes to the connection. The connection supports
// one concurrent writer, so queued messages and keepalive pings both
// go through here.
func (c *Client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer func() { _ = c.conn.Close() }()

	for {
		select {
		case <-ticker.C:
			if err := c.writeControl(websocket.PingMessage); err != nil {
				return
			}

		case msg, open := <-c.out:
			if !open {
				// The hub closed the queue; tell the peer before
				// dropping the connection.
				if err := c.writeControl(websocket.CloseMessage); err != nil {
					logging.Debug().Err(err).Msg("close frame not delivered")
				}
				return
			}
			if err := c.writeJSON(msg); err != nil {
				metrics.RecordWSError("write_failed")
				logging.Error().Err(err).Msg("websocket write failed")
				return
			}
		}
	}
}

// writeJSON writes one message under the write deadline.
func (c *Client) writeJSON(msg Message) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteJSON(msg)
}

// writeControl writes an empty control frame under the write deadline.
func (c *Client) writeControl(frame int) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(frame, nil)
}
