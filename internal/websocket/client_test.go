// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// dialPeer starts a websocket server running handler and returns the
// client side of the connection. Cleanup closes both ends.
func dialPeer(tb testing.TB, handler func(conn *websocket.Conn)) *websocket.Conn {
	tb.Helper()

	var upgrader websocket.Upgrader
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			tb.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))
	tb.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		tb.Fatalf("dial %s: %v", url, err)
	}
	tb.Cleanup(func() { _ = conn.Close() })
	return conn
}

// await fails the test if the signal does not arrive within a second.
func await(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-time.After(time.Second):
		t.Errorf("timed out waiting for %s", what)
	case <-ch:
	}
}

// writeOnlyClient builds a client over conn and starts just its write
// loop.
func writeOnlyClient(hub *Hub, conn *websocket.Conn) *Client {
	c := NewClient(hub, conn)
	go c.writeLoop()
	return c
}

// startClient builds a client over conn and runs both loops.
func startClient(hub *Hub, conn *websocket.Conn) *Client {
	c := NewClient(hub, conn)
	c.Start()
	return c
}

// idle keeps the server side open until the test tears it down.
func idle(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func TestNewClient(t *testing.T) {
	hub := NewHub()
	conn := dialPeer(t, idle)

	client := NewClient(hub, conn)
	switch {
	case client == nil:
		t.Fatal("NewClient returned nil")
	case client.hub != hub || client.conn != conn:
		t.Error("client not wired to hub and connection")
	case cap(client.out) != clientQueueSize:
		t.Errorf("out queue cap = %d, want %d", cap(client.out), clientQueueSize)
	}
}

func TestClientIDsIncrease(t *testing.T) {
	hub := NewHub()
	conn := dialPeer(t, idle)

	a := NewClient(hub, conn)
	b := NewClient(hub, conn)
	if b.ID() <= a.ID() {
		t.Errorf("IDs should increase: %d then %d", a.ID(), b.ID())
	}
}

func TestKeepaliveConstants(t *testing.T) {
	if writeWait != 10*time.Second {
		t.Errorf("writeWait = %v, want 10s", writeWait)
	}
	if pongWait != 60*time.Second {
		t.Errorf("pongWait = %v, want 60s", pongWait)
	}
	if pingPeriod >= pongWait {
		t.Errorf("pingPeriod %v must be shorter than pongWait %v", pingPeriod, pongWait)
	}
	if maxMessageSize != 4096 {
		t.Errorf("maxMessageSize = %d, want 4096", maxMessageSize)
	}
}

func TestClientWriteLoopDeliversMessages(t *testing.T) {
	hub := NewHub()

	got := make(chan struct{})
	conn := dialPeer(t, func(peer *websocket.Conn) {
		var msg Message
		if err := peer.ReadJSON(&msg); err != nil {
			t.Errorf("read failed: %v", err)
			return
		}
		if msg.Type != MessageTypeDetection {
			t.Errorf("Type = %q, want %q", msg.Type, MessageTypeDetection)
		}
		close(got)
		idle(peer)
	})

	client := writeOnlyClient(hub, conn)
	client.out <- Message{Type: MessageTypeDetection, Data: sampleDetection()}
	await(t, got, "detection frame")
}

func TestClientReadLoopAnswersPing(t *testing.T) {
	hub := startHub(t)

	got := make(chan struct{})
	conn := dialPeer(t, func(peer *websocket.Conn) {
		if err := peer.WriteJSON(Message{Type: MessageTypePing}); err != nil {
			t.Errorf("write ping failed: %v", err)
			return
		}
		var pong Message
		if err := peer.ReadJSON(&pong); err != nil {
			t.Errorf("read pong failed: %v", err)
			return
		}
		if pong.Type == MessageTypePong {
			close(got)
		}
		idle(peer)
	})

	startClient(hub, conn)
	await(t, got, "pong reply")
}

func TestClientReadLoopUnregistersOnClose(t *testing.T) {
	hub := NewHub()

	unregistered := make(chan struct{})
	giveUp := time.After(2 * time.Second)
	go func() {
		select {
		case <-giveUp:
		case <-hub.unregister:
			close(unregistered)
		}
	}()

	conn := dialPeer(t, func(peer *websocket.Conn) {
		peer.Close()
	})

	client := NewClient(hub, conn)
	go client.readLoop()

	await(t, unregistered, "unregister after peer close")
}

func TestClientWriteLoopSendsCloseFrame(t *testing.T) {
	hub := NewHub()

	closed := make(chan struct{})
	conn := dialPeer(t, func(peer *websocket.Conn) {
		for {
			if _, _, err := peer.ReadMessage(); err != nil {
				if websocket.IsCloseError(err, websocket.CloseNoStatusReceived, websocket.CloseNormalClosure) {
					close(closed)
				}
				return
			}
		}
	})

	client := writeOnlyClient(hub, conn)
	time.Sleep(50 * time.Millisecond)
	close(client.out)

	// The close frame can lose the race against connection teardown,
	// so a missing signal is tolerated.
	select {
	case <-closed:
	case <-time.After(time.Second):
	}
}

func TestClientEndToEnd(t *testing.T) {
	hub := startHub(t)

	frames := make(chan Message, 10)
	conn := dialPeer(t, func(peer *websocket.Conn) {
		for {
			var frame Message
			if err := peer.ReadJSON(&frame); err != nil {
				return
			}
			frames <- frame
		}
	})

	client := startClient(hub, conn)
	register(t, hub, client)

	hub.BroadcastDetection(sampleDetection())

	select {
	case msg := <-frames:
		if msg.Type != MessageTypeDetection {
			t.Errorf("Type = %q, want %q", msg.Type, MessageTypeDetection)
		}
	case <-time.After(time.Second):
		t.Error("detection never reached the peer")
	}
}

func BenchmarkClientEnqueue(b *testing.B) {
	hub := NewHub()
	client := writeOnlyClient(hub, dialPeer(b, idle))
	msg := Message{Type: MessageTypeDetection, Data: sampleDetection()}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		select {
		case client.out <- msg:
		default:
		}
	}
}
