// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

/*
Package websocket streams detections to connected clients in real time.

The detection engine pushes every new Detection through the hub, which
fans it out to all subscribed WebSocket clients over gorilla/websocket.

	 engine ──► Hub ──► Client 1 ──► browser
	                ──► Client 2 ──► dashboard
	                ──► Client 3 ──► CLI tail

The Hub is the only writer of client state. Lifecycle changes and
broadcasts all flow through its event loop, so a Client never needs a
lock of its own; each one is just a connection plus a buffered out
queue serviced by a pair of goroutines (readLoop for the keepalive,
writeLoop for the feed).

Frames on the wire are a typed envelope, {"type": "...", "data": ...}:

  - detection: a pattern matched; data is the full Detection record
  - summary: severity-bucketed counts; data is a Summary
  - ping / pong: keepalive exchanged with clients

Wiring it up:

	hub := websocket.NewHub()
	go hub.RunWithContext(ctx)

	// Fired by the engine for every detection
	hub.BroadcastDetection(detection)

	// Periodic or on-demand summary push
	hub.BroadcastSummary(engine.Summary())

And on the receiving end (JavaScript):

	const ws = new WebSocket('ws://localhost:9476/ws');

	ws.onmessage = (event) => {
	    const msg = JSON.parse(event.data);

	    if (msg.type === 'detection') {
	        console.log(`[${msg.data.severity}] ${msg.data.description}`,
	                    msg.data.source_identity, msg.data.ports);
	    }
	};

Backpressure:

The feed never blocks the detection path. The hub's outbox is buffered
(256 messages); when it is full the message is dropped and counted in
websocket_errors_total. A client whose own out queue (256 messages)
is full is disconnected rather than allowed to slow the feed. The same
counters record unexpected closes and write failures, so a flapping
dashboard shows up in Prometheus before anyone complains.

Keepalive timing: the hub pings every 54 seconds and expects a pong
within 60; writes get 10 seconds before the connection is declared
dead. Inbound frames are capped at 4 KB because clients only ever send
control messages.

The upgrade endpoint lives in internal/api (GET /ws); the Detection
and Summary payload types come from internal/knock.
*/
package websocket
