// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

// Package eventstream provides distributed event transport over NATS
// JetStream for multi-sensor deployments.
//
// A single knockwatch instance captures and detects locally without any
// of this package. Event streaming becomes useful when sensors run on
// hosts other than the detection engine:
//
//	┌─────────────┐   ┌─────────────┐   ┌─────────────┐
//	│ pcap sensor │   │ pcap sensor │   │ API ingest  │
//	│  (edge A)   │   │  (edge B)   │   │  (manual)   │
//	└──────┬──────┘   └──────┬──────┘   └──────┬──────┘
//	       │                 │                 │
//	       └────────────────┬┴─────────────────┘
//	                        ▼
//	              ┌─────────────────────┐
//	              │   NATS JetStream    │  knockwatch.events.raw
//	              └─────────┬───────────┘
//	                        │ durable queue consumers
//	                        ▼
//	              ┌─────────────────────┐
//	              │  Detection engine   │
//	              └─────────┬───────────┘
//	                        ▼
//	              knockwatch.detections.<severity>
//
// Sensors publish connection events to the raw events subject. The
// engine host consumes them through a Watermill router (retry, panic
// recovery, poison queue) and feeds them to the detection engine.
// Detections fan back out on per-severity subjects so downstream
// consumers can subscribe to only the severities they care about.
//
// The package requires the nats build tag. Without it every constructor
// returns an error and the binary carries no NATS server or client
// code. Configuration types, the serializer, and the circuit breaker
// are tag-free so that the config layer and tests work in both builds.
package eventstream
