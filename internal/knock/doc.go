// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

// Package knock implements the port-knock detection core: event
// normalization, per-source sliding windows, pattern matching, and the
// append-only detection log.
//
// Detection Architecture:
//
//	ConnectionEvent -> Normalizer -> SequenceStore -> Matcher -> DetectionLog
//	                                                    |
//	                                                    v
//	                                          WebSocket/Webhook/NATS
//
// Events are sharded to workers by source identity, so processing is
// parallel across sources but strictly serialized per source. Each
// accepted event runs the full record -> evaluate -> append sequence
// before the next event for that source is considered.
//
// Matching Semantics:
//   - exact_sequence patterns match a contiguous suffix of the window
//     (the most recent events, in order)
//   - count_threshold patterns match when the window holds at least
//     min_count events
//   - patterns are evaluated in catalog order and the first match wins
//   - windows of three or more events that match nothing produce a
//     generic unknown_sequence detection
//
// Re-alert Cooldown:
// Once a (source, pattern) pair fires, the same pattern is suppressed
// for that source until the source's window empties and its state is
// evicted. This keeps a sustained knock train from producing one alert
// per packet.
package knock
