// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

package knock

import (
	"sync"
	"time"
)

// sourceState is the per-source partition: the sliding window of
// events plus the cooldown markers for patterns that already fired.
// The whole partition is discarded when the window empties, which is
// what re-arms suppressed patterns.
type sourceState struct {
	events     []ConnectionEvent
	fired      map[string]struct{}
	latestSeen int64 // high-water event timestamp for this source
	touched    int64 // wall-clock ms of the last Record for this source
}

// SequenceStore maintains per-source sliding windows of connection
// events, ordered by timestamp ascending. Windows are created lazily
// on first event and evicted once idle so sources do not leak.
//
// Two prune paths keep windows bounded:
//   - Record prunes against the source's high-water timestamp, which
//     keeps replayed or backdated feeds deterministic
//   - Sweep evicts sources that have not recorded for a full window of
//     wall time; event timestamps play no part, so a live feed whose
//     timestamps lag the wall clock is never swept mid-sequence
type SequenceStore struct {
	mu           sync.Mutex
	sources      map[string]*sourceState
	windowMillis int64
	maxSources   int
}

// NewSequenceStore creates a store with the given window duration.
// maxSources bounds the number of tracked sources (0 = unlimited);
// when full, the source with the oldest activity is evicted.
func NewSequenceStore(window time.Duration, maxSources int) (*SequenceStore, error) {
	if window <= 0 {
		return nil, &ConfigError{Field: "window_ms", Message: "must be positive"}
	}
	return &SequenceStore{
		sources:      make(map[string]*sourceState),
		windowMillis: window.Milliseconds(),
		maxSources:   maxSources,
	}, nil
}

// Record inserts ev into its source's window, maintaining timestamp
// order (stable for equal timestamps), prunes events older than the
// window relative to the source's newest timestamp, and returns a copy
// of the resulting window. Duplicate events are retained.
func (s *SequenceStore) Record(ev ConnectionEvent) []ConnectionEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.sources[ev.SourceIdentity]
	if !ok {
		if s.maxSources > 0 && len(s.sources) >= s.maxSources {
			s.evictOldest()
		}
		st = &sourceState{fired: make(map[string]struct{})}
		s.sources[ev.SourceIdentity] = st
	}

	// Insert from the end: most events arrive in order, and scanning
	// backwards keeps equal timestamps in arrival order.
	pos := len(st.events)
	for pos > 0 && st.events[pos-1].Timestamp > ev.Timestamp {
		pos--
	}
	st.events = append(st.events, ConnectionEvent{})
	copy(st.events[pos+1:], st.events[pos:])
	st.events[pos] = ev

	if ev.Timestamp > st.latestSeen {
		st.latestSeen = ev.Timestamp
	}
	st.touched = time.Now().UnixMilli()
	s.prune(st, st.latestSeen)

	out := make([]ConnectionEvent, len(st.events))
	copy(out, st.events)
	return out
}

// Window returns a copy of the current window for source, or nil if
// the source is not tracked.
func (s *SequenceStore) Window(source string) []ConnectionEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.sources[source]
	if !ok {
		return nil
	}
	out := make([]ConnectionEvent, len(st.events))
	copy(out, st.events)
	return out
}

// Suppressed reports whether patternID has already fired for source
// since the source's window last emptied.
func (s *SequenceStore) Suppressed(source, patternID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.sources[source]
	if !ok {
		return false
	}
	_, fired := st.fired[patternID]
	return fired
}

// MarkFired records that patternID fired for source. The marker holds
// until the source's state is evicted.
func (s *SequenceStore) MarkFired(source, patternID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.sources[source]; ok {
		st.fired[patternID] = struct{}{}
	}
}

// Sweep evicts sources that recorded nothing for a full window of wall
// time before nowMillis, clearing their cooldown markers. Inactivity is
// measured against Record call times, not event timestamps, so sources
// fed backdated events stay live between sweeps. Returns the number of
// sources evicted.
func (s *SequenceStore) Sweep(nowMillis int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for source, st := range s.sources {
		if len(st.events) == 0 || nowMillis-st.touched >= s.windowMillis {
			delete(s.sources, source)
			evicted++
		}
	}
	return evicted
}

// Sources returns the number of tracked sources.
func (s *SequenceStore) Sources() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sources)
}

// WindowMillis returns the configured window in milliseconds.
func (s *SequenceStore) WindowMillis() int64 {
	return s.windowMillis
}

// prune drops events with timestamp < reference - window. Must be
// called with the lock held. Events are shifted in place so the
// backing array does not grow unbounded.
func (s *SequenceStore) prune(st *sourceState, reference int64) {
	cutoff := reference - s.windowMillis
	idx := 0
	for idx < len(st.events) && st.events[idx].Timestamp < cutoff {
		idx++
	}
	if idx > 0 {
		st.events = append(st.events[:0], st.events[idx:]...)
	}
}

// evictOldest removes the source with the lowest high-water timestamp.
// Must be called with the lock held.
func (s *SequenceStore) evictOldest() {
	var oldestKey string
	var oldestSeen int64
	first := true
	for key, st := range s.sources {
		if first || st.latestSeen < oldestSeen {
			oldestKey = key
			oldestSeen = st.latestSeen
			first = false
		}
	}
	if !first {
		delete(s.sources, oldestKey)
	}
}
