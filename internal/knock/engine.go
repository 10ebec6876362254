// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

package knock

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tomtom215/knockwatch/internal/logging"
	"github.com/tomtom215/knockwatch/internal/metrics"
)

// EngineState is the engine lifecycle state.
type EngineState int32

const (
	// StateInit is the state after NewEngine: configuration is
	// validated but no workers run and no events are accepted.
	StateInit EngineState = iota

	// StateRunning accepts and processes events.
	StateRunning

	// StateDraining rejects new events while queued events finish the
	// full record -> evaluate -> append pipeline.
	StateDraining

	// StateStopped is terminal.
	StateStopped
)

func (s EngineState) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateRunning:
		return "RUNNING"
	case StateDraining:
		return "DRAINING"
	case StateStopped:
		return "STOPPED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int32(s))
	}
}

// notifyTimeout bounds a single notifier delivery during fan-out.
const notifyTimeout = 10 * time.Second

// EngineConfig configures the detection engine.
type EngineConfig struct {
	// Window is the sliding window duration. Must be positive.
	Window time.Duration `json:"window"`

	// Workers is the number of processing goroutines. Events are
	// sharded to workers by source identity, so one source is always
	// handled by the same worker.
	Workers int `json:"workers"`

	// QueueCapacity is the per-worker ingestion queue capacity.
	QueueCapacity int `json:"queue_capacity"`

	// EnqueueWait is how long Ingest blocks on a full queue before
	// returning an OverflowError.
	EnqueueWait time.Duration `json:"enqueue_wait"`

	// SweepInterval is how often sources that stopped recording for a
	// full window of wall time are evicted. Event timestamps do not
	// factor in, so backdated replay feeds are never swept mid-window.
	SweepInterval time.Duration `json:"sweep_interval"`

	// DrainTimeout bounds the drain phase during RunWithContext
	// shutdown.
	DrainTimeout time.Duration `json:"drain_timeout"`

	// MaxSources bounds the number of tracked sources (0 = unlimited).
	MaxSources int `json:"max_sources"`

	// Patterns is the knock pattern catalog. Nil selects the default
	// catalog; an empty non-nil catalog disables all patterns except
	// the unknown_sequence fallback.
	Patterns []Pattern `json:"patterns,omitempty"`
}

// DefaultEngineConfig returns sensible defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Window:        5 * time.Second,
		Workers:       4,
		QueueCapacity: 1024,
		EnqueueWait:   2 * time.Second,
		SweepInterval: time.Second,
		DrainTimeout:  10 * time.Second,
		MaxSources:    10000,
	}
}

// EngineMetrics is a point-in-time snapshot of the engine counters, as
// returned by Engine.Metrics. It carries no synchronization; the
// guarded store lives inside the engine.
type EngineMetrics struct {
	EventsIngested       int64
	EventsProcessed      int64
	EventsInvalid        int64
	EventsOverflowed     int64
	DetectionsEmitted    int64
	DetectionsSuppressed int64
	SourcesEvicted       int64
	LastProcessedAt      time.Time
	BySeverity           map[Severity]int64
}

// engineCounters is the mutable counter store behind Engine.Metrics.
type engineCounters struct {
	mu       sync.RWMutex
	counters EngineMetrics
}

func newEngineCounters() *engineCounters {
	return &engineCounters{counters: EngineMetrics{BySeverity: make(map[Severity]int64)}}
}

func (m *engineCounters) recordIngested() {
	m.mu.Lock()
	m.counters.EventsIngested++
	m.mu.Unlock()
}

func (m *engineCounters) recordInvalid() {
	m.mu.Lock()
	m.counters.EventsInvalid++
	m.mu.Unlock()
}

func (m *engineCounters) recordOverflow() {
	m.mu.Lock()
	m.counters.EventsOverflowed++
	m.mu.Unlock()
}

func (m *engineCounters) recordProcessed() {
	m.mu.Lock()
	m.counters.EventsProcessed++
	m.counters.LastProcessedAt = time.Now()
	m.mu.Unlock()
}

func (m *engineCounters) recordDetection(severity Severity) {
	m.mu.Lock()
	m.counters.DetectionsEmitted++
	m.counters.BySeverity[severity]++
	m.mu.Unlock()
}

func (m *engineCounters) recordSuppressed() {
	m.mu.Lock()
	m.counters.DetectionsSuppressed++
	m.mu.Unlock()
}

func (m *engineCounters) recordEvicted(n int) {
	m.mu.Lock()
	m.counters.SourcesEvicted += int64(n)
	m.mu.Unlock()
}

// snapshot returns a copy of the counters with its own severity map,
// so callers never see the store's lock or its live map.
func (m *engineCounters) snapshot() EngineMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := m.counters
	out.BySeverity = make(map[Severity]int64, len(m.counters.BySeverity))
	for k, v := range m.counters.BySeverity {
		out.BySeverity[k] = v
	}
	return out
}

// Engine owns the detection pipeline: normalization, per-source
// windows, matching, and the detection log. Events are sharded to
// workers by source identity, giving parallelism across sources with
// strict serialization per source.
type Engine struct {
	cfg        EngineConfig
	instanceID string

	normalizer *Normalizer
	store      *SequenceStore
	matcher    *Matcher
	log        *DetectionLog

	mu          sync.RWMutex // guards notifiers and broadcaster
	notifiers   []Notifier
	broadcaster Broadcaster

	stateMu sync.RWMutex // guards state and queue close
	state   EngineState

	queues        []chan ConnectionEvent
	detectionChan chan Detection
	done          chan struct{}
	workersWG     sync.WaitGroup
	auxWG         sync.WaitGroup

	metricsStore *engineCounters
}

// NewEngine validates cfg and creates an engine in the INIT state.
// Zero values for Workers, QueueCapacity, EnqueueWait, SweepInterval,
// and DrainTimeout take defaults; a non-positive Window or a malformed
// catalog is a ConfigError.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	defaults := DefaultEngineConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = defaults.Workers
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = defaults.QueueCapacity
	}
	if cfg.EnqueueWait <= 0 {
		cfg.EnqueueWait = defaults.EnqueueWait
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaults.SweepInterval
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = defaults.DrainTimeout
	}

	store, err := NewSequenceStore(cfg.Window, cfg.MaxSources)
	if err != nil {
		return nil, err
	}

	matcher, err := NewMatcher(cfg.Patterns)
	if err != nil {
		return nil, err
	}

	queues := make([]chan ConnectionEvent, cfg.Workers)
	for i := range queues {
		queues[i] = make(chan ConnectionEvent, cfg.QueueCapacity)
	}

	return &Engine{
		cfg:           cfg,
		instanceID:    uuid.New().String(),
		normalizer:    NewNormalizer(),
		store:         store,
		matcher:       matcher,
		log:           NewDetectionLog(),
		queues:        queues,
		detectionChan: make(chan Detection, 256),
		done:          make(chan struct{}),
		metricsStore:  newEngineCounters(),
		state:         StateInit,
	}, nil
}

// RegisterNotifier adds a notifier to the detection fan-out.
func (e *Engine) RegisterNotifier(notifier Notifier) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.notifiers = append(e.notifiers, notifier)
	logging.Info().Str("notifier", notifier.Name()).Msg("registered notifier")
}

// SetBroadcaster wires the live detection feed.
func (e *Engine) SetBroadcaster(b Broadcaster) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.broadcaster = b
}

// Start transitions INIT -> RUNNING and launches the workers, the
// detection dispatcher, and the sweep loop.
func (e *Engine) Start() error {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	if e.state != StateInit {
		return fmt.Errorf("start in state %s: %w", e.state, ErrAlreadyStarted)
	}
	e.state = StateRunning

	for i := range e.queues {
		e.workersWG.Add(1)
		go e.worker(e.queues[i])
	}

	e.auxWG.Add(2)
	go e.dispatchLoop()
	go e.sweepLoop()

	logging.Info().
		Str("instance_id", e.instanceID).
		Int("workers", e.cfg.Workers).
		Dur("window", e.cfg.Window).
		Int("patterns", len(e.matcher.patterns)).
		Msg("detection engine started")

	return nil
}

// Ingest validates ev and enqueues it for processing. It returns an
// InvalidEventError for malformed events (dropped and counted), an
// OverflowError when the queue stays full for the configured wait, and
// ErrEngineStopped (wrapped with the current state) outside RUNNING.
func (e *Engine) Ingest(ev ConnectionEvent) error {
	// The read lock is held across the enqueue so Shutdown cannot
	// close the queues while a send is in flight.
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()

	if e.state != StateRunning {
		return fmt.Errorf("ingest rejected in state %s: %w", e.state, ErrEngineStopped)
	}

	normalized, err := e.normalizer.Normalize(ev)
	if err != nil {
		e.metricsStore.recordInvalid()
		metrics.RecordEventInvalid()
		logging.Warn().
			Err(err).
			Str("source", ev.SourceIdentity).
			Int("port", ev.DestinationPort).
			Msg("dropping invalid event")
		return err
	}

	queue := e.queues[e.shardFor(normalized.SourceIdentity)]

	timer := time.NewTimer(e.cfg.EnqueueWait)
	defer timer.Stop()

	select {
	case queue <- normalized:
		e.metricsStore.recordIngested()
		metrics.RecordEventIngested()
		return nil
	case <-timer.C:
		e.metricsStore.recordOverflow()
		metrics.RecordEventOverflow()
		return &OverflowError{Capacity: e.cfg.QueueCapacity, Waited: e.cfg.EnqueueWait}
	}
}

// shardFor maps a source identity to a worker queue. FNV-1a keeps the
// mapping stable for the engine's lifetime.
func (e *Engine) shardFor(source string) int {
	h := fnv.New32a()
	h.Write([]byte(source))
	return int(h.Sum32() % uint32(len(e.queues)))
}

func (e *Engine) worker(queue <-chan ConnectionEvent) {
	defer e.workersWG.Done()
	for ev := range queue {
		e.process(ev)
	}
}

// process runs the per-event pipeline. The worker owning the source's
// shard is the only goroutine that ever processes events for that
// source, so record -> evaluate -> append is atomic per source.
func (e *Engine) process(ev ConnectionEvent) {
	window := e.store.Record(ev)
	detection := e.matcher.Evaluate(ev.SourceIdentity, window)
	e.metricsStore.recordProcessed()
	metrics.RecordEventProcessed()

	if detection == nil {
		return
	}

	if e.store.Suppressed(ev.SourceIdentity, detection.PatternID) {
		e.metricsStore.recordSuppressed()
		metrics.RecordDetectionSuppressed()
		logging.Debug().
			Str("source", ev.SourceIdentity).
			Str("pattern", detection.PatternID).
			Msg("detection suppressed by cooldown")
		return
	}
	e.store.MarkFired(ev.SourceIdentity, detection.PatternID)

	e.log.Append(*detection)
	e.metricsStore.recordDetection(detection.Severity)
	metrics.RecordDetection(string(detection.Severity), detection.PatternID)

	logging.Info().
		Str("source", detection.SourceIdentity).
		Str("pattern", detection.PatternID).
		Str("severity", string(detection.Severity)).
		Ints("ports", detection.Ports).
		Msg("pattern detected")

	select {
	case e.detectionChan <- *detection:
	default:
		logging.Warn().Str("pattern", detection.PatternID).Msg("detection dispatch channel full, skipping fan-out")
	}
}

// dispatchLoop fans detections out to notifiers and the broadcaster.
// Fan-out is asynchronous and best effort; the log append in process
// is the authoritative record.
func (e *Engine) dispatchLoop() {
	defer e.auxWG.Done()
	for detection := range e.detectionChan {
		e.fanOut(detection)
	}
}

func (e *Engine) fanOut(detection Detection) {
	e.mu.RLock()
	notifiers := make([]Notifier, 0, len(e.notifiers))
	for _, n := range e.notifiers {
		if n.Enabled() {
			notifiers = append(notifiers, n)
		}
	}
	broadcaster := e.broadcaster
	e.mu.RUnlock()

	if broadcaster != nil {
		broadcaster.BroadcastJSON("detection", detection)
	}

	for _, notifier := range notifiers {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		if err := notifier.Send(ctx, &detection); err != nil {
			logging.Error().Err(err).Str("notifier", notifier.Name()).Msg("failed to send detection")
		}
		cancel()
	}
}

func (e *Engine) sweepLoop() {
	defer e.auxWG.Done()

	ticker := time.NewTicker(e.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.done:
			return
		case <-ticker.C:
			if evicted := e.store.Sweep(time.Now().UnixMilli()); evicted > 0 {
				e.metricsStore.recordEvicted(evicted)
				metrics.RecordSourcesEvicted(evicted)
				logging.Debug().Int("sources", evicted).Msg("evicted idle sources")
			}
			metrics.UpdateTrackedSources(e.store.Sources())
			metrics.UpdateIngestQueueDepth(e.QueueDepth())
		}
	}
}

// Shutdown transitions RUNNING -> DRAINING -> STOPPED. Queued events
// finish the full pipeline; ctx bounds how long the drain may take.
// Shutdown of an already stopped engine is a no-op.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.stateMu.Lock()
	if e.state != StateRunning {
		st := e.state
		e.stateMu.Unlock()
		if st == StateStopped {
			return nil
		}
		return fmt.Errorf("shutdown in state %s: %w", st, ErrEngineStopped)
	}
	e.state = StateDraining
	for _, queue := range e.queues {
		close(queue)
	}
	close(e.done)
	e.stateMu.Unlock()

	logging.Info().Msg("detection engine draining")

	drained := make(chan struct{})
	go func() {
		e.workersWG.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-ctx.Done():
		return fmt.Errorf("drain interrupted: %w", ctx.Err())
	}

	e.stateMu.Lock()
	e.state = StateStopped
	e.stateMu.Unlock()

	close(e.detectionChan)
	e.auxWG.Wait()

	m := e.Metrics()
	logging.Info().
		Int64("processed", m.EventsProcessed).
		Int64("detections", m.DetectionsEmitted).
		Msg("detection engine stopped")

	return nil
}

// RunWithContext starts the engine and blocks until the context is
// canceled, then drains and stops. Designed for suture supervision;
// returns ctx.Err() on normal shutdown.
func (e *Engine) RunWithContext(ctx context.Context) error {
	if err := e.Start(); err != nil {
		return err
	}

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), e.cfg.DrainTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("engine shutdown error")
	}

	return ctx.Err()
}

// State returns the current lifecycle state.
func (e *Engine) State() EngineState {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.state
}

// InstanceID returns the unique ID of this engine instance.
func (e *Engine) InstanceID() string {
	return e.instanceID
}

// Log returns the append-only detection log.
func (e *Engine) Log() *DetectionLog {
	return e.log
}

// Patterns returns the active catalog in evaluation order.
func (e *Engine) Patterns() []Pattern {
	return e.matcher.Patterns()
}

// Window returns the configured sliding window duration.
func (e *Engine) Window() time.Duration {
	return e.cfg.Window
}

// QueueDepth returns the number of queued, unprocessed events across
// all workers.
func (e *Engine) QueueDepth() int {
	depth := 0
	for _, queue := range e.queues {
		depth += len(queue)
	}
	return depth
}

// Summary returns detection totals by severity from the engine's
// running counters. The counters advance in the same critical path as
// the log append, so this matches Summarize(e.Log().All()).
func (e *Engine) Summary() Summary {
	m := e.metricsStore.snapshot()

	summary := Summary{
		Total:      int(m.DetectionsEmitted),
		BySeverity: make(map[Severity]int, len(Severities())),
	}
	for _, sev := range Severities() {
		summary.BySeverity[sev] = int(m.BySeverity[sev])
	}
	return summary
}

// Metrics returns a snapshot of the engine counters.
func (e *Engine) Metrics() EngineMetrics {
	return e.metricsStore.snapshot()
}
