// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

// Package main is the entry point for the knockwatch detector.
//
// Knockwatch watches TCP connection attempts for port-knocking and
// single-packet-authorization covert channels: ordered knock sequences,
// timing-regular beacons, and single-packet unlock ports that precede a
// connection to a protected service.
//
// # Application Architecture
//
// The detector initializes components in the following order:
//
//  1. Configuration: Load settings from flags, environment variables and
//     config files (Koanf v2)
//  2. Detection Engine: Sharded workers with per-source sliding windows
//  3. Notifiers: Terminal renderer, optional webhook delivery
//  4. Capture Source: Live pcap interface or JSONL replay
//  5. NATS (optional): JetStream ingest from a remote sensor fleet
//  6. HTTP Server: REST API, Prometheus metrics and WebSocket feed
//  7. Supervisor Tree: suture-managed lifecycle for everything above
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins):
//   - Command-line flags
//   - Environment variables (KNOCKWATCH_*)
//   - Config file (config.yaml)
//   - Built-in defaults
//
// # Build Tags
//
// Optional build tags enable additional functionality:
//
//	go build -tags "pcap" ./cmd/knockwatch       # Enable live capture
//	go build -tags "nats" ./cmd/knockwatch       # Enable NATS JetStream
//	go build -tags "pcap,nats" ./cmd/knockwatch  # Enable both
//
// # Signal Handling
//
// The detector handles graceful shutdown on SIGINT and SIGTERM:
//   - Stops the capture source
//   - Drains queued events through the detection pipeline (10s timeout)
//   - Closes notifiers, the HTTP server and NATS components
//   - Prints the severity summary table
//
// # Example Usage
//
// Replay a capture for analysis:
//
//	knockwatch --replay events.jsonl
//
// Pipe events from another tool:
//
//	sensor --format jsonl | knockwatch --replay -
//
// Live capture with a 10 second window (requires the pcap build):
//
//	knockwatch -i eth0 -w 10000
//
// Machine-readable output for a pipeline:
//
//	knockwatch --replay events.jsonl -j | jq .severity
//
// API-only mode for a sensor fleet posting to /api/v1/events:
//
//	knockwatch --listen 0.0.0.0:9476
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomtom215/knockwatch/internal/api"
	"github.com/tomtom215/knockwatch/internal/capture"
	"github.com/tomtom215/knockwatch/internal/config"
	"github.com/tomtom215/knockwatch/internal/knock"
	"github.com/tomtom215/knockwatch/internal/logging"
	"github.com/tomtom215/knockwatch/internal/metrics"
	"github.com/tomtom215/knockwatch/internal/report"
	"github.com/tomtom215/knockwatch/internal/supervisor"
	"github.com/tomtom215/knockwatch/internal/supervisor/services"
	ws "github.com/tomtom215/knockwatch/internal/websocket"
)

// version is the release version, overridable at build time:
//
//	go build -ldflags "-X main.version=1.2.3" ./cmd/knockwatch
var version = "0.4.0"

var (
	configPath   string
	captureIface string
	windowMs     int64
	jsonOutput   bool
	verbose      bool
	replayFile   string
	listenAddr   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "knockwatch",
		Short: "Port-knock and SPA covert-channel detector",
		Long: `Knockwatch detects port-knocking and single-packet-authorization covert
channels in TCP connection metadata: ordered knock sequences, timing-regular
beacons, and single-packet unlock ports.

Events come from live capture (-i, requires the pcap build), a JSONL replay
file (--replay, "-" reads stdin), POST /api/v1/events, or a NATS JetStream
subject (requires the nats build). Detections print to stdout as they fire
and stream to WebSocket clients; a severity summary prints on shutdown.`,
		Version:       version,
		RunE:          run,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file")
	rootCmd.PersistentFlags().StringVarP(&captureIface, "interface", "i", "", "Network interface for live capture (requires the pcap build)")
	rootCmd.PersistentFlags().Int64VarP(&windowMs, "window", "w", 5000, "Sliding detection window in milliseconds")
	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Write detections as JSON lines instead of text")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&replayFile, "replay", "", `Replay connection events from a JSONL file ("-" reads stdin)`)
	rootCmd.PersistentFlags().StringVar(&listenAddr, "listen", "", "HTTP listen address as host:port (overrides config)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

//nolint:gocyclo // Main initialization function with sequential setup steps
func run(cmd *cobra.Command, _ []string) error {
	// Load configuration first to get logging settings
	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return fmt.Errorf("config file: %w", err)
		}
		os.Setenv(config.ConfigPathEnvVar, configPath)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := applyFlagOverrides(cmd, cfg); err != nil {
		return err
	}

	// Initialize zerolog with configuration. Logs go to stderr so -j
	// output on stdout stays clean for pipelines.
	logCfg := logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	}
	if verbose {
		logCfg.Level = "debug"
	}
	logging.Init(logCfg)

	logging.Info().Str("version", version).Msg("Starting Knockwatch with supervisor tree")

	// Create the detection engine from the merged configuration
	engine, err := knock.NewEngine(cfg.EngineSettings())
	if err != nil {
		return fmt.Errorf("failed to create detection engine: %w", err)
	}
	logging.Info().
		Int64("window_ms", cfg.Engine.WindowMs).
		Int("workers", cfg.Engine.Workers).
		Int("patterns", len(engine.Patterns())).
		Msg("Detection engine initialized")

	// Create WebSocket hub for real-time updates and wire it as the
	// engine's live detection feed
	wsHub := ws.NewHub()
	engine.SetBroadcaster(wsHub)

	// Terminal output joins the engine's notifier fan-out
	var renderer report.Renderer
	if jsonOutput {
		renderer = report.NewJSONLRenderer(os.Stdout)
	} else {
		renderer = report.NewTextRenderer(os.Stdout)
	}
	engine.RegisterNotifier(report.NewNotifier(renderer))

	// Register generic webhook notifier if configured
	if cfg.Webhook.Enabled && cfg.Webhook.WebhookURL != "" {
		engine.RegisterNotifier(knock.NewWebhookNotifier(cfg.Webhook))
		logging.Info().
			Str("url", cfg.Webhook.WebhookURL).
			Int("rate_limit_ms", cfg.Webhook.RateLimitMs).
			Msg("Webhook notifier registered")
	}

	source, err := buildCaptureSource(cfg)
	if err != nil {
		return err
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create structured logger for supervisor using our slog adapter
	// This bridges zerolog to slog for sutureslog compatibility
	slogLogger := logging.NewSlogLogger()

	// Create supervisor tree
	tree, err := supervisor.NewSupervisorTree(slogLogger, supervisor.TreeConfig{
		FailureThreshold: 5,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("failed to create supervisor tree: %w", err)
	}

	// Initialize NATS JetStream ingest (optional - requires build with -tags nats)
	streamComponents, err := InitNATS(cfg, engine)
	if err != nil {
		return fmt.Errorf("failed to initialize event stream: %w", err)
	}
	AddStreamToSupervisor(tree, streamComponents)

	// === ADD SERVICES TO SUPERVISOR TREE ===

	// Detection layer: the engine runs workers, dispatcher and sweeper
	tree.AddDetectionService(services.NewEngineService(engine))

	// Capture layer
	var captureSvc *services.CaptureService
	if source != nil {
		captureSvc = services.NewCaptureService(source, engine)
		tree.AddCaptureService(captureSvc)
		logging.Info().Str("source", source.String()).Msg("Capture service added to supervisor tree")
	}

	// API layer services
	tree.AddAPIService(services.NewHubService(wsHub))
	if cfg.Server.Enabled {
		server := buildHTTPServer(cfg, engine, wsHub)
		tree.AddAPIService(services.NewHTTPService(server, 10*time.Second))
		logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")
	}

	metrics.SetAppInfo(version, runtime.Version())
	go trackUptime(ctx, time.Now())

	// === START SUPERVISOR TREE ===

	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	// Replay mode: a drained source means the run is complete
	if captureSvc != nil {
		go func() {
			select {
			case <-captureSvc.Done():
				logging.Info().Msg("Capture source drained, shutting down")
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	// Wait for supervisor to finish (either from signal or error)
	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	// Wait for the error channel to close (supervisor finished)
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	// Report any services that failed to stop within timeout
	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	// The engine has drained, so the summary covers every detection
	if err := renderer.Summary(engine.Summary()); err != nil {
		logging.Error().Err(err).Msg("Failed to render summary")
	}

	logging.Info().Msg("Application stopped gracefully")
	return nil
}

// applyFlagOverrides copies explicitly-set flags over the loaded
// configuration and re-validates, since flags can introduce values the
// file and environment never saw.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()

	if flags.Changed("window") {
		cfg.Engine.WindowMs = windowMs
	}
	if flags.Changed("interface") {
		cfg.Capture.Interface = captureIface
	}
	if flags.Changed("replay") {
		cfg.Capture.ReplayFile = replayFile
	}
	if flags.Changed("listen") {
		host, portStr, err := net.SplitHostPort(listenAddr)
		if err != nil {
			return fmt.Errorf("invalid --listen address %q: %w", listenAddr, err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("invalid --listen port %q: %w", portStr, err)
		}
		if host == "" {
			host = "0.0.0.0"
		}
		cfg.Server.Host = host
		cfg.Server.Port = port
		cfg.Server.Enabled = true
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}

// buildCaptureSource selects the input mode: live pcap, JSONL replay,
// or none (events arrive via the API or NATS only). Validation already
// rejected configurations with both an interface and a replay file.
func buildCaptureSource(cfg *config.Config) (capture.Source, error) {
	if cfg.Capture.Interface != "" {
		src, err := capture.NewPcapSource(capture.PcapConfig{
			Interface:   cfg.Capture.Interface,
			BPF:         cfg.Capture.BPF,
			SnapLen:     cfg.Capture.SnapLen,
			Promiscuous: cfg.Capture.Promiscuous,
		})
		if err != nil {
			return nil, fmt.Errorf("live capture on %s: %w", cfg.Capture.Interface, err)
		}
		return src, nil
	}

	if cfg.Capture.ReplayFile != "" {
		return capture.NewReplaySource(cfg.Capture.ReplayFile, cfg.Capture.ReplayPace), nil
	}

	logging.Info().Msg("No capture source configured; ingesting via API" + natsIngestHint)
	return nil, nil
}

// buildHTTPServer assembles the Chi router and http.Server for the API,
// metrics and WebSocket endpoints.
func buildHTTPServer(cfg *config.Config, engine *knock.Engine, wsHub *ws.Hub) *http.Server {
	handler := api.NewHandler(api.HandlerConfig{
		Engine:          engine,
		Hub:             wsHub,
		CORSOrigins:     cfg.API.CORSOrigins,
		DefaultPageSize: cfg.API.DefaultPageSize,
		MaxPageSize:     cfg.API.MaxPageSize,
		Version:         version,
	})

	mw := api.NewMiddlewareSet(&api.MiddlewareConfig{
		AllowedOrigins:  cfg.API.CORSOrigins,
		AllowedMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:  []string{"Content-Type", "X-Request-ID"},
		PreflightMaxAge: 86400,
		Budget:          api.RequestBudget{Requests: cfg.API.RateLimitReqs, Window: cfg.API.RateLimitWindow},
		LimitDisabled:   cfg.API.RateLimitDisabled,
	})

	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(handler, mw).Setup(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}
}

// trackUptime refreshes the uptime gauge until shutdown.
func trackUptime(ctx context.Context, start time.Time) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.UpdateUptime(start)
		}
	}
}
