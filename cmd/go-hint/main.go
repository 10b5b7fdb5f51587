// go-hint: voice navigation daemon
// Turns GPS fixes and OSRM routes into spoken turn-by-turn guidance
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hintnav/go-hint/internal/config"
	"github.com/hintnav/go-hint/internal/geo"
	"github.com/hintnav/go-hint/internal/geocode"
	"github.com/hintnav/go-hint/internal/health"
	"github.com/hintnav/go-hint/internal/nav"
	"github.com/hintnav/go-hint/internal/osrm"
	"github.com/hintnav/go-hint/internal/position"
	"github.com/hintnav/go-hint/internal/relay"
	"github.com/hintnav/go-hint/internal/server"
	"github.com/hintnav/go-hint/internal/speech"
)

var (
	version     = "1.0.0"
	configPath  = flag.String("config", "/etc/go-hint/config.yaml", "config file path")
	showVersion = flag.Bool("version", false, "print version and exit")
	debug       = flag.Bool("debug", false, "enable debug logging")
	useMock     = flag.Bool("mock", false, "use simulated position source (for testing)")
	manualPos   = flag.String("at", "", "fixed start position as lat,lon (overrides relay)")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("go-hint %s\n", version)
		os.Exit(0)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load config from %s: %v\n", *configPath, err)
		cfg = config.Default()
	}

	// Override log level if debug flag is set
	if *debug {
		cfg.Logging.Level = "debug"
	}

	// Setup logging
	logger := setupLogger(cfg.Logging)

	logger.Info("starting go-hint",
		"version", version,
		"config", *configPath,
		"port", cfg.Server.Port,
	)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Create root context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	checker := health.NewChecker(version)

	// Initialize position source
	source, relayClient, err := buildSource(ctx, cfg, logger)
	if err != nil {
		logger.Error("position source", "error", err)
		os.Exit(1)
	}
	defer source.Close()

	logger.Info("position source ready",
		"type", source.Name(),
		"healthy", source.Healthy(),
	)
	checker.SetCritical("position_source", source.Healthy(), source.Name())

	// Sender role: when a local source feeds the tracker, publish its fixes
	// to the relay so remote listeners see the same positions.
	if cfg.Relay.Enabled && relayClient == nil {
		sender := relay.NewClient(relay.Config{
			URL:              cfg.Relay.URL,
			ReconnectBackoff: cfg.Relay.ReconnectBackoff,
			MaxBackoff:       cfg.Relay.MaxBackoff,
			PingInterval:     cfg.Relay.PingInterval,
		}, logger)
		if err := sender.Connect(ctx); err != nil {
			logger.Warn("relay sender connect failed", "error", err)
		} else {
			relayClient = sender
			go forwardFixes(ctx, source, sender, cfg.Nav.PollInterval, logger)
		}
	}
	if relayClient != nil {
		checker.SetComponent("relay", relayClient.IsConnected(), cfg.Relay.URL)
	}

	// Initialize speech output
	var output speech.Output
	engine := speech.NewEngine(speech.EngineConfig{
		Command: cfg.Speech.Command,
		Rate:    cfg.Speech.Rate,
	}, logger)
	if engine.IsAvailable() {
		output = engine
		checker.SetComponent("speech", true, cfg.Speech.Command)
	} else {
		logger.Warn("TTS command not found, announcements will be logged", "command", cfg.Speech.Command)
		output = speech.NewLogOutput(logger)
		checker.SetComponent("speech", false, "TTS command not found")
	}

	scheduler := speech.NewScheduler(output, speech.SchedulerConfig{
		QueueSize: cfg.Speech.QueueSize,
	}, logger)
	go scheduler.Run(ctx)

	// Routing and geocoding clients
	router := osrm.NewClient(osrm.Config{
		BaseURL: cfg.Routing.BaseURL,
		Mode:    cfg.Routing.Mode,
		Timeout: cfg.Routing.Timeout,
	}, logger)

	geocoder := geocode.NewClient(geocode.Config{
		BaseURL:   cfg.Geocoding.BaseURL,
		UserAgent: cfg.Geocoding.UserAgent,
		Timeout:   cfg.Geocoding.Timeout,
	}, logger)

	// Session manager
	navCfg := nav.SessionConfig{
		PollInterval:   cfg.Nav.PollInterval,
		FixTimeout:     cfg.Nav.FixTimeout,
		Staleness:      cfg.Nav.Staleness,
		StatusInterval: cfg.Nav.StatusInterval,
		Tracker: nav.TrackerConfig{
			ArrivalRadiusMeters:  cfg.Nav.ArrivalRadiusMeters,
			ApproachRadiusMeters: cfg.Nav.ApproachRadiusMeters,
			ImminentRadiusMeters: cfg.Nav.ImminentRadiusMeters,
			LostAfterMisses:      cfg.Nav.LostAfterMisses,
		},
	}
	manager := server.NewManager(source, scheduler, router, geocoder, navCfg, logger)

	// Create server
	srv := server.New(cfg.Server, server.Deps{
		Manager:   manager,
		Geocoder:  geocoder,
		Checker:   checker,
		Scheduler: scheduler,
	}, logger, version)

	// Start WebSocket hub in background
	go srv.WSHub().Run(ctx)

	// Start server in background
	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	// Print startup info
	printStartupBanner(cfg, version)

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("received shutdown signal", "signal", sig.String())

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		cfg.Server.GracefulTimeout,
	)
	defer shutdownCancel()

	// Stop in order: server -> session -> speech -> relay
	logger.Info("shutting down server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown error", "error", err)
	}

	if err := manager.Stop(); err == nil {
		logger.Info("active session stopped")
	}

	scheduler.Close()

	if relayClient != nil {
		relayClient.SendStatus("navigator", "stopped", nil)
		relayClient.Close()
	}

	logger.Info("go-hint stopped")
}

// buildSource picks the position source by flags and config: a simulated
// walk for -mock, a pinned coordinate for -at, otherwise the relay feed.
func buildSource(ctx context.Context, cfg *config.Config, logger *slog.Logger) (position.Source, *relay.Client, error) {
	if *useMock {
		logger.Info("using simulated position source")
		// Short walk through central Berlin, enough to exercise a trip
		walk := []geo.Coordinate{
			{Lat: 52.5200, Lon: 13.4050},
			{Lat: 52.5210, Lon: 13.4080},
			{Lat: 52.5219, Lon: 13.4132},
		}
		return position.NewSimSource(walk, 1.4), nil, nil
	}

	if *manualPos != "" {
		coord, err := position.ParseCoordinate(*manualPos)
		if err != nil {
			return nil, nil, fmt.Errorf("parse -at: %w", err)
		}
		logger.Info("using fixed position", "coordinate", coord.String())
		src := position.NewStaticSource()
		src.Set(coord)
		return src, nil, nil
	}

	if !cfg.Relay.Enabled {
		logger.Warn("relay disabled and no -at flag given, starting with empty static source")
		return position.NewStaticSource(), nil, nil
	}

	client := relay.NewClient(relay.Config{
		URL:              cfg.Relay.URL,
		ReconnectBackoff: cfg.Relay.ReconnectBackoff,
		MaxBackoff:       cfg.Relay.MaxBackoff,
		PingInterval:     cfg.Relay.PingInterval,
	}, logger)

	if err := client.Connect(ctx); err != nil {
		return nil, nil, fmt.Errorf("relay connect: %w", err)
	}
	client.SendStatus("navigator", "starting", map[string]string{"version": version})

	return client, client, nil
}

// forwardFixes publishes fixes from a local source to the relay at the
// navigation poll rate. Send failures are tolerated; the relay client
// reconnects on its own.
func forwardFixes(ctx context.Context, src position.Source, client *relay.Client, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fix, err := src.GetFix(ctx)
			if err != nil {
				continue
			}
			if err := client.SendFix(fix); err != nil {
				logger.Debug("relay publish failed", "error", err)
			}
		}
	}
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func printStartupBanner(cfg *config.Config, version string) {
	fmt.Println()
	fmt.Println("go-hint v" + version)
	fmt.Println("   Voice navigation daemon")
	fmt.Println()
	fmt.Printf("Running at http://0.0.0.0:%d\n", cfg.Server.Port)
	fmt.Println()
	fmt.Println("   Endpoints:")
	fmt.Println("   GET  /health               - Health check")
	fmt.Println("   POST /api/nav/start        - Start a trip")
	fmt.Println("   POST /api/nav/stop         - Stop the trip")
	fmt.Println("   GET  /api/nav/state        - Tracker snapshot")
	fmt.Println("   WS   /api/nav/stream       - Real-time state stream")
	fmt.Println("   GET  /api/geocode          - Address lookup")
	fmt.Println("   GET  /api/stats            - Statistics")
	fmt.Println("   GET  /metrics              - Prometheus metrics")
	fmt.Println()
	fmt.Println("   Press Ctrl+C to stop")
	fmt.Println()
}
