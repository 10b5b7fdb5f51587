// Package server provides the HTTP API for go-hint
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/hintnav/go-hint/internal/config"
	"github.com/hintnav/go-hint/internal/geo"
	"github.com/hintnav/go-hint/internal/geocode"
	"github.com/hintnav/go-hint/internal/health"
	"github.com/hintnav/go-hint/internal/nav"
	"github.com/hintnav/go-hint/internal/speech"
)

// Deps bundles the collaborators the HTTP layer exposes
type Deps struct {
	Manager   *Manager
	Geocoder  Geocoder
	Checker   *health.Checker
	Scheduler *speech.Scheduler
}

// Server is the HTTP server for go-hint
type Server struct {
	app       *fiber.App
	cfg       config.ServerConfig
	deps      Deps
	logger    *slog.Logger
	wsHub     *WSHub
	startTime time.Time
	version   string
}

// New creates a new HTTP server
func New(cfg config.ServerConfig, deps Deps, logger *slog.Logger, version string) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	app := fiber.New(fiber.Config{
		AppName:               "go-hint",
		DisableStartupMessage: true,
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(cors.New())
	app.Use(LoggingMiddleware(logger))

	s := &Server{
		app:       app,
		cfg:       cfg,
		deps:      deps,
		logger:    logger,
		wsHub:     NewWSHub(deps.Manager, logger),
		startTime: time.Now(),
		version:   version,
	}

	// Register routes
	s.registerRoutes()

	return s
}

// registerRoutes sets up all API routes
func (s *Server) registerRoutes() {
	// Health check
	s.app.Get("/health", s.healthHandler)

	// Metrics endpoint
	s.app.Get("/metrics", s.metricsHandler)

	api := s.app.Group("/api")

	// Navigation API
	navAPI := api.Group("/nav")
	navAPI.Post("/start", s.navStartHandler)
	navAPI.Post("/stop", s.navStopHandler)
	navAPI.Get("/state", s.navStateHandler)
	navAPI.Get("/route", s.navRouteHandler)
	navAPI.Get("/stream", s.wsHub.UpgradeHandler())

	// Geocoding API
	api.Get("/geocode", s.geocodeHandler)
	api.Get("/geocode/reverse", s.reverseGeocodeHandler)

	// Config endpoint
	api.Get("/config", s.configHandler)

	// Stats endpoint
	api.Get("/stats", s.statsHandler)
}

// healthHandler returns service health
func (s *Server) healthHandler(c *fiber.Ctx) error {
	if s.deps.Checker == nil {
		return c.JSON(fiber.Map{"status": "ok", "version": s.version})
	}

	status := s.deps.Checker.GetStatus()
	if status.Status == "unhealthy" {
		return c.Status(fiber.StatusServiceUnavailable).JSON(status)
	}
	return c.JSON(status)
}

// navStartHandler starts a navigation session
func (s *Server) navStartHandler(c *fiber.Ctx) error {
	if s.deps.Manager == nil {
		return c.Status(503).JSON(fiber.Map{"error": "navigation not available"})
	}

	var req StartRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	session, err := s.deps.Manager.Start(c.Context(), req)
	if err != nil {
		status := fiber.StatusBadGateway
		switch {
		case errors.Is(err, ErrSessionActive):
			status = fiber.StatusConflict
		case errors.Is(err, geocode.ErrAddressNotFound):
			status = fiber.StatusNotFound
		case req.Destination == "" && req.DestLat == nil:
			status = fiber.StatusBadRequest
		}
		return c.Status(status).JSON(fiber.Map{"error": err.Error()})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"session_id": session.ID,
		"route":      session.Route(),
	})
}

// navStopHandler stops the active session
func (s *Server) navStopHandler(c *fiber.Ctx) error {
	if s.deps.Manager == nil {
		return c.Status(503).JSON(fiber.Map{"error": "navigation not available"})
	}

	if err := s.deps.Manager.Stop(); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"stopped": true})
}

// navStateHandler returns the current tracker snapshot
func (s *Server) navStateHandler(c *fiber.Ctx) error {
	session := s.activeSession()
	if session == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": ErrNoSession.Error()})
	}

	return c.JSON(fiber.Map{
		"session_id": session.ID,
		"state":      session.State(),
	})
}

// navRouteHandler returns the active route
func (s *Server) navRouteHandler(c *fiber.Ctx) error {
	session := s.activeSession()
	if session == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": ErrNoSession.Error()})
	}

	return c.JSON(session.Route())
}

// activeSession returns the current session, nil when navigation is idle
func (s *Server) activeSession() *nav.Session {
	if s.deps.Manager == nil {
		return nil
	}
	return s.deps.Manager.Session()
}

// geocodeHandler resolves a free-text address
func (s *Server) geocodeHandler(c *fiber.Ctx) error {
	if s.deps.Geocoder == nil {
		return c.Status(503).JSON(fiber.Map{"error": "geocoder not available"})
	}

	query := c.Query("q")
	if query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing q parameter"})
	}

	coord, err := s.deps.Geocoder.Geocode(c.Context(), query)
	if err != nil {
		status := fiber.StatusBadGateway
		if errors.Is(err, geocode.ErrAddressNotFound) {
			status = fiber.StatusNotFound
		}
		return c.Status(status).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{"lat": coord.Lat, "lon": coord.Lon})
}

// reverseGeocodeHandler resolves a coordinate to an address
func (s *Server) reverseGeocodeHandler(c *fiber.Ctx) error {
	if s.deps.Geocoder == nil {
		return c.Status(503).JSON(fiber.Map{"error": "geocoder not available"})
	}

	lat, err1 := strconv.ParseFloat(c.Query("lat"), 64)
	lon, err2 := strconv.ParseFloat(c.Query("lon"), 64)
	if err1 != nil || err2 != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "lat and lon parameters required"})
	}

	coord := geo.Coordinate{Lat: lat, Lon: lon}
	if !coord.Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "coordinate out of range"})
	}

	address, err := s.deps.Geocoder.ReverseGeocode(c.Context(), coord)
	if err != nil {
		status := fiber.StatusBadGateway
		if errors.Is(err, geocode.ErrAddressNotFound) {
			status = fiber.StatusNotFound
		}
		return c.Status(status).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{"address": address})
}

// configHandler returns current configuration
func (s *Server) configHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"server": fiber.Map{
			"port":             s.cfg.Port,
			"read_timeout_ms":  s.cfg.ReadTimeout.Milliseconds(),
			"write_timeout_ms": s.cfg.WriteTimeout.Milliseconds(),
		},
	})
}

// statsHandler returns manager, session and speech statistics
func (s *Server) statsHandler(c *fiber.Ctx) error {
	resp := fiber.Map{}

	if s.deps.Manager != nil {
		resp["manager"] = s.deps.Manager.GetStats()
		if session := s.deps.Manager.Session(); session != nil {
			resp["session"] = session.Stats()
		}
	}
	if s.deps.Scheduler != nil {
		resp["speech"] = s.deps.Scheduler.GetStats()
	}
	resp["websocket_clients"] = s.wsHub.ClientCount()

	return c.JSON(resp)
}

// metricsHandler returns Prometheus-format metrics
func (s *Server) metricsHandler(c *fiber.Ctx) error {
	var (
		active              int
		stepIndex           int64
		toDestination       float64
		polls, missed       int64
		stale, events       int64
		started, stopped    uint64
		arrivals            uint64
		dispatched, dropped uint64
		speakErrors         uint64
		pending             int
	)

	if s.deps.Manager != nil {
		mStats := s.deps.Manager.GetStats()
		started = mStats.SessionsStarted
		stopped = mStats.SessionsStopped
		arrivals = mStats.Arrivals
		if mStats.Active {
			active = 1
		}
		if session := s.deps.Manager.Session(); session != nil {
			state := session.State()
			stepIndex = int64(state.CurrentStepIndex)
			toDestination = state.DistanceToDestination
			sStats := session.Stats()
			polls = sStats.Polls
			missed = sStats.MissedFixes
			stale = sStats.StaleFixes
			events = sStats.Events
		}
	}
	if s.deps.Scheduler != nil {
		spStats := s.deps.Scheduler.GetStats()
		dispatched = spStats.Dispatched
		dropped = spStats.Dropped
		speakErrors = spStats.SpeakErrors
		pending = spStats.Pending
	}

	metrics := fmt.Sprintf(`# HELP go_hint_nav_active Whether a navigation session is underway
# TYPE go_hint_nav_active gauge
go_hint_nav_active %d

# HELP go_hint_nav_step_index Current route step index
# TYPE go_hint_nav_step_index gauge
go_hint_nav_step_index %d

# HELP go_hint_nav_distance_to_destination_meters Remaining distance to destination
# TYPE go_hint_nav_distance_to_destination_meters gauge
go_hint_nav_distance_to_destination_meters %f

# HELP go_hint_nav_polls Position polls in the current session
# TYPE go_hint_nav_polls counter
go_hint_nav_polls %d

# HELP go_hint_nav_missed_fixes Missed position fixes in the current session
# TYPE go_hint_nav_missed_fixes counter
go_hint_nav_missed_fixes %d

# HELP go_hint_nav_stale_fixes Stale position fixes in the current session
# TYPE go_hint_nav_stale_fixes counter
go_hint_nav_stale_fixes %d

# HELP go_hint_nav_events Announcement events in the current session
# TYPE go_hint_nav_events counter
go_hint_nav_events %d

# HELP go_hint_sessions_started Total navigation sessions started
# TYPE go_hint_sessions_started counter
go_hint_sessions_started %d

# HELP go_hint_sessions_stopped Total navigation sessions stopped
# TYPE go_hint_sessions_stopped counter
go_hint_sessions_stopped %d

# HELP go_hint_arrivals Total completed trips
# TYPE go_hint_arrivals counter
go_hint_arrivals %d

# HELP go_hint_speech_dispatched Total announcements spoken
# TYPE go_hint_speech_dispatched counter
go_hint_speech_dispatched %d

# HELP go_hint_speech_dropped Total announcements dropped
# TYPE go_hint_speech_dropped counter
go_hint_speech_dropped %d

# HELP go_hint_speech_errors Total speech output errors
# TYPE go_hint_speech_errors counter
go_hint_speech_errors %d

# HELP go_hint_speech_pending Announcements waiting in queue
# TYPE go_hint_speech_pending gauge
go_hint_speech_pending %d

# HELP go_hint_uptime_seconds Server uptime in seconds
# TYPE go_hint_uptime_seconds gauge
go_hint_uptime_seconds %d

# HELP go_hint_websocket_clients Current WebSocket client count
# TYPE go_hint_websocket_clients gauge
go_hint_websocket_clients %d
`,
		active,
		stepIndex,
		toDestination,
		polls,
		missed,
		stale,
		events,
		started,
		stopped,
		arrivals,
		dispatched,
		dropped,
		speakErrors,
		pending,
		int64(time.Since(s.startTime).Seconds()),
		s.wsHub.ClientCount(),
	)

	c.Set("Content-Type", "text/plain; charset=utf-8")
	return c.SendString(metrics)
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server",
		"port", s.cfg.Port,
	)

	return s.app.Listen(fmt.Sprintf(":%d", s.cfg.Port))
}

// WSHub returns the WebSocket hub for external control
func (s *Server) WSHub() *WSHub {
	return s.wsHub
}

// App returns the underlying fiber app, used by tests
func (s *Server) App() *fiber.App {
	return s.app
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	// Close WebSocket hub
	s.wsHub.Close()

	// Shutdown Fiber with timeout from context
	done := make(chan error, 1)
	go func() {
		done <- s.app.Shutdown()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
