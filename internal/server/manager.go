package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/hintnav/go-hint/internal/geo"
	"github.com/hintnav/go-hint/internal/nav"
	"github.com/hintnav/go-hint/internal/position"
	"github.com/hintnav/go-hint/internal/route"
)

var (
	// ErrSessionActive is returned when starting while a trip is underway
	ErrSessionActive = errors.New("navigation session already active")
	// ErrNoSession is returned by operations that need an active trip
	ErrNoSession = errors.New("no active navigation session")
)

// Router calculates a route between two coordinates
type Router interface {
	Route(ctx context.Context, from, to geo.Coordinate) (*route.Route, error)
}

// Geocoder resolves addresses to coordinates and back
type Geocoder interface {
	Geocode(ctx context.Context, address string) (geo.Coordinate, error)
	ReverseGeocode(ctx context.Context, coord geo.Coordinate) (string, error)
}

// Manager owns the single active navigation session and the collaborators
// needed to start one: the position source, the announcement sink, and the
// routing and geocoding clients.
type Manager struct {
	source    position.Source
	announcer nav.Announcer
	router    Router
	geocoder  Geocoder
	navCfg    nav.SessionConfig
	logger    *slog.Logger

	mu      sync.Mutex
	session *nav.Session

	sessionsStarted atomic.Uint64
	sessionsStopped atomic.Uint64
	arrivals        atomic.Uint64
}

// NewManager creates a session manager
func NewManager(source position.Source, announcer nav.Announcer, router Router, geocoder Geocoder, navCfg nav.SessionConfig, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		source:    source,
		announcer: announcer,
		router:    router,
		geocoder:  geocoder,
		navCfg:    navCfg,
		logger:    logger,
	}
}

// StartRequest describes where a trip should go. Destination is a free-text
// address; DestLat/DestLon take precedence when both are set.
type StartRequest struct {
	Destination string   `json:"destination,omitempty"`
	DestLat     *float64 `json:"dest_lat,omitempty"`
	DestLon     *float64 `json:"dest_lon,omitempty"`
}

// Start resolves the destination, calculates a route from the current fix
// and launches a session. Only one trip can run at a time; a finished or
// stopped session is replaced.
func (m *Manager) Start(ctx context.Context, req StartRequest) (*nav.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil && !m.sessionDone(m.session) {
		return nil, ErrSessionActive
	}

	dest, err := m.resolveDestination(ctx, req)
	if err != nil {
		return nil, err
	}

	fix, err := m.source.GetFix(ctx)
	if err != nil {
		return nil, fmt.Errorf("current position: %w", err)
	}

	r, err := m.router.Route(ctx, fix.Coordinate, dest)
	if err != nil {
		// Without a road route we can still steer by straight-line bearing
		m.logger.Warn("route calculation failed, falling back to bearing guidance", "error", err)
		r = bearingRoute(fix.Coordinate, dest)
	}

	session := nav.NewSession(r, m.source, m.announcer, m.navCfg, m.logger)
	m.session = session
	m.sessionsStarted.Add(1)

	go func() {
		err := session.Run(context.Background())
		if err == nil && session.State().Phase == nav.PhaseArrived {
			m.arrivals.Add(1)
		}
	}()

	m.logger.Info("navigation started",
		"session_id", session.ID,
		"destination", dest.String(),
		"steps", len(r.Steps),
	)

	return session, nil
}

func (m *Manager) resolveDestination(ctx context.Context, req StartRequest) (geo.Coordinate, error) {
	if req.DestLat != nil && req.DestLon != nil {
		coord := geo.Coordinate{Lat: *req.DestLat, Lon: *req.DestLon}
		if !coord.Valid() {
			return geo.Coordinate{}, fmt.Errorf("destination out of range: %s", coord)
		}
		return coord, nil
	}

	if req.Destination == "" {
		return geo.Coordinate{}, errors.New("destination required")
	}
	if m.geocoder == nil {
		return geo.Coordinate{}, errors.New("geocoder not configured")
	}
	return m.geocoder.Geocode(ctx, req.Destination)
}

// bearingRoute builds a single-step straight-line route, spoken as a
// compass heading. Duration assumes walking pace.
func bearingRoute(from, to geo.Coordinate) *route.Route {
	dist := geo.Distance(from, to)
	heading := geo.Compass(geo.Bearing(from, to))

	return &route.Route{
		Steps: []route.Step{{
			Index:          0,
			Instruction:    fmt.Sprintf("Head %s for %s", heading, geo.FormatDistance(dist)),
			Glyph:          "^",
			Anchor:         to,
			DistanceMeters: dist,
		}},
		TotalDistanceMeters:  dist,
		TotalDurationSeconds: dist / 1.4,
		Destination:          to,
	}
}

// sessionDone reports whether a session no longer counts as active
func (m *Manager) sessionDone(s *nav.Session) bool {
	return s.Stopped() || s.State().Phase == nav.PhaseArrived
}

// Stop terminates the active session
func (m *Manager) Stop() error {
	m.mu.Lock()
	session := m.session
	m.mu.Unlock()

	if session == nil || session.Stopped() {
		return ErrNoSession
	}

	session.Stop()
	m.sessionsStopped.Add(1)
	return nil
}

// Session returns the current session, nil when none was ever started
func (m *Manager) Session() *nav.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// Active reports whether a trip is currently underway
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session != nil && !m.sessionDone(m.session)
}

// ManagerStats contains lifetime trip counters
type ManagerStats struct {
	SessionsStarted uint64 `json:"sessions_started"`
	SessionsStopped uint64 `json:"sessions_stopped"`
	Arrivals        uint64 `json:"arrivals"`
	Active          bool   `json:"active"`
}

// GetStats returns lifetime trip counters
func (m *Manager) GetStats() ManagerStats {
	return ManagerStats{
		SessionsStarted: m.sessionsStarted.Load(),
		SessionsStopped: m.sessionsStopped.Load(),
		Arrivals:        m.arrivals.Load(),
		Active:          m.Active(),
	}
}
