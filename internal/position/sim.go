package position

import (
	"context"
	"sync"
	"time"

	"github.com/hintnav/go-hint/internal/geo"
)

// SimSource replays a walk along a sequence of waypoints, interpolating
// between them at a fixed ground speed. Used with the -mock flag to exercise
// the full navigation loop without a GPS device.
type SimSource struct {
	mu        sync.Mutex
	waypoints []geo.Coordinate
	speed     float64 // meters per second
	startTime time.Time
}

// NewSimSource creates a simulated walker over the given waypoints.
// A speed of 0 defaults to a brisk walking pace.
func NewSimSource(waypoints []geo.Coordinate, speed float64) *SimSource {
	if speed <= 0 {
		speed = 1.4
	}
	return &SimSource{
		waypoints: waypoints,
		speed:     speed,
		startTime: time.Now(),
	}
}

// Restart resets the walk to the first waypoint
func (s *SimSource) Restart() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startTime = time.Now()
}

// SetWaypoints replaces the walk, restarting from its first point
func (s *SimSource) SetWaypoints(waypoints []geo.Coordinate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waypoints = waypoints
	s.startTime = time.Now()
}

func (s *SimSource) GetFix(ctx context.Context) (Fix, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.waypoints) == 0 {
		return Fix{}, ErrNoFix
	}

	traveled := time.Since(s.startTime).Seconds() * s.speed
	pos := s.positionAt(traveled)

	return Fix{
		Coordinate:     pos,
		CapturedAt:     time.Now(),
		AccuracyMeters: 5,
	}, nil
}

// positionAt walks the polyline until the traveled distance is spent
func (s *SimSource) positionAt(traveled float64) geo.Coordinate {
	for i := 0; i < len(s.waypoints)-1; i++ {
		a, b := s.waypoints[i], s.waypoints[i+1]
		leg := geo.Distance(a, b)
		if leg <= 0 {
			continue
		}
		if traveled < leg {
			t := traveled / leg
			return geo.Coordinate{
				Lat: a.Lat + (b.Lat-a.Lat)*t,
				Lon: a.Lon + (b.Lon-a.Lon)*t,
			}
		}
		traveled -= leg
	}
	return s.waypoints[len(s.waypoints)-1]
}

func (s *SimSource) Close() error { return nil }

func (s *SimSource) Healthy() bool { return len(s.waypoints) > 0 }

func (s *SimSource) Name() string { return "sim" }
