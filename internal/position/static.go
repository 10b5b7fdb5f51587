package position

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hintnav/go-hint/internal/geo"
)

// ParseCoordinate parses a "lat,lon" pair as given on the command line
func ParseCoordinate(s string) (geo.Coordinate, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return geo.Coordinate{}, fmt.Errorf("expected lat,lon, got %q", s)
	}

	lat, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lon, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err1 != nil || err2 != nil {
		return geo.Coordinate{}, fmt.Errorf("malformed coordinate %q", s)
	}

	c := geo.Coordinate{Lat: lat, Lon: lon}
	if !c.Valid() {
		return geo.Coordinate{}, fmt.Errorf("coordinate out of range: %s", c)
	}
	return c, nil
}

// StaticSource reports a manually set position. Used when running without a
// live feed and as the seed source in tests.
type StaticSource struct {
	mu  sync.Mutex
	fix Fix
	set bool
}

// NewStaticSource creates a source with no position yet
func NewStaticSource() *StaticSource {
	return &StaticSource{}
}

// Set updates the reported position, stamping it with the current time
func (s *StaticSource) Set(c geo.Coordinate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fix = Fix{Coordinate: c, CapturedAt: time.Now()}
	s.set = true
}

// SetFix replaces the reported fix verbatim, capture time included
func (s *StaticSource) SetFix(f Fix) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fix = f
	s.set = true
}

// Clear removes the position so subsequent reads report ErrNoFix
func (s *StaticSource) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set = false
}

func (s *StaticSource) GetFix(ctx context.Context) (Fix, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.set {
		return Fix{}, ErrNoFix
	}
	return s.fix, nil
}

func (s *StaticSource) Close() error { return nil }

func (s *StaticSource) Healthy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set
}

func (s *StaticSource) Name() string { return "static" }
