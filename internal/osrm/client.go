// Package osrm provides an HTTP client for the OSRM routing service and
// converts its step maneuvers into speech-friendly instructions
package osrm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hintnav/go-hint/internal/geo"
	"github.com/hintnav/go-hint/internal/route"
)

// ErrRouteNotFound is returned when OSRM cannot route between the points
var ErrRouteNotFound = errors.New("route not found")

// Config holds routing client configuration
type Config struct {
	BaseURL string        // OSRM base URL
	Mode    string        // transport profile: walking, driving, cycling
	Timeout time.Duration // HTTP request timeout
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://router.project-osrm.org",
		Mode:    "walking",
		Timeout: 15 * time.Second,
	}
}

// Client is the HTTP client for OSRM
type Client struct {
	cfg        Config
	logger     *slog.Logger
	httpClient *http.Client

	// Stats
	routes      atomic.Uint64
	routeErrors atomic.Uint64
}

// NewClient creates a routing client
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		cfg:    cfg,
		logger: logger,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

type osrmResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
		Legs     []struct {
			Steps []osrmStep `json:"steps"`
		} `json:"legs"`
	} `json:"routes"`
}

type osrmStep struct {
	Distance float64 `json:"distance"`
	Duration float64 `json:"duration"`
	Name     string  `json:"name"`
	Maneuver struct {
		Type     string    `json:"type"`
		Modifier string    `json:"modifier"`
		Exit     int       `json:"exit"`
		Location []float64 `json:"location"` // lon, lat
	} `json:"maneuver"`
}

// Route requests a route between two coordinates and converts it into the
// internal step model. OSRM orders coordinates lon,lat.
func (c *Client) Route(ctx context.Context, from, to geo.Coordinate) (*route.Route, error) {
	url := fmt.Sprintf("%s/route/v1/%s/%f,%f;%f,%f?overview=full&steps=true&geometries=geojson",
		c.cfg.BaseURL, c.cfg.Mode, from.Lon, from.Lat, to.Lon, to.Lat)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.routeErrors.Add(1)
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.routeErrors.Add(1)
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var body osrmResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		c.routeErrors.Add(1)
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if body.Code != "Ok" || len(body.Routes) == 0 || len(body.Routes[0].Legs) == 0 {
		c.routeErrors.Add(1)
		return nil, fmt.Errorf("%s to %s: %w", from, to, ErrRouteNotFound)
	}

	osrmRoute := body.Routes[0]
	r := &route.Route{
		TotalDistanceMeters:  osrmRoute.Distance,
		TotalDurationSeconds: osrmRoute.Duration,
		Destination:          to,
	}

	for _, leg := range osrmRoute.Legs {
		for _, s := range leg.Steps {
			idx := len(r.Steps)
			anchor := to
			if len(s.Maneuver.Location) == 2 {
				anchor = geo.Coordinate{Lat: s.Maneuver.Location[1], Lon: s.Maneuver.Location[0]}
			}
			r.Steps = append(r.Steps, route.Step{
				Index:           idx,
				Instruction:     SpeakStep(s),
				Glyph:           Glyph(s.Maneuver.Type, s.Maneuver.Modifier),
				Anchor:          anchor,
				DistanceMeters:  s.Distance,
				DurationSeconds: s.Duration,
			})
		}
	}

	if err := r.Validate(); err != nil {
		c.routeErrors.Add(1)
		return nil, fmt.Errorf("osrm route invalid: %w", err)
	}

	c.routes.Add(1)
	c.logger.Info("route calculated",
		"steps", len(r.Steps),
		"distance", geo.FormatDistance(r.TotalDistanceMeters),
		"duration", geo.FormatDuration(r.TotalDurationSeconds))
	return r, nil
}

// SpeakStep converts one OSRM step into a natural spoken instruction
func SpeakStep(s osrmStep) string {
	name := s.Name
	if name == "" {
		name = "the road"
	}
	dist := geo.FormatDistance(s.Distance)
	modifier := s.Maneuver.Modifier

	switch s.Maneuver.Type {
	case "depart":
		if modifier == "" {
			return fmt.Sprintf("Head out on %s for %s", name, dist)
		}
		return fmt.Sprintf("Head %s on %s for %s", modifier, name, dist)
	case "arrive":
		return "You have arrived at your destination"
	case "turn":
		return fmt.Sprintf("In %s, turn %s onto %s", dist, modifier, name)
	case "merge":
		return fmt.Sprintf("In %s, merge %s onto %s", dist, modifier, name)
	case "roundabout", "rotary":
		exit := s.Maneuver.Exit
		if exit == 0 {
			exit = 1
		}
		return fmt.Sprintf("In %s, at the roundabout, take exit %d onto %s", dist, exit, name)
	case "fork":
		return fmt.Sprintf("In %s, at the fork, keep %s onto %s", dist, modifier, name)
	default:
		verb := strings.ReplaceAll(s.Maneuver.Type, "_", " ")
		if modifier == "" {
			return fmt.Sprintf("In %s, %s onto %s", dist, verb, name)
		}
		return fmt.Sprintf("In %s, %s %s onto %s", dist, verb, modifier, name)
	}
}

// Glyph returns a short text marker for a maneuver, used by stream clients
// that render a step list
func Glyph(maneuverType, modifier string) string {
	switch maneuverType {
	case "depart":
		return "o"
	case "arrive":
		return "x"
	case "merge":
		return ">>"
	case "roundabout", "rotary":
		return "(o)"
	case "fork":
		return "-<"
	}

	switch modifier {
	case "left":
		return "<-"
	case "right":
		return "->"
	case "sharp left":
		return "<<-"
	case "sharp right":
		return "->>"
	case "slight left":
		return "<^"
	case "slight right":
		return "^>"
	case "straight":
		return "^"
	case "uturn":
		return "u"
	}
	return "->"
}

// Stats contains client counters
type Stats struct {
	Routes      uint64 `json:"routes"`
	RouteErrors uint64 `json:"route_errors"`
}

// GetStats returns client counters
func (c *Client) GetStats() Stats {
	return Stats{
		Routes:      c.routes.Load(),
		RouteErrors: c.routeErrors.Load(),
	}
}
