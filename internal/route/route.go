// Package route models a computed path as an ordered list of instruction steps
package route

import (
	"errors"
	"fmt"

	"github.com/hintnav/go-hint/internal/geo"
)

// DestinationTolerance is how far the last step anchor may sit from the
// declared destination before the route is considered inconsistent.
const DestinationTolerance = 30.0 // meters

var (
	ErrEmptyRoute       = errors.New("route has no steps")
	ErrAnchorMismatch   = errors.New("last step anchor does not match destination")
	ErrInvalidStepOrder = errors.New("step indices are not sequential")
)

// Step is one instruction segment of a route. Steps are produced once by
// the router and never mutated afterwards.
type Step struct {
	Index           int            `json:"index"`
	Instruction     string         `json:"instruction"`
	Glyph           string         `json:"glyph"`
	Anchor          geo.Coordinate `json:"anchor"`
	DistanceMeters  float64        `json:"distance_meters"`
	DurationSeconds float64        `json:"duration_seconds"`
}

// Route is an immutable computed path from start to destination
type Route struct {
	Steps                []Step         `json:"steps"`
	TotalDistanceMeters  float64        `json:"total_distance_meters"`
	TotalDurationSeconds float64        `json:"total_duration_seconds"`
	Destination          geo.Coordinate `json:"destination"`
}

// Validate checks the route invariants
func (r *Route) Validate() error {
	if len(r.Steps) == 0 {
		return ErrEmptyRoute
	}

	for i, s := range r.Steps {
		if s.Index != i {
			return fmt.Errorf("step %d: %w", i, ErrInvalidStepOrder)
		}
		if !s.Anchor.Valid() {
			return fmt.Errorf("step %d: invalid anchor %s", i, s.Anchor)
		}
		if s.DistanceMeters < 0 || s.DurationSeconds < 0 {
			return fmt.Errorf("step %d: negative distance or duration", i)
		}
	}

	last := r.Steps[len(r.Steps)-1]
	if geo.Distance(last.Anchor, r.Destination) > DestinationTolerance {
		return ErrAnchorMismatch
	}

	return nil
}

// LastIndex returns the index of the final step
func (r *Route) LastIndex() int {
	return len(r.Steps) - 1
}

// NearestStep returns the index of the step whose anchor is closest to c.
// Ties keep the earlier step so an ambiguous fix never skips ahead.
func (r *Route) NearestStep(c geo.Coordinate) int {
	best := 0
	bestDist := geo.Distance(c, r.Steps[0].Anchor)

	for i := 1; i < len(r.Steps); i++ {
		d := geo.Distance(c, r.Steps[i].Anchor)
		if d < bestDist {
			best = i
			bestDist = d
		}
	}

	return best
}

// Summary returns the spoken route overview announced when navigation starts
func (r *Route) Summary() string {
	return fmt.Sprintf(
		"Route calculated. Total distance is %s. Estimated time is %s. Starting navigation.",
		geo.FormatDistance(r.TotalDistanceMeters),
		geo.FormatDuration(r.TotalDurationSeconds),
	)
}
