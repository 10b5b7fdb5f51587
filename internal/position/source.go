// Package position defines the position fix feed consumed by the navigation loop
package position

import (
	"context"
	"errors"
	"time"

	"github.com/hintnav/go-hint/internal/geo"
)

// ErrNoFix is returned when a source has no position to report this cycle
var ErrNoFix = errors.New("no position fix available")

// Fix is one reported position sample
type Fix struct {
	Coordinate     geo.Coordinate `json:"coordinate"`
	CapturedAt     time.Time      `json:"captured_at"`
	AccuracyMeters float64        `json:"accuracy_meters,omitempty"`
}

// Age returns how long ago the fix was captured
func (f Fix) Age() time.Duration {
	return time.Since(f.CapturedAt)
}

// Fresh reports whether the fix is younger than maxAge. A stale fix must be
// treated as unavailable, never as a valid sample.
func (f Fix) Fresh(maxAge time.Duration) bool {
	if f.CapturedAt.IsZero() {
		return false
	}
	return f.Age() <= maxAge
}

// Source provides position fixes from a device, a remote relay, or a simulation
type Source interface {
	// GetFix returns the most recent position sample. Implementations must
	// respect ctx and return ErrNoFix rather than block when nothing is
	// available.
	GetFix(ctx context.Context) (Fix, error)

	// Close releases any underlying resources
	Close() error

	// Healthy returns true if the source is operational
	Healthy() bool

	// Name returns the source type name
	Name() string
}
