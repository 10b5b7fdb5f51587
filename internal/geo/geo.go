// Package geo provides coordinate math for navigation
package geo

import (
	"fmt"
	"math"
)

// EarthRadiusMeters is the mean Earth radius used for great-circle distances
const EarthRadiusMeters = 6371000.0

// Coordinate is a WGS84 position
type Coordinate struct {
	Lat float64 `json:"latitude"`
	Lon float64 `json:"longitude"`
}

// Valid reports whether the coordinate is within WGS84 bounds
func (c Coordinate) Valid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%.4f, %.4f", c.Lat, c.Lon)
}

// Distance returns the haversine great-circle distance between a and b in meters
func Distance(a, b Coordinate) float64 {
	phi1 := radians(a.Lat)
	phi2 := radians(b.Lat)
	dPhi := radians(b.Lat - a.Lat)
	dLambda := radians(b.Lon - a.Lon)

	h := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusMeters * c
}

// Bearing returns the initial bearing from a to b in degrees [0, 360)
func Bearing(a, b Coordinate) float64 {
	lat1 := radians(a.Lat)
	lat2 := radians(b.Lat)
	dLon := radians(b.Lon - a.Lon)

	x := math.Sin(dLon) * math.Cos(lat2)
	y := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)

	deg := math.Atan2(x, y) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}

var compassPoints = [8]string{"north", "northeast", "east", "southeast", "south", "southwest", "west", "northwest"}

// Compass converts a bearing in degrees to an 8-point compass direction
func Compass(bearing float64) string {
	idx := int(math.Round(bearing/45)) % 8
	if idx < 0 {
		idx += 8
	}
	return compassPoints[idx]
}

// FormatDistance renders meters as spoken-friendly text
func FormatDistance(meters float64) string {
	if meters < 1000 {
		return fmt.Sprintf("%d meters", int(meters))
	}
	return fmt.Sprintf("%.1f kilometers", meters/1000)
}

// FormatDuration renders seconds as spoken-friendly text
func FormatDuration(seconds float64) string {
	minutes := int(seconds / 60)
	hours := minutes / 60
	mins := minutes % 60

	if hours > 0 {
		unit := "hours"
		if hours == 1 {
			unit = "hour"
		}
		return fmt.Sprintf("%d %s %d min", hours, unit, mins)
	}
	if mins == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", mins)
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
