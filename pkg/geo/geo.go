// Package geo provides the coordinate value types and great-circle math
// shared by the routing packages.
package geo

import (
	"fmt"
	"math"
)

// EarthRadius is the mean Earth radius in meters
const EarthRadius = 6371000.0

// Location is a request point in decimal degrees
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// String renders the location as "lat,lon"
func (l Location) String() string {
	return fmt.Sprintf("%f,%f", l.Latitude, l.Longitude)
}

// Validate checks that latitude and longitude are within range
func (l Location) Validate() error {
	if l.Latitude < -90 || l.Latitude > 90 {
		return fmt.Errorf("invalid latitude: %f (must be between -90 and 90)", l.Latitude)
	}
	if l.Longitude < -180 || l.Longitude > 180 {
		return fmt.Errorf("invalid longitude: %f (must be between -180 and 180)", l.Longitude)
	}
	return nil
}

// Coordinate is a point of a route geometry. Elevation is nil when the
// engine did not report one.
type Coordinate struct {
	Longitude float64  `json:"lon"`
	Latitude  float64  `json:"lat"`
	Elevation *float64 `json:"elevation,omitempty"`
}

// NewCoordinate returns a coordinate without elevation
func NewCoordinate(lon, lat float64) Coordinate {
	return Coordinate{Longitude: lon, Latitude: lat}
}

// NewCoordinateWithElevation returns a coordinate carrying an elevation in meters
func NewCoordinateWithElevation(lon, lat, elevation float64) Coordinate {
	e := elevation
	return Coordinate{Longitude: lon, Latitude: lat, Elevation: &e}
}

// HasElevation reports whether an elevation is known
func (c Coordinate) HasElevation() bool {
	return c.Elevation != nil
}

// Location drops the elevation
func (c Coordinate) Location() Location {
	return Location{Latitude: c.Latitude, Longitude: c.Longitude}
}

// Equal compares position and elevation
func (c Coordinate) Equal(o Coordinate) bool {
	if c.Longitude != o.Longitude || c.Latitude != o.Latitude {
		return false
	}
	if c.Elevation == nil || o.Elevation == nil {
		return c.Elevation == nil && o.Elevation == nil
	}
	return *c.Elevation == *o.Elevation
}

// HaversineDistance calculates the great-circle distance in meters between two points
func HaversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadius * c
}

// Distance returns the great-circle distance in meters between two coordinates
func Distance(a, b Coordinate) float64 {
	return HaversineDistance(a.Latitude, a.Longitude, b.Latitude, b.Longitude)
}
