package core

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/NERVsystems/velomcp/pkg/coords"
	"github.com/NERVsystems/velomcp/pkg/geo"
)

// ValidateCoords checks if latitude and longitude are within valid ranges
func ValidateCoords(lat, lon float64) error {
	if lat < -90 || lat > 90 {
		return NewError(ErrInvalidLatitude, fmt.Sprintf("Latitude must be between -90 and 90, got %f", lat)).
			WithGuidance("Ensure latitude is in decimal degrees")
	}
	if lon < -180 || lon > 180 {
		return NewError(ErrInvalidLongitude, fmt.Sprintf("Longitude must be between -180 and 180, got %f", lon)).
			WithGuidance("Ensure longitude is in decimal degrees")
	}
	return nil
}

// Endpoint is a route start or end as given by a client: either a string
// in any notation coords.Parse accepts, or a {latitude, longitude} object
type Endpoint struct {
	geo.Location
	Format coords.Format
}

// UnmarshalJSON accepts both endpoint forms
func (e *Endpoint) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		p, err := coords.Parse(s)
		if err != nil {
			return err
		}
		e.Location, e.Format = p.Location, p.Format
		return nil
	}

	var loc struct {
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
	}
	if err := json.Unmarshal(data, &loc); err != nil {
		return fmt.Errorf("endpoint must be a coordinate string or {latitude, longitude}: %w", err)
	}
	if loc.Latitude == nil || loc.Longitude == nil {
		return fmt.Errorf("endpoint object needs both latitude and longitude")
	}
	e.Location = geo.Location{Latitude: *loc.Latitude, Longitude: *loc.Longitude}
	e.Format = coords.FormatDecimal
	return nil
}

// MarshalJSON writes the decimal location
func (e Endpoint) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Location)
}

// ValidateEndpoint checks a decoded endpoint. name is the argument name
// used in the error message.
func ValidateEndpoint(name string, e *Endpoint) error {
	if e == nil {
		return NewValidationError(ErrMissingParameter, fmt.Sprintf("Missing required parameter %q", name)).
			WithSuggestions(`"48.8566, 2.3522"`, `"48°51'24\"N 2°21'08\"E"`, `"31UDQ5248411718"`)
	}
	if err := ValidateCoords(e.Latitude, e.Longitude); err != nil {
		return err
	}
	return nil
}
