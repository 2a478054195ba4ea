package itinerary

import (
	"encoding/json"

	"github.com/NERVsystems/velomcp/pkg/geo"
)

// Cost component names reported by the engine for each segment
const (
	CostPerKm     = "per_km"
	CostElevation = "elevation"
	CostTurn      = "turn"
	CostNode      = "node"
	CostInitial   = "initial"
)

// CostKeys lists the cost components in engine column order
var CostKeys = []string{CostPerKm, CostElevation, CostTurn, CostNode, CostInitial}

// PathSegment is a run of coordinates sharing one OSM tag set.
// Consecutive segments of an itinerary share their boundary coordinate.
type PathSegment struct {
	Tags   map[string]string  `json:"tags"`
	Length float64            `json:"length"` // meters, engine-reported
	Costs  map[string]float64 `json:"costs"`
	Coords []geo.Coordinate   `json:"coords"`
}

// SafetyClass classifies the segment from its tags
func (p PathSegment) SafetyClass() SafetyClass {
	return Classify(p.Tags)
}

// Slope returns the grade in percent between the first and last coordinate.
// It is 0 when the length is 0 or either endpoint has no elevation.
func (p PathSegment) Slope() float64 {
	if len(p.Coords) < 2 || p.Length == 0 {
		return 0
	}
	first, last := p.Coords[0], p.Coords[len(p.Coords)-1]
	if !first.HasElevation() || !last.HasElevation() {
		return 0
	}
	return (*last.Elevation - *first.Elevation) / p.Length * 100
}

// MarshalJSON adds the derived type and slope to the segment fields
func (p PathSegment) MarshalJSON() ([]byte, error) {
	type plain PathSegment
	return json.Marshal(struct {
		plain
		Type  SafetyClass `json:"type"`
		Slope float64     `json:"slope"`
	}{
		plain: plain(p),
		Type:  p.SafetyClass(),
		Slope: p.Slope(),
	})
}

func (p PathSegment) clone() PathSegment {
	out := PathSegment{
		Length: p.Length,
		Tags:   make(map[string]string, len(p.Tags)),
		Costs:  make(map[string]float64, len(p.Costs)),
		Coords: append([]geo.Coordinate(nil), p.Coords...),
	}
	for k, v := range p.Tags {
		out.Tags[k] = v
	}
	for k, v := range p.Costs {
		out.Costs[k] = v
	}
	return out
}
