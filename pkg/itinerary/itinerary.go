// Package itinerary models candidate bicycle routes: tagged path segments,
// their safety classification, and the per-itinerary exposure metrics used
// to compare candidates.
package itinerary

import (
	"encoding/json"
	"fmt"

	"github.com/NERVsystems/velomcp/pkg/geo"
)

// Itinerary is one complete route for a single (profile, alternative)
// request. It is immutable once built; use Builder to assemble one.
type Itinerary struct {
	time        int
	length      int
	cost        int
	profile     string
	alternative int
	paths       []PathSegment
}

// FormatID returns the human-readable identifier of a profile/alternative pair
func FormatID(profile string, alternative int) string {
	return fmt.Sprintf("%s-%d", profile, alternative)
}

// ID returns "<profile>-<alternative>"
func (it *Itinerary) ID() string { return FormatID(it.profile, it.alternative) }

// Time is the travel time in seconds
func (it *Itinerary) Time() int { return it.time }

// Length is the engine-reported distance in meters
func (it *Itinerary) Length() int { return it.length }

// Cost is the engine's internal routing cost
func (it *Itinerary) Cost() int { return it.cost }

// Profile is the profile name the itinerary was requested with
func (it *Itinerary) Profile() string { return it.profile }

// Alternative is the engine alternative index
func (it *Itinerary) Alternative() int { return it.alternative }

// SegmentCount returns the number of path segments
func (it *Itinerary) SegmentCount() int { return len(it.paths) }

// Segment returns the i-th path segment. The returned value shares its
// maps and slices with the itinerary and must not be modified.
func (it *Itinerary) Segment(i int) PathSegment { return it.paths[i] }

// Paths returns a copy of the path segments
func (it *Itinerary) Paths() []PathSegment {
	out := make([]PathSegment, len(it.paths))
	for i, p := range it.paths {
		out[i] = p.clone()
	}
	return out
}

// UnsafeScore sums segment lengths weighted by their class exposure
func (it *Itinerary) UnsafeScore() float64 {
	var score float64
	for _, p := range it.paths {
		score += p.Length * UnsafeWeight(p.SafetyClass())
	}
	return score
}

// UnsafeDistance is the total length of danger and medium traffic segments
func (it *Itinerary) UnsafeDistance() float64 {
	var dist float64
	for _, p := range it.paths {
		if p.SafetyClass().IsUnsafe() {
			dist += p.Length
		}
	}
	return dist
}

// Shares returns the fraction of segment length spent in each class.
// A zero-length itinerary has no shares.
func (it *Itinerary) Shares() map[SafetyClass]float64 {
	totals := make(map[SafetyClass]float64)
	var total float64
	for _, p := range it.paths {
		totals[p.SafetyClass()] += p.Length
		total += p.Length
	}
	if total == 0 {
		return map[SafetyClass]float64{}
	}
	shares := make(map[SafetyClass]float64, len(totals))
	for class, length := range totals {
		shares[class] = length / total
	}
	return shares
}

// Track returns the full coordinate sequence with shared segment
// boundaries counted once
func (it *Itinerary) Track() []geo.Coordinate {
	var track []geo.Coordinate
	for i, p := range it.paths {
		coords := p.Coords
		if i > 0 && len(coords) > 0 {
			coords = coords[1:]
		}
		track = append(track, coords...)
	}
	return track
}

// MarshalJSON renders the itinerary with its derived metrics
func (it *Itinerary) MarshalJSON() ([]byte, error) {
	paths := it.paths
	if paths == nil {
		paths = []PathSegment{}
	}
	return json.Marshal(struct {
		ID             string                  `json:"id"`
		Profile        string                  `json:"profile"`
		Alternative    int                     `json:"alternative"`
		Time           int                     `json:"time"`
		Length         int                     `json:"length"`
		Cost           int                     `json:"cost"`
		Paths          []PathSegment           `json:"paths"`
		Shares         map[SafetyClass]float64 `json:"shares"`
		UnsafeScore    float64                 `json:"unsafe_score"`
		UnsafeDistance float64                 `json:"unsafe_distance"`
	}{
		ID:             it.ID(),
		Profile:        it.profile,
		Alternative:    it.alternative,
		Time:           it.time,
		Length:         it.length,
		Cost:           it.cost,
		Paths:          paths,
		Shares:         it.Shares(),
		UnsafeScore:    it.UnsafeScore(),
		UnsafeDistance: it.UnsafeDistance(),
	})
}
