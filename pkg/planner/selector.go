package planner

import (
	"fmt"

	"github.com/NERVsystems/velomcp/pkg/geo"
	"github.com/NERVsystems/velomcp/pkg/itinerary"
)

// Boundary selects how tolerances are compared
type Boundary string

const (
	// BoundaryInclusive lets B dominate A when B is within tolerance (≤)
	BoundaryInclusive Boundary = "inclusive"
	// BoundaryStrict requires B to be strictly inside tolerance (<)
	BoundaryStrict Boundary = "strict"
)

// ParseBoundary validates a configured boundary name
func ParseBoundary(s string) (Boundary, error) {
	switch b := Boundary(s); b {
	case BoundaryInclusive, BoundaryStrict:
		return b, nil
	case "":
		return BoundaryInclusive, nil
	default:
		return "", fmt.Errorf("unknown tolerance boundary %q", s)
	}
}

// Selector reduces candidate itineraries. Inputs are expected in canonical
// order; outputs keep that order.
type Selector struct {
	// TimeTolerance in seconds
	TimeTolerance float64
	// SafetyTolerance in meters of unsafe distance
	SafetyTolerance float64
	Boundary        Boundary
	// DuplicateThreshold in meters between corresponding segment starts
	DuplicateThreshold float64
}

// DefaultSelector returns the selector used when nothing is configured
func DefaultSelector() Selector {
	return Selector{
		TimeTolerance:      60,
		SafetyTolerance:    100,
		Boundary:           BoundaryInclusive,
		DuplicateThreshold: 10,
	}
}

func (s Selector) within(b, a, tolerance float64) bool {
	if s.Boundary == BoundaryStrict {
		return b < a+tolerance
	}
	return b <= a+tolerance
}

// dominates reports whether b is no worse than a on both time and unsafe
// distance, within tolerance
func (s Selector) dominates(b, a *itinerary.Itinerary) bool {
	return s.within(float64(b.Time()), float64(a.Time()), s.TimeTolerance) &&
		s.within(b.UnsafeDistance(), a.UnsafeDistance(), s.SafetyTolerance)
}

// PurgeDominated drops every itinerary another one dominates. When two
// itineraries dominate each other the earlier one survives. The result is
// never empty for a non-empty input, and applying it to its own output
// changes nothing.
func (s Selector) PurgeDominated(candidates []*itinerary.Itinerary) []*itinerary.Itinerary {
	if len(candidates) == 0 {
		return nil
	}

	kept := make([]*itinerary.Itinerary, 0, len(candidates))
	for i, a := range candidates {
		dominated := false
		for j, b := range candidates {
			if i == j || !s.dominates(b, a) {
				continue
			}
			if j > i && s.dominates(a, b) {
				// mutual: the later one goes
				continue
			}
			dominated = true
			break
		}
		if !dominated {
			kept = append(kept, a)
		}
	}

	if len(kept) == 0 {
		kept = append(kept, candidates[0])
	}
	return kept
}

// Duplicates reports whether a and b follow the same path: same segment
// count and every pair of corresponding segment starts closer than the
// threshold
func (s Selector) Duplicates(a, b *itinerary.Itinerary) bool {
	if a.SegmentCount() != b.SegmentCount() {
		return false
	}
	for i := 0; i < a.SegmentCount(); i++ {
		pa, pb := a.Segment(i).Coords, b.Segment(i).Coords
		if len(pa) == 0 || len(pb) == 0 {
			if len(pa) != len(pb) {
				return false
			}
			continue
		}
		if geo.Distance(pa[0], pb[0]) >= s.DuplicateThreshold {
			return false
		}
	}
	return true
}

// SuppressDuplicates keeps the first itinerary of every duplicate class
func (s Selector) SuppressDuplicates(candidates []*itinerary.Itinerary) []*itinerary.Itinerary {
	kept := make([]*itinerary.Itinerary, 0, len(candidates))
	for _, c := range candidates {
		duplicate := false
		for _, k := range kept {
			if s.Duplicates(k, c) {
				duplicate = true
				break
			}
		}
		if !duplicate {
			kept = append(kept, c)
		}
	}
	return kept
}

// Select applies dominance filtering, when purge is set, then duplicate
// suppression
func (s Selector) Select(candidates []*itinerary.Itinerary, purge bool) []*itinerary.Itinerary {
	if purge {
		candidates = s.PurgeDominated(candidates)
	}
	return s.SuppressDuplicates(candidates)
}
