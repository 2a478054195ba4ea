package itinerary

import (
	"errors"

	"github.com/NERVsystems/velomcp/pkg/geo"
)

// ErrMissingIdentity is returned by Build when no profile was set
var ErrMissingIdentity = errors.New("itinerary: profile identity not set")

// Builder accumulates engine data and request identity, then produces a
// fully populated Itinerary in one step. A Builder is not safe for
// concurrent use; the Itinerary it returns is.
type Builder struct {
	time        int
	length      int
	cost        int
	profile     string
	alternative int
	hasIdentity bool
	paths       []PathSegment
}

// NewBuilder returns an empty builder
func NewBuilder() *Builder {
	return &Builder{}
}

// Totals sets the response-level time (s), length (m) and cost
func (b *Builder) Totals(time, length, cost int) *Builder {
	b.time, b.length, b.cost = time, length, cost
	return b
}

// Identity sets the profile and alternative that produced the route
func (b *Builder) Identity(profile string, alternative int) *Builder {
	b.profile, b.alternative = profile, alternative
	b.hasIdentity = profile != ""
	return b
}

// AddSegment appends a path segment. The builder takes ownership of the
// segment's maps and slices.
func (b *Builder) AddSegment(seg PathSegment) *Builder {
	if seg.Tags == nil {
		seg.Tags = map[string]string{}
	}
	if seg.Costs == nil {
		seg.Costs = map[string]float64{}
	}
	b.paths = append(b.paths, seg)
	return b
}

// Segments returns the number of segments added so far
func (b *Builder) Segments() int {
	return len(b.paths)
}

// ExtendLast appends coordinates to the most recently added segment
func (b *Builder) ExtendLast(coords ...geo.Coordinate) *Builder {
	if len(b.paths) == 0 {
		return b
	}
	last := &b.paths[len(b.paths)-1]
	last.Coords = append(last.Coords, coords...)
	return b
}

// Build returns the immutable itinerary
func (b *Builder) Build() (*Itinerary, error) {
	if !b.hasIdentity {
		return nil, ErrMissingIdentity
	}
	paths := make([]PathSegment, len(b.paths))
	for i, p := range b.paths {
		paths[i] = p.clone()
	}
	return &Itinerary{
		time:        b.time,
		length:      b.length,
		cost:        b.cost,
		profile:     b.profile,
		alternative: b.alternative,
		paths:       paths,
	}, nil
}
