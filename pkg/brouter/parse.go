package brouter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/NERVsystems/velomcp/pkg/geo"
	"github.com/NERVsystems/velomcp/pkg/itinerary"
)

// Warning kinds raised when the coordinate and message streams disagree
const (
	WarnUnmatchedMessages   = "unmatched_messages"
	WarnTrailingCoordinates = "trailing_coordinates"
	WarnMissingMessages     = "missing_messages"
)

// Warning is a non-fatal data-consistency problem found while parsing
type Warning struct {
	Kind   string
	Detail string
}

func (w Warning) String() string { return w.Kind + ": " + w.Detail }

// message column names
const (
	colLongitude = "Longitude"
	colLatitude  = "Latitude"
	colDistance  = "Distance"
	colWayTags   = "WayTags"
)

var costColumns = map[string]string{
	"CostPerKm":   itinerary.CostPerKm,
	"ElevCost":    itinerary.CostElevation,
	"TurnCost":    itinerary.CostTurn,
	"NodeCost":    itinerary.CostNode,
	"InitialCost": itinerary.CostInitial,
}

// flexNumber accepts a JSON number or a string holding one
type flexNumber float64

func (n *flexNumber) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	s := strings.Trim(string(data), `"`)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("not a number: %s", data)
	}
	*n = flexNumber(v)
	return nil
}

// flexString accepts a JSON string or a bare scalar
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = flexString(str)
		return nil
	}
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	*s = flexString(data)
	return nil
}

type featureCollection struct {
	Features []struct {
		Properties struct {
			TotalTime   flexNumber     `json:"total-time"`
			Cost        flexNumber     `json:"cost"`
			TrackLength flexNumber     `json:"track-length"`
			Messages    [][]flexString `json:"messages"`
		} `json:"properties"`
		Geometry *struct {
			Coordinates [][]float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"features"`
}

// message is one way-change record, keyed by header column
type message map[string]string

func (m message) matches(c geo.Coordinate) bool {
	return m[colLongitude] == scaled(c.Longitude) && m[colLatitude] == scaled(c.Latitude)
}

// scaled renders a degree value the way the engine reports it in messages:
// multiplied by 1e6 and truncated
func scaled(deg float64) string {
	return strconv.FormatInt(int64(deg*1e6), 10)
}

func (m message) tags() map[string]string {
	tags := make(map[string]string)
	for _, token := range strings.Fields(m[colWayTags]) {
		k, v, ok := strings.Cut(token, "=")
		if !ok || k == "" {
			continue
		}
		tags[k] = v
	}
	return tags
}

func (m message) number(col string) (float64, bool) {
	raw, ok := m[col]
	if !ok || raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	return v, err == nil
}

func (m message) costs() map[string]float64 {
	costs := make(map[string]float64, len(costColumns))
	for col, key := range costColumns {
		if v, ok := m.number(col); ok {
			costs[key] = v
		}
	}
	return costs
}

func decodeMessages(rows [][]flexString) ([]message, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	header := rows[0]
	msgs := make([]message, 0, len(rows)-1)
	for _, row := range rows[1:] {
		m := make(message, len(header))
		for i, col := range header {
			if i < len(row) {
				m[string(col)] = string(row[i])
			}
		}
		msgs = append(msgs, m)
	}
	if len(msgs) > 0 {
		if _, ok := msgs[0][colLongitude]; !ok {
			return nil, fmt.Errorf("messages header has no %s column", colLongitude)
		}
		if _, ok := msgs[0][colLatitude]; !ok {
			return nil, fmt.Errorf("messages header has no %s column", colLatitude)
		}
	}
	return msgs, nil
}

// Parse turns one engine response into an itinerary stamped with the
// requesting profile and alternative.
//
// Coordinates are walked once. After each coordinate is appended to the
// open segment it is compared with the next pending message; on a match
// the segment is closed with that message's tags, length and costs, and a
// new segment opens on the same coordinate. Stream misalignment is
// returned as warnings and never fails the parse.
func Parse(body []byte, profile string, alternative int) (*itinerary.Itinerary, []Warning, error) {
	var fc featureCollection
	if err := json.Unmarshal(body, &fc); err != nil {
		return nil, nil, &MalformedResponseError{Reason: "invalid JSON", Err: err}
	}
	if len(fc.Features) == 0 {
		return nil, nil, &MalformedResponseError{Reason: "no feature"}
	}
	feature := fc.Features[0]
	if feature.Geometry == nil {
		return nil, nil, &MalformedResponseError{Reason: "feature has no geometry"}
	}

	msgs, err := decodeMessages(feature.Properties.Messages)
	if err != nil {
		return nil, nil, &MalformedResponseError{Reason: "bad messages", Err: err}
	}

	props := feature.Properties
	b := itinerary.NewBuilder().
		Totals(int(props.TotalTime), int(props.TrackLength), int(props.Cost)).
		Identity(profile, alternative)

	var warnings []Warning
	open := itinerary.PathSegment{}
	next := 0

	for i, raw := range feature.Geometry.Coordinates {
		c, err := coordinate(raw)
		if err != nil {
			return nil, nil, &MalformedResponseError{Reason: fmt.Sprintf("coordinate %d", i), Err: err}
		}
		open.Coords = append(open.Coords, c)

		if next < len(msgs) && msgs[next].matches(c) {
			m := msgs[next]
			open.Tags = m.tags()
			open.Length, _ = m.number(colDistance)
			open.Costs = m.costs()
			b.AddSegment(open)

			next++
			open = itinerary.PathSegment{Coords: []geo.Coordinate{c}}
		}
	}

	trailing := len(open.Coords) - 1
	// a lone unmatched coordinate still forms the only segment
	keepOpen := len(open.Coords) > 0 && (trailing > 0 || b.Segments() == 0)
	switch {
	case next < len(msgs):
		warnings = append(warnings, Warning{
			Kind:   WarnUnmatchedMessages,
			Detail: fmt.Sprintf("%d of %d messages matched no coordinate", len(msgs)-next, len(msgs)),
		})
		if keepOpen {
			b.AddSegment(open)
		}
	case trailing > 0 && b.Segments() > 0:
		warnings = append(warnings, Warning{
			Kind:   WarnTrailingCoordinates,
			Detail: fmt.Sprintf("%d coordinates after the last message appended to the final segment", trailing),
		})
		b.ExtendLast(open.Coords[1:]...)
	case keepOpen:
		warnings = append(warnings, Warning{
			Kind:   WarnMissingMessages,
			Detail: fmt.Sprintf("%d coordinates without any message kept as one untagged segment", len(open.Coords)),
		})
		b.AddSegment(open)
	}

	it, err := b.Build()
	if err != nil {
		return nil, nil, err
	}
	return it, warnings, nil
}

func coordinate(raw []float64) (geo.Coordinate, error) {
	switch len(raw) {
	case 2:
		return geo.NewCoordinate(raw[0], raw[1]), nil
	case 3:
		return geo.NewCoordinateWithElevation(raw[0], raw[1], raw[2]), nil
	default:
		return geo.Coordinate{}, fmt.Errorf("expected [lon, lat, elevation], got %d values", len(raw))
	}
}
