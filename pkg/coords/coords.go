// Package coords parses route endpoints written in the notations riders
// and map tools produce, and converts them to WGS84 decimal degrees.
//
// Accepted notations:
//   - Decimal degrees, latitude first: "48.8566, 2.3522" or "48.8566 2.3522"
//   - Degrees minutes seconds: "48°51'24"N 2°21'08"E", "48d51m24sN 2d21m8sE"
//   - MGRS: "31UDQ5248411718"
package coords

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/akhenakh/mgrs"

	"github.com/NERVsystems/velomcp/pkg/geo"
)

// Format is a coordinate notation
type Format int

const (
	FormatUnknown Format = iota
	FormatDecimal
	FormatDMS
	FormatMGRS
)

func (f Format) String() string {
	switch f {
	case FormatDecimal:
		return "decimal"
	case FormatDMS:
		return "dms"
	case FormatMGRS:
		return "mgrs"
	default:
		return "unknown"
	}
}

// ErrEmpty is returned for a blank input
var ErrEmpty = errors.New("empty coordinate")

// Point is a parsed endpoint and the notation it was written in
type Point struct {
	Location geo.Location
	Format   Format
	Input    string
}

var (
	// zone, band (no I or O), 100 km square, even digit run
	mgrsPattern = regexp.MustCompile(`(?i)^(\d{1,2})([C-HJ-NP-X])([A-HJ-NP-Z]{2})(\d{2,10})$`)

	dmsPattern = regexp.MustCompile(`(?i)^(\d+)[°d\s]+(\d+)[′'m\s]+(\d+(?:\.\d+)?)[″"s]?\s*([NS])[\s,]+(\d+)[°d\s]+(\d+)[′'m\s]+(\d+(?:\.\d+)?)[″"s]?\s*([EW])$`)

	decimalPattern = regexp.MustCompile(`^([-+]?\d+(?:\.\d*)?)\s*[,\s]\s*([-+]?\d+(?:\.\d*)?)$`)
)

type notation struct {
	format  Format
	pattern *regexp.Regexp
	convert func(m []string) (geo.Location, error)
}

// notations are tried from the most to the least specific
var notations = []notation{
	{FormatMGRS, mgrsPattern, fromMGRS},
	{FormatDMS, dmsPattern, fromDMS},
	{FormatDecimal, decimalPattern, fromDecimal},
}

// Detect returns the notation of input without converting it
func Detect(input string) Format {
	input = strings.TrimSpace(input)
	for _, n := range notations {
		if n.pattern.MatchString(input) {
			return n.format
		}
	}
	return FormatUnknown
}

// Parse converts an endpoint in any accepted notation
func Parse(input string) (Point, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return Point{}, ErrEmpty
	}

	for _, n := range notations {
		m := n.pattern.FindStringSubmatch(input)
		if m == nil {
			continue
		}
		loc, err := n.convert(m)
		if err != nil {
			return Point{}, fmt.Errorf("%s coordinate %q: %w", n.format, input, err)
		}
		if err := loc.Validate(); err != nil {
			return Point{}, fmt.Errorf("%s coordinate %q: %w", n.format, input, err)
		}
		return Point{Location: loc, Format: n.format, Input: input}, nil
	}
	return Point{}, fmt.Errorf("unrecognized coordinate %q", input)
}

func fromMGRS(m []string) (geo.Location, error) {
	if zone, _ := strconv.Atoi(m[1]); zone < 1 || zone > 60 {
		return geo.Location{}, fmt.Errorf("zone %s out of range 1-60", m[1])
	}
	if len(m[4])%2 != 0 {
		return geo.Location{}, errors.New("easting and northing need the same number of digits")
	}
	lat, lon, err := mgrs.MGRSToLatLng(strings.ToUpper(m[0]))
	if err != nil {
		return geo.Location{}, err
	}
	return geo.Location{Latitude: lat, Longitude: lon}, nil
}

func fromDMS(m []string) (geo.Location, error) {
	lat, err := dmsDegrees(m[1], m[2], m[3], 90)
	if err != nil {
		return geo.Location{}, fmt.Errorf("latitude: %w", err)
	}
	lon, err := dmsDegrees(m[5], m[6], m[7], 180)
	if err != nil {
		return geo.Location{}, fmt.Errorf("longitude: %w", err)
	}
	if strings.EqualFold(m[4], "S") {
		lat = -lat
	}
	if strings.EqualFold(m[8], "W") {
		lon = -lon
	}
	return geo.Location{Latitude: lat, Longitude: lon}, nil
}

func dmsDegrees(d, m, s string, limit float64) (float64, error) {
	deg, _ := strconv.ParseFloat(d, 64)
	min, _ := strconv.ParseFloat(m, 64)
	sec, _ := strconv.ParseFloat(s, 64)
	if min >= 60 || sec >= 60 {
		return 0, fmt.Errorf("minutes and seconds must be below 60")
	}
	v := deg + min/60 + sec/3600
	if v > limit {
		return 0, fmt.Errorf("%g exceeds %g degrees", v, limit)
	}
	return v, nil
}

func fromDecimal(m []string) (geo.Location, error) {
	lat, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return geo.Location{}, fmt.Errorf("latitude: %w", err)
	}
	lon, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return geo.Location{}, fmt.Errorf("longitude: %w", err)
	}
	return geo.Location{Latitude: lat, Longitude: lon}, nil
}

// ToMGRS renders a location as MGRS. Precision 1 to 5 selects 10 km down
// to 1 m resolution; anything else means 1 m.
func ToMGRS(loc geo.Location, precision int) (string, error) {
	if precision < 1 || precision > 5 {
		precision = 5
	}
	if err := loc.Validate(); err != nil {
		return "", err
	}
	s, err := mgrs.LatLngToMGRS(loc.Latitude, loc.Longitude, precision)
	if err != nil {
		return "", fmt.Errorf("MGRS conversion failed: %w", err)
	}
	return s, nil
}
