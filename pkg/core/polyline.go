package core

import (
	"errors"
	"math"

	"github.com/NERVsystems/velomcp/pkg/geo"
)

// EncodePolyline encodes a route track in Google's Polyline Algorithm
// Format with 5 decimal places. Elevation is dropped.
// See https://developers.google.com/maps/documentation/utilities/polylinealgorithm
func EncodePolyline(points []geo.Coordinate) string {
	if len(points) == 0 {
		return ""
	}

	result := make([]byte, 0, len(points)*12)
	prevLat, prevLon := 0, 0

	for _, point := range points {
		lat := int(math.Round(point.Latitude * 1e5))
		lon := int(math.Round(point.Longitude * 1e5))

		result = append(result, encodeSigned(lat-prevLat)...)
		result = append(result, encodeSigned(lon-prevLon)...)

		prevLat, prevLon = lat, lon
	}

	return string(result)
}

// DecodePolyline decodes a Polyline5 string into coordinates without elevation
func DecodePolyline(polyline string) ([]geo.Coordinate, error) {
	points := make([]geo.Coordinate, 0, len(polyline)/8+1)

	index, prevLat, prevLon := 0, 0, 0
	for index < len(polyline) {
		lat, next, err := decodeValue(polyline, index, prevLat)
		if err != nil {
			return nil, err
		}
		index = next
		prevLat = lat

		if index >= len(polyline) {
			return nil, errors.New("invalid polyline: unexpected end of string")
		}
		lon, next, err := decodeValue(polyline, index, prevLon)
		if err != nil {
			return nil, err
		}
		index = next
		prevLon = lon

		points = append(points, geo.NewCoordinate(float64(lon)*1e-5, float64(lat)*1e-5))
	}

	return points, nil
}

func decodeValue(polyline string, index, prev int) (int, int, error) {
	result := 0
	shift := 0

	for {
		if index >= len(polyline) {
			return 0, 0, errors.New("invalid polyline: unexpected end of string")
		}
		b := int(polyline[index]) - 63
		index++
		result |= (b & 0x1f) << shift
		shift += 5
		if b < 0x20 {
			break
		}
	}

	delta := (result >> 1) ^ (-(result & 1))
	return prev + delta, index, nil
}

func encodeSigned(value int) []byte {
	s := value << 1
	if value < 0 {
		s = ^s
	}

	var buf []byte
	for s >= 0x20 {
		buf = append(buf, byte((0x20|(s&0x1f))+63))
		s >>= 5
	}
	return append(buf, byte(s+63))
}
