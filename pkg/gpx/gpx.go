// Package gpx writes itineraries as GPX 1.1 tracks
package gpx

import (
	"errors"
	"io"
	"strconv"

	gpxgo "github.com/tkrajina/gpxgo/gpx"

	"github.com/NERVsystems/velomcp/pkg/itinerary"
	"github.com/NERVsystems/velomcp/pkg/version"
)

// MimeType is the content type of a GPX document
const MimeType = "application/gpx+xml"

// FromItinerary builds a single-track document from the itinerary track.
// Shared segment boundaries appear once; elevation is omitted when unknown.
func FromItinerary(it *itinerary.Itinerary) (*gpxgo.GPX, error) {
	track := it.Track()
	if len(track) == 0 {
		return nil, errors.New("gpx: itinerary has no coordinates")
	}

	points := make([]gpxgo.GPXPoint, len(track))
	for i, c := range track {
		p := gpxgo.GPXPoint{Point: gpxgo.Point{Latitude: c.Latitude, Longitude: c.Longitude}}
		if c.Elevation != nil {
			p.Elevation = *gpxgo.NewNullableFloat64(*c.Elevation)
		}
		points[i] = p
	}

	return &gpxgo.GPX{
		Creator:     "velomcp " + version.BuildVersion,
		Name:        it.ID(),
		Description: "length " + strconv.Itoa(it.Length()) + " m, time " + strconv.Itoa(it.Time()) + " s",
		Tracks: []gpxgo.GPXTrack{{
			Name:     it.ID(),
			Type:     "cycling",
			Segments: []gpxgo.GPXTrackSegment{{Points: points}},
		}},
	}, nil
}

// Encode renders an itinerary as an indented GPX 1.1 document
func Encode(w io.Writer, it *itinerary.Itinerary) error {
	doc, err := FromItinerary(it)
	if err != nil {
		return err
	}
	data, err := doc.ToXml(gpxgo.ToXmlParams{Version: "1.1", Indent: true})
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
