package mission

import (
	"fmt"

	"github.com/kilianp07/skylink/core/protocol"
)

// Point is a bare (lat, lon, alt) triple in degrees and metres.
type Point struct {
	Lat float64
	Lon float64
	Alt float64
}

// FromPoints builds plain NAV_WAYPOINT items in GLOBAL_RELATIVE_ALT. The
// first item is marked current.
func FromPoints(points []Point) []Item {
	items := make([]Item, len(points))
	for i, p := range points {
		var current uint8
		if i == 0 {
			current = 1
		}
		items[i] = Item{
			Seq:          uint16(i),
			Frame:        protocol.FrameGlobalRelativeAlt,
			Command:      protocol.CmdNavWaypoint,
			Current:      current,
			Autocontinue: 1,
			X:            ToDegE7(p.Lat),
			Y:            ToDegE7(p.Lon),
			Z:            float32(p.Alt),
		}
	}
	return items
}

// PointsFromTriples converts [[lat, lon, alt], ...] as received in command
// parameters. A missing altitude is an error.
func PointsFromTriples(raw [][]float64) ([]Point, error) {
	points := make([]Point, 0, len(raw))
	for i, t := range raw {
		if len(t) < 3 {
			return nil, fmt.Errorf("waypoint %d: want [lat, lon, alt], got %d values", i, len(t))
		}
		p := Point{Lat: t[0], Lon: t[1], Alt: t[2]}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("waypoint %d: %w", i, err)
		}
		points = append(points, p)
	}
	return points, nil
}

// Validate rejects coordinates outside the WGS84 range.
func (p Point) Validate() error {
	if p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("%w: latitude %f", ErrInvalidCoordinate, p.Lat)
	}
	if p.Lon < -180 || p.Lon > 180 {
		return fmt.Errorf("%w: longitude %f", ErrInvalidCoordinate, p.Lon)
	}
	return nil
}
