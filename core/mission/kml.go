package mission

import (
	"io"
	"os"
	"regexp"
	"strconv"
)

// coordRe matches a "lon,lat,alt" tuple as KML writes it.
var coordRe = regexp.MustCompile(`(-?\d+(?:\.\d+)?),(-?\d+(?:\.\d+)?),(-?\d+(?:\.\d+)?)`)

// ParseKML extracts every lon,lat,alt tuple from a KML document in document
// order. Tuples without an altitude are ignored.
func ParseKML(r io.Reader) ([]Point, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var points []Point
	for _, m := range coordRe.FindAllStringSubmatch(string(data), -1) {
		lon, _ := strconv.ParseFloat(m[1], 64)
		lat, _ := strconv.ParseFloat(m[2], 64)
		alt, _ := strconv.ParseFloat(m[3], 64)
		p := Point{Lat: lat, Lon: lon, Alt: alt}
		if p.Validate() != nil {
			continue
		}
		points = append(points, p)
	}
	if len(points) == 0 {
		return nil, ErrEmptyMission
	}
	return points, nil
}

// ParseKMLFile is ParseKML on a file path.
func ParseKMLFile(path string) ([]Point, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return ParseKML(f)
}
