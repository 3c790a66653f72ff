package mission

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

const earthRadiusM = 6371000.0

// Summary describes a mission before it is uploaded.
type Summary struct {
	Items     int     `json:"items"`
	NavPoints int     `json:"nav_points"`
	PathM     float64 `json:"path_m"`
	MaxAltM   float64 `json:"max_alt_m"`
}

// Summarize computes the item count and the length of the path flown
// through the positioned items.
func Summarize(items []Item) Summary {
	s := Summary{Items: len(items)}
	var legs, alts []float64
	var prev *Item
	for i := range items {
		it := items[i]
		if !it.IsNav() {
			continue
		}
		s.NavPoints++
		alts = append(alts, float64(it.Z))
		if prev != nil {
			legs = append(legs, Haversine(prev.Lat(), prev.Lon(), it.Lat(), it.Lon()))
		}
		prev = &items[i]
	}
	if len(legs) > 0 {
		s.PathM = floats.Sum(legs)
	}
	if len(alts) > 0 {
		s.MaxAltM = floats.Max(alts)
	}
	return s
}

// Haversine returns the great-circle distance in metres.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	p1 := lat1 * math.Pi / 180
	p2 := lat2 * math.Pi / 180
	dp := (lat2 - lat1) * math.Pi / 180
	dl := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dp/2)*math.Sin(dp/2) + math.Cos(p1)*math.Cos(p2)*math.Sin(dl/2)*math.Sin(dl/2)
	return 2 * earthRadiusM * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
