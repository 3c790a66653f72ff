package simulator

import (
	"context"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/kilianp07/skylink/core/mission"
)

// Spread returns the home of the i-th vehicle of a fleet, spacing metres
// east of the previous one so simulated vehicles do not overlap.
func Spread(home mission.Point, i int, spacing float64) mission.Point {
	const mPerDegLat = 111320.0
	mPerDegLon := mPerDegLat * math.Cos(home.Lat*math.Pi/180)
	if mPerDegLon < 1 {
		mPerDegLon = 1
	}
	return mission.Point{Lat: home.Lat, Lon: home.Lon + float64(i)*spacing/mPerDegLon, Alt: home.Alt}
}

// RunAll runs every vehicle until ctx is done or one of them fails.
func RunAll(ctx context.Context, vehicles ...*Vehicle) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, v := range vehicles {
		g.Go(func() error { return v.Run(gctx) })
	}
	return g.Wait()
}
