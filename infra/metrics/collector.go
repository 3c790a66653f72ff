package metrics

import (
	"context"
	"time"

	"github.com/kilianp07/skylink/core/fleet"
	coremetrics "github.com/kilianp07/skylink/core/metrics"
)

// SnapshotSource is implemented by *fleet.Coordinator.
type SnapshotSource interface {
	Snapshot() map[uint8]fleet.Status
}

// StartStateCollector sends a state event per vehicle to sink every
// interval. It does nothing when the sink cannot record vehicle state and
// stops when the context is canceled.
func StartStateCollector(ctx context.Context, src SnapshotSource, sink coremetrics.MetricsSink, interval time.Duration) {
	rec, ok := sink.(coremetrics.VehicleStateRecorder)
	if src == nil || !ok || interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				CollectState(src, rec, now)
			}
		}
	}()
}

// CollectState records one snapshot of every vehicle.
func CollectState(src SnapshotSource, rec coremetrics.VehicleStateRecorder, now time.Time) {
	for _, st := range src.Snapshot() {
		_ = rec.RecordVehicleState(StateEvent(st, now))
	}
}

// StateEvent flattens a vehicle status for the sinks.
func StateEvent(st fleet.Status, now time.Time) coremetrics.VehicleStateEvent {
	ev := coremetrics.VehicleStateEvent{
		SysID:          st.SysID,
		Mode:           st.FlightMode,
		Armed:          st.Armed,
		Connected:      st.Connected,
		Latitude:       st.LatitudeDeg,
		Longitude:      st.LongitudeDeg,
		Altitude:       st.AltitudeM,
		Groundspeed:    st.GroundspeedMS,
		BatteryVoltage: st.BatteryVoltage,
		Time:           now,
	}
	if st.BatteryRemaining != nil {
		pct := float64(*st.BatteryRemaining)
		ev.BatteryRemaining = &pct
	}
	return ev
}
