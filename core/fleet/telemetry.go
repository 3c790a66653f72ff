package fleet

import (
	"math"
	"time"

	"github.com/kilianp07/skylink/core/protocol"
)

// applyTelemetry folds one telemetry message into st. It reports false for
// messages that are not telemetry.
func applyTelemetry(st *Status, msg protocol.Message, now time.Time) bool {
	switch m := msg.(type) {
	case *protocol.Heartbeat:
		applyHeartbeat(st, m, now)
	case *protocol.SysStatus:
		applySysStatus(st, m)
	case *protocol.GlobalPosition:
		applyGlobalPosition(st, m)
	case *protocol.GPSRaw:
		applyGPSRaw(st, m)
	case *protocol.Attitude:
		st.Roll = f64(float64(m.Roll))
		st.Pitch = f64(float64(m.Pitch))
		st.Yaw = f64(float64(m.Yaw))
	case *protocol.VFRHUD:
		applyVFRHUD(st, m)
	default:
		return false
	}
	return true
}

func applyHeartbeat(st *Status, m *protocol.Heartbeat, now time.Time) {
	// gimbals and cameras share the vehicle's system id
	if m.Autopilot == autopilotInvalid {
		return
	}
	st.Connected = true
	st.LastHeartbeat = now
	st.LastHeartbeatS = float64(now.UnixNano()) / 1e9
	st.VehicleType = m.Type
	st.FlightMode = ModeName(m.Type, m.BaseMode, m.CustomMode)
	st.Armed = m.BaseMode&protocol.ModeFlagSafetyArmed != 0
}

func applySysStatus(st *Status, m *protocol.SysStatus) {
	if m.BatteryRemaining == protocol.BatteryRemainingUnknown {
		st.BatteryRemaining = nil
	} else {
		st.BatteryRemaining = intp(int(m.BatteryRemaining))
	}
	if m.VoltageBattery > 0 && m.VoltageBattery != protocol.UnknownUint16 {
		st.BatteryVoltage = f64(float64(m.VoltageBattery) / 1000)
	}
}

func applyGlobalPosition(st *Status, m *protocol.GlobalPosition) {
	st.LatitudeDeg = f64(float64(m.Lat) / 1e7)
	st.LongitudeDeg = f64(float64(m.Lon) / 1e7)
	st.AltitudeM = f64(float64(m.Alt) / 1000)
	st.RelativeAltM = f64(float64(m.RelativeAlt) / 1000)
	st.GroundspeedMS = f64(math.Hypot(float64(m.Vx), float64(m.Vy)) / 100)
}

func applyGPSRaw(st *Status, m *protocol.GPSRaw) {
	if m.SatellitesVisible == protocol.SatellitesUnknown {
		st.GPSSatellites = nil
	} else {
		st.GPSSatellites = intp(int(m.SatellitesVisible))
	}
	st.GPSFixType = intp(int(m.FixType))
	if m.Cog == protocol.UnknownUint16 {
		st.GPSHeading = nil
	} else {
		st.GPSHeading = f64(float64(m.Cog) / 100)
	}
	if m.Vel == protocol.UnknownUint16 {
		st.GPSSpeed = nil
	} else {
		st.GPSSpeed = f64(float64(m.Vel) / 100)
	}
}

func applyVFRHUD(st *Status, m *protocol.VFRHUD) {
	st.VFRHeading = f64(float64(m.Heading))
	st.VFRAirspeed = f64(float64(m.Airspeed))
	st.VFRThrottle = f64(float64(m.Throttle))
	st.VFRClimb = f64(float64(m.Climb))
	st.GroundspeedMS = f64(float64(m.Groundspeed))
}
