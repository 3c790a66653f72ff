package fleet

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/skylink/core/protocol"
)

func TestApplyHeartbeat(t *testing.T) {
	var st Status
	now := time.Unix(1700000000, 500000000)
	ok := applyTelemetry(&st, &protocol.Heartbeat{
		Type:       protocol.TypeQuadrotor,
		Autopilot:  3,
		BaseMode:   protocol.ModeFlagCustomModeEnabled | protocol.ModeFlagSafetyArmed,
		CustomMode: 4,
	}, now)
	require.True(t, ok)
	assert.True(t, st.Connected)
	assert.True(t, st.Armed)
	assert.Equal(t, "GUIDED", st.FlightMode)
	assert.Equal(t, now, st.LastHeartbeat)
	assert.InDelta(t, 1700000000.5, st.LastHeartbeatS, 1e-6)

	// a gimbal heartbeat on the same system id leaves the status alone
	applyTelemetry(&st, &protocol.Heartbeat{Type: 26, Autopilot: autopilotInvalid}, now.Add(time.Second))
	assert.Equal(t, "GUIDED", st.FlightMode)
	assert.Equal(t, now, st.LastHeartbeat)
}

func TestApplySysStatusSentinels(t *testing.T) {
	var st Status
	applyTelemetry(&st, &protocol.SysStatus{VoltageBattery: 12600, BatteryRemaining: 87}, time.Now())
	require.NotNil(t, st.BatteryRemaining)
	assert.Equal(t, 87, *st.BatteryRemaining)
	assert.InDelta(t, 12.6, *st.BatteryVoltage, 1e-9)

	applyTelemetry(&st, &protocol.SysStatus{VoltageBattery: protocol.UnknownUint16, BatteryRemaining: -1}, time.Now())
	assert.Nil(t, st.BatteryRemaining, "-1 means unknown")
	assert.InDelta(t, 12.6, *st.BatteryVoltage, 1e-9, "unknown voltage keeps the last value")
}

func TestApplyGlobalPosition(t *testing.T) {
	var st Status
	applyTelemetry(&st, &protocol.GlobalPosition{
		Lat: 473977418, Lon: 85455939, Alt: 488000, RelativeAlt: 30000, Vx: 300, Vy: 400,
	}, time.Now())
	assert.InDelta(t, 47.3977418, *st.LatitudeDeg, 1e-9)
	assert.InDelta(t, 8.5455939, *st.LongitudeDeg, 1e-9)
	assert.InDelta(t, 488.0, *st.AltitudeM, 1e-9, "altitude_m is AMSL")
	assert.InDelta(t, 30.0, *st.RelativeAltM, 1e-9)
	assert.InDelta(t, 5.0, *st.GroundspeedMS, 1e-9)
}

func TestApplyGPSRawSentinels(t *testing.T) {
	var st Status
	applyTelemetry(&st, &protocol.GPSRaw{FixType: 3, Cog: 9000, Vel: 250, SatellitesVisible: 11}, time.Now())
	assert.InDelta(t, 90.0, *st.GPSHeading, 1e-9)
	assert.InDelta(t, 2.5, *st.GPSSpeed, 1e-9)
	assert.Equal(t, 11, *st.GPSSatellites)
	assert.Equal(t, 3, *st.GPSFixType)

	applyTelemetry(&st, &protocol.GPSRaw{
		FixType:           1,
		Cog:               protocol.UnknownUint16,
		Vel:               protocol.UnknownUint16,
		SatellitesVisible: protocol.SatellitesUnknown,
	}, time.Now())
	assert.Nil(t, st.GPSHeading, "invalid course must not decode to zero")
	assert.Nil(t, st.GPSSpeed, "invalid speed must not decode to zero")
	assert.Nil(t, st.GPSSatellites)
	assert.Equal(t, 1, *st.GPSFixType)
}

func TestApplyAttitudeAndHUD(t *testing.T) {
	var st Status
	applyTelemetry(&st, &protocol.GlobalPosition{Vx: 100}, time.Now())
	applyTelemetry(&st, &protocol.Attitude{Roll: 0.1, Pitch: -0.2, Yaw: 1.5}, time.Now())
	applyTelemetry(&st, &protocol.VFRHUD{Airspeed: 14, Groundspeed: 12, Heading: 270, Throttle: 55, Climb: -0.5}, time.Now())
	assert.InDelta(t, 0.1, *st.Roll, 1e-6)
	assert.InDelta(t, -0.2, *st.Pitch, 1e-6)
	assert.InDelta(t, 1.5, *st.Yaw, 1e-6)
	assert.Equal(t, 270.0, *st.VFRHeading)
	assert.Equal(t, 55.0, *st.VFRThrottle)
	assert.Equal(t, 12.0, *st.GroundspeedMS, "HUD groundspeed wins")

	assert.False(t, applyTelemetry(&st, &protocol.MissionAck{}, time.Now()))
}

func TestStatusJSONFieldNames(t *testing.T) {
	st := Status{SysID: 2, FlightMode: "AUTO", LatitudeDeg: f64(1)}
	data, err := json.Marshal(st)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	for _, k := range []string{
		"sys_id", "connected", "last_heartbeat_s", "flight_mode", "armed",
		"battery_remaining", "battery_voltage", "latitude_deg", "longitude_deg",
		"altitude_m", "relative_alt_m", "groundspeed_m_s", "gps_satellites", "gps_heading", "gps_speed",
		"gps_fix_type", "roll", "pitch", "yaw", "vfr_heading", "vfr_airspeed",
		"vfr_throttle", "vfr_climb",
	} {
		if _, ok := m[k]; !ok {
			t.Errorf("missing key %s", k)
		}
	}
	assert.Nil(t, m["gps_heading"], "unknown serialises as null")
}

func TestModeName(t *testing.T) {
	cases := []struct {
		vtype, base uint8
		custom      uint32
		want        string
	}{
		{protocol.TypeQuadrotor, 1, 3, "AUTO"},
		{protocol.TypeHexarotor, 1, 6, "RTL"},
		{protocol.TypeFixedWing, 1, 10, "AUTO"},
		{protocol.TypeGroundRover, 1, 4, "HOLD"},
		{protocol.TypeQuadrotor, 1, 99, "Mode(99)"},
		{protocol.TypeQuadrotor, 0x80, 3, "Mode(0x00000080)"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ModeName(c.vtype, c.base, c.custom))
	}
}

func TestModeNumber(t *testing.T) {
	n, ok := ModeNumber(protocol.TypeQuadrotor, "guided")
	assert.True(t, ok)
	assert.Equal(t, uint32(4), n)
	n, ok = ModeNumber(protocol.TypeFixedWing, "GUIDED")
	assert.True(t, ok)
	assert.Equal(t, uint32(15), n)
	n, ok = ModeNumber(protocol.TypeQuadrotor, "smart rtl")
	assert.True(t, ok)
	assert.Equal(t, uint32(21), n)
	_, ok = ModeNumber(protocol.TypeQuadrotor, "QHOVER")
	assert.False(t, ok)
}

func TestConfigDefaults(t *testing.T) {
	var c Config
	assert.Equal(t, 3*time.Second, c.ClearAckTimeout())
	assert.Equal(t, 5*time.Second, c.RequestTimeout())
	assert.Equal(t, 32, c.Queue())
	assert.Equal(t, uint16(5), c.StreamRate())
	c.StreamRateHz = -1
	assert.Equal(t, uint16(0), c.StreamRate())
	assert.NoError(t, c.Validate())
	assert.Error(t, Config{QueueSize: 1 << 20}.Validate())
}
