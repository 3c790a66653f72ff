package fleet

import "time"

// Status is the live view of one vehicle. Optional fields are nil until the
// vehicle reports them, or when it reports the protocol's "unknown" value.
//
// Pointer fields are replaced, never written through, so a shallow copy
// taken under the agent lock stays consistent after the lock is released.
type Status struct {
	SysID          uint8     `json:"sys_id"`
	Connected      bool      `json:"connected"`
	LastHeartbeat  time.Time `json:"-"`
	LastHeartbeatS float64   `json:"last_heartbeat_s"`
	FlightMode     string    `json:"flight_mode"`
	Armed          bool      `json:"armed"`
	VehicleType    uint8     `json:"vehicle_type"`

	BatteryRemaining *int     `json:"battery_remaining"`
	BatteryVoltage   *float64 `json:"battery_voltage"`

	LatitudeDeg    *float64 `json:"latitude_deg"`
	LongitudeDeg   *float64 `json:"longitude_deg"`
	AltitudeM      *float64 `json:"altitude_m"`     // above mean sea level
	RelativeAltM   *float64 `json:"relative_alt_m"` // above home
	GroundspeedMS  *float64 `json:"groundspeed_m_s"`
	GPSSatellites  *int     `json:"gps_satellites"`
	GPSHeading     *float64 `json:"gps_heading"`
	GPSSpeed       *float64 `json:"gps_speed"`
	GPSFixType     *int     `json:"gps_fix_type"`
	Roll           *float64 `json:"roll"`
	Pitch          *float64 `json:"pitch"`
	Yaw            *float64 `json:"yaw"`
	VFRHeading     *float64 `json:"vfr_heading"`
	VFRAirspeed    *float64 `json:"vfr_airspeed"`
	VFRThrottle    *float64 `json:"vfr_throttle"`
	VFRClimb       *float64 `json:"vfr_climb"`
}

func f64(v float64) *float64 { return &v }
func intp(v int) *int        { return &v }
