package metrics

import "time"

// CommandResultEvent is the outcome of one SendCommand call.
type CommandResultEvent struct {
	ID      string
	SysID   uint8
	Link    string
	Kind    string
	Outcome string
	Error   string
	Latency time.Duration
	Time    time.Time
}

// MetricsSink records command outcomes for observability purposes.
type MetricsSink interface {
	RecordCommandResult(ev CommandResultEvent) error
}

// DiscoveryEvent is emitted the first time a vehicle is heard on a link.
type DiscoveryEvent struct {
	SysID uint8
	Link  string
	Time  time.Time
}

// DiscoveryRecorder records vehicle discoveries.
type DiscoveryRecorder interface {
	RecordDiscovery(ev DiscoveryEvent) error
}

// VehicleStateEvent is a flattened vehicle snapshot. Nil fields were not
// reported by the vehicle.
type VehicleStateEvent struct {
	SysID            uint8
	Mode             string
	Armed            bool
	Connected        bool
	Latitude         *float64
	Longitude        *float64
	Altitude         *float64
	Groundspeed      *float64
	BatteryRemaining *float64
	BatteryVoltage   *float64
	Time             time.Time
}

// VehicleStateRecorder records vehicle state snapshots.
type VehicleStateRecorder interface {
	RecordVehicleState(ev VehicleStateEvent) error
}

// UploadEvent summarises a finished mission upload.
type UploadEvent struct {
	SysID    uint8
	Items    int
	PathM    float64
	Result   string
	Duration time.Duration
	Time     time.Time
}

// UploadRecorder records mission uploads.
type UploadRecorder interface {
	RecordUpload(ev UploadEvent) error
}

// FleetSizeRecorder records the number of known vehicles.
type FleetSizeRecorder interface {
	RecordFleetSize(size int) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordCommandResult(CommandResultEvent) error { return nil }
func (NopSink) RecordDiscovery(DiscoveryEvent) error         { return nil }
func (NopSink) RecordVehicleState(VehicleStateEvent) error   { return nil }
func (NopSink) RecordUpload(UploadEvent) error               { return nil }
func (NopSink) RecordFleetSize(int) error                    { return nil }
