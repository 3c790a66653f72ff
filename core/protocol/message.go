package protocol

// Kind names a message variant. Values match the MAVLink message names.
type Kind string

const (
	KindHeartbeat         Kind = "HEARTBEAT"
	KindSysStatus         Kind = "SYS_STATUS"
	KindGlobalPosition    Kind = "GLOBAL_POSITION_INT"
	KindGPSRaw            Kind = "GPS_RAW_INT"
	KindAttitude          Kind = "ATTITUDE"
	KindVFRHUD            Kind = "VFR_HUD"
	KindMissionCount      Kind = "MISSION_COUNT"
	KindMissionRequest    Kind = "MISSION_REQUEST"
	KindMissionRequestInt Kind = "MISSION_REQUEST_INT"
	KindMissionItem       Kind = "MISSION_ITEM_INT"
	KindMissionAck        Kind = "MISSION_ACK"
	KindMissionClearAll   Kind = "MISSION_CLEAR_ALL"
	KindCommandLong       Kind = "COMMAND_LONG"
	KindCommandAck        Kind = "COMMAND_ACK"
	KindSetMode           Kind = "SET_MODE"
	KindRequestDataStream Kind = "REQUEST_DATA_STREAM"
)

// Message is one decoded MAVLink message. The set of implementations is
// closed to this package.
type Message interface {
	Kind() Kind
	sealed()
}

// Targeted is implemented by messages addressed to a specific system.
type Targeted interface {
	Message
	Target() uint8
}

// Frame is a message together with the identity of its sender.
type Frame struct {
	SystemID    uint8
	ComponentID uint8
	Message     Message
}

// Heartbeat announces presence, vehicle type, mode and armed state.
type Heartbeat struct {
	Type         uint8
	Autopilot    uint8
	BaseMode     uint8
	CustomMode   uint32
	SystemStatus uint8
}

// SysStatus carries battery information. VoltageBattery is in mV and
// BatteryRemaining in percent, -1 when the autopilot does not know.
type SysStatus struct {
	VoltageBattery   uint16
	CurrentBattery   int16
	BatteryRemaining int8
}

// GlobalPosition is the fused position estimate. Lat/Lon are degE7,
// altitudes are mm and velocities cm/s.
type GlobalPosition struct {
	TimeBootMs  uint32
	Lat         int32
	Lon         int32
	Alt         int32
	RelativeAlt int32
	Vx          int16
	Vy          int16
	Vz          int16
	Hdg         uint16
}

// GPSRaw is the raw receiver output. Vel is cm/s and Cog cdeg; both use
// UnknownUint16 when invalid. SatellitesVisible is 255 when unknown.
type GPSRaw struct {
	FixType           uint8
	Lat               int32
	Lon               int32
	Alt               int32
	Eph               uint16
	Epv               uint16
	Vel               uint16
	Cog               uint16
	SatellitesVisible uint8
}

// Attitude angles in radians.
type Attitude struct {
	Roll  float32
	Pitch float32
	Yaw   float32
}

// VFRHUD holds the values usually shown on a HUD.
type VFRHUD struct {
	Airspeed    float32
	Groundspeed float32
	Heading     int16
	Throttle    uint16
	Alt         float32
	Climb       float32
}

// MissionCount starts an upload by announcing the number of items.
type MissionCount struct {
	TargetSystem    uint8
	TargetComponent uint8
	Count           uint16
	MissionType     uint8
}

// MissionRequest asks for the item at Seq. Int reports whether the peer
// used MISSION_REQUEST_INT rather than the deprecated MISSION_REQUEST.
type MissionRequest struct {
	TargetSystem    uint8
	TargetComponent uint8
	Seq             uint16
	MissionType     uint8
	Int             bool
}

// MissionItem is a MISSION_ITEM_INT. X and Y are degE7, Z is metres.
type MissionItem struct {
	TargetSystem    uint8
	TargetComponent uint8
	Seq             uint16
	Frame           uint8
	Command         uint16
	Current         uint8
	Autocontinue    uint8
	Param1          float32
	Param2          float32
	Param3          float32
	Param4          float32
	X               int32
	Y               int32
	Z               float32
	MissionType     uint8
}

// MissionAck terminates (or rejects) a mission transaction.
type MissionAck struct {
	TargetSystem    uint8
	TargetComponent uint8
	Type            MissionResult
	MissionType     uint8
}

// MissionClearAll deletes the stored mission.
type MissionClearAll struct {
	TargetSystem    uint8
	TargetComponent uint8
	MissionType     uint8
}

// CommandLong carries a MAV_CMD with seven float parameters.
type CommandLong struct {
	TargetSystem    uint8
	TargetComponent uint8
	Command         uint16
	Confirmation    uint8
	Params          [7]float32
}

// CommandAck answers a CommandLong.
type CommandAck struct {
	Command         uint16
	Result          CommandResult
	TargetSystem    uint8
	TargetComponent uint8
}

// SetMode switches the flight mode of the target.
type SetMode struct {
	TargetSystem uint8
	BaseMode     uint8
	CustomMode   uint32
}

// RequestDataStream asks the autopilot to stream telemetry at Rate Hz.
type RequestDataStream struct {
	TargetSystem    uint8
	TargetComponent uint8
	StreamID        uint8
	Rate            uint16
	Start           bool
}

func (*Heartbeat) Kind() Kind         { return KindHeartbeat }
func (*SysStatus) Kind() Kind         { return KindSysStatus }
func (*GlobalPosition) Kind() Kind    { return KindGlobalPosition }
func (*GPSRaw) Kind() Kind            { return KindGPSRaw }
func (*Attitude) Kind() Kind          { return KindAttitude }
func (*VFRHUD) Kind() Kind            { return KindVFRHUD }
func (*MissionCount) Kind() Kind      { return KindMissionCount }
func (*MissionItem) Kind() Kind       { return KindMissionItem }
func (*MissionAck) Kind() Kind        { return KindMissionAck }
func (*MissionClearAll) Kind() Kind   { return KindMissionClearAll }
func (*CommandLong) Kind() Kind       { return KindCommandLong }
func (*CommandAck) Kind() Kind        { return KindCommandAck }
func (*SetMode) Kind() Kind           { return KindSetMode }
func (*RequestDataStream) Kind() Kind { return KindRequestDataStream }

func (m *MissionRequest) Kind() Kind {
	if m.Int {
		return KindMissionRequestInt
	}
	return KindMissionRequest
}

func (*Heartbeat) sealed()         {}
func (*SysStatus) sealed()         {}
func (*GlobalPosition) sealed()    {}
func (*GPSRaw) sealed()            {}
func (*Attitude) sealed()          {}
func (*VFRHUD) sealed()            {}
func (*MissionCount) sealed()      {}
func (*MissionRequest) sealed()    {}
func (*MissionItem) sealed()       {}
func (*MissionAck) sealed()        {}
func (*MissionClearAll) sealed()   {}
func (*CommandLong) sealed()       {}
func (*CommandAck) sealed()        {}
func (*SetMode) sealed()           {}
func (*RequestDataStream) sealed() {}

func (m *MissionCount) Target() uint8      { return m.TargetSystem }
func (m *MissionRequest) Target() uint8    { return m.TargetSystem }
func (m *MissionItem) Target() uint8       { return m.TargetSystem }
func (m *MissionAck) Target() uint8        { return m.TargetSystem }
func (m *MissionClearAll) Target() uint8   { return m.TargetSystem }
func (m *CommandLong) Target() uint8       { return m.TargetSystem }
func (m *CommandAck) Target() uint8        { return m.TargetSystem }
func (m *SetMode) Target() uint8           { return m.TargetSystem }
func (m *RequestDataStream) Target() uint8 { return m.TargetSystem }
