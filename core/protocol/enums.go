package protocol

import (
	"fmt"
	"strings"
)

// Sentinels used by the common dialect for "not available".
const (
	UnknownUint16           uint16 = 65535
	SatellitesUnknown       uint8  = 255
	BatteryRemainingUnknown int8   = -1
)

// MAV_FRAME values used by mission items.
const (
	FrameGlobal               uint8 = 0
	FrameMission              uint8 = 2
	FrameGlobalRelativeAlt    uint8 = 3
	FrameGlobalRelativeAltInt uint8 = 6
)

// MAV_CMD values issued by the ground station.
const (
	CmdNavWaypoint        uint16 = 16
	CmdNavLoiterTime      uint16 = 19
	CmdNavReturnToLaunch  uint16 = 20
	CmdNavLand            uint16 = 21
	CmdNavTakeoff         uint16 = 22
	CmdDoChangeSpeed      uint16 = 178
	CmdComponentArmDisarm uint16 = 400
)

// MAV_MODE_FLAG bits.
const (
	ModeFlagCustomModeEnabled uint8 = 1
	ModeFlagSafetyArmed       uint8 = 128
)

// MAV_TYPE values that select a flight-mode table.
const (
	TypeGeneric     uint8 = 0
	TypeFixedWing   uint8 = 1
	TypeQuadrotor   uint8 = 2
	TypeCoaxial     uint8 = 3
	TypeHelicopter  uint8 = 4
	TypeGCS         uint8 = 6
	TypeGroundRover uint8 = 10
	TypeSurfaceBoat uint8 = 11
	TypeHexarotor   uint8 = 13
	TypeOctorotor   uint8 = 14
	TypeTricopter   uint8 = 15
	TypeDodecarotor uint8 = 29
)

// MissionTypeMission is the only mission type skylink uploads.
const MissionTypeMission uint8 = 0

// StreamAll requests every data stream in REQUEST_DATA_STREAM.
const StreamAll uint8 = 0

// MissionResult is MAV_MISSION_RESULT.
type MissionResult uint8

const (
	MissionAccepted MissionResult = iota
	MissionError
	MissionUnsupportedFrame
	MissionUnsupported
	MissionNoSpace
	MissionInvalid
	MissionInvalidParam1
	MissionInvalidParam2
	MissionInvalidParam3
	MissionInvalidParam4
	MissionInvalidParam5X
	MissionInvalidParam6Y
	MissionInvalidParam7
	MissionInvalidSequence
	MissionDenied
	MissionOperationCancelled
)

var missionResultNames = [...]string{
	"ACCEPTED", "ERROR", "UNSUPPORTED_FRAME", "UNSUPPORTED", "NO_SPACE", "INVALID",
	"INVALID_PARAM1", "INVALID_PARAM2", "INVALID_PARAM3", "INVALID_PARAM4",
	"INVALID_PARAM5_X", "INVALID_PARAM6_Y", "INVALID_PARAM7", "INVALID_SEQUENCE",
	"DENIED", "OPERATION_CANCELLED",
}

func (r MissionResult) String() string {
	if int(r) < len(missionResultNames) {
		return missionResultNames[r]
	}
	return fmt.Sprintf("MISSION_RESULT(%d)", uint8(r))
}

// ParseMissionResult returns the code named name, with or without the
// MAV_MISSION_ prefix.
func ParseMissionResult(name string) (MissionResult, bool) {
	name = strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(name)), "MAV_MISSION_")
	for i, n := range missionResultNames {
		if n == name {
			return MissionResult(i), true
		}
	}
	return 0, false
}

// CommandResult is MAV_RESULT.
type CommandResult uint8

const (
	ResultAccepted CommandResult = iota
	ResultTemporarilyRejected
	ResultDenied
	ResultUnsupported
	ResultFailed
	ResultInProgress
	ResultCancelled
)

var commandResultNames = [...]string{
	"ACCEPTED", "TEMPORARILY_REJECTED", "DENIED", "UNSUPPORTED", "FAILED", "IN_PROGRESS", "CANCELLED",
}

func (r CommandResult) String() string {
	if int(r) < len(commandResultNames) {
		return commandResultNames[r]
	}
	return fmt.Sprintf("RESULT(%d)", uint8(r))
}
