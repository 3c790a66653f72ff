package fleet

import (
	"fmt"
	"strings"

	"github.com/kilianp07/skylink/core/protocol"
)

// autopilotInvalid is MAV_AUTOPILOT_INVALID, used by non-flight components
// such as gimbals and cameras.
const autopilotInvalid uint8 = 8

var copterModes = map[uint32]string{
	0: "STABILIZE", 1: "ACRO", 2: "ALT_HOLD", 3: "AUTO", 4: "GUIDED", 5: "LOITER",
	6: "RTL", 7: "CIRCLE", 9: "LAND", 11: "DRIFT", 13: "SPORT", 14: "FLIP",
	15: "AUTOTUNE", 16: "POSHOLD", 17: "BRAKE", 18: "THROW", 19: "AVOID_ADSB",
	20: "GUIDED_NOGPS", 21: "SMART_RTL", 22: "FLOWHOLD", 23: "FOLLOW", 24: "ZIGZAG",
	25: "SYSTEMID", 26: "AUTOROTATE", 27: "AUTO_RTL",
}

var planeModes = map[uint32]string{
	0: "MANUAL", 1: "CIRCLE", 2: "STABILIZE", 3: "TRAINING", 4: "ACRO", 5: "FBWA",
	6: "FBWB", 7: "CRUISE", 8: "AUTOTUNE", 10: "AUTO", 11: "RTL", 12: "LOITER",
	13: "TAKEOFF", 14: "AVOID_ADSB", 15: "GUIDED", 17: "QSTABILIZE", 18: "QHOVER",
	19: "QLOITER", 20: "QLAND", 21: "QRTL", 22: "QAUTOTUNE", 23: "QACRO", 24: "THERMAL",
}

var roverModes = map[uint32]string{
	0: "MANUAL", 1: "ACRO", 3: "STEERING", 4: "HOLD", 5: "LOITER", 6: "FOLLOW",
	7: "SIMPLE", 10: "AUTO", 11: "RTL", 12: "SMART_RTL", 15: "GUIDED",
}

func modeTable(vehicleType uint8) map[uint32]string {
	switch vehicleType {
	case protocol.TypeFixedWing:
		return planeModes
	case protocol.TypeGroundRover, protocol.TypeSurfaceBoat:
		return roverModes
	default:
		return copterModes
	}
}

// ModeName renders the flight mode of a heartbeat the way ground stations
// usually show it.
func ModeName(vehicleType, baseMode uint8, customMode uint32) string {
	if baseMode&protocol.ModeFlagCustomModeEnabled == 0 {
		return fmt.Sprintf("Mode(0x%08x)", baseMode)
	}
	if name, ok := modeTable(vehicleType)[customMode]; ok {
		return name
	}
	return fmt.Sprintf("Mode(%d)", customMode)
}

// ModeNumber resolves a mode name to its custom_mode for the vehicle type.
// Names are case-insensitive and spaces count as underscores.
func ModeNumber(vehicleType uint8, name string) (uint32, bool) {
	want := strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(name)), " ", "_")
	for num, n := range modeTable(vehicleType) {
		if n == want {
			return num, true
		}
	}
	return 0, false
}

func commandName(cmd uint16) string {
	switch cmd {
	case protocol.CmdComponentArmDisarm:
		return "arm/disarm"
	case protocol.CmdNavTakeoff:
		return "takeoff"
	case protocol.CmdNavLand:
		return "land"
	case protocol.CmdNavReturnToLaunch:
		return "rtl"
	default:
		return fmt.Sprintf("command %d", cmd)
	}
}
