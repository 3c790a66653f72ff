package fleet

import (
	"fmt"

	"github.com/kilianp07/skylink/core/factory"
	"github.com/kilianp07/skylink/core/mission"
)

// CommandKind names an operation accepted by SendCommand.
type CommandKind string

const (
	CmdUploadMission      CommandKind = "upload_mission"
	CmdArmAndStartMission CommandKind = "arm_and_start_mission"
	CmdSetMode            CommandKind = "set_mode"
	CmdArm                CommandKind = "arm"
	CmdDisarm             CommandKind = "disarm"
)

const defaultTakeoffAltitude = 30.0

// UploadParams are the parameters of upload_mission. The first non-empty
// source wins, in the order MissionItems, Plan, Waypoints.
type UploadParams struct {
	Waypoints    [][]float64        `json:"waypoints"`
	MissionItems []mission.ItemSpec `json:"mission_items"`
	Plan         *mission.Plan      `json:"plan"`
}

// Items builds the mission to upload.
func (p UploadParams) Items() ([]mission.Item, error) {
	switch {
	case len(p.MissionItems) > 0:
		return mission.FromSpecs(p.MissionItems), nil
	case p.Plan != nil:
		return p.Plan.Items()
	case len(p.Waypoints) > 0:
		points, err := mission.PointsFromTriples(p.Waypoints)
		if err != nil {
			return nil, err
		}
		return mission.FromPoints(points), nil
	default:
		return nil, mission.ErrEmptyMission
	}
}

// StartParams are the parameters of arm_and_start_mission.
type StartParams struct {
	TakeoffAltitude *float64 `json:"takeoff_altitude"`
}

// Altitude returns the requested takeoff altitude or the default.
func (p StartParams) Altitude() float64 {
	if p.TakeoffAltitude == nil {
		return defaultTakeoffAltitude
	}
	return *p.TakeoffAltitude
}

// ModeParams are the parameters of set_mode.
type ModeParams struct {
	Mode string `json:"mode"`
}

func decodeParams(kind CommandKind, params map[string]any, out any) error {
	if params == nil {
		return nil
	}
	if err := factory.Decode(params, out); err != nil {
		return fmt.Errorf("%s params: %w", kind, err)
	}
	return nil
}
