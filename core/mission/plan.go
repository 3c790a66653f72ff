package mission

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/skylink/core/protocol"
)

// Waypoint modes understood by Plan.
const (
	ModeWaypoint = "WAYPOINT"
	ModeTakeoff  = "TAKEOFF"
	ModeLoiter   = "LOITER"
	ModeHold     = "HOLD"
	ModeLand     = "LAND"
)

// End actions appended after the last waypoint.
const (
	EndRTL  = "RTL"
	EndLand = "LAND"
	EndNone = "NONE"
)

const (
	defaultSpeed      = 5.0
	defaultHoldS      = 1.0
	defaultTakeoffAlt = 30.0
)

// Waypoint is one operator-entered point of a plan.
type Waypoint struct {
	Latitude    float64 `json:"latitude" yaml:"latitude"`
	Longitude   float64 `json:"longitude" yaml:"longitude"`
	Altitude    float64 `json:"altitude" yaml:"altitude"`
	Mode        string  `json:"mode" yaml:"mode"`
	HoldSeconds float64 `json:"hold_s" yaml:"hold_s"`
}

// Plan is a named mission built from waypoints. Items are generated with a
// leading DO_CHANGE_SPEED and an optional end action.
type Plan struct {
	Name            string     `json:"name" yaml:"name"`
	Speed           float64    `json:"speed" yaml:"speed"`
	EndAction       string     `json:"end_action" yaml:"end_action"`
	TakeoffAltitude float64    `json:"takeoff_altitude" yaml:"takeoff_altitude"`
	Waypoints       []Waypoint `json:"waypoints" yaml:"waypoints"`
}

// Validate checks waypoint coordinates and the end action.
func (p Plan) Validate() error {
	if len(p.Waypoints) == 0 {
		return ErrEmptyMission
	}
	for i, wp := range p.Waypoints {
		if err := (Point{Lat: wp.Latitude, Lon: wp.Longitude}).Validate(); err != nil {
			return fmt.Errorf("waypoint %d: %w", i, err)
		}
	}
	switch strings.ToUpper(p.EndAction) {
	case "", EndRTL, EndLand, EndNone:
	default:
		return fmt.Errorf("%w: %s", ErrUnknownEndAction, p.EndAction)
	}
	return nil
}

// TakeoffAlt is the altitude used when the plan is started: the explicit
// value, else the first waypoint's altitude, else 30 m.
func (p Plan) TakeoffAlt() float64 {
	if p.TakeoffAltitude > 0 {
		return p.TakeoffAltitude
	}
	if len(p.Waypoints) > 0 && p.Waypoints[0].Altitude > 0 {
		return p.Waypoints[0].Altitude
	}
	return defaultTakeoffAlt
}

// Items renders the plan into mission items.
func (p Plan) Items() ([]Item, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	speed := p.Speed
	if speed <= 0 {
		speed = defaultSpeed
	}
	items := make([]Item, 0, len(p.Waypoints)+2)
	items = append(items, Item{
		Frame:        protocol.FrameMission,
		Command:      protocol.CmdDoChangeSpeed,
		Autocontinue: 1,
		Param1:       1,
		Param2:       float32(speed),
		Param3:       -1,
	})
	for i, wp := range p.Waypoints {
		cmd, hold := modeCommand(wp)
		var current uint8
		if i == 0 {
			current = 1
		}
		items = append(items, Item{
			Frame:        protocol.FrameGlobalRelativeAlt,
			Command:      cmd,
			Current:      current,
			Autocontinue: 1,
			Param1:       float32(hold),
			X:            ToDegE7(wp.Latitude),
			Y:            ToDegE7(wp.Longitude),
			Z:            float32(wp.Altitude),
		})
	}
	switch strings.ToUpper(p.EndAction) {
	case "", EndRTL:
		items = append(items, Item{
			Frame:        protocol.FrameGlobalRelativeAlt,
			Command:      protocol.CmdNavReturnToLaunch,
			Autocontinue: 1,
		})
	case EndLand:
		last := p.Waypoints[len(p.Waypoints)-1]
		items = append(items, Item{
			Frame:        protocol.FrameGlobalRelativeAlt,
			Command:      protocol.CmdNavLand,
			Autocontinue: 1,
			X:            ToDegE7(last.Latitude),
			Y:            ToDegE7(last.Longitude),
		})
	}
	for i := range items {
		items[i].Seq = uint16(i)
	}
	return items, nil
}

func modeCommand(wp Waypoint) (uint16, float64) {
	switch strings.ToUpper(wp.Mode) {
	case ModeTakeoff:
		return protocol.CmdNavTakeoff, 0
	case ModeLoiter:
		return protocol.CmdNavLoiterTime, wp.HoldSeconds
	case ModeHold:
		if wp.HoldSeconds > 0 {
			return protocol.CmdNavLoiterTime, wp.HoldSeconds
		}
		return protocol.CmdNavLoiterTime, defaultHoldS
	case ModeLand:
		return protocol.CmdNavLand, 0
	default:
		return protocol.CmdNavWaypoint, 0
	}
}

// PlanFromPoints wraps bare points in a plan with default speed and RTL.
func PlanFromPoints(name string, points []Point) Plan {
	p := Plan{Name: name, EndAction: EndRTL}
	for _, pt := range points {
		p.Waypoints = append(p.Waypoints, Waypoint{Latitude: pt.Lat, Longitude: pt.Lon, Altitude: pt.Alt})
	}
	return p
}

// LoadPlan reads a plan from a .yaml, .yml or .json file.
func LoadPlan(path string) (Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Plan{}, err
	}
	var p Plan
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &p)
	case ".json":
		err = json.Unmarshal(data, &p)
	default:
		return Plan{}, fmt.Errorf("unsupported plan format: %s", filepath.Ext(path))
	}
	if err != nil {
		return Plan{}, fmt.Errorf("%w: %v", ErrBadFormat, err)
	}
	if p.Name == "" {
		p.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return p, p.Validate()
}
