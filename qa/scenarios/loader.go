// Package scenarios replays fleet scenarios described in YAML: simulated
// vehicles with scripted handshake behaviour, one command, and the
// expected outcome.
package scenarios

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/skylink/core/fleet"
	"github.com/kilianp07/skylink/core/protocol"
	"github.com/kilianp07/skylink/simulator"
)

// VehicleDef describes one simulated vehicle.
type VehicleDef struct {
	SysID uint8 `yaml:"sys_id"`
	// Links names the links the vehicle is heard on, in discovery order.
	// Defaults to a single link named link-<sys_id>.
	Links []string `yaml:"links,omitempty"`
	// Strategy is in_order (default), scripted or silent.
	Strategy       string   `yaml:"strategy,omitempty"`
	Order          []uint16 `yaml:"order,omitempty"`
	Final          string   `yaml:"final,omitempty"`
	IgnoreClear    bool     `yaml:"ignore_clear,omitempty"`
	DropRate       float64  `yaml:"drop_rate,omitempty"`
	RetryMS        int      `yaml:"retry_ms,omitempty"`
	RejectCommands []uint16 `yaml:"reject_commands,omitempty"`
}

// LinkNames returns the links of the vehicle.
func (v VehicleDef) LinkNames() []string {
	if len(v.Links) == 0 {
		return []string{fmt.Sprintf("link-%d", v.SysID)}
	}
	return v.Links
}

// MissionStrategy builds the handshake behaviour of the vehicle.
func (v VehicleDef) MissionStrategy() (simulator.MissionStrategy, error) {
	final := protocol.MissionAccepted
	if v.Final != "" {
		r, ok := protocol.ParseMissionResult(v.Final)
		if !ok {
			return nil, fmt.Errorf("vehicle %d: unknown mission result %q", v.SysID, v.Final)
		}
		final = r
	}
	var s simulator.MissionStrategy
	switch v.Strategy {
	case "", "in_order":
		s = simulator.InOrder{Final: final}
	case "scripted":
		s = &simulator.Scripted{Order: v.Order, Final: final}
	case "silent":
		s = simulator.Silent{}
	default:
		return nil, fmt.Errorf("vehicle %d: unknown strategy %q", v.SysID, v.Strategy)
	}
	if v.DropRate > 0 {
		s = &simulator.Lossy{Inner: s, DropRate: v.DropRate}
	}
	return s, nil
}

// CommandDef is the command sent once every vehicle is discovered.
type CommandDef struct {
	SysID  uint8          `yaml:"sys_id"`
	Kind   string         `yaml:"kind"`
	Params map[string]any `yaml:"params,omitempty"`
}

// Expected is the outcome the scenario asserts. Empty fields are not
// checked.
type Expected struct {
	// Error is "" for success or one of the names of errorNames.
	Error   string `yaml:"error"`
	Outcome string `yaml:"outcome,omitempty"`
	// ItemsSent counts MISSION_ITEM_INT frames the station sent.
	ItemsSent *int `yaml:"items_sent,omitempty"`
	// Route is the link that carries commands for the command's vehicle.
	Route string `yaml:"route,omitempty"`
	// Agents is the number of vehicles the station knows.
	Agents *int `yaml:"agents,omitempty"`
	// NoFramesSent asserts the command put nothing on any link.
	NoFramesSent bool `yaml:"no_frames_sent,omitempty"`
}

type Scenario struct {
	Name        string       `yaml:"name"`
	Description string       `yaml:"description,omitempty"`
	Vehicles    []VehicleDef `yaml:"vehicles"`
	Command     CommandDef   `yaml:"command"`
	Expected    Expected     `yaml:"expected"`
}

var errorNames = map[string]error{
	"protocol_timeout":    fleet.ErrProtocolTimeout,
	"protocol_rejected":   fleet.ErrProtocolRejected,
	"unknown_vehicle":     fleet.ErrUnknownVehicle,
	"upload_in_progress":  fleet.ErrUploadInProgress,
	"unsupported_command": fleet.ErrUnsupportedCommand,
	"unknown_mode":        fleet.ErrUnknownMode,
}

// Validate checks names used by the scenario.
func (sc *Scenario) Validate() error {
	if sc.Name == "" {
		return errors.New("scenario without name")
	}
	if sc.Command.Kind == "" {
		return fmt.Errorf("%s: command kind is required", sc.Name)
	}
	if _, ok := errorNames[sc.Expected.Error]; sc.Expected.Error != "" && !ok {
		return fmt.Errorf("%s: unknown expected error %q", sc.Name, sc.Expected.Error)
	}
	seen := map[string]bool{}
	for _, v := range sc.Vehicles {
		if _, err := v.MissionStrategy(); err != nil {
			return fmt.Errorf("%s: %w", sc.Name, err)
		}
		for _, l := range v.LinkNames() {
			if seen[l] {
				return fmt.Errorf("%s: link %s used twice", sc.Name, l)
			}
			seen[l] = true
		}
	}
	return nil
}

func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}
