// Package mission builds the item lists uploaded to vehicles and converts
// them from and to the file formats operators use (KML, QGC WPL, plan files).
package mission

import (
	"math"

	"github.com/kilianp07/skylink/core/protocol"
)

// degE7 is the fixed-point scale of latitude and longitude on the wire.
const degE7 = 1e7

// Item is one mission item. Values are immutable once built; the uploader
// copies an item when it rewrites the sequence number.
type Item struct {
	Seq          uint16
	Frame        uint8
	Command      uint16
	Current      uint8
	Autocontinue uint8
	Param1       float32
	Param2       float32
	Param3       float32
	Param4       float32
	X            int32 // latitude, degE7
	Y            int32 // longitude, degE7
	Z            float32
}

// ToDegE7 converts decimal degrees to the wire fixed-point form.
func ToDegE7(deg float64) int32 { return int32(math.Round(deg * degE7)) }

// FromDegE7 converts wire fixed-point to decimal degrees.
func FromDegE7(v int32) float64 { return float64(v) / degE7 }

// Lat returns the latitude in degrees.
func (it Item) Lat() float64 { return FromDegE7(it.X) }

// Lon returns the longitude in degrees.
func (it Item) Lon() float64 { return FromDegE7(it.Y) }

// IsNav reports whether the item carries a position the vehicle flies to.
func (it Item) IsNav() bool {
	switch it.Command {
	case protocol.CmdNavWaypoint, protocol.CmdNavLoiterTime, protocol.CmdNavLand, protocol.CmdNavTakeoff:
		return it.X != 0 || it.Y != 0
	}
	return false
}

// Message encodes the item as a MISSION_ITEM_INT for the given target with
// seq as its sequence number.
func (it Item) Message(targetSystem, targetComponent uint8, seq uint16) *protocol.MissionItem {
	return &protocol.MissionItem{
		TargetSystem:    targetSystem,
		TargetComponent: targetComponent,
		Seq:             seq,
		Frame:           it.Frame,
		Command:         it.Command,
		Current:         it.Current,
		Autocontinue:    it.Autocontinue,
		Param1:          it.Param1,
		Param2:          it.Param2,
		Param3:          it.Param3,
		Param4:          it.Param4,
		X:               it.X,
		Y:               it.Y,
		Z:               it.Z,
		MissionType:     protocol.MissionTypeMission,
	}
}

// ItemFromMessage is the inverse of Item.Message.
func ItemFromMessage(m *protocol.MissionItem) Item {
	return Item{
		Seq:          m.Seq,
		Frame:        m.Frame,
		Command:      m.Command,
		Current:      m.Current,
		Autocontinue: m.Autocontinue,
		Param1:       m.Param1,
		Param2:       m.Param2,
		Param3:       m.Param3,
		Param4:       m.Param4,
		X:            m.X,
		Y:            m.Y,
		Z:            m.Z,
	}
}

// ItemSpec is the caller-facing form of an explicit mission item, with the
// position in degrees. It is what the mission_items command parameter and
// JSON plan files carry.
type ItemSpec struct {
	Frame        uint8   `json:"frame" yaml:"frame"`
	Command      uint16  `json:"command" yaml:"command"`
	Current      uint8   `json:"current" yaml:"current"`
	Autocontinue uint8   `json:"autocontinue" yaml:"autocontinue"`
	Param1       float32 `json:"param1" yaml:"param1"`
	Param2       float32 `json:"param2" yaml:"param2"`
	Param3       float32 `json:"param3" yaml:"param3"`
	Param4       float32 `json:"param4" yaml:"param4"`
	Latitude     float64 `json:"latitude" yaml:"latitude"`
	Longitude    float64 `json:"longitude" yaml:"longitude"`
	Altitude     float32 `json:"altitude" yaml:"altitude"`
}

// FromSpecs numbers the specs in order and converts them to items.
func FromSpecs(specs []ItemSpec) []Item {
	items := make([]Item, len(specs))
	for i, s := range specs {
		items[i] = Item{
			Seq:          uint16(i),
			Frame:        s.Frame,
			Command:      s.Command,
			Current:      s.Current,
			Autocontinue: s.Autocontinue,
			Param1:       s.Param1,
			Param2:       s.Param2,
			Param3:       s.Param3,
			Param4:       s.Param4,
			X:            ToDegE7(s.Latitude),
			Y:            ToDegE7(s.Longitude),
			Z:            s.Altitude,
		}
	}
	return items
}

// Spec returns the caller-facing form of the item.
func (it Item) Spec() ItemSpec {
	return ItemSpec{
		Frame:        it.Frame,
		Command:      it.Command,
		Current:      it.Current,
		Autocontinue: it.Autocontinue,
		Param1:       it.Param1,
		Param2:       it.Param2,
		Param3:       it.Param3,
		Param4:       it.Param4,
		Latitude:     it.Lat(),
		Longitude:    it.Lon(),
		Altitude:     it.Z,
	}
}

// Specs converts items to their caller-facing form.
func Specs(items []Item) []ItemSpec {
	out := make([]ItemSpec, len(items))
	for i, it := range items {
		out[i] = it.Spec()
	}
	return out
}
