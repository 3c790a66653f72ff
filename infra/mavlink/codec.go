package mavlink

import (
	"fmt"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/message"

	"github.com/kilianp07/skylink/core/protocol"
)

// Decode converts a gomavlib message into its protocol form. Messages the
// ground station does not use report false.
func Decode(msg message.Message) (protocol.Message, bool) {
	switch m := msg.(type) {
	case *common.MessageHeartbeat:
		return &protocol.Heartbeat{
			Type:         uint8(m.Type),
			Autopilot:    uint8(m.Autopilot),
			BaseMode:     uint8(m.BaseMode),
			CustomMode:   m.CustomMode,
			SystemStatus: uint8(m.SystemStatus),
		}, true
	case *common.MessageSysStatus:
		return &protocol.SysStatus{
			VoltageBattery:   m.VoltageBattery,
			CurrentBattery:   m.CurrentBattery,
			BatteryRemaining: m.BatteryRemaining,
		}, true
	case *common.MessageGlobalPositionInt:
		return &protocol.GlobalPosition{
			TimeBootMs:  m.TimeBootMs,
			Lat:         m.Lat,
			Lon:         m.Lon,
			Alt:         m.Alt,
			RelativeAlt: m.RelativeAlt,
			Vx:          m.Vx,
			Vy:          m.Vy,
			Vz:          m.Vz,
			Hdg:         m.Hdg,
		}, true
	case *common.MessageGpsRawInt:
		return &protocol.GPSRaw{
			FixType:           uint8(m.FixType),
			Lat:               m.Lat,
			Lon:               m.Lon,
			Alt:               m.Alt,
			Eph:               m.Eph,
			Epv:               m.Epv,
			Vel:               m.Vel,
			Cog:               m.Cog,
			SatellitesVisible: m.SatellitesVisible,
		}, true
	case *common.MessageAttitude:
		return &protocol.Attitude{Roll: m.Roll, Pitch: m.Pitch, Yaw: m.Yaw}, true
	case *common.MessageVfrHud:
		return &protocol.VFRHUD{
			Airspeed:    m.Airspeed,
			Groundspeed: m.Groundspeed,
			Heading:     m.Heading,
			Throttle:    m.Throttle,
			Alt:         m.Alt,
			Climb:       m.Climb,
		}, true
	case *common.MessageMissionCount:
		return &protocol.MissionCount{
			TargetSystem:    m.TargetSystem,
			TargetComponent: m.TargetComponent,
			Count:           m.Count,
			MissionType:     uint8(m.MissionType),
		}, true
	case *common.MessageMissionRequestInt:
		return &protocol.MissionRequest{
			TargetSystem:    m.TargetSystem,
			TargetComponent: m.TargetComponent,
			Seq:             m.Seq,
			MissionType:     uint8(m.MissionType),
			Int:             true,
		}, true
	case *common.MessageMissionRequest:
		return &protocol.MissionRequest{
			TargetSystem:    m.TargetSystem,
			TargetComponent: m.TargetComponent,
			Seq:             m.Seq,
			MissionType:     uint8(m.MissionType),
		}, true
	case *common.MessageMissionItemInt:
		return &protocol.MissionItem{
			TargetSystem:    m.TargetSystem,
			TargetComponent: m.TargetComponent,
			Seq:             m.Seq,
			Frame:           uint8(m.Frame),
			Command:         uint16(m.Command),
			Current:         m.Current,
			Autocontinue:    m.Autocontinue,
			Param1:          m.Param1,
			Param2:          m.Param2,
			Param3:          m.Param3,
			Param4:          m.Param4,
			X:               m.X,
			Y:               m.Y,
			Z:               m.Z,
			MissionType:     uint8(m.MissionType),
		}, true
	case *common.MessageMissionAck:
		return &protocol.MissionAck{
			TargetSystem:    m.TargetSystem,
			TargetComponent: m.TargetComponent,
			Type:            protocol.MissionResult(m.Type),
			MissionType:     uint8(m.MissionType),
		}, true
	case *common.MessageMissionClearAll:
		return &protocol.MissionClearAll{
			TargetSystem:    m.TargetSystem,
			TargetComponent: m.TargetComponent,
			MissionType:     uint8(m.MissionType),
		}, true
	case *common.MessageCommandLong:
		return &protocol.CommandLong{
			TargetSystem:    m.TargetSystem,
			TargetComponent: m.TargetComponent,
			Command:         uint16(m.Command),
			Confirmation:    m.Confirmation,
			Params:          [7]float32{m.Param1, m.Param2, m.Param3, m.Param4, m.Param5, m.Param6, m.Param7},
		}, true
	case *common.MessageCommandAck:
		return &protocol.CommandAck{
			Command:         uint16(m.Command),
			Result:          protocol.CommandResult(m.Result),
			TargetSystem:    m.TargetSystem,
			TargetComponent: m.TargetComponent,
		}, true
	case *common.MessageSetMode:
		return &protocol.SetMode{
			TargetSystem: m.TargetSystem,
			BaseMode:     uint8(m.BaseMode),
			CustomMode:   m.CustomMode,
		}, true
	case *common.MessageRequestDataStream:
		return &protocol.RequestDataStream{
			TargetSystem:    m.TargetSystem,
			TargetComponent: m.TargetComponent,
			StreamID:        m.ReqStreamId,
			Rate:            m.ReqMessageRate,
			Start:           m.StartStop != 0,
		}, true
	default:
		return nil, false
	}
}

// Encode converts a protocol message into the common dialect.
func Encode(msg protocol.Message) (message.Message, error) {
	switch m := msg.(type) {
	case *protocol.Heartbeat:
		return &common.MessageHeartbeat{
			Type:           common.MAV_TYPE(m.Type),
			Autopilot:      common.MAV_AUTOPILOT(m.Autopilot),
			BaseMode:       common.MAV_MODE_FLAG(m.BaseMode),
			CustomMode:     m.CustomMode,
			SystemStatus:   common.MAV_STATE(m.SystemStatus),
			MavlinkVersion: 3,
		}, nil
	case *protocol.SysStatus:
		return &common.MessageSysStatus{
			VoltageBattery:   m.VoltageBattery,
			CurrentBattery:   m.CurrentBattery,
			BatteryRemaining: m.BatteryRemaining,
		}, nil
	case *protocol.GlobalPosition:
		return &common.MessageGlobalPositionInt{
			TimeBootMs:  m.TimeBootMs,
			Lat:         m.Lat,
			Lon:         m.Lon,
			Alt:         m.Alt,
			RelativeAlt: m.RelativeAlt,
			Vx:          m.Vx,
			Vy:          m.Vy,
			Vz:          m.Vz,
			Hdg:         m.Hdg,
		}, nil
	case *protocol.GPSRaw:
		return &common.MessageGpsRawInt{
			FixType:           common.GPS_FIX_TYPE(m.FixType),
			Lat:               m.Lat,
			Lon:               m.Lon,
			Alt:               m.Alt,
			Eph:               m.Eph,
			Epv:               m.Epv,
			Vel:               m.Vel,
			Cog:               m.Cog,
			SatellitesVisible: m.SatellitesVisible,
		}, nil
	case *protocol.Attitude:
		return &common.MessageAttitude{Roll: m.Roll, Pitch: m.Pitch, Yaw: m.Yaw}, nil
	case *protocol.VFRHUD:
		return &common.MessageVfrHud{
			Airspeed:    m.Airspeed,
			Groundspeed: m.Groundspeed,
			Heading:     m.Heading,
			Throttle:    m.Throttle,
			Alt:         m.Alt,
			Climb:       m.Climb,
		}, nil
	case *protocol.MissionCount:
		return &common.MessageMissionCount{
			TargetSystem:    m.TargetSystem,
			TargetComponent: m.TargetComponent,
			Count:           m.Count,
			MissionType:     common.MAV_MISSION_TYPE(m.MissionType),
		}, nil
	case *protocol.MissionRequest:
		if m.Int {
			return &common.MessageMissionRequestInt{
				TargetSystem:    m.TargetSystem,
				TargetComponent: m.TargetComponent,
				Seq:             m.Seq,
				MissionType:     common.MAV_MISSION_TYPE(m.MissionType),
			}, nil
		}
		return &common.MessageMissionRequest{
			TargetSystem:    m.TargetSystem,
			TargetComponent: m.TargetComponent,
			Seq:             m.Seq,
			MissionType:     common.MAV_MISSION_TYPE(m.MissionType),
		}, nil
	case *protocol.MissionItem:
		return &common.MessageMissionItemInt{
			TargetSystem:    m.TargetSystem,
			TargetComponent: m.TargetComponent,
			Seq:             m.Seq,
			Frame:           common.MAV_FRAME(m.Frame),
			Command:         common.MAV_CMD(m.Command),
			Current:         m.Current,
			Autocontinue:    m.Autocontinue,
			Param1:          m.Param1,
			Param2:          m.Param2,
			Param3:          m.Param3,
			Param4:          m.Param4,
			X:               m.X,
			Y:               m.Y,
			Z:               m.Z,
			MissionType:     common.MAV_MISSION_TYPE(m.MissionType),
		}, nil
	case *protocol.MissionAck:
		return &common.MessageMissionAck{
			TargetSystem:    m.TargetSystem,
			TargetComponent: m.TargetComponent,
			Type:            common.MAV_MISSION_RESULT(m.Type),
			MissionType:     common.MAV_MISSION_TYPE(m.MissionType),
		}, nil
	case *protocol.MissionClearAll:
		return &common.MessageMissionClearAll{
			TargetSystem:    m.TargetSystem,
			TargetComponent: m.TargetComponent,
			MissionType:     common.MAV_MISSION_TYPE(m.MissionType),
		}, nil
	case *protocol.CommandLong:
		return &common.MessageCommandLong{
			TargetSystem:    m.TargetSystem,
			TargetComponent: m.TargetComponent,
			Command:         common.MAV_CMD(m.Command),
			Confirmation:    m.Confirmation,
			Param1:          m.Params[0],
			Param2:          m.Params[1],
			Param3:          m.Params[2],
			Param4:          m.Params[3],
			Param5:          m.Params[4],
			Param6:          m.Params[5],
			Param7:          m.Params[6],
		}, nil
	case *protocol.CommandAck:
		return &common.MessageCommandAck{
			Command:         common.MAV_CMD(m.Command),
			Result:          common.MAV_RESULT(m.Result),
			TargetSystem:    m.TargetSystem,
			TargetComponent: m.TargetComponent,
		}, nil
	case *protocol.SetMode:
		return &common.MessageSetMode{
			TargetSystem: m.TargetSystem,
			BaseMode:     common.MAV_MODE(m.BaseMode),
			CustomMode:   m.CustomMode,
		}, nil
	case *protocol.RequestDataStream:
		var start uint8
		if m.Start {
			start = 1
		}
		return &common.MessageRequestDataStream{
			TargetSystem:    m.TargetSystem,
			TargetComponent: m.TargetComponent,
			ReqStreamId:     m.StreamID,
			ReqMessageRate:  m.Rate,
			StartStop:       start,
		}, nil
	default:
		return nil, fmt.Errorf("no MAVLink encoding for %T", msg)
	}
}
