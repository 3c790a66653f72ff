package simulator

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/kilianp07/skylink/core/logger"
	"github.com/kilianp07/skylink/core/mission"
	"github.com/kilianp07/skylink/core/protocol"
	"github.com/kilianp07/skylink/core/transport"
)

// ArduCopter custom modes the simulator reacts to.
const (
	ModeStabilize uint32 = 0
	ModeAuto      uint32 = 3
	ModeGuided    uint32 = 4
	ModeRTL       uint32 = 6
	ModeLand      uint32 = 9
)

const (
	autopilotArduPilot uint8 = 3
	stateStandby       uint8 = 3
	stateActive        uint8 = 4
	pollInterval             = 50 * time.Millisecond
	reachedM                 = 2.0
)

// Config describes one simulated vehicle.
type Config struct {
	SysID  uint8
	CompID uint8
	Type   uint8
	// Home is where the vehicle starts.
	Home mission.Point
	// TelemetryInterval is the period of the telemetry burst. Zero means
	// one second; negative disables telemetry.
	TelemetryInterval time.Duration
	// RequestRetry re-sends an unanswered item request after this delay.
	// Zero disables retries.
	RequestRetry time.Duration
	Strategy     MissionStrategy
	Commands     CommandPolicy
	// IgnoreClear leaves MISSION_CLEAR_ALL unacknowledged, like some
	// autopilots do.
	IgnoreClear bool
	// SpeedMS is the cruise speed in AUTO.
	SpeedMS float64
}

func (c *Config) setDefaults() {
	if c.CompID == 0 {
		c.CompID = 1
	}
	if c.Type == 0 {
		c.Type = protocol.TypeQuadrotor
	}
	if c.TelemetryInterval == 0 {
		c.TelemetryInterval = time.Second
	}
	if c.Strategy == nil {
		c.Strategy = InOrder{}
	}
	if c.SpeedMS <= 0 {
		c.SpeedMS = 5
	}
}

// Vehicle is a MAVLink peer answering a ground station on one link.
type Vehicle struct {
	cfg     Config
	link    transport.Connection
	log     logger.Logger
	battery *Battery

	mu          sync.Mutex
	mode        uint32
	armed       bool
	lat, lon    float64
	alt         float64
	heading     float64
	groundspeed float64
	interval    time.Duration

	count         uint16
	pending       []mission.Item
	mission       []mission.Item
	current       int
	itemsReceived int
	lastReq       int
	lastReqAt     time.Time
	gcs           protocol.Frame
}

// NewVehicle returns a vehicle speaking on link.
func NewVehicle(cfg Config, link transport.Connection, log logger.Logger) *Vehicle {
	cfg.setDefaults()
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Vehicle{
		cfg:      cfg,
		link:     link,
		log:      log,
		battery:  NewBattery(5200, 4),
		mode:     ModeStabilize,
		lat:      cfg.Home.Lat,
		lon:      cfg.Home.Lon,
		interval: cfg.TelemetryInterval,
		lastReq:  -1,
	}
}

// SysID returns the system id of the vehicle.
func (v *Vehicle) SysID() uint8 { return v.cfg.SysID }

// Mission returns the last mission the vehicle accepted.
func (v *Vehicle) Mission() []mission.Item {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]mission.Item(nil), v.mission...)
}

// ItemsReceived counts every mission item received, resends included.
func (v *Vehicle) ItemsReceived() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.itemsReceived
}

// Armed reports the arming state.
func (v *Vehicle) Armed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.armed
}

// Mode returns the custom mode.
func (v *Vehicle) Mode() uint32 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.mode
}

// Run serves the link until ctx is done or the link closes.
func (v *Vehicle) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	if v.cfg.TelemetryInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v.telemetryLoop(ctx)
		}()
	}
	defer wg.Wait()
	for {
		if ctx.Err() != nil {
			return nil
		}
		f, err := v.link.Receive(pollInterval)
		if err != nil {
			if errors.Is(err, transport.ErrClosed) {
				return nil
			}
			v.log.Warnf("sim %d: receive: %v", v.cfg.SysID, err)
			continue
		}
		if f != nil {
			v.handle(f)
		}
		v.retryRequest()
	}
}

func (v *Vehicle) addressed(m protocol.Message) bool {
	t, ok := m.(protocol.Targeted)
	if !ok {
		return false
	}
	return t.Target() == v.cfg.SysID || t.Target() == 0
}

func (v *Vehicle) handle(f *protocol.Frame) {
	if f.Message == nil || !v.addressed(f.Message) {
		return
	}
	v.mu.Lock()
	v.gcs = protocol.Frame{SystemID: f.SystemID, ComponentID: f.ComponentID}
	v.mu.Unlock()

	switch m := f.Message.(type) {
	case *protocol.MissionClearAll:
		v.mu.Lock()
		v.mission = nil
		v.count = 0
		v.lastReq = -1
		v.mu.Unlock()
		if !v.cfg.IgnoreClear {
			v.reply(ack(protocol.MissionAccepted))
		}
	case *protocol.MissionCount:
		v.mu.Lock()
		v.count = m.Count
		v.pending = make([]mission.Item, m.Count)
		v.mu.Unlock()
		v.reply(v.cfg.Strategy.OnCount(m.Count)...)
	case *protocol.MissionItem:
		v.mu.Lock()
		count := v.count
		if count == 0 || m.Seq >= count {
			v.mu.Unlock()
			return
		}
		v.pending[m.Seq] = mission.ItemFromMessage(m)
		v.itemsReceived++
		if v.lastReq == int(m.Seq) {
			v.lastReq = -1
		}
		v.mu.Unlock()
		v.reply(v.cfg.Strategy.OnItem(m.Seq, count)...)
	case *protocol.CommandLong:
		v.command(m)
	case *protocol.SetMode:
		if m.BaseMode&protocol.ModeFlagCustomModeEnabled != 0 {
			v.mu.Lock()
			v.mode = m.CustomMode
			v.mu.Unlock()
			v.log.Infof("sim %d: mode %d", v.cfg.SysID, m.CustomMode)
		}
	case *protocol.RequestDataStream:
		if m.Start && m.Rate > 0 && v.cfg.TelemetryInterval > 0 {
			v.mu.Lock()
			v.interval = time.Second / time.Duration(m.Rate)
			v.mu.Unlock()
		}
	}
}

func (v *Vehicle) command(m *protocol.CommandLong) {
	res := protocol.ResultAccepted
	if v.cfg.Commands != nil {
		res = v.cfg.Commands(m.Command)
	}
	if res == protocol.ResultAccepted {
		v.mu.Lock()
		switch m.Command {
		case protocol.CmdComponentArmDisarm:
			v.armed = m.Params[0] == 1
		case protocol.CmdNavTakeoff:
			if v.armed {
				v.alt = float64(m.Params[6])
			} else {
				res = protocol.ResultFailed
			}
		}
		v.mu.Unlock()
	}
	v.mu.Lock()
	gcs := v.gcs
	v.mu.Unlock()
	v.send(&protocol.CommandAck{
		Command:         m.Command,
		Result:          res,
		TargetSystem:    gcs.SystemID,
		TargetComponent: gcs.ComponentID,
	})
}

// reply addresses mission messages to the ground station and sends them.
// An ACCEPTED ack commits the pending mission.
func (v *Vehicle) reply(msgs ...protocol.Message) {
	for _, msg := range msgs {
		v.mu.Lock()
		gcs := v.gcs
		switch m := msg.(type) {
		case *protocol.MissionRequest:
			m.TargetSystem, m.TargetComponent = gcs.SystemID, gcs.ComponentID
			v.lastReq = int(m.Seq)
			v.lastReqAt = time.Now()
		case *protocol.MissionAck:
			m.TargetSystem, m.TargetComponent = gcs.SystemID, gcs.ComponentID
			v.lastReq = -1
			if m.Type == protocol.MissionAccepted && v.count > 0 {
				v.mission = v.pending
				v.pending = nil
				v.count = 0
				v.current = 0
			}
		}
		v.mu.Unlock()
		v.send(msg)
	}
}

func (v *Vehicle) retryRequest() {
	if v.cfg.RequestRetry <= 0 {
		return
	}
	v.mu.Lock()
	seq := v.lastReq
	due := seq >= 0 && time.Since(v.lastReqAt) >= v.cfg.RequestRetry
	v.mu.Unlock()
	if due {
		v.log.Debugf("sim %d: re-requesting item %d", v.cfg.SysID, seq)
		v.reply(request(uint16(seq)))
	}
}

func (v *Vehicle) send(msg protocol.Message) {
	if err := v.link.Send(msg); err != nil && !errors.Is(err, transport.ErrClosed) {
		v.log.Warnf("sim %d: send %s: %v", v.cfg.SysID, msg.Kind(), err)
	}
}

func (v *Vehicle) telemetryLoop(ctx context.Context) {
	last := time.Now()
	for {
		v.mu.Lock()
		interval := v.interval
		v.mu.Unlock()
		if !sleepCtx(ctx, interval) {
			return
		}
		now := time.Now()
		v.step(now.Sub(last))
		last = now
		for _, m := range v.telemetry() {
			v.send(m)
		}
	}
}

// step advances the flight model by dt.
func (v *Vehicle) step(dt time.Duration) {
	v.mu.Lock()
	defer v.mu.Unlock()
	current := 0.5
	v.groundspeed = 0
	if v.armed {
		current = 12
	}
	v.battery.Drain(current, dt)
	if !v.armed || v.mode != ModeAuto {
		return
	}
	for v.current < len(v.mission) && !v.mission[v.current].IsNav() {
		v.current++
	}
	if v.current >= len(v.mission) {
		return
	}
	target := v.mission[v.current]
	dist := mission.Haversine(v.lat, v.lon, target.Lat(), target.Lon())
	travel := v.cfg.SpeedMS * dt.Seconds()
	v.heading = bearing(v.lat, v.lon, target.Lat(), target.Lon())
	if dist <= travel || dist < reachedM {
		v.lat, v.lon, v.alt = target.Lat(), target.Lon(), float64(target.Z)
		v.current++
		return
	}
	f := travel / dist
	v.lat += (target.Lat() - v.lat) * f
	v.lon += (target.Lon() - v.lon) * f
	v.alt += (float64(target.Z) - v.alt) * f
	v.groundspeed = v.cfg.SpeedMS
}

func bearing(lat1, lon1, lat2, lon2 float64) float64 {
	p1, p2 := lat1*math.Pi/180, lat2*math.Pi/180
	dl := (lon2 - lon1) * math.Pi / 180
	y := math.Sin(dl) * math.Cos(p2)
	x := math.Cos(p1)*math.Sin(p2) - math.Sin(p1)*math.Cos(p2)*math.Cos(dl)
	return math.Mod(math.Atan2(y, x)*180/math.Pi+360, 360)
}

func (v *Vehicle) telemetry() []protocol.Message {
	v.mu.Lock()
	defer v.mu.Unlock()
	base := protocol.ModeFlagCustomModeEnabled
	status := stateStandby
	if v.armed {
		base |= protocol.ModeFlagSafetyArmed
		status = stateActive
	}
	lat, lon := mission.ToDegE7(v.lat), mission.ToDegE7(v.lon)
	rad := v.heading * math.Pi / 180
	vx := int16(v.groundspeed * 100 * math.Cos(rad))
	vy := int16(v.groundspeed * 100 * math.Sin(rad))
	return []protocol.Message{
		&protocol.Heartbeat{
			Type:         v.cfg.Type,
			Autopilot:    autopilotArduPilot,
			BaseMode:     base,
			CustomMode:   v.mode,
			SystemStatus: status,
		},
		&protocol.SysStatus{
			VoltageBattery:   v.battery.VoltageMV(),
			CurrentBattery:   -1,
			BatteryRemaining: v.battery.Percent(),
		},
		&protocol.GlobalPosition{
			TimeBootMs:  uint32(time.Now().UnixMilli()),
			Lat:         lat,
			Lon:         lon,
			Alt:         int32((v.cfg.Home.Alt + v.alt) * 1000),
			RelativeAlt: int32(v.alt * 1000),
			Vx:          vx,
			Vy:          vy,
			Hdg:         uint16(v.heading * 100),
		},
		&protocol.GPSRaw{
			FixType:           3,
			Lat:               lat,
			Lon:               lon,
			Alt:               int32(v.alt * 1000),
			Eph:               protocol.UnknownUint16,
			Epv:               protocol.UnknownUint16,
			Vel:               uint16(v.groundspeed * 100),
			Cog:               uint16(v.heading * 100),
			SatellitesVisible: 12,
		},
		&protocol.Attitude{Yaw: float32(rad)},
		&protocol.VFRHUD{
			Groundspeed: float32(v.groundspeed),
			Airspeed:    float32(v.groundspeed),
			Heading:     int16(v.heading),
			Alt:         float32(v.alt),
		},
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
