package fleet

import (
	"sync"
	"time"

	"github.com/kilianp07/skylink/core/logger"
	"github.com/kilianp07/skylink/core/protocol"
	"github.com/kilianp07/skylink/core/transport"
)

// defaultComponentID is MAV_COMP_ID_AUTOPILOT1.
const defaultComponentID uint8 = 1

// Agent owns the status and the mission protocol of one vehicle. Update is
// called by the reader of the link that discovered the vehicle; the
// blocking operations run on the caller's goroutine.
type Agent struct {
	sysID uint8
	link  transport.Connection
	cfg   Config
	log   logger.Logger

	mu     sync.RWMutex
	status Status
	compID uint8

	// uploadMu admits one upload at a time. gateMu guards uploading and
	// makes the flip and the queue drain atomic with respect to Update.
	uploadMu  sync.Mutex
	gateMu    sync.Mutex
	uploading bool
	protoQ    chan protocol.Message
	phase     *uploadPhase

	cmdMu       sync.Mutex
	cmdGateMu   sync.Mutex
	awaitingCmd bool
	cmdQ        chan *protocol.CommandAck

	notify func(Event)
}

// NewAgent returns an agent for sysID that sends on link.
func NewAgent(sysID uint8, link transport.Connection, cfg Config, log logger.Logger) *Agent {
	if log == nil {
		log = logger.NopLogger{}
	}
	a := &Agent{
		sysID:  sysID,
		link:   link,
		cfg:    cfg,
		log:    log,
		status: Status{SysID: sysID},
		compID: defaultComponentID,
		protoQ: make(chan protocol.Message, cfg.Queue()),
		cmdQ:   make(chan *protocol.CommandAck, cfg.Queue()),
	}
	a.phase = newUploadPhase(log, a.phaseEntered)
	return a
}

// SysID returns the system id of the vehicle.
func (a *Agent) SysID() uint8 { return a.sysID }

// Link returns the connection the agent sends on.
func (a *Agent) Link() transport.Connection { return a.link }

// Status returns a copy of the vehicle status.
func (a *Agent) Status() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status
}

// Uploading reports whether a mission handshake is in progress.
func (a *Agent) Uploading() bool {
	a.gateMu.Lock()
	defer a.gateMu.Unlock()
	return a.uploading
}

// Phase returns the current upload phase.
func (a *Agent) Phase() Phase { return a.phase.current() }

// Update folds one inbound frame into the agent.
func (a *Agent) Update(f *protocol.Frame) {
	if f == nil || f.Message == nil {
		return
	}
	switch m := f.Message.(type) {
	case *protocol.MissionRequest, *protocol.MissionAck:
		a.pushProtocol(m)
	case *protocol.CommandAck:
		a.pushCommandAck(m)
	default:
		a.mu.Lock()
		if applyTelemetry(&a.status, m, time.Now()) {
			if hb, ok := m.(*protocol.Heartbeat); ok && hb.Autopilot != autopilotInvalid && f.ComponentID != 0 {
				a.compID = f.ComponentID
			}
		}
		a.mu.Unlock()
	}
}

func (a *Agent) pushProtocol(m protocol.Message) {
	a.gateMu.Lock()
	defer a.gateMu.Unlock()
	if !a.uploading {
		protocolStale.Inc()
		a.log.Debugf("discarding stale %s from sys %d", m.Kind(), a.sysID)
		return
	}
	select {
	case a.protoQ <- m:
	default:
		protocolDropped.Inc()
		a.log.Warnf("protocol queue full for sys %d, dropping %s", a.sysID, m.Kind())
	}
}

func (a *Agent) pushCommandAck(m *protocol.CommandAck) {
	a.cmdGateMu.Lock()
	defer a.cmdGateMu.Unlock()
	if !a.awaitingCmd {
		a.log.Debugf("discarding unsolicited COMMAND_ACK %d from sys %d", m.Command, a.sysID)
		return
	}
	select {
	case a.cmdQ <- m:
	default:
		a.log.Warnf("command ack queue full for sys %d", a.sysID)
	}
}

func (a *Agent) openGate() {
	a.gateMu.Lock()
	a.uploading = true
	drain(a.protoQ)
	a.gateMu.Unlock()
}

func (a *Agent) closeGate() {
	a.gateMu.Lock()
	a.uploading = false
	drain(a.protoQ)
	a.gateMu.Unlock()
}

func (a *Agent) openCmdGate() {
	a.cmdGateMu.Lock()
	a.awaitingCmd = true
	drain(a.cmdQ)
	a.cmdGateMu.Unlock()
}

func (a *Agent) closeCmdGate() {
	a.cmdGateMu.Lock()
	a.awaitingCmd = false
	drain(a.cmdQ)
	a.cmdGateMu.Unlock()
}

func drain[T any](ch chan T) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

func (a *Agent) targetComponent() uint8 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.compID
}

func (a *Agent) send(msg protocol.Message) error {
	if err := a.link.Send(msg); err != nil {
		return &TransportError{Link: a.link.Name(), Op: "send " + string(msg.Kind()), Err: err}
	}
	return nil
}

func (a *Agent) phaseEntered(p Phase) {
	if a.notify == nil {
		return
	}
	a.notify(Event{Kind: EventUploadPhase, SysID: a.sysID, Link: a.link.Name(), Phase: p, Time: time.Now()})
}
