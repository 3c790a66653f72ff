package fleet

import (
	"context"
	"errors"

	"github.com/looplab/fsm"

	"github.com/kilianp07/skylink/core/logger"
)

// Phase is the state of a mission upload handshake.
type Phase string

const (
	PhaseIdle             Phase = "idle"
	PhaseClearing         Phase = "clearing"
	PhaseCountSent        Phase = "count_sent"
	PhaseAwaitingItem     Phase = "awaiting_item"
	PhaseAwaitingFinalAck Phase = "awaiting_final_ack"
	PhaseAccepted         Phase = "accepted"
	PhaseRejected         Phase = "rejected"
	PhaseTimedOut         Phase = "timed_out"
)

const (
	evBegin     = "begin"
	evCount     = "count"
	evRequest   = "request"
	evItemsSent = "items_sent"
	evAccept    = "accept"
	evReject    = "reject"
	evTimeout   = "timeout"
	evAbort     = "abort"
)

var (
	terminalPhases = []string{string(PhaseIdle), string(PhaseAccepted), string(PhaseRejected), string(PhaseTimedOut)}
	activePhases   = []string{string(PhaseClearing), string(PhaseCountSent), string(PhaseAwaitingItem), string(PhaseAwaitingFinalAck)}
)

// uploadPhase tracks the handshake of one agent. The uploading gate decides
// what the reader queues; the phase records where the handshake stands.
type uploadPhase struct {
	machine *fsm.FSM
	log     logger.Logger
	onEnter func(Phase)
}

func newUploadPhase(log logger.Logger, onEnter func(Phase)) *uploadPhase {
	p := &uploadPhase{log: log, onEnter: onEnter}
	p.machine = fsm.NewFSM(
		string(PhaseIdle),
		fsm.Events{
			{Name: evBegin, Src: terminalPhases, Dst: string(PhaseClearing)},
			{Name: evCount, Src: []string{string(PhaseClearing)}, Dst: string(PhaseCountSent)},
			{Name: evRequest, Src: []string{string(PhaseCountSent), string(PhaseAwaitingItem)}, Dst: string(PhaseAwaitingItem)},
			{Name: evItemsSent, Src: []string{string(PhaseAwaitingItem)}, Dst: string(PhaseAwaitingFinalAck)},
			{Name: evAccept, Src: []string{string(PhaseAwaitingFinalAck)}, Dst: string(PhaseAccepted)},
			{Name: evReject, Src: activePhases, Dst: string(PhaseRejected)},
			{Name: evTimeout, Src: activePhases, Dst: string(PhaseTimedOut)},
			{Name: evAbort, Src: activePhases, Dst: string(PhaseIdle)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				p.log.Debugf("upload phase %s -> %s", e.Src, e.Dst)
				if p.onEnter != nil {
					p.onEnter(Phase(e.Dst))
				}
			},
		},
	)
	return p
}

// fire applies event. Self transitions are expected while items are
// requested and are not errors. A background context is used because a
// cancelled context would leave the machine stuck mid-transition.
func (p *uploadPhase) fire(event string) {
	err := p.machine.Event(context.Background(), event)
	if err == nil {
		return
	}
	var noTransition fsm.NoTransitionError
	if errors.As(err, &noTransition) {
		return
	}
	p.log.Warnf("upload phase %s: event %s: %v", p.machine.Current(), event, err)
}

func (p *uploadPhase) current() Phase { return Phase(p.machine.Current()) }
