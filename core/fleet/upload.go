package fleet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kilianp07/skylink/core/mission"
	"github.com/kilianp07/skylink/core/protocol"
)

// Upload runs the clear/count/request/ack handshake for items. Items are
// sent at the sequence the vehicle requests, so repeated requests get a
// resend. The call blocks until the vehicle accepts the mission, refuses
// it, a phase times out or ctx is done.
func (a *Agent) Upload(ctx context.Context, items []mission.Item) error {
	if len(items) == 0 {
		return mission.ErrEmptyMission
	}
	if len(items) >= int(protocol.UnknownUint16) {
		return fmt.Errorf("mission of %d items exceeds the protocol limit", len(items))
	}
	if !a.uploadMu.TryLock() {
		return ErrUploadInProgress
	}
	defer a.uploadMu.Unlock()

	start := time.Now()
	a.openGate()
	a.phase.fire(evBegin)
	err := a.handshake(ctx, items)
	a.closeGate()
	a.finishUpload(err, len(items), time.Since(start))
	return err
}

func (a *Agent) handshake(ctx context.Context, items []mission.Item) error {
	n := len(items)
	comp := a.targetComponent()

	if err := a.send(&protocol.MissionClearAll{
		TargetSystem:    a.sysID,
		TargetComponent: comp,
		MissionType:     protocol.MissionTypeMission,
	}); err != nil {
		return err
	}
	if err := a.awaitClearAck(ctx); err != nil {
		return err
	}

	if err := a.send(&protocol.MissionCount{
		TargetSystem:    a.sysID,
		TargetComponent: comp,
		Count:           uint16(n),
		MissionType:     protocol.MissionTypeMission,
	}); err != nil {
		return err
	}
	a.phase.fire(evCount)

	sent := make([]bool, n)
	remaining := n
	var refusal *RejectionError
	deadline := time.Now().Add(a.cfg.RequestTimeout())
	for remaining > 0 {
		msg, err := a.nextProtocol(ctx, deadline)
		if err != nil {
			return err
		}
		if msg == nil {
			if refusal != nil {
				return refusal
			}
			return fmt.Errorf("%w: waiting for request of item %d/%d", ErrProtocolTimeout, firstUnsent(sent), n)
		}
		switch m := msg.(type) {
		case *protocol.MissionRequest:
			if !a.validRequest(m, n) {
				continue
			}
			a.phase.fire(evRequest)
			if err := a.send(items[m.Seq].Message(a.sysID, comp, m.Seq)); err != nil {
				return err
			}
			if sent[m.Seq] {
				itemResends.Inc()
				a.log.Debugf("sys %d: resent item %d", a.sysID, m.Seq)
			} else {
				sent[m.Seq] = true
				remaining--
			}
			deadline = time.Now().Add(a.cfg.RequestTimeout())
		case *protocol.MissionAck:
			// an early ACCEPTED cannot mean the mission we are sending
			if m.MissionType == protocol.MissionTypeMission && m.Type != protocol.MissionAccepted {
				refusal = missionRejected(m.Type)
				a.log.Warnf("sys %d: %s while sending items", a.sysID, m.Type)
			}
		}
	}
	a.phase.fire(evItemsSent)

	deadline = time.Now().Add(a.cfg.FinalAckTimeout())
	for {
		msg, err := a.nextProtocol(ctx, deadline)
		if err != nil {
			return err
		}
		if msg == nil {
			if refusal != nil {
				return refusal
			}
			return fmt.Errorf("%w: waiting for final mission ack", ErrProtocolTimeout)
		}
		switch m := msg.(type) {
		case *protocol.MissionAck:
			if m.MissionType != protocol.MissionTypeMission {
				continue
			}
			if m.Type == protocol.MissionAccepted {
				a.closeGate()
				return nil
			}
			refusal = missionRejected(m.Type)
			a.log.Warnf("sys %d: final ack %s, still waiting", a.sysID, m.Type)
		case *protocol.MissionRequest:
			if !a.validRequest(m, n) {
				continue
			}
			if err := a.send(items[m.Seq].Message(a.sysID, comp, m.Seq)); err != nil {
				return err
			}
			itemResends.Inc()
		}
	}
}

// awaitClearAck waits for the acknowledgement of MISSION_CLEAR_ALL. Some
// autopilots never send one, so the deadline is not an error.
func (a *Agent) awaitClearAck(ctx context.Context) error {
	deadline := time.Now().Add(a.cfg.ClearAckTimeout())
	for {
		msg, err := a.nextProtocol(ctx, deadline)
		if err != nil {
			return err
		}
		if msg == nil {
			a.log.Warnf("sys %d: no ack for mission clear, continuing", a.sysID)
			return nil
		}
		if ack, ok := msg.(*protocol.MissionAck); ok {
			if ack.Type != protocol.MissionAccepted {
				a.log.Warnf("sys %d: mission clear answered %s, continuing", a.sysID, ack.Type)
			}
			return nil
		}
	}
}

func (a *Agent) validRequest(m *protocol.MissionRequest, n int) bool {
	if m.MissionType != protocol.MissionTypeMission {
		a.log.Debugf("sys %d: ignoring request for mission type %d", a.sysID, m.MissionType)
		return false
	}
	if int(m.Seq) >= n {
		a.log.Warnf("sys %d: request for item %d out of range (count %d)", a.sysID, m.Seq, n)
		return false
	}
	return true
}

// nextProtocol pops the next queued mission message. It returns nil, nil
// once deadline has passed and the queue is empty.
func (a *Agent) nextProtocol(ctx context.Context, deadline time.Time) (protocol.Message, error) {
	wait := time.Until(deadline)
	if wait <= 0 {
		select {
		case m := <-a.protoQ:
			return m, nil
		default:
			return nil, nil
		}
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case m := <-a.protoQ:
		return m, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (a *Agent) finishUpload(err error, n int, took time.Duration) {
	var rej *RejectionError
	switch {
	case err == nil:
		a.phase.fire(evAccept)
		a.log.Infof("sys %d: mission of %d items accepted in %s", a.sysID, n, took.Round(time.Millisecond))
	case errors.As(err, &rej):
		a.phase.fire(evReject)
		a.log.Errorf("sys %d: mission upload failed: %v", a.sysID, err)
	case errors.Is(err, ErrProtocolTimeout):
		a.phase.fire(evTimeout)
		a.log.Errorf("sys %d: mission upload failed: %v", a.sysID, err)
	default:
		a.phase.fire(evAbort)
		a.log.Errorf("sys %d: mission upload aborted: %v", a.sysID, err)
	}
	missionUploads.WithLabelValues(uploadResult(err)).Inc()
	uploadDuration.Observe(took.Seconds())
}

func uploadResult(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, ErrProtocolRejected):
		return "rejected"
	case errors.Is(err, ErrProtocolTimeout):
		return "timed_out"
	default:
		return "aborted"
	}
}

func firstUnsent(sent []bool) int {
	for i, ok := range sent {
		if !ok {
			return i
		}
	}
	return len(sent)
}
