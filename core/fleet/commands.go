package fleet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kilianp07/skylink/core/protocol"
)

// SetMode switches the vehicle to the named flight mode. ArduPilot does
// not always acknowledge SET_MODE, so the call returns once it is sent.
func (a *Agent) SetMode(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	st := a.Status()
	num, ok := ModeNumber(st.VehicleType, name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownMode, name)
	}
	return a.send(&protocol.SetMode{
		TargetSystem: a.sysID,
		BaseMode:     protocol.ModeFlagCustomModeEnabled,
		CustomMode:   num,
	})
}

// Arm arms the motors and waits for the acknowledgement.
func (a *Agent) Arm(ctx context.Context) error {
	return a.commandLong(ctx, protocol.CmdComponentArmDisarm, [7]float32{0: 1})
}

// Disarm disarms the motors and waits for the acknowledgement.
func (a *Agent) Disarm(ctx context.Context) error {
	return a.commandLong(ctx, protocol.CmdComponentArmDisarm, [7]float32{})
}

// Takeoff commands a takeoff to alt metres above home.
func (a *Agent) Takeoff(ctx context.Context, alt float64) error {
	return a.commandLong(ctx, protocol.CmdNavTakeoff, [7]float32{6: float32(alt)})
}

// RequestDataStreams asks the vehicle to start every telemetry stream at
// rate Hz.
func (a *Agent) RequestDataStreams(rate uint16) error {
	return a.send(&protocol.RequestDataStream{
		TargetSystem:    a.sysID,
		TargetComponent: a.targetComponent(),
		StreamID:        protocol.StreamAll,
		Rate:            rate,
		Start:           true,
	})
}

func (a *Agent) commandLong(ctx context.Context, cmd uint16, params [7]float32) error {
	if !a.cmdMu.TryLock() {
		return ErrCommandInProgress
	}
	defer a.cmdMu.Unlock()
	a.openCmdGate()
	defer a.closeCmdGate()

	if err := a.send(&protocol.CommandLong{
		TargetSystem:    a.sysID,
		TargetComponent: a.targetComponent(),
		Command:         cmd,
		Params:          params,
	}); err != nil {
		return err
	}

	timer := time.NewTimer(a.cfg.CommandAckTimeout())
	defer timer.Stop()
	for {
		select {
		case ack := <-a.cmdQ:
			if ack.Command != cmd {
				continue
			}
			switch ack.Result {
			case protocol.ResultAccepted:
				return nil
			case protocol.ResultInProgress:
				// the final ack follows
				continue
			default:
				return commandRejected(cmd, ack.Result)
			}
		case <-timer.C:
			return fmt.Errorf("%w: no ack for %s after %s", ErrProtocolTimeout, commandName(cmd), a.cfg.CommandAckTimeout())
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// ArmAndStart switches to GUIDED, arms if needed, takes off to
// takeoffAlt and switches to AUTO to fly the uploaded mission. It reports
// whether the mission was started; every step logs its outcome.
func (a *Agent) ArmAndStart(ctx context.Context, takeoffAlt float64) bool {
	if err := a.SetMode(ctx, "GUIDED"); err != nil {
		a.log.Errorf("sys %d: set GUIDED: %v", a.sysID, err)
		return false
	}
	a.log.Infof("sys %d: GUIDED requested", a.sysID)
	if !sleepCtx(ctx, a.cfg.GuidedSettle()) {
		return false
	}

	if a.Status().Armed {
		a.log.Infof("sys %d: already armed", a.sysID)
	} else {
		if err := a.Arm(ctx); err != nil {
			a.log.Errorf("sys %d: arm failed: %v", a.sysID, err)
			return false
		}
		a.log.Infof("sys %d: armed", a.sysID)
		if !sleepCtx(ctx, a.cfg.ArmSettle()) {
			return false
		}
	}

	err := a.Takeoff(ctx, takeoffAlt)
	switch {
	case err == nil:
		a.log.Infof("sys %d: takeoff to %.1f m accepted", a.sysID, takeoffAlt)
	case errors.Is(err, ErrProtocolTimeout):
		a.log.Warnf("sys %d: takeoff not acknowledged, continuing: %v", a.sysID, err)
	default:
		a.log.Errorf("sys %d: takeoff failed: %v", a.sysID, err)
		return false
	}
	if !sleepCtx(ctx, a.cfg.TakeoffSettle()) {
		return false
	}

	if err := a.SetMode(ctx, "AUTO"); err != nil {
		a.log.Errorf("sys %d: set AUTO: %v", a.sysID, err)
		return false
	}
	a.log.Infof("sys %d: AUTO requested, mission started", a.sysID)
	return sleepCtx(ctx, a.cfg.AutoSettle())
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
