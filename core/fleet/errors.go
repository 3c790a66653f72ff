package fleet

import (
	"errors"
	"fmt"

	"github.com/kilianp07/skylink/core/protocol"
)

var (
	// ErrProtocolTimeout means the vehicle did not answer within the
	// window of a handshake phase or command.
	ErrProtocolTimeout = errors.New("protocol timeout")
	// ErrProtocolRejected matches every *RejectionError.
	ErrProtocolRejected = errors.New("protocol rejection")
	// ErrUnknownVehicle is returned for a system id never observed.
	ErrUnknownVehicle = errors.New("unknown vehicle")
	// ErrUploadInProgress is returned when an agent is already uploading.
	ErrUploadInProgress = errors.New("mission upload already in progress")
	// ErrCommandInProgress is returned when an agent is already waiting for
	// a command acknowledgement.
	ErrCommandInProgress = errors.New("command already in progress")
	// ErrUnsupportedCommand reports an unknown command kind.
	ErrUnsupportedCommand = errors.New("unsupported command")
	// ErrUnknownMode reports a mode name missing from the vehicle's table.
	ErrUnknownMode = errors.New("unknown flight mode")
	// ErrNoLinks is returned by Start when nothing is configured.
	ErrNoLinks = errors.New("no links configured")
	// ErrAlreadyRunning is returned by Start on a running coordinator.
	ErrAlreadyRunning = errors.New("coordinator already running")
)

// RejectionError carries the terminal code of an explicit refusal, either
// a MAV_MISSION_RESULT or a MAV_RESULT.
type RejectionError struct {
	Op     string
	Code   uint8
	Reason string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%s rejected: %s (%d)", e.Op, e.Reason, e.Code)
}

// Is makes errors.Is(err, ErrProtocolRejected) hold.
func (e *RejectionError) Is(target error) bool { return target == ErrProtocolRejected }

func missionRejected(code protocol.MissionResult) *RejectionError {
	return &RejectionError{Op: "mission upload", Code: uint8(code), Reason: code.String()}
}

func commandRejected(cmd uint16, res protocol.CommandResult) *RejectionError {
	return &RejectionError{Op: commandName(cmd), Code: uint8(res), Reason: res.String()}
}

// TransportError wraps a failure of the underlying link.
type TransportError struct {
	Link string
	Op   string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s on %s: %v", e.Op, e.Link, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
