package fleet

import "time"

// EventKind classifies fleet events published on the bus.
type EventKind string

const (
	EventVehicleDiscovered EventKind = "vehicle_discovered"
	EventCommandResult     EventKind = "command_result"
	EventUploadPhase       EventKind = "upload_phase"
)

// Event is published by the coordinator for every discovery, command
// outcome and upload phase change.
type Event struct {
	Kind    EventKind     `json:"kind"`
	SysID   uint8         `json:"sys_id"`
	Link    string        `json:"link,omitempty"`
	Command CommandKind   `json:"command,omitempty"`
	Outcome string        `json:"outcome,omitempty"`
	Phase   Phase         `json:"phase,omitempty"`
	Error   string        `json:"error,omitempty"`
	Latency time.Duration `json:"latency,omitempty"`
	Time    time.Time     `json:"time"`
}
