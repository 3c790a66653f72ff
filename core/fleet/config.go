package fleet

import (
	"fmt"
	"time"
)

// Config holds the protocol timing of the fleet. Durations are in
// milliseconds; zero selects the default.
type Config struct {
	ClearAckTimeoutMS   int `json:"clear_ack_timeout_ms"`
	RequestTimeoutMS    int `json:"request_timeout_ms"`
	FinalAckTimeoutMS   int `json:"final_ack_timeout_ms"`
	CommandAckTimeoutMS int `json:"command_ack_timeout_ms"`
	ReadTimeoutMS       int `json:"read_timeout_ms"`
	LinkLossTimeoutMS   int `json:"link_loss_timeout_ms"`
	StopTimeoutMS       int `json:"stop_timeout_ms"`
	QueueSize           int `json:"queue_size"`
	// StreamRateHz is the telemetry rate requested from new vehicles.
	// Negative disables the request.
	StreamRateHz    int `json:"stream_rate_hz"`
	GuidedSettleMS  int `json:"guided_settle_ms"`
	ArmSettleMS     int `json:"arm_settle_ms"`
	TakeoffSettleMS int `json:"takeoff_settle_ms"`
	AutoSettleMS    int `json:"auto_settle_ms"`
}

func msOr(v, def int) time.Duration {
	if v <= 0 {
		v = def
	}
	return time.Duration(v) * time.Millisecond
}

func (c Config) ClearAckTimeout() time.Duration   { return msOr(c.ClearAckTimeoutMS, 3000) }
func (c Config) RequestTimeout() time.Duration    { return msOr(c.RequestTimeoutMS, 5000) }
func (c Config) FinalAckTimeout() time.Duration   { return msOr(c.FinalAckTimeoutMS, 5000) }
func (c Config) CommandAckTimeout() time.Duration { return msOr(c.CommandAckTimeoutMS, 5000) }
func (c Config) ReadTimeout() time.Duration       { return msOr(c.ReadTimeoutMS, 1000) }
func (c Config) LinkLossTimeout() time.Duration   { return msOr(c.LinkLossTimeoutMS, 5000) }
func (c Config) StopTimeout() time.Duration       { return msOr(c.StopTimeoutMS, 2000) }
func (c Config) GuidedSettle() time.Duration      { return msOr(c.GuidedSettleMS, 1000) }
func (c Config) ArmSettle() time.Duration         { return msOr(c.ArmSettleMS, 2000) }
func (c Config) TakeoffSettle() time.Duration     { return msOr(c.TakeoffSettleMS, 8000) }
func (c Config) AutoSettle() time.Duration        { return msOr(c.AutoSettleMS, 1000) }

// Queue returns the protocol queue capacity per agent.
func (c Config) Queue() int {
	if c.QueueSize <= 0 {
		return 32
	}
	return c.QueueSize
}

// StreamRate returns the requested telemetry rate, 0 when disabled.
func (c Config) StreamRate() uint16 {
	switch {
	case c.StreamRateHz < 0:
		return 0
	case c.StreamRateHz == 0:
		return 5
	default:
		return uint16(c.StreamRateHz)
	}
}

// Validate rejects values that cannot describe a timing.
func (c Config) Validate() error {
	if c.StreamRateHz > 1000 {
		return fmt.Errorf("stream_rate_hz %d out of range", c.StreamRateHz)
	}
	if c.QueueSize > 4096 {
		return fmt.Errorf("queue_size %d too large", c.QueueSize)
	}
	return nil
}
