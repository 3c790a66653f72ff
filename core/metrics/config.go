package metrics

import (
	"fmt"

	"github.com/kilianp07/skylink/core/factory"
)

// Config defines settings for metrics sinks.
type Config struct {
	Sinks []factory.ModuleConfig `json:"sinks"`
	// PrometheusAddr serves /metrics when not empty.
	PrometheusAddr string `json:"prometheus_addr"`
	// StateIntervalSeconds is the period of vehicle state snapshots sent
	// to the sinks. Zero disables them.
	StateIntervalSeconds int `json:"state_interval_seconds"`
}

// Validate checks the sink list.
func (c Config) Validate() error {
	for i, s := range c.Sinks {
		if s.Type == "" {
			return fmt.Errorf("metrics.sinks[%d]: type is required", i)
		}
	}
	if c.StateIntervalSeconds < 0 {
		return fmt.Errorf("metrics.state_interval_seconds must not be negative")
	}
	return nil
}
