package config

import (
	"fmt"
	"strings"
)

// GCSConfig is the MAVLink identity of the ground station.
type GCSConfig struct {
	SystemID    int `json:"system_id"`
	ComponentID int `json:"component_id"`
	// ProtocolVersion is "v1" or "v2".
	ProtocolVersion string `json:"protocol_version"`
}

// SetDefaults applies the conventional ground station identity.
func (c *GCSConfig) SetDefaults() {
	if c.SystemID == 0 {
		c.SystemID = 255
	}
	if c.ComponentID == 0 {
		c.ComponentID = 190
	}
	if c.ProtocolVersion == "" {
		c.ProtocolVersion = "v2"
	}
}

// Validate checks ranges.
func (c GCSConfig) Validate() error {
	if c.SystemID < 1 || c.SystemID > 255 {
		return fmt.Errorf("gcs.system_id %d out of range", c.SystemID)
	}
	if c.ComponentID < 1 || c.ComponentID > 255 {
		return fmt.Errorf("gcs.component_id %d out of range", c.ComponentID)
	}
	switch strings.ToLower(c.ProtocolVersion) {
	case "v1", "v2":
		return nil
	default:
		return fmt.Errorf("gcs.protocol_version %q must be v1 or v2", c.ProtocolVersion)
	}
}
