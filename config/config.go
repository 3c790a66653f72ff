package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/skylink/core/fleet"
	"github.com/kilianp07/skylink/core/journal"
	"github.com/kilianp07/skylink/core/metrics"
	"github.com/kilianp07/skylink/infra/mqtt"
)

// FleetURIsEnv lists MAVLink connection strings, space separated, used when
// the configuration names no links.
const FleetURIsEnv = "MAVLINK_FLEET_URIS"

// DefaultFleetURIs are opened when neither the file nor the environment
// names a link.
var DefaultFleetURIs = []string{"udp:127.0.0.1:14550", "udp:127.0.0.1:14551"}

type Config struct {
	Links   []string       `json:"links"`
	GCS     GCSConfig      `json:"gcs"`
	Fleet   fleet.Config   `json:"fleet"`
	MQTT    mqtt.Config    `json:"mqtt"`
	Metrics metrics.Config `json:"metrics"`
	Journal journal.Config `json:"journal"`
	Logging LoggingConfig  `json:"logging"`
	Sentry  SentryConfig   `json:"sentry"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var cfg Config
	cfg.finish()
	return &cfg
}

// Load reads a yaml or json file, applies K_SECTION__KEY environment
// overrides, fills defaults and validates every section.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.finish()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) finish() {
	c.Links = FleetURIs(c.Links)
	c.GCS.SetDefaults()
	c.MQTT.SetDefaults()
	c.Journal.SetDefaults()
	c.Logging.SetDefaults()
}

// Validate checks every section.
func (c Config) Validate() error {
	if len(c.Links) == 0 {
		return fmt.Errorf("links: at least one connection string is required")
	}
	if err := c.GCS.Validate(); err != nil {
		return err
	}
	if err := c.Fleet.Validate(); err != nil {
		return fmt.Errorf("fleet: %w", err)
	}
	if err := c.MQTT.Validate(); err != nil {
		return err
	}
	if err := c.Metrics.Validate(); err != nil {
		return err
	}
	if err := c.Journal.Validate(); err != nil {
		return err
	}
	return c.Logging.Validate()
}

// FleetURIs returns links when non-empty, else the URIs of
// MAVLINK_FLEET_URIS, else DefaultFleetURIs.
func FleetURIs(links []string) []string {
	var out []string
	for _, l := range links {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	if len(out) > 0 {
		return out
	}
	if fromEnv := strings.Fields(os.Getenv(FleetURIsEnv)); len(fromEnv) > 0 {
		return fromEnv
	}
	return append([]string(nil), DefaultFleetURIs...)
}
