// Package config loads the engine's YAML startup configuration:
// listen ports, transport selection, the global mask path, telemetry
// broker settings, and a static list of flows to auto-connect at
// startup. Grounded on
// References/orion-prototipe/internal/config/config.go's flat
// yaml.v3-tagged struct + Load/Validate shape.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the complete blobserverd configuration.
type Config struct {
	ControlPlane  ControlPlaneConfig `yaml:"control_plane"`
	OutputImage   OutputImageConfig  `yaml:"output_image"`
	Telemetry     TelemetryConfig    `yaml:"telemetry"`
	GlobalMask    string             `yaml:"global_mask"`
	Verbose       bool               `yaml:"verbose"`
	AutoConnect   []AutoConnect      `yaml:"auto_connect"`
}

// ControlPlaneConfig selects the wire transport and ports (spec §6).
type ControlPlaneConfig struct {
	Transport  string `yaml:"transport"` // "udp" or "tcp"
	ListenPort int    `yaml:"listen_port"`
}

// OutputImageConfig sizes every flow's shared-memory output segment
// (spec §6's "Output image surface").
type OutputImageConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// TelemetryConfig configures the optional MQTT stats emitter.
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
}

// AutoConnect describes one flow the engine creates at startup,
// without waiting for a control-plane /connect message.
type AutoConnect struct {
	ClientIP     string             `yaml:"client_ip"`
	DetectorKind string             `yaml:"detector_kind"`
	Sources      []AutoConnectSource `yaml:"sources"`
}

type AutoConnectSource struct {
	Kind      string `yaml:"kind"`
	Subsource int    `yaml:"subsource"`
}

// Load reads and parses a YAML configuration file, applying defaults
// and validating it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Default returns a Config with the spec's stated defaults: transport
// udp, listen port 9002 (spec §6).
func Default() *Config {
	return &Config{
		ControlPlane: ControlPlaneConfig{Transport: "udp", ListenPort: 9002},
		OutputImage:  OutputImageConfig{Width: 640, Height: 480},
	}
}

// Validate checks the loaded configuration for internally consistent
// values before the engine starts.
func Validate(cfg *Config) error {
	switch cfg.ControlPlane.Transport {
	case "udp", "tcp":
	default:
		return fmt.Errorf("control_plane.transport must be \"udp\" or \"tcp\", got %q", cfg.ControlPlane.Transport)
	}
	if cfg.ControlPlane.ListenPort <= 0 {
		return fmt.Errorf("control_plane.listen_port must be positive")
	}
	if cfg.OutputImage.Width <= 0 || cfg.OutputImage.Height <= 0 {
		return fmt.Errorf("output_image width/height must be positive")
	}
	if cfg.Telemetry.Enabled && cfg.Telemetry.Broker == "" {
		return fmt.Errorf("telemetry.broker required when telemetry.enabled is true")
	}
	return nil
}
