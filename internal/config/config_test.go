package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "blobserver.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, "global_mask: /tmp/mask.png\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ControlPlane.Transport != "udp" {
		t.Errorf("expected default transport udp, got %q", cfg.ControlPlane.Transport)
	}
	if cfg.ControlPlane.ListenPort != 9002 {
		t.Errorf("expected default listen port 9002, got %d", cfg.ControlPlane.ListenPort)
	}
	if cfg.GlobalMask != "/tmp/mask.png" {
		t.Errorf("expected global_mask to round trip, got %q", cfg.GlobalMask)
	}
}

func TestLoadRejectsBadTransport(t *testing.T) {
	path := writeTempConfig(t, "control_plane:\n  transport: carrier-pigeon\n  listen_port: 9002\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for unknown transport")
	}
}

func TestLoadRejectsTelemetryWithoutBroker(t *testing.T) {
	path := writeTempConfig(t, "telemetry:\n  enabled: true\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for telemetry enabled without broker")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/blobserver.yaml"); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
