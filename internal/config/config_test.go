package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Server.Listen != "localhost:4444" {
		t.Errorf("listen = %q", cfg.Server.Listen)
	}
	if cfg.Session.TTLSeconds != 10 {
		t.Errorf("ttl = %d", cfg.Session.TTLSeconds)
	}
	if cfg.Defense.MaxInvalidAttempts != 3 {
		t.Errorf("max attempts = %d", cfg.Defense.MaxInvalidAttempts)
	}
	if cfg.Defense.KeyByAddress {
		t.Error("defense should key by connection by default")
	}
	if cfg.SessionTTL() != 10*time.Second {
		t.Errorf("SessionTTL = %v", cfg.SessionTTL())
	}
	if cfg.SuspendDuration() != 15*time.Second {
		t.Errorf("SuspendDuration = %v", cfg.SuspendDuration())
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  listen: "0.0.0.0:7777"
session:
  ttl_seconds: 60
defense:
  key_by_address: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Listen != "0.0.0.0:7777" {
		t.Errorf("listen = %q", cfg.Server.Listen)
	}
	if cfg.SessionTTL() != time.Minute {
		t.Errorf("SessionTTL = %v", cfg.SessionTTL())
	}
	if !cfg.Defense.KeyByAddress {
		t.Error("key_by_address not applied")
	}

	// Unspecified values keep their defaults.
	if cfg.Server.HealthPort != 4445 {
		t.Errorf("health port = %d", cfg.Server.HealthPort)
	}
	if cfg.Defense.SuspendSeconds != 15 {
		t.Errorf("suspend = %d", cfg.Defense.SuspendSeconds)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	path := writeConfig(t, "server: [not a mapping")

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed yaml")
	}
}
