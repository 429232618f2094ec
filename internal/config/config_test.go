package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
workspace:
  id: ws_1
collector:
  endpoint: https://collector.example.com/events
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("log level = %q, want info", cfg.Log.Level)
	}
	if cfg.Queue.Capacity != 50 {
		t.Errorf("queue capacity = %d, want 50", cfg.Queue.Capacity)
	}
	if cfg.Queue.MaxAgeHours != 24 {
		t.Errorf("queue max age = %d, want 24", cfg.Queue.MaxAgeHours)
	}
	if cfg.Queue.MaxAttempts != 5 {
		t.Errorf("queue max attempts = %d, want 5", cfg.Queue.MaxAttempts)
	}
	if cfg.Device.Class != "desktop" {
		t.Errorf("device class = %q, want desktop", cfg.Device.Class)
	}
	if cfg.Collector.Timeout != 10 {
		t.Errorf("collector timeout = %d, want 10", cfg.Collector.Timeout)
	}
}

func TestLoadConfigRequiresEndpoint(t *testing.T) {
	path := writeConfig(t, `
workspace:
  id: ws_1
`)
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("config without collector endpoint accepted")
	}
}

func TestLoadConfigTiers(t *testing.T) {
	path := writeConfig(t, `
collector:
  endpoint: https://collector.example.com/events
heartbeat:
  max_duration: 600
  tiers:
    - after: 0
      desktop: 10
      mobile: 7
    - after: 180
      desktop: 20
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if len(cfg.Heartbeat.Tiers) != 2 {
		t.Fatalf("tiers = %d, want 2", len(cfg.Heartbeat.Tiers))
	}
	if cfg.Heartbeat.Tiers[1].After != 180 || cfg.Heartbeat.Tiers[1].Desktop != 20 || cfg.Heartbeat.Tiers[1].Mobile != 0 {
		t.Fatalf("tier 1 = %+v", cfg.Heartbeat.Tiers[1])
	}
	if cfg.Heartbeat.MaxDuration != 600 {
		t.Fatalf("max duration = %d, want 600", cfg.Heartbeat.MaxDuration)
	}
}

func TestDefaultTiers(t *testing.T) {
	tiers := DefaultTiers()
	if len(tiers) == 0 || tiers[0].After != 0 {
		t.Fatalf("default tiers invalid: %+v", tiers)
	}
}
