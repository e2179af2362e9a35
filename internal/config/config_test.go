package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParse_Defaults(t *testing.T) {
	t.Setenv("TRULIGHT_API_URL", "")

	cfg, err := Parse([]byte(``))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}

	if cfg.API.URL != "" {
		t.Errorf("API.URL = %q, want empty", cfg.API.URL)
	}
	if cfg.API.Port != 8000 {
		t.Errorf("API.Port = %d, want 8000", cfg.API.Port)
	}
	if cfg.Panel.ThrottleWindow.Duration() != 50*time.Millisecond {
		t.Errorf("ThrottleWindow = %v, want 50ms", cfg.Panel.ThrottleWindow.Duration())
	}
	if cfg.Panel.CompactWidth != 900 {
		t.Errorf("CompactWidth = %d, want 900", cfg.Panel.CompactWidth)
	}
	if cfg.Server.Addr() != "0.0.0.0:3000" {
		t.Errorf("Server.Addr() = %q", cfg.Server.Addr())
	}
	if cfg.ShutdownTimeout.Duration() != 5*time.Second {
		t.Errorf("ShutdownTimeout = %v", cfg.ShutdownTimeout.Duration())
	}
	if cfg.Log.GetLevel() != "info" {
		t.Errorf("Log level = %q", cfg.Log.GetLevel())
	}
	if cfg.MQTT.Enabled || cfg.MQTT.Broker != "tcp://localhost:1883" || cfg.MQTT.TopicPrefix != "trulight" {
		t.Errorf("MQTT defaults = %+v", cfg.MQTT)
	}
}

func TestParse_Values(t *testing.T) {
	data := []byte(`
api:
  url: http://raspberrypi.local:8000
  timeout: 2s
panel:
  throttle_window: 80ms
  compact_width: 640
server:
  port: 8080
  allowed_origins: ["http://localhost:3000"]
simulator:
  enabled: true
ledger:
  enabled: true
  retention: 30m
log:
  level: debug
  json: true
`)
	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if cfg.API.URL != "http://raspberrypi.local:8000" {
		t.Errorf("API.URL = %q", cfg.API.URL)
	}
	if cfg.API.Timeout.Duration() != 2*time.Second {
		t.Errorf("API.Timeout = %v", cfg.API.Timeout.Duration())
	}
	if cfg.Panel.ThrottleWindow.Duration() != 80*time.Millisecond || cfg.Panel.CompactWidth != 640 {
		t.Errorf("Panel = %+v", cfg.Panel)
	}
	if cfg.Server.Port != 8080 || len(cfg.Server.AllowedOrigins) != 1 {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if !cfg.Simulator.Enabled || cfg.Simulator.Addr() != "127.0.0.1:8000" {
		t.Errorf("Simulator = %+v", cfg.Simulator)
	}
	if !cfg.Ledger.Enabled || cfg.Ledger.Retention.Duration() != 30*time.Minute {
		t.Errorf("Ledger = %+v", cfg.Ledger)
	}
	if !cfg.Log.UseJSON || cfg.Log.Level != "debug" {
		t.Errorf("Log = %+v", cfg.Log)
	}
}

func TestParse_EnvExpansion(t *testing.T) {
	t.Setenv("PANEL_PORT", "4000")
	t.Setenv("TRULIGHT_API_URL", "")

	cfg, err := Parse([]byte(`
server:
  port: ${PANEL_PORT}
api:
  url: ${MISSING_API_URL:http://device.lan:8000}
`))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if cfg.Server.Port != 4000 {
		t.Errorf("Server.Port = %d, want 4000", cfg.Server.Port)
	}
	if cfg.API.URL != "http://device.lan:8000" {
		t.Errorf("API.URL = %q", cfg.API.URL)
	}
}

func TestParse_APIURLFromEnvironment(t *testing.T) {
	t.Setenv("TRULIGHT_API_URL", "http://pi.local:8000")

	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if cfg.API.URL != "http://pi.local:8000" {
		t.Errorf("API.URL = %q", cfg.API.URL)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"bad_duration", "panel:\n  throttle_window: fast\n"},
		{"negative_window", "panel:\n  throttle_window: -5ms\n"},
		{"bad_scheme", "api:\n  scheme: ftp\n"},
		{"bad_port", "api:\n  port: 70000\n"},
		{"bad_yaml", "api: [\n"},
		{"mqtt_broker_without_scheme", "mqtt:\n  enabled: true\n  broker: localhost:1883\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.data)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("TRULIGHT_API_URL", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("missing file should yield defaults, got %v", err)
	}
	if cfg.API.Port != 8000 {
		t.Errorf("API.Port = %d", cfg.API.Port)
	}

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 5000\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d", cfg.Server.Port)
	}
}
