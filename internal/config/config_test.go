package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
	open, close, err := cfg.SessionMinutes()
	if err != nil {
		t.Fatalf("session minutes: %v", err)
	}
	if open != 9*60+30 || close != 16*60 {
		t.Errorf("session = %d..%d, want 570..960", open, close)
	}
	if _, ok := cfg.Contracts["ES"]; !ok {
		t.Error("default contracts should include ES")
	}
	if cfg.Scan.Timeout != 2*time.Minute {
		t.Errorf("scan timeout = %v, want 2m", cfg.Scan.Timeout)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("missing file should fall back to defaults: %v", err)
	}
	if cfg.Store.Path != "backscan.db" {
		t.Errorf("store path = %q, want default", cfg.Store.Path)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	yaml := `
store:
  path: /tmp/custom.db
session:
  open: "08:00"
  close: "15:00"
  location: UTC
contracts:
  CL:
    point_value: 1000
    tick_size: 0.01
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store.Path != "/tmp/custom.db" {
		t.Errorf("store path = %q", cfg.Store.Path)
	}
	open, close, err := cfg.SessionMinutes()
	if err != nil {
		t.Fatalf("session minutes: %v", err)
	}
	if open != 480 || close != 900 {
		t.Errorf("session = %d..%d, want 480..900", open, close)
	}
	if spec, ok := cfg.Contracts["CL"]; !ok || spec.PointValue != 1000 {
		t.Errorf("contracts not merged from file: %+v", cfg.Contracts)
	}
	// Untouched sections keep their defaults.
	if cfg.Provider.RateLimit != 30 {
		t.Errorf("provider rate limit = %d, want default 30", cfg.Provider.RateLimit)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("BACKSCAN_DB", "/tmp/env.db")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store.Path != "/tmp/env.db" {
		t.Errorf("store path = %q, want env override", cfg.Store.Path)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty store path", func(c *Config) { c.Store.Path = "" }},
		{"bad session open", func(c *Config) { c.Session.Open = "930" }},
		{"close before open", func(c *Config) { c.Session.Open = "16:00"; c.Session.Close = "09:30" }},
		{"bad location", func(c *Config) { c.Session.Location = "Mars/Olympus" }},
		{"no contracts", func(c *Config) { c.Contracts = nil }},
		{"nonpositive point value", func(c *Config) {
			spec := c.Contracts["ES"]
			spec.PointValue = 0
			c.Contracts["ES"] = spec
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"09:30", 570, true},
		{"00:00", 0, true},
		{"23:59", 1439, true},
		{"24:00", 0, false},
		{"09:60", 0, false},
		{"late", 0, false},
	}
	for _, tt := range tests {
		got, err := parseClock(tt.in)
		if tt.ok && (err != nil || got != tt.want) {
			t.Errorf("parseClock(%q) = (%d, %v), want %d", tt.in, got, err, tt.want)
		}
		if !tt.ok && err == nil {
			t.Errorf("parseClock(%q) should error", tt.in)
		}
	}
}
