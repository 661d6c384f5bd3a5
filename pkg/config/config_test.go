// Copyright 2025-2026 Tigro14

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Tigro14/meshbot-sub004/pkg/mesh"
	"github.com/Tigro14/meshbot-sub004/pkg/transport"
)

func validConfig() *Config {
	return &Config{
		Meshtastic: NetworkConfig{
			Enabled: true,
			Mode:    "serial",
			Device:  "/dev/ttyUSB0",
		},
		MeshCore: NetworkConfig{
			Enabled: true,
			Mode:    "tcp",
			Host:    "127.0.0.1",
			Port:    5000,
		},
	}
}

func TestExampleConfigParsesAndValidates(t *testing.T) {
	t.Parallel()
	var cfg Config
	if err := yaml.Unmarshal([]byte(ExampleConfig), &cfg); err != nil {
		t.Fatalf("example config does not parse: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("example config does not validate: %v", err)
	}
	if cfg.Meshtastic.Device != "/dev/ttyUSB0" {
		t.Errorf("Device: %q", cfg.Meshtastic.Device)
	}
	if cfg.MeshCore.Port != 5000 {
		t.Errorf("Port: %d", cfg.MeshCore.Port)
	}
}

func TestValidateAppliesDefaults(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Meshtastic.HealthInterval != DefaultHealthInterval {
		t.Errorf("HealthInterval default: %s", cfg.Meshtastic.HealthInterval)
	}
	if cfg.Meshtastic.SilenceTimeout != DefaultSilenceTimeout {
		t.Errorf("SilenceTimeout default: %s", cfg.Meshtastic.SilenceTimeout)
	}
	if cfg.Meshtastic.BaudRate != DefaultBaudRate {
		t.Errorf("BaudRate default: %d", cfg.Meshtastic.BaudRate)
	}
	if cfg.DedupWindow != DefaultDedupWindow {
		t.Errorf("DedupWindow default: %s", cfg.DedupWindow)
	}
	if cfg.AdminAPIAddr != DefaultAdminAddr {
		t.Errorf("AdminAPIAddr default: %q", cfg.AdminAPIAddr)
	}
}

func TestHealthRatioValidation(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		interval time.Duration
		timeout  time.Duration
		wantErr  bool
	}{
		{"exact multiple rejected", 15 * time.Second, 90 * time.Second, true},
		{"non-integer margin accepted", 15 * time.Second, 98 * time.Second, false},
		{"small fraction rejected", 30 * time.Second, 122 * time.Second, true},
		{"default pair accepted", DefaultHealthInterval, DefaultSilenceTimeout, false},
		{"timeout below interval rejected", 30 * time.Second, 20 * time.Second, true},
		{"timeout equal to interval rejected", 30 * time.Second, 30 * time.Second, true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := validateHealthRatio(tt.interval, tt.timeout)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateHealthRatio(%s, %s) = %v, wantErr %v",
					tt.interval, tt.timeout, err, tt.wantErr)
			}
		})
	}
}

func TestHealthRatioRejectionAtValidate(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Meshtastic.HealthInterval = 15 * time.Second
	cfg.Meshtastic.SilenceTimeout = 90 * time.Second
	err := cfg.Validate()
	if err == nil {
		t.Fatal("exact-multiple ratio must fail validation")
	}
	if !strings.Contains(err.Error(), "meshtastic") {
		t.Errorf("error should name the offending network: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no network enabled", func(c *Config) {
			c.Meshtastic.Enabled = false
			c.MeshCore.Enabled = false
		}},
		{"serial without device", func(c *Config) {
			c.Meshtastic.Device = ""
		}},
		{"tcp without host", func(c *Config) {
			c.MeshCore.Host = ""
		}},
		{"unknown mode", func(c *Config) {
			c.Meshtastic.Mode = "carrier-pigeon"
		}},
		{"dedup window too short", func(c *Config) {
			c.DedupWindow = 10 * time.Second
		}},
		{"dedup window too long", func(c *Config) {
			c.DedupWindow = 5 * time.Minute
		}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestDisabledNetworkNotValidated(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.MeshCore = NetworkConfig{Enabled: false, Mode: "tcp"} // would fail if enabled
	if err := cfg.Validate(); err != nil {
		t.Errorf("disabled network must not be validated: %v", err)
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(ExampleConfig), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Meshtastic.Enabled || !cfg.MeshCore.Enabled {
		t.Error("example config enables both networks")
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file must fail")
	}
}

func TestTransportConversion(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	tc := cfg.Meshtastic.Transport(mesh.NetMeshtastic)
	if tc.Mode != transport.ModeSerial || tc.Device != "/dev/ttyUSB0" {
		t.Errorf("serial conversion: %+v", tc)
	}
	if tc.Network != mesh.NetMeshtastic {
		t.Errorf("network not carried: %v", tc.Network)
	}

	tc = cfg.MeshCore.Transport(mesh.NetMeshCore)
	if tc.Mode != transport.ModeTCP || tc.Host != "127.0.0.1" || tc.Port != 5000 {
		t.Errorf("tcp conversion: %+v", tc)
	}
	if tc.ReadTimeout != DefaultReadTimeout {
		t.Errorf("ReadTimeout not defaulted: %s", tc.ReadTimeout)
	}
}
