// Copyright 2025-2026 Tigro14

// Package config loads and validates the bridge's YAML configuration.
// Validation is deliberately strict: misconfigurations that would degrade
// silence detection or corrupt transport ownership are startup failures,
// not warnings.
package config

import (
	_ "embed"
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Tigro14/meshbot-sub004/pkg/mesh"
	"github.com/Tigro14/meshbot-sub004/pkg/transport"
)

//go:embed example-config.yaml
var ExampleConfig string

// Default timing values. The silence timeout is deliberately not an exact
// multiple of the health interval; see validateHealthRatio.
const (
	DefaultHealthInterval = 30 * time.Second
	DefaultSilenceTimeout = 130 * time.Second
	DefaultLockRetries    = 3
	DefaultLockRetryWait  = 2 * time.Second
	DefaultReadTimeout    = 500 * time.Millisecond
	DefaultDedupWindow    = 45 * time.Second
	DefaultAdminAddr      = ":29321"
	DefaultBaudRate       = 115200

	minDedupWindow = 30 * time.Second
	maxDedupWindow = 60 * time.Second

	// Minimum fractional remainder of silence_timeout / health_interval.
	// An exact-multiple ratio makes the health loop observe silence up to
	// one full interval after it crossed the timeout, so detection latency
	// becomes the interval instead of near zero.
	minRatioFraction = 0.3
)

// NetworkConfig configures one network's transport.
type NetworkConfig struct {
	Enabled bool   `yaml:"enabled"`
	Mode    string `yaml:"mode"` // "serial" or "tcp"

	Device   string `yaml:"device"`
	BaudRate int    `yaml:"baud_rate"`

	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	HealthInterval     time.Duration `yaml:"health_interval"`
	SilenceTimeout     time.Duration `yaml:"silence_timeout"`
	ScheduledReconnect time.Duration `yaml:"scheduled_reconnect"`
	LockRetries        int           `yaml:"lock_retries"`
	LockRetryWait      time.Duration `yaml:"lock_retry_wait"`
	ReadTimeout        time.Duration `yaml:"read_timeout"`
}

// Config is the root configuration document.
type Config struct {
	Meshtastic NetworkConfig `yaml:"meshtastic"`
	MeshCore   NetworkConfig `yaml:"meshcore"`

	DedupWindow time.Duration `yaml:"dedup_window"`
	Database    string        `yaml:"database"`

	AdminAPIAddr string `yaml:"admin_api_addr"`

	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`
}

func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	type rawConfig Config
	return node.Decode((*rawConfig)(c))
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate applies defaults and rejects fatal misconfiguration.
func (c *Config) Validate() error {
	if !c.Meshtastic.Enabled && !c.MeshCore.Enabled {
		return fmt.Errorf("no network enabled")
	}

	if c.DedupWindow == 0 {
		c.DedupWindow = DefaultDedupWindow
	}
	if c.DedupWindow < minDedupWindow || c.DedupWindow > maxDedupWindow {
		return fmt.Errorf("dedup_window %s out of range [%s, %s]",
			c.DedupWindow, minDedupWindow, maxDedupWindow)
	}
	if c.Database == "" {
		c.Database = "meshbridge.db"
	}
	if c.AdminAPIAddr == "" {
		c.AdminAPIAddr = DefaultAdminAddr
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	for name, nc := range map[string]*NetworkConfig{
		"meshtastic": &c.Meshtastic,
		"meshcore":   &c.MeshCore,
	} {
		if !nc.Enabled {
			continue
		}
		if err := nc.validate(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func (nc *NetworkConfig) validate() error {
	switch nc.Mode {
	case "serial":
		if nc.Device == "" {
			return fmt.Errorf("serial mode requires a device path")
		}
		if nc.BaudRate == 0 {
			nc.BaudRate = DefaultBaudRate
		}
	case "tcp":
		if nc.Host == "" || nc.Port == 0 {
			return fmt.Errorf("tcp mode requires host and port")
		}
	default:
		return fmt.Errorf("unknown transport mode %q", nc.Mode)
	}

	if nc.HealthInterval == 0 {
		nc.HealthInterval = DefaultHealthInterval
	}
	if nc.SilenceTimeout == 0 {
		nc.SilenceTimeout = DefaultSilenceTimeout
	}
	if nc.LockRetries == 0 {
		nc.LockRetries = DefaultLockRetries
	}
	if nc.LockRetryWait == 0 {
		nc.LockRetryWait = DefaultLockRetryWait
	}
	if nc.ReadTimeout == 0 {
		nc.ReadTimeout = DefaultReadTimeout
	}

	return validateHealthRatio(nc.HealthInterval, nc.SilenceTimeout)
}

// validateHealthRatio rejects silence timeouts that are (close to) exact
// integer multiples of the health interval. With interval 15s, a 90s
// timeout (exact 6x) is rejected while 98s passes.
func validateHealthRatio(interval, timeout time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("health_interval must be positive, got %s", interval)
	}
	if timeout <= interval {
		return fmt.Errorf("silence_timeout %s must exceed health_interval %s", timeout, interval)
	}
	ratio := timeout.Seconds() / interval.Seconds()
	frac := ratio - math.Floor(ratio)
	if frac < minRatioFraction {
		suggested := time.Duration((math.Floor(ratio) + minRatioFraction) * interval.Seconds() * float64(time.Second))
		return fmt.Errorf(
			"silence_timeout %s is too close to an exact multiple of health_interval %s "+
				"(detection latency would be a full interval); increase it to at least %s",
			timeout, interval, suggested.Round(time.Second))
	}
	return nil
}

// Transport converts a NetworkConfig to the transport layer's Config.
func (nc *NetworkConfig) Transport(network mesh.Network) transport.Config {
	mode := transport.ModeSerial
	if nc.Mode == "tcp" {
		mode = transport.ModeTCP
	}
	return transport.Config{
		Network:            network,
		Mode:               mode,
		Device:             nc.Device,
		BaudRate:           nc.BaudRate,
		Host:               nc.Host,
		Port:               nc.Port,
		HealthInterval:     nc.HealthInterval,
		SilenceTimeout:     nc.SilenceTimeout,
		ScheduledReconnect: nc.ScheduledReconnect,
		LockRetries:        nc.LockRetries,
		LockRetryWait:      nc.LockRetryWait,
		ReadTimeout:        nc.ReadTimeout,
	}
}
