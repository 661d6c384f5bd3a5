// Copyright 2025-2026 Tigro14

// Package transport owns the physical links to the two mesh radios: serial
// or TCP per network, pre-flight conflict detection, the reconnection
// state machine, and silence-based health checking.
package transport

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/Tigro14/meshbot-sub004/pkg/mesh"
)

// Mode selects the physical transport type.
type Mode int

const (
	ModeSerial Mode = iota
	ModeTCP
)

func (m Mode) String() string {
	if m == ModeTCP {
		return "tcp"
	}
	return "serial"
}

// Status is the connection state of one managed transport. Exactly one
// transition path leads to Connected; SilentDegraded is only reachable
// from Connected and always leads to Reconnecting.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusSilentDegraded
	StatusReconnecting
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusSilentDegraded:
		return "silent_degraded"
	case StatusReconnecting:
		return "reconnecting"
	case StatusFailed:
		return "failed"
	default:
		return "disconnected"
	}
}

// ErrReadTimeout is returned by Transport.Read when the bounded poll
// timeout elapses with no data. Callers must retry the read; treating a
// timeout as "no data" would silently drop bytes arriving right after the
// timeout fires.
var ErrReadTimeout = errors.New("transport: read timed out")

// Transport is an open physical link. Read blocks for at most the
// configured poll timeout.
type Transport interface {
	io.ReadWriteCloser
}

// Config describes one network's transport.
type Config struct {
	Network mesh.Network
	Mode    Mode

	// Serial.
	Device   string
	BaudRate int

	// TCP.
	Host string
	Port int

	// Health checking. SilenceTimeout must not be an exact integer
	// multiple of HealthInterval; pkg/config validates the ratio.
	HealthInterval time.Duration
	SilenceTimeout time.Duration

	// ScheduledReconnect proactively reconnects on this cadence,
	// independent of silence detection. Zero or negative disables it.
	ScheduledReconnect time.Duration

	// Serial lock handling.
	LockRetries   int
	LockRetryWait time.Duration

	// Bounded poll timeout for reads. Short so shutdown stays prompt.
	ReadTimeout time.Duration
}

func (c *Config) readTimeout() time.Duration {
	if c.ReadTimeout <= 0 {
		return 500 * time.Millisecond
	}
	return c.ReadTimeout
}

// Dialer opens a transport for a config. Injected so tests can supply
// fakes; Dial is the production implementation.
type Dialer func(ctx context.Context, cfg Config) (Transport, error)

// Dial opens the configured transport, applying the serial lock-retry
// policy for serial ports.
func Dial(ctx context.Context, cfg Config) (Transport, error) {
	if cfg.Mode == ModeTCP {
		return dialTCP(ctx, cfg)
	}
	return dialSerial(cfg)
}
