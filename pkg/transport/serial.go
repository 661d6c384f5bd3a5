// Copyright 2025-2026 Tigro14

package transport

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.bug.st/serial"
)

// serialPort is the subset of serial.Port the transport layer uses.
// Narrowed so tests can fake it without implementing the full interface.
type serialPort interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// portOpener abstracts serial.Open for tests.
type portOpener func(device string, mode *serial.Mode) (serialPort, error)

func openRealPort(device string, mode *serial.Mode) (serialPort, error) {
	return serial.Open(device, mode)
}

// isLockError reports whether a serial open failure means the port is
// exclusively locked by another process. Lock errors are retried; anything
// else (permission, missing device) fails immediately.
func isLockError(err error) bool {
	var portErr *serial.PortError
	if errors.As(err, &portErr) {
		return portErr.Code() == serial.PortBusy
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "resource busy") ||
		strings.Contains(msg, "device busy") ||
		strings.Contains(msg, "exclusively locked")
}

// openSerialWithRetry opens a serial device, retrying lock errors up to
// cfg.LockRetries times with a fixed delay. Permission and not-found
// errors are returned on the first attempt.
func openSerialWithRetry(cfg Config, open portOpener, sleep func(time.Duration)) (serialPort, error) {
	mode := &serial.Mode{BaudRate: cfg.BaudRate}
	if mode.BaudRate <= 0 {
		mode.BaudRate = 115200
	}

	retries := cfg.LockRetries
	if retries < 0 {
		retries = 0
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			sleep(cfg.LockRetryWait)
		}
		port, err := open(cfg.Device, mode)
		if err == nil {
			return port, nil
		}
		if !isLockError(err) {
			return nil, fmt.Errorf("open %s: %w", cfg.Device, err)
		}
		lastErr = err
	}
	return nil, fmt.Errorf("open %s: still locked after %d retries: %w", cfg.Device, retries, lastErr)
}

// serialTransport wraps an open port with bounded-poll read semantics.
type serialTransport struct {
	port serialPort
}

func dialSerial(cfg Config) (Transport, error) {
	port, err := openSerialWithRetry(cfg, openRealPort, time.Sleep)
	if err != nil {
		return nil, err
	}
	if err := port.SetReadTimeout(cfg.readTimeout()); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", cfg.Device, err)
	}
	return &serialTransport{port: port}, nil
}

// Read maps the library's timeout convention (0 bytes, nil error) onto
// ErrReadTimeout so the receive loop can distinguish "poll again" from
// "empty read".
func (s *serialTransport) Read(p []byte) (int, error) {
	n, err := s.port.Read(p)
	if err != nil {
		return n, err
	}
	if n == 0 {
		return 0, ErrReadTimeout
	}
	return n, nil
}

func (s *serialTransport) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

func (s *serialTransport) Close() error {
	return s.port.Close()
}
