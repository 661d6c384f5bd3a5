// Copyright 2025-2026 Tigro14

package transport

import (
	"errors"
	"fmt"
	"path/filepath"
)

// ErrPortConflict means two configured serial transports resolve to the
// same physical device. Detected before any transport is opened so the
// failure mode is a clear startup error, not two networks fighting over
// one port.
var ErrPortConflict = errors.New("transport: serial port conflict")

// normalizeDevicePath resolves a device path to its symlink-free absolute
// form. Udev aliases like /dev/serial/by-id/... link to the real tty, so a
// plain string comparison is not enough.
func normalizeDevicePath(device string) string {
	abs, err := filepath.Abs(device)
	if err != nil {
		return filepath.Clean(device)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		// Device may not exist yet (it is opened later); compare the
		// cleaned absolute path instead.
		return abs
	}
	return resolved
}

// Preflight fails fast when two serial configs point at the same device.
// TCP transports and single-transport setups pass trivially.
func Preflight(configs []Config) error {
	seen := make(map[string]Config)
	for _, cfg := range configs {
		if cfg.Mode != ModeSerial {
			continue
		}
		resolved := normalizeDevicePath(cfg.Device)
		if prev, ok := seen[resolved]; ok {
			return fmt.Errorf("%w: networks %s and %s both resolve to %s (configured as %q and %q)",
				ErrPortConflict, prev.Network, cfg.Network, resolved, prev.Device, cfg.Device)
		}
		seen[resolved] = cfg
	}
	return nil
}
