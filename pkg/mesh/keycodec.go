// Copyright 2025-2026 Tigro14

package mesh

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
)

// Public keys arrive from the two networks in three encodings: lowercase or
// uppercase hex, standard base64, and raw bytes. Everything is normalized
// to canonical lowercase hex before any prefix comparison.

// KeyToHex converts hex- or base64-encoded public key material to canonical
// lowercase hex. Input that already parses as hex wins; base64 is tried
// second because some base64 strings are also valid hex.
func KeyToHex(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("empty key")
	}
	if raw, err := hex.DecodeString(key); err == nil {
		return hex.EncodeToString(raw), nil
	}
	if raw, err := base64.StdEncoding.DecodeString(key); err == nil {
		return hex.EncodeToString(raw), nil
	}
	return "", fmt.Errorf("key %q is neither hex nor base64", key)
}

// KeyBytesToHex converts raw public key bytes to canonical lowercase hex.
func KeyBytesToHex(key []byte) string {
	return hex.EncodeToString(key)
}

// NodeIDFromKey derives the 32-bit node identifier from the first four
// bytes of a public key, big endian. Accepts any encoding KeyToHex does.
func NodeIDFromKey(key string) (uint32, error) {
	canonical, err := KeyToHex(key)
	if err != nil {
		return 0, err
	}
	raw, _ := hex.DecodeString(canonical)
	if len(raw) < 4 {
		return 0, fmt.Errorf("key too short: %d bytes", len(raw))
	}
	return binary.BigEndian.Uint32(raw[:4]), nil
}

// KeyHasSuffix reports whether the canonical hex form of storedKey ends
// with the given hex fragment, case-insensitively. Used to match partial
// identifiers against stored public keys.
func KeyHasSuffix(storedKeyHex, fragment string) bool {
	if storedKeyHex == "" || fragment == "" {
		return false
	}
	return strings.HasSuffix(strings.ToLower(storedKeyHex), strings.ToLower(fragment))
}
