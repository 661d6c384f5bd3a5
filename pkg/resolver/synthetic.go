// Copyright 2025-2026 Tigro14

package resolver

import (
	"hash/fnv"

	"github.com/Tigro14/meshbot-sub004/pkg/mesh"
)

// syntheticCollision is the fixed remap target when a name checksum lands
// on a reserved value. It is itself non-reserved.
const syntheticCollision uint32 = 0x00000001

// SyntheticID derives a deterministic 32-bit node ID from a display name.
// The same name always yields the same ID, so repeated sightings of a
// name-only sender resolve consistently. Results never collide with the
// zero, broadcast, or local-unknown reserved values.
func SyntheticID(name string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	id := h.Sum32()
	switch id {
	case 0, mesh.Broadcast, mesh.LocalUnknown:
		return syntheticCollision
	}
	return id
}
