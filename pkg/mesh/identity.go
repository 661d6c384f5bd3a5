// Copyright 2025-2026 Tigro14

package mesh

import "time"

// IdentitySource records how a NodeIdentity was obtained.
type IdentitySource int

const (
	SourceCache IdentitySource = iota
	SourceLiveQuery
	SourceSynthetic
)

func (s IdentitySource) String() string {
	switch s {
	case SourceLiveQuery:
		return "live_query"
	case SourceSynthetic:
		return "synthetic"
	default:
		return "cache"
	}
}

// NodeIdentity is the resolved identity of a mesh node. Identities are
// created on first sighting and updated, never destroyed, on every
// subsequent one.
type NodeIdentity struct {
	ID           uint32
	DisplayName  string
	ShortName    string
	PublicKeyHex string
	Hardware     string
	LastSeen     time.Time
	Source       IdentitySource
}
