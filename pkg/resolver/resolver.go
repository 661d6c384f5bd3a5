// Copyright 2025-2026 Tigro14

// Package resolver maps partial sender identities (key prefixes, numeric
// IDs, display names) onto stable 32-bit node IDs, with a deterministic
// synthetic fallback when no real identifier is available.
package resolver

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Tigro14/meshbot-sub004/pkg/mesh"
)

// Directory is the live contact directory the event-oriented network
// exposes. The packet-oriented network has no equivalent, so a nil
// Directory is valid.
type Directory interface {
	// ContactByKeyPrefix looks up a contact whose public key starts with
	// the given hex prefix.
	ContactByKeyPrefix(ctx context.Context, prefix string) (*mesh.NodeIdentity, error)
	// Contacts lists all known contacts.
	Contacts(ctx context.Context) ([]*mesh.NodeIdentity, error)
}

// Store persists resolved identities. Implemented by pkg/storage.
type Store interface {
	SaveNodeIdentity(ctx context.Context, ident *mesh.NodeIdentity) error
	LoadNodeIdentities(ctx context.Context) ([]*mesh.NodeIdentity, error)
}

// Resolver owns the in-memory node identity cache. Single-writer
// discipline: the pipeline goroutine mutates, the admin API and router
// read through the RWMutex.
type Resolver struct {
	mu      sync.RWMutex
	byID    map[uint32]*mesh.NodeIdentity
	byName  map[string]uint32
	dir     Directory
	store   Store
	log     zerolog.Logger
	nowFunc func() time.Time
}

// New creates a Resolver. dir and store may be nil; the corresponding
// tiers are skipped.
func New(dir Directory, store Store, log zerolog.Logger) *Resolver {
	return &Resolver{
		byID:    make(map[uint32]*mesh.NodeIdentity),
		byName:  make(map[string]uint32),
		dir:     dir,
		store:   store,
		log:     log.With().Str("component", "resolver").Logger(),
		nowFunc: time.Now,
	}
}

// Load populates the cache from the persistence store. Called once at
// startup; errors are returned so the caller can decide whether a cold
// cache is acceptable.
func (r *Resolver) Load(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	idents, err := r.store.LoadNodeIdentities(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ident := range idents {
		r.insertLocked(ident)
	}
	r.log.Info().Int("count", len(idents)).Msg("Loaded node identities")
	return nil
}

func (r *Resolver) insertLocked(ident *mesh.NodeIdentity) {
	r.byID[ident.ID] = ident
	if ident.DisplayName != "" {
		r.byName[strings.ToLower(ident.DisplayName)] = ident.ID
	}
	if ident.ShortName != "" {
		r.byName[strings.ToLower(ident.ShortName)] = ident.ID
	}
}

// Lookup returns the cached identity for an ID, if any.
func (r *Resolver) Lookup(id uint32) (*mesh.NodeIdentity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ident, ok := r.byID[id]
	return ident, ok
}

// Known reports whether the node ID has been seen before. Sentinel values
// are never "known".
func (r *Resolver) Known(id uint32) bool {
	if id == 0 || id == mesh.Broadcast || id == mesh.LocalUnknown {
		return false
	}
	_, ok := r.Lookup(id)
	return ok
}

// Upsert records a sighting of an identity, creating or updating the cache
// entry and persisting it. Existing fields are only overwritten by
// non-empty new values, so a later partial sighting never erases data.
func (r *Resolver) Upsert(ctx context.Context, ident *mesh.NodeIdentity) {
	if ident.ID == 0 || ident.ID == mesh.Broadcast {
		return
	}
	if ident.LastSeen.IsZero() {
		ident.LastSeen = r.nowFunc()
	}

	r.mu.Lock()
	existing, ok := r.byID[ident.ID]
	if ok {
		if ident.DisplayName != "" {
			existing.DisplayName = ident.DisplayName
		}
		if ident.ShortName != "" {
			existing.ShortName = ident.ShortName
		}
		if ident.PublicKeyHex != "" {
			existing.PublicKeyHex = ident.PublicKeyHex
		}
		if ident.Hardware != "" {
			existing.Hardware = ident.Hardware
		}
		existing.LastSeen = ident.LastSeen
		ident = existing
	}
	r.insertLocked(ident)
	// Persist a snapshot taken under the lock; the cached pointer keeps
	// mutating as sightings arrive.
	snapshot := *ident
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.SaveNodeIdentity(ctx, &snapshot); err != nil {
			r.log.Warn().Err(err).
				Uint32("node_id", snapshot.ID).
				Msg("Failed to persist node identity")
		}
	}
}

// Resolve maps a partial identifier and optional display name to a node
// ID. Tiers are tried in order, first success wins:
//
//  1. exact cache match on the raw identifier
//  2. format-normalized match (decimal, hex with/without the
//     conventional '!' prefix, public key suffix)
//  3. live directory query by key prefix, with cache writeback
//  4. deterministic synthetic ID from the display name
//  5. the broadcast sentinel as an explicit "unknown" result
//
// Falling back to Broadcast is a soft-degraded outcome, not an error.
func (r *Resolver) Resolve(ctx context.Context, raw, displayName string) uint32 {
	raw = strings.TrimSpace(raw)

	if id, ok := r.exactMatch(raw); ok {
		r.touch(ctx, id)
		return id
	}
	if id, ok := r.normalizedMatch(raw); ok {
		r.touch(ctx, id)
		return id
	}
	if id, ok := r.directoryQuery(ctx, raw); ok {
		return id
	}
	if displayName != "" {
		id := SyntheticID(displayName)
		r.Upsert(ctx, &mesh.NodeIdentity{
			ID:          id,
			DisplayName: displayName,
			Source:      mesh.SourceSynthetic,
		})
		r.log.Debug().
			Str("name", displayName).
			Uint32("node_id", id).
			Msg("Derived synthetic node ID")
		return id
	}

	r.log.Debug().Str("raw", raw).Msg("Identity unresolved, using broadcast sentinel")
	return mesh.Broadcast
}

func (r *Resolver) exactMatch(raw string) (uint32, bool) {
	if raw == "" {
		return 0, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id, ok := r.byName[strings.ToLower(raw)]; ok {
		return id, true
	}
	return 0, false
}

func (r *Resolver) normalizedMatch(raw string) (uint32, bool) {
	if raw == "" {
		return 0, false
	}

	// Decimal node number.
	if n, err := strconv.ParseUint(raw, 10, 32); err == nil {
		if r.Known(uint32(n)) {
			return uint32(n), true
		}
	}

	// Hex, with or without the conventional '!' prefix.
	hexRaw := strings.TrimPrefix(strings.ToLower(raw), "!")
	if n, err := strconv.ParseUint(hexRaw, 16, 32); err == nil {
		if r.Known(uint32(n)) {
			return uint32(n), true
		}
	}

	// Trailing hex characters of a stored public key.
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, ident := range r.byID {
		if mesh.KeyHasSuffix(ident.PublicKeyHex, hexRaw) {
			return id, true
		}
	}
	return 0, false
}

func (r *Resolver) directoryQuery(ctx context.Context, raw string) (uint32, bool) {
	if r.dir == nil || raw == "" {
		return 0, false
	}
	prefix, err := mesh.KeyToHex(raw)
	if err != nil {
		// Not key material; nothing to query with.
		prefix = strings.ToLower(strings.TrimPrefix(raw, "!"))
	}
	ident, err := r.dir.ContactByKeyPrefix(ctx, prefix)
	if err != nil || ident == nil {
		if err != nil {
			r.log.Debug().Err(err).Str("prefix", prefix).Msg("Directory query failed")
		}
		return 0, false
	}
	ident.Source = mesh.SourceLiveQuery
	r.Upsert(ctx, ident)
	// The live query added a contact the directory did not have indexed;
	// flag it for reload so subsequent lookups see the entry.
	MarkDirectoryDirty(r.dir, r.log)
	r.log.Info().
		Uint32("node_id", ident.ID).
		Str("name", ident.DisplayName).
		Msg("Resolved identity via live directory query")
	return ident.ID, true
}

// touch updates LastSeen for a known node.
func (r *Resolver) touch(ctx context.Context, id uint32) {
	r.mu.Lock()
	ident, ok := r.byID[id]
	var snapshot mesh.NodeIdentity
	if ok {
		ident.LastSeen = r.nowFunc()
		snapshot = *ident
	}
	r.mu.Unlock()

	if !ok || r.store == nil {
		return
	}
	if err := r.store.SaveNodeIdentity(ctx, &snapshot); err != nil {
		r.log.Warn().Err(err).Uint32("node_id", id).Msg("Failed to persist sighting")
	}
}

// Snapshot returns a copy of all cached identities, for the admin API.
func (r *Resolver) Snapshot() []mesh.NodeIdentity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]mesh.NodeIdentity, 0, len(r.byID))
	for _, ident := range r.byID {
		out = append(out, *ident)
	}
	return out
}
