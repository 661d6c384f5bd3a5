// Copyright 2025-2026 Tigro14

// Package dedup suppresses feedback loops between the two bridged mesh
// networks: duplicate deliveries of the same inbound event, and the local
// node's own broadcasts echoed back by a transport.
package dedup

import (
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/Tigro14/meshbot-sub004/pkg/mesh"
)

// DefaultWindow is the rolling suppression window applied when none is
// configured.
const DefaultWindow = 45 * time.Second

type entry struct {
	firstSent time.Time
	count     int
}

// Deduplicator tracks (destination, text) hashes inside a rolling time
// window. Entries are swept on every access; there is no background sweep.
// Safe for concurrent use.
type Deduplicator struct {
	mu     sync.Mutex
	window time.Duration
	table  map[uint64]*entry
	now    func() time.Time
}

// New creates a Deduplicator with the given window. A non-positive window
// falls back to DefaultWindow.
func New(window time.Duration) *Deduplicator {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Deduplicator{
		window: window,
		table:  make(map[uint64]*entry),
		now:    time.Now,
	}
}

func contentHash(destination uint32, text string) uint64 {
	var buf [4]byte
	buf[0] = byte(destination >> 24)
	buf[1] = byte(destination >> 16)
	buf[2] = byte(destination >> 8)
	buf[3] = byte(destination)
	d := xxhash.New()
	_, _ = d.Write(buf[:])
	_, _ = d.WriteString(text)
	return d.Sum64()
}

// sweep removes entries older than the window. Callers must hold mu.
func (d *Deduplicator) sweep(now time.Time) {
	for h, e := range d.table {
		if now.Sub(e.firstSent) > d.window {
			delete(d.table, h)
		}
	}
}

// ShouldSend reports whether a message with this destination and text may
// be transmitted. The first call inside a window records the pair and
// returns true; repeats inside the window return false, collapsing retry
// storms into at most one transmission.
func (d *Deduplicator) ShouldSend(destination uint32, text string) bool {
	h := contentHash(destination, text)

	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	d.sweep(now)

	if e, ok := d.table[h]; ok {
		e.count++
		return false
	}
	d.table[h] = &entry{firstSent: now, count: 1}
	return true
}

// IsOwnBroadcast reports whether broadcast text observed on the receive
// path matches something the bridge itself transmitted inside the window.
// Dedup state is keyed on broadcast traffic only: a direct message with
// text identical to a recent broadcast must never be suppressed, so
// callers only consult this for channel traffic.
//
// Two different nodes broadcasting byte-identical text inside the same
// window are indistinguishable from an echo here; that collision is an
// accepted approximation.
func (d *Deduplicator) IsOwnBroadcast(text string) bool {
	h := contentHash(mesh.Broadcast, text)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.sweep(d.now())

	e, ok := d.table[h]
	if ok {
		e.count++
	}
	return ok
}

// ShouldDropSelf implements the asymmetric self-origin rule: a packet whose
// sender is the local node is dropped by identity alone only when it is a
// direct message. Self-originated broadcasts are left to the content-hash
// check, because some transports legitimately echo the local node's own
// public-channel traffic back for traffic accounting.
func ShouldDropSelf(p *mesh.Packet, localID uint32) bool {
	if localID == 0 || p.FromID != localID {
		return false
	}
	return p.IsDirectMessage
}

// Len returns the number of live entries after a sweep. Used by the admin
// status endpoint and tests.
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sweep(d.now())
	return len(d.table)
}
