// Copyright 2025-2026 Tigro14

package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Tigro14/meshbot-sub004/pkg/mesh"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestIdentityRoundTrip(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	want := &mesh.NodeIdentity{
		ID:           0x11223344,
		DisplayName:  "Ridge Repeater",
		ShortName:    "RDGE",
		PublicKeyHex: "a1b2c3d4",
		Hardware:     "rak4631",
		Source:       mesh.SourceLiveQuery,
		LastSeen:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := s.SaveNodeIdentity(ctx, want); err != nil {
		t.Fatalf("SaveNodeIdentity: %v", err)
	}

	got, err := s.LoadNodeIdentities(ctx)
	if err != nil {
		t.Fatalf("LoadNodeIdentities: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 identity, got %d", len(got))
	}
	if got[0].ID != want.ID || got[0].DisplayName != want.DisplayName ||
		got[0].ShortName != want.ShortName || got[0].PublicKeyHex != want.PublicKeyHex ||
		got[0].Hardware != want.Hardware || got[0].Source != want.Source {
		t.Errorf("loaded identity differs: %+v", got[0])
	}
	if !got[0].LastSeen.Equal(want.LastSeen) {
		t.Errorf("LastSeen: got %v, want %v", got[0].LastSeen, want.LastSeen)
	}
}

func TestIdentityUpsertNeverErases(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.SaveNodeIdentity(ctx, &mesh.NodeIdentity{
		ID:           0x55,
		DisplayName:  "Full Name",
		PublicKeyHex: "deadbeef",
		LastSeen:     time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}); err != nil {
		t.Fatalf("first save: %v", err)
	}

	// A later partial sighting: no name, no key.
	if err := s.SaveNodeIdentity(ctx, &mesh.NodeIdentity{
		ID:       0x55,
		Hardware: "tbeam",
		LastSeen: time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC),
	}); err != nil {
		t.Fatalf("second save: %v", err)
	}

	got, err := s.LoadNodeIdentities(ctx)
	if err != nil {
		t.Fatalf("LoadNodeIdentities: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 identity, got %d", len(got))
	}
	if got[0].DisplayName != "Full Name" || got[0].PublicKeyHex != "deadbeef" {
		t.Errorf("partial sighting erased fields: %+v", got[0])
	}
	if got[0].Hardware != "tbeam" {
		t.Errorf("new field not merged: %+v", got[0])
	}
	if got[0].LastSeen.Hour() != 11 {
		t.Errorf("last_seen should advance: %v", got[0].LastSeen)
	}
}

func TestIdentityFirstSeenKeepsEarliest(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	early := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	late := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for _, seen := range []time.Time{late, early, late} {
		if err := s.SaveNodeIdentity(ctx, &mesh.NodeIdentity{ID: 0x77, LastSeen: seen}); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	var firstSeen, lastSeen int64
	err := s.db.QueryRow(`SELECT first_seen, last_seen FROM node_identities WHERE node_id = ?`, 0x77).
		Scan(&firstSeen, &lastSeen)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if firstSeen != early.Unix() {
		t.Errorf("first_seen: got %d, want %d", firstSeen, early.Unix())
	}
	if lastSeen != late.Unix() {
		t.Errorf("last_seen: got %d, want %d", lastSeen, late.Unix())
	}
}

func TestNeighborObservations(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		err := s.SaveNeighborObservation(ctx, &NeighborObservation{
			NodeID:     0xAA,
			NeighborID: uint32(0xB0 + i),
			SNR:        -3.5,
			RSSI:       -100 - i,
			ObservedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("SaveNeighborObservation: %v", err)
		}
	}

	got, err := s.NeighborObservations(ctx, 0xAA, 2)
	if err != nil {
		t.Fatalf("NeighborObservations: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("limit ignored: got %d rows", len(got))
	}
	if got[0].NeighborID != 0xB2 {
		t.Errorf("newest first: got neighbor %#x", got[0].NeighborID)
	}

	other, err := s.NeighborObservations(ctx, 0xCC, 10)
	if err != nil {
		t.Fatalf("NeighborObservations: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("unrelated node should have no observations, got %d", len(other))
	}
}

func TestRecordPacketAndCount(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	packets := []*mesh.Packet{
		{Origin: mesh.NetMeshtastic, FromID: 1, ToID: mesh.Broadcast, Kind: mesh.KindText,
			Text: "hello", Classification: mesh.ClassBroadcast, ReceivedAt: time.Now()},
		{Origin: mesh.NetMeshtastic, FromID: 2, ToID: 3, Kind: mesh.KindOther,
			Classification: mesh.ClassForeignDM, ReceivedAt: time.Now()},
		{Origin: mesh.NetMeshCore, FromID: 4, ToID: mesh.Broadcast, Kind: mesh.KindText,
			Text: "hi", Classification: mesh.ClassBroadcast, ReceivedAt: time.Now()},
	}
	for _, p := range packets {
		if err := s.RecordPacket(ctx, p); err != nil {
			t.Fatalf("RecordPacket: %v", err)
		}
	}

	n, err := s.PacketCount(ctx, mesh.NetMeshtastic)
	if err != nil {
		t.Fatalf("PacketCount: %v", err)
	}
	if n != 2 {
		t.Errorf("packet count: got %d, want 2", n)
	}
}
