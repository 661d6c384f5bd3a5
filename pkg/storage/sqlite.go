// Copyright 2025-2026 Tigro14

// Package storage persists node identities, neighbor observations and
// packet history in a SQLite database. It implements the resolver's Store
// interface and the router's Recorder interface.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	// SQLite driver registration.
	_ "github.com/mattn/go-sqlite3"

	"github.com/Tigro14/meshbot-sub004/pkg/mesh"
)

const schema = `
CREATE TABLE IF NOT EXISTS node_identities (
	node_id        INTEGER PRIMARY KEY,
	display_name   TEXT NOT NULL DEFAULT '',
	short_name     TEXT NOT NULL DEFAULT '',
	public_key_hex TEXT NOT NULL DEFAULT '',
	hardware       TEXT NOT NULL DEFAULT '',
	source         INTEGER NOT NULL DEFAULT 0,
	first_seen     INTEGER NOT NULL,
	last_seen      INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS neighbor_observations (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	node_id     INTEGER NOT NULL,
	neighbor_id INTEGER NOT NULL,
	snr         REAL NOT NULL,
	rssi        INTEGER NOT NULL,
	observed_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_neighbor_node ON neighbor_observations (node_id, observed_at);

CREATE TABLE IF NOT EXISTS packet_history (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	network        TEXT NOT NULL,
	from_id        INTEGER NOT NULL,
	to_id          INTEGER NOT NULL,
	channel        INTEGER NOT NULL,
	kind           TEXT NOT NULL,
	classification TEXT NOT NULL,
	text           TEXT NOT NULL DEFAULT '',
	snr            REAL NOT NULL,
	rssi           INTEGER NOT NULL,
	hops           INTEGER NOT NULL,
	received_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_packet_received ON packet_history (received_at);
`

// Upsert that never erases identity data: empty incoming fields keep the
// stored value, first_seen keeps the earliest timestamp.
const upsertIdentity = `
INSERT INTO node_identities
	(node_id, display_name, short_name, public_key_hex, hardware, source, first_seen, last_seen)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (node_id) DO UPDATE SET
	display_name   = CASE WHEN excluded.display_name != '' THEN excluded.display_name ELSE node_identities.display_name END,
	short_name     = CASE WHEN excluded.short_name != '' THEN excluded.short_name ELSE node_identities.short_name END,
	public_key_hex = CASE WHEN excluded.public_key_hex != '' THEN excluded.public_key_hex ELSE node_identities.public_key_hex END,
	hardware       = CASE WHEN excluded.hardware != '' THEN excluded.hardware ELSE node_identities.hardware END,
	source         = excluded.source,
	first_seen     = MIN(node_identities.first_seen, excluded.first_seen),
	last_seen      = MAX(node_identities.last_seen, excluded.last_seen)
`

// NeighborObservation is one sighting of a neighbor's signal quality.
type NeighborObservation struct {
	NodeID     uint32
	NeighborID uint32
	SNR        float64
	RSSI       int
	ObservedAt time.Time
}

// Store is a SQLite-backed persistence layer. All methods are safe for
// concurrent use; database/sql serializes access to the underlying
// connection.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open opens (creating if necessary) the database at path and applies the
// schema. Use ":memory:" for an ephemeral store.
func Open(path string, log zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", path, err)
	}
	// SQLite handles one writer at a time; keep a single connection so
	// WAL busy handling stays predictable.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &Store{
		db:  db,
		log: log.With().Str("component", "storage").Logger(),
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveNodeIdentity upserts an identity. Non-empty incoming fields win;
// empty ones never erase previously stored values.
func (s *Store) SaveNodeIdentity(ctx context.Context, ident *mesh.NodeIdentity) error {
	seen := ident.LastSeen
	if seen.IsZero() {
		seen = time.Now()
	}
	_, err := s.db.ExecContext(ctx, upsertIdentity,
		int64(ident.ID),
		ident.DisplayName,
		ident.ShortName,
		ident.PublicKeyHex,
		ident.Hardware,
		int(ident.Source),
		seen.Unix(),
		seen.Unix(),
	)
	if err != nil {
		return fmt.Errorf("saving identity %#x: %w", ident.ID, err)
	}
	return nil
}

// LoadNodeIdentities returns every stored identity, for cache warm-up at
// startup.
func (s *Store) LoadNodeIdentities(ctx context.Context) ([]*mesh.NodeIdentity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT node_id, display_name, short_name, public_key_hex, hardware, source, last_seen
		FROM node_identities`)
	if err != nil {
		return nil, fmt.Errorf("loading identities: %w", err)
	}
	defer rows.Close()

	var out []*mesh.NodeIdentity
	for rows.Next() {
		var (
			id       int64
			source   int
			lastSeen int64
			ident    mesh.NodeIdentity
		)
		if err := rows.Scan(&id, &ident.DisplayName, &ident.ShortName,
			&ident.PublicKeyHex, &ident.Hardware, &source, &lastSeen); err != nil {
			return nil, fmt.Errorf("scanning identity row: %w", err)
		}
		ident.ID = uint32(id)
		ident.Source = mesh.IdentitySource(source)
		ident.LastSeen = time.Unix(lastSeen, 0).UTC()
		out = append(out, &ident)
	}
	return out, rows.Err()
}

// SaveNeighborObservation appends one neighbor sighting.
func (s *Store) SaveNeighborObservation(ctx context.Context, obs *NeighborObservation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO neighbor_observations (node_id, neighbor_id, snr, rssi, observed_at)
		VALUES (?, ?, ?, ?, ?)`,
		int64(obs.NodeID), int64(obs.NeighborID), obs.SNR, obs.RSSI, obs.ObservedAt.Unix())
	if err != nil {
		return fmt.Errorf("saving neighbor observation: %w", err)
	}
	return nil
}

// NeighborObservations returns observations made by one node, newest
// first, capped at limit.
func (s *Store) NeighborObservations(ctx context.Context, nodeID uint32, limit int) ([]*NeighborObservation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT node_id, neighbor_id, snr, rssi, observed_at
		FROM neighbor_observations
		WHERE node_id = ?
		ORDER BY observed_at DESC
		LIMIT ?`, int64(nodeID), limit)
	if err != nil {
		return nil, fmt.Errorf("loading neighbor observations: %w", err)
	}
	defer rows.Close()

	var out []*NeighborObservation
	for rows.Next() {
		var (
			node, neighbor, at int64
			obs                NeighborObservation
		)
		if err := rows.Scan(&node, &neighbor, &obs.SNR, &obs.RSSI, &at); err != nil {
			return nil, fmt.Errorf("scanning observation row: %w", err)
		}
		obs.NodeID = uint32(node)
		obs.NeighborID = uint32(neighbor)
		obs.ObservedAt = time.Unix(at, 0).UTC()
		out = append(out, &obs)
	}
	return out, rows.Err()
}

// RecordPacket appends a packet to the traffic history. Implements the
// router's Recorder interface.
func (s *Store) RecordPacket(ctx context.Context, p *mesh.Packet) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO packet_history
			(network, from_id, to_id, channel, kind, classification, text, snr, rssi, hops, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Origin.String(),
		int64(p.FromID), int64(p.ToID),
		p.Channel,
		p.Kind.String(),
		p.Classification.String(),
		p.Text,
		p.SNR, p.RSSI,
		p.HopsTraveled(),
		p.ReceivedAt.Unix())
	if err != nil {
		return fmt.Errorf("recording packet: %w", err)
	}
	return nil
}

// PacketCount returns the number of stored packets for one network, for
// the admin status endpoint.
func (s *Store) PacketCount(ctx context.Context, network mesh.Network) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM packet_history WHERE network = ?`, network.String()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting packets: %w", err)
	}
	return n, nil
}
