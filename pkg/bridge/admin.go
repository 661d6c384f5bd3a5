// Copyright 2025-2026 Tigro14

package bridge

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/mux"

	"github.com/Tigro14/meshbot-sub004/pkg/transport"
)

// statusResponse is the body of GET /api/status.
type statusResponse struct {
	Networks     []networkStatus `json:"networks"`
	DedupEntries int             `json:"dedup_entries"`
}

type networkStatus struct {
	transport.Stats
	PacketCount int64 `json:"packet_count"`
}

// nodeEntry is one element of GET /api/nodes.
type nodeEntry struct {
	ID           string    `json:"id"`
	DisplayName  string    `json:"display_name,omitempty"`
	ShortName    string    `json:"short_name,omitempty"`
	PublicKeyHex string    `json:"public_key,omitempty"`
	Hardware     string    `json:"hardware,omitempty"`
	Source       string    `json:"source"`
	LastSeen     time.Time `json:"last_seen"`
}

func (b *Bridge) adminHandler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/api/status", b.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/nodes", b.handleNodes).Methods(http.MethodGet)
	return r
}

func (b *Bridge) startAdminAPI() {
	b.admin = &http.Server{
		Addr:         b.cfg.AdminAPIAddr,
		Handler:      b.adminHandler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		b.log.Info().Str("addr", b.cfg.AdminAPIAddr).Msg("Starting admin API")
		if err := b.admin.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			b.log.Error().Err(err).Msg("Admin API error")
		}
	}()
}

func (b *Bridge) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{DedupEntries: b.dedup.Len()}
	for network, m := range b.managers {
		count, err := b.store.PacketCount(r.Context(), network)
		if err != nil {
			b.log.Warn().Err(err).Msg("Packet count query failed")
		}
		resp.Networks = append(resp.Networks, networkStatus{
			Stats:       m.Stats(),
			PacketCount: count,
		})
	}
	sort.Slice(resp.Networks, func(i, j int) bool {
		return resp.Networks[i].Network < resp.Networks[j].Network
	})
	writeJSON(w, b, resp)
}

func (b *Bridge) handleNodes(w http.ResponseWriter, r *http.Request) {
	idents := b.res.Snapshot()
	nodes := make([]nodeEntry, 0, len(idents))
	for _, ident := range idents {
		nodes = append(nodes, nodeEntry{
			ID:           fmt.Sprintf("!%08x", ident.ID),
			DisplayName:  ident.DisplayName,
			ShortName:    ident.ShortName,
			PublicKeyHex: ident.PublicKeyHex,
			Hardware:     ident.Hardware,
			Source:       ident.Source.String(),
			LastSeen:     ident.LastSeen,
		})
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	writeJSON(w, b, nodes)
}

func writeJSON(w http.ResponseWriter, b *Bridge, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		b.log.Warn().Err(err).Msg("Failed to encode admin response")
	}
}
