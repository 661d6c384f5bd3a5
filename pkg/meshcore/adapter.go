// Copyright 2025-2026 Tigro14

// Package meshcore adapts the event-oriented companion network's JSON
// events into canonical packets. Unlike the packet network, this network
// reports channel messages, direct messages, contact advertisements and
// RF-activity logs as distinct event types over one stream.
package meshcore

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/Tigro14/meshbot-sub004/pkg/mesh"
	"github.com/Tigro14/meshbot-sub004/pkg/resolver"
)

// Emitter receives normalized packets from the adapter.
type Emitter interface {
	Emit(p *mesh.Packet)
}

// Event type values produced by the node firmware.
const (
	evtChannelMessage = "channel_message"
	evtContactMessage = "contact_message"
	evtAdvertisement  = "advertisement"
	evtRxLog          = "rx_log"
)

// Adapter normalizes companion-network events. It owns the latest
// RF observation used to backfill signal data on the next message event.
type Adapter struct {
	res     *resolver.Resolver
	emitter Emitter
	log     zerolog.Logger

	mu      sync.Mutex
	lastRF  mesh.RFObservation
	localID uint32
}

// NewAdapter creates an Adapter.
func NewAdapter(res *resolver.Resolver, emitter Emitter, log zerolog.Logger) *Adapter {
	return &Adapter{
		res:     res,
		emitter: emitter,
		log:     log.With().Str("component", "meshcore_adapter").Logger(),
	}
}

// SetLocalID records the local node's ID once device info is known.
func (a *Adapter) SetLocalID(id uint32) {
	a.mu.Lock()
	a.localID = id
	a.mu.Unlock()
}

// LocalID returns the local node ID, zero while unknown.
func (a *Adapter) LocalID() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.localID
}

// HandleRaw implements transport.Sink. Each chunk is one JSON event; a
// chunk that is not valid JSON is a recoverable per-event failure.
func (a *Adapter) HandleRaw(network mesh.Network, data []byte, receivedAt time.Time) {
	if !gjson.ValidBytes(data) {
		a.log.Warn().Int("len", len(data)).Msg("Dropping non-JSON event")
		return
	}

	switch evt := field(data, "event_type").String(); evt {
	case evtChannelMessage:
		a.handleChannelMessage(data, receivedAt)
	case evtContactMessage:
		a.handleContactMessage(data, receivedAt)
	case evtAdvertisement:
		a.handleAdvertisement(data, receivedAt)
	case evtRxLog:
		a.handleRxLog(data, receivedAt)
	default:
		a.log.Trace().Str("event_type", evt).Msg("Unhandled event type")
	}
}

func (a *Adapter) resolveSender(data []byte) (uint32, string) {
	key := field(data, "sender_key").String()
	name := field(data, "sender_name").String()
	id := a.res.Resolve(context.Background(), key, name)
	if id != mesh.Broadcast && (key != "" || name != "") {
		ident := &mesh.NodeIdentity{ID: id, DisplayName: name}
		if hexKey, err := mesh.KeyToHex(key); err == nil {
			ident.PublicKeyHex = hexKey
		}
		a.res.Upsert(context.Background(), ident)
	}
	return id, name
}

func (a *Adapter) handleChannelMessage(data []byte, receivedAt time.Time) {
	fromID, name := a.resolveSender(data)

	p := &mesh.Packet{
		FromID:         fromID,
		ToID:           mesh.Broadcast,
		Channel:        int(field(data, "channel").Int()),
		SNR:            field(data, "snr").Float(),
		RSSI:           int(field(data, "rssi").Int()),
		HopStart:       int(field(data, "path_len").Int()),
		Kind:           mesh.KindText,
		Text:           field(data, "text").String(),
		ReceivedAt:     receivedAt,
		Origin:         mesh.NetMeshCore,
		SenderName:     name,
		Classification: mesh.ClassBroadcast,
	}

	a.correlateRF(p, receivedAt, field(data, "path_len").Exists())
	a.emitter.Emit(p)
}

func (a *Adapter) handleContactMessage(data []byte, receivedAt time.Time) {
	fromID, name := a.resolveSender(data)

	// Direct messages are addressed to this node; the destination on the
	// wire is the local key, never the broadcast sentinel. Stand in with
	// LocalUnknown until device info has supplied the real ID.
	toID := a.LocalID()
	if toID == 0 {
		toID = mesh.LocalUnknown
	}

	p := &mesh.Packet{
		FromID:          fromID,
		ToID:            toID,
		SNR:             field(data, "snr").Float(),
		RSSI:            int(field(data, "rssi").Int()),
		HopStart:        int(field(data, "path_len").Int()),
		Kind:            mesh.KindText,
		Text:            field(data, "text").String(),
		ReceivedAt:      receivedAt,
		Origin:          mesh.NetMeshCore,
		SenderName:      name,
		IsDirectMessage: true,
		Classification:  mesh.ClassDirectMessage,
	}

	a.correlateRF(p, receivedAt, field(data, "path_len").Exists())
	a.emitter.Emit(p)
}

// handleAdvertisement feeds the contact directory and resolver; adverts
// carry identity only, no message payload.
func (a *Adapter) handleAdvertisement(data []byte, receivedAt time.Time) {
	key := field(data, "sender_key").String()
	name := field(data, "sender_name").String()
	if key == "" && name == "" {
		return
	}

	ident := &mesh.NodeIdentity{
		DisplayName: name,
		Hardware:    field(data, "hardware").String(),
		LastSeen:    receivedAt,
	}
	if hexKey, err := mesh.KeyToHex(key); err == nil {
		ident.PublicKeyHex = hexKey
		if id, err := mesh.NodeIDFromKey(hexKey); err == nil {
			ident.ID = id
		}
	}
	if ident.ID == 0 {
		ident.ID = resolver.SyntheticID(name)
		ident.Source = mesh.SourceSynthetic
	}
	a.res.Upsert(context.Background(), ident)

	p := &mesh.Packet{
		FromID:         ident.ID,
		ToID:           mesh.Broadcast,
		Kind:           mesh.KindNodeInfo,
		ReceivedAt:     receivedAt,
		Origin:         mesh.NetMeshCore,
		SenderName:     name,
		Classification: mesh.ClassBroadcast,
	}
	a.emitter.Emit(p)
}

func (a *Adapter) handleRxLog(data []byte, receivedAt time.Time) {
	obs := mesh.RFObservation{
		SNR:  field(data, "snr").Float(),
		RSSI: int(field(data, "rssi").Int()),
		At:   receivedAt,
	}
	if n := int(field(data, "path_len").Int()); n > 0 {
		// The log reports a path length, not the node list; synthesize a
		// placeholder path of that length for hop accounting.
		obs.Path = make([]uint32, n)
	}

	a.mu.Lock()
	a.lastRF = obs
	a.mu.Unlock()

	a.emitter.Emit(&mesh.Packet{
		SNR:            obs.SNR,
		RSSI:           obs.RSSI,
		Path:           obs.Path,
		ReceivedAt:     receivedAt,
		Origin:         mesh.NetMeshCore,
		IsRxLog:        true,
		Classification: mesh.ClassRxLog,
	})
}

// correlateRF backfills signal metadata from the freshest RF observation.
// eventHasPath guards the path-length backfill: a length supplied by the
// message event itself always wins over the observation's.
func (a *Adapter) correlateRF(p *mesh.Packet, receivedAt time.Time, eventHasPath bool) {
	a.mu.Lock()
	obs := a.lastRF
	a.mu.Unlock()
	if !obs.FreshAt(receivedAt) {
		return
	}
	if p.SNR == 0 && p.RSSI == 0 {
		p.SNR = obs.SNR
		p.RSSI = obs.RSSI
	}
	if !eventHasPath && len(obs.Path) > 0 {
		p.HopStart = len(obs.Path)
		p.Path = obs.Path
	}
}
