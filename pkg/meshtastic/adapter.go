// Copyright 2025-2026 Tigro14

// Package meshtastic adapts the packet-oriented mesh network's native
// events into canonical packets.
package meshtastic

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Tigro14/meshbot-sub004/pkg/mesh"
	"github.com/Tigro14/meshbot-sub004/pkg/resolver"
)

// Emitter receives normalized packets from the adapter. The bridge
// pipeline implements it; tests inject a mock.
type Emitter interface {
	Emit(p *mesh.Packet)
}

// Adapter normalizes native events into mesh.Packet. It owns the
// "latest RF observation" correlation state and the local node ID learned
// from node-info frames.
type Adapter struct {
	dec     Decoder
	res     *resolver.Resolver
	emitter Emitter
	log     zerolog.Logger

	mu      sync.Mutex
	lastRF  mesh.RFObservation
	localID uint32
}

// NewAdapter creates an Adapter.
func NewAdapter(dec Decoder, res *resolver.Resolver, emitter Emitter, log zerolog.Logger) *Adapter {
	return &Adapter{
		dec:     dec,
		res:     res,
		emitter: emitter,
		log:     log.With().Str("component", "meshtastic_adapter").Logger(),
	}
}

// LocalID returns the local node's ID, zero until a node-info frame for
// the local radio has been seen.
func (a *Adapter) LocalID() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.localID
}

// SetLocalID records the local node's ID (also learned from node-info
// frames as they arrive).
func (a *Adapter) SetLocalID(id uint32) {
	a.mu.Lock()
	a.localID = id
	a.mu.Unlock()
}

// HandleRaw implements transport.Sink. Malformed data is a recoverable
// per-packet failure: logged and dropped, never fatal.
func (a *Adapter) HandleRaw(network mesh.Network, data []byte, receivedAt time.Time) {
	frame, err := a.dec.Decode(data)
	if err != nil {
		a.log.Warn().Err(err).Int("len", len(data)).Msg("Dropping undecodable frame")
		return
	}
	if frame == nil {
		return
	}
	if len(frame.Errors) > 0 {
		a.log.Debug().Strs("decode_errors", frame.Errors).Msg("Frame decoded with errors")
	}
	a.handleFrame(frame, receivedAt)
}

func (a *Adapter) handleFrame(frame *Frame, receivedAt time.Time) {
	if frame.LocalNodeID != 0 {
		a.SetLocalID(frame.LocalNodeID)
	}

	if frame.IsRxLog {
		a.recordRF(frame, receivedAt)
		a.emitter.Emit(a.rxLogPacket(frame, receivedAt))
		return
	}

	p := &mesh.Packet{
		FromID:     frame.FromID,
		ToID:       frame.ToID,
		Channel:    frame.Channel,
		SNR:        frame.SNR,
		RSSI:       frame.RSSI,
		HopStart:   frame.HopStart,
		HopLimit:   frame.HopLimit,
		Path:       frame.Path,
		Kind:       frame.Kind,
		Text:       frame.Text,
		ReceivedAt: receivedAt,
		Origin:     mesh.NetMeshtastic,
		SenderName: frame.SenderName,
	}

	if p.FromID == 0 {
		p.FromID = a.res.Resolve(context.Background(), frame.SenderKey, frame.SenderName)
	} else if frame.SenderName != "" || frame.SenderKey != "" {
		ident := &mesh.NodeIdentity{ID: p.FromID, DisplayName: frame.SenderName}
		if hexKey, err := mesh.KeyToHex(frame.SenderKey); err == nil {
			ident.PublicKeyHex = hexKey
		}
		a.res.Upsert(context.Background(), ident)
	}

	if frame.IsDirectMessage {
		a.normalizeDM(p)
	} else {
		a.correlateRF(p, receivedAt)
		p.Classification = mesh.ClassBroadcast
	}

	if c, foreign := a.classifyForeign(p, frame); foreign {
		p.Classification = c
	}

	a.emitter.Emit(p)
}

// normalizeDM guarantees a non-broadcast destination on anything that is
// logically a direct message. Before the local node ID is known the
// LocalUnknown sentinel stands in; using the broadcast value would make
// downstream broadcast detection silently swallow command messages.
func (a *Adapter) normalizeDM(p *mesh.Packet) {
	p.IsDirectMessage = true
	p.Classification = mesh.ClassDirectMessage
	if p.ToID == mesh.Broadcast || p.ToID == 0 {
		if local := a.LocalID(); local != 0 {
			p.ToID = local
		} else {
			p.ToID = mesh.LocalUnknown
		}
	}
}

func (a *Adapter) recordRF(frame *Frame, receivedAt time.Time) {
	a.mu.Lock()
	a.lastRF = mesh.RFObservation{
		SNR:  frame.SNR,
		RSSI: frame.RSSI,
		Path: frame.Path,
		At:   receivedAt,
	}
	a.mu.Unlock()
}

// correlateRF backfills signal metadata from the latest RF observation
// when the channel event did not carry its own. An event-supplied path
// always wins over the observation's.
func (a *Adapter) correlateRF(p *mesh.Packet, receivedAt time.Time) {
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
	if len(p.Path) == 0 && len(obs.Path) > 0 {
		p.Path = obs.Path
	}
}

func (a *Adapter) rxLogPacket(frame *Frame, receivedAt time.Time) *mesh.Packet {
	return &mesh.Packet{
		FromID:         frame.FromID,
		ToID:           frame.ToID,
		SNR:            frame.SNR,
		RSSI:           frame.RSSI,
		Path:           frame.Path,
		Kind:           frame.Kind,
		ReceivedAt:     receivedAt,
		Origin:         mesh.NetMeshtastic,
		IsRxLog:        true,
		Classification: mesh.ClassRxLog,
	}
}

// classifyForeign applies the foreign-directed-traffic rules:
//
//   - possibly-private kinds addressed off-broadcast that arrived
//     encrypted are relay traffic between two other parties; decryption
//     is never attempted on them (it is guaranteed to garble),
//   - the safety net catches already-stored decryption-failed
//     placeholders paired with a non-broadcast destination,
//   - the refinement separates true relay noise from foreign DMs worth
//     counting: with neither endpoint known locally and a non-local
//     receiver it is channel noise, otherwise a foreign DM.
func (a *Adapter) classifyForeign(p *mesh.Packet, frame *Frame) (mesh.Classification, bool) {
	if p.ToID == mesh.Broadcast || p.ToID == 0 || p.ToID == mesh.LocalUnknown {
		return 0, false
	}
	encryptedPrivate := frame.Encrypted && p.Kind.PossiblyPrivate()
	garbled := p.Text == mesh.DecryptionFailedText
	if !encryptedPrivate && !garbled {
		return 0, false
	}

	local := a.LocalID()
	if local != 0 && p.ToID == local {
		return mesh.ClassForeignDM, true
	}
	if a.res.Known(p.FromID) || a.res.Known(p.ToID) {
		return mesh.ClassForeignDM, true
	}
	return mesh.ClassUnknownChannelNoise, true
}
