// Copyright 2025-2026 Tigro14

package mesh

import "time"

// Reserved node ID values. Broadcast is the all-nodes destination used by
// both mesh networks. LocalUnknown is a bridge-internal destination meaning
// "addressed to the local node whose real ID has not been learned yet"; it
// must stay distinct from Broadcast so direct messages are never mistaken
// for channel traffic before the local node info arrives.
const (
	Broadcast    uint32 = 0xFFFFFFFF
	LocalUnknown uint32 = 0xFFFFFFFE
)

// Network identifies which of the two bridged radio networks a packet
// originated from.
type Network int

const (
	NetMeshtastic Network = iota
	NetMeshCore
)

func (n Network) String() string {
	switch n {
	case NetMeshtastic:
		return "meshtastic"
	case NetMeshCore:
		return "meshcore"
	default:
		return "unknown"
	}
}

// PayloadKind is the decoded payload type of a packet.
type PayloadKind int

const (
	KindOther PayloadKind = iota
	KindText
	KindTelemetry
	KindPosition
	KindNodeInfo
	KindTrace
)

func (k PayloadKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindTelemetry:
		return "telemetry"
	case KindPosition:
		return "position"
	case KindNodeInfo:
		return "nodeinfo"
	case KindTrace:
		return "trace"
	default:
		return "other"
	}
}

// PossiblyPrivate reports whether this payload kind may be PKI-encrypted
// when sent as a direct message. Directed packets of these kinds that are
// not addressed to the broadcast channel are relay traffic between two
// other parties; attempting to decrypt them is guaranteed to produce
// garbage.
func (k PayloadKind) PossiblyPrivate() bool {
	return k == KindText || k == KindPosition
}

// Classification is the router-facing category of a packet, refined by the
// protocol adapters before dispatch.
type Classification int

const (
	ClassUnclassified Classification = iota
	ClassBroadcast
	ClassDirectMessage
	// ClassForeignDM marks an encrypted direct message between two other
	// parties where at least one endpoint is known locally (or the
	// receiver is the local node).
	ClassForeignDM
	// ClassUnknownChannelNoise marks directed traffic where neither
	// endpoint is known to the local node. Stored separately so garbled
	// bytes never pollute plain-text statistics.
	ClassUnknownChannelNoise
	ClassRxLog
)

func (c Classification) String() string {
	switch c {
	case ClassBroadcast:
		return "broadcast"
	case ClassDirectMessage:
		return "direct"
	case ClassForeignDM:
		return "foreign_dm"
	case ClassUnknownChannelNoise:
		return "unknown_channel_noise"
	case ClassRxLog:
		return "rx_log"
	default:
		return "unclassified"
	}
}

// DecryptionFailedText is the placeholder stored when payload decryption
// fails on a foreign packet. The adapters use it as a safety net: any
// packet carrying this text with a non-broadcast destination is
// re-classified as foreign directed traffic.
const DecryptionFailedText = "<decryption failed>"

// Packet is the canonical network-agnostic representation of an inbound
// event. Both protocol adapters normalize their native event shapes into
// this one struct before the shared pipeline sees them.
type Packet struct {
	FromID   uint32
	ToID     uint32
	Channel  int
	SNR      float64
	RSSI     int
	HopStart int
	HopLimit int
	Path     []uint32

	Kind PayloadKind
	Text string

	ReceivedAt time.Time
	Origin     Network

	IsDirectMessage bool
	IsRxLog         bool

	Classification Classification

	// SenderName is the display name carried by the native event, if any.
	// Used by the resolver for synthetic ID derivation.
	SenderName string
}

// HopsTraveled returns how many hops the packet took to reach the local
// node. Packets materialized locally always have HopLimit zero, so this is
// simply HopStart for them.
func (p *Packet) HopsTraveled() int {
	return p.HopStart - p.HopLimit
}

// IsBroadcast reports whether the packet is channel traffic. The
// IsDirectMessage override exists because adapters address DMs to the
// LocalUnknown sentinel before the true local ID is known, and a sentinel
// value must never be interpreted as channel traffic.
func (p *Packet) IsBroadcast() bool {
	if p.IsDirectMessage {
		return false
	}
	return p.ToID == Broadcast || p.ToID == 0
}
