// Copyright 2025-2026 Tigro14

package meshtastic

import "github.com/Tigro14/meshbot-sub004/pkg/mesh"

// Frame is the decoder's view of one native radio event. The payload
// decoder itself (protobuf framing, route decoding, PKI/PSK decryption)
// is an external collaborator; the adapter only consumes its output.
type Frame struct {
	Kind mesh.PayloadKind

	FromID uint32
	ToID   uint32

	Channel  int
	HopStart int
	HopLimit int
	Path     []uint32

	SNR  float64
	RSSI int

	// Text is the decoded payload text, or mesh.DecryptionFailedText when
	// the decoder could not decrypt.
	Text string

	// Encrypted marks payloads the decoder left undecrypted.
	Encrypted bool

	// IsDirectMessage is the transport-level routing indicator: the frame
	// was addressed to a specific node, not a channel.
	IsDirectMessage bool

	// IsRxLog marks RF-activity observations that carry signal metadata
	// but no payload.
	IsRxLog bool

	// SenderName and SenderKey carry whatever identity material the
	// event included, for the resolver.
	SenderName string
	SenderKey  string

	// LocalNodeID is non-zero on node-info frames describing the radio
	// the bridge is attached to.
	LocalNodeID uint32

	// Errors lists non-fatal decode problems.
	Errors []string
}

// Decoder turns raw transport bytes into frames. Implementations own all
// binary-format concerns.
type Decoder interface {
	Decode(data []byte) (*Frame, error)
}
