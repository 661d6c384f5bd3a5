// Copyright 2025-2026 Tigro14

package meshcore

import (
	"encoding/json"

	"github.com/Tigro14/meshbot-sub004/pkg/mesh"
)

// TextEncoder frames outbound text as companion-network send commands:
// channel sends for the broadcast address, contact sends otherwise.
type TextEncoder struct {
	// Channel is the channel index used for broadcast sends.
	Channel int
}

// EncodeText implements the bridge's Encoder.
func (e TextEncoder) EncodeText(destination uint32, text string) ([]byte, error) {
	if destination == mesh.Broadcast {
		return json.Marshal(map[string]any{
			"type":        "send_channel_message",
			"channel_idx": e.Channel,
			"text":        text,
		})
	}
	return json.Marshal(map[string]any{
		"type":    "send_contact_message",
		"node_id": destination,
		"text":    text,
	})
}
