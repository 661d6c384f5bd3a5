// Copyright 2025-2026 Tigro14

package meshcore

import (
	"encoding/json"
	"testing"

	"github.com/Tigro14/meshbot-sub004/pkg/mesh"
)

func TestTextEncoderBroadcast(t *testing.T) {
	t.Parallel()
	data, err := TextEncoder{Channel: 1}.EncodeText(mesh.Broadcast, "out on channel")
	if err != nil {
		t.Fatalf("EncodeText: %v", err)
	}
	var out struct {
		Type       string `json:"type"`
		ChannelIdx int    `json:"channel_idx"`
		Text       string `json:"text"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if out.Type != "send_channel_message" || out.ChannelIdx != 1 || out.Text != "out on channel" {
		t.Errorf("encoded frame: %+v", out)
	}
}

func TestTextEncoderDirect(t *testing.T) {
	t.Parallel()
	data, err := TextEncoder{}.EncodeText(0x11223344, "private reply")
	if err != nil {
		t.Fatalf("EncodeText: %v", err)
	}
	var out struct {
		Type   string `json:"type"`
		NodeID uint32 `json:"node_id"`
		Text   string `json:"text"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if out.Type != "send_contact_message" || out.NodeID != 0x11223344 {
		t.Errorf("encoded frame: %+v", out)
	}
}
