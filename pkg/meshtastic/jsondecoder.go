// Copyright 2025-2026 Tigro14

package meshtastic

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/Tigro14/meshbot-sub004/pkg/mesh"
)

// JSONDecoder decodes the pre-decoded JSON frame stream the packet
// network's proxy client emits. Binary protobuf framing and PSK/PKI
// decryption happen in the proxy; this side only maps its output onto
// frames.
type JSONDecoder struct{}

// Decode implements Decoder.
func (JSONDecoder) Decode(data []byte) (*Frame, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("frame is not valid JSON")
	}
	doc := gjson.ParseBytes(data)

	f := &Frame{
		Kind:            payloadKind(doc.Get("kind").String()),
		FromID:          uint32(doc.Get("from_id").Uint()),
		ToID:            uint32(doc.Get("to_id").Uint()),
		Channel:         int(doc.Get("channel").Int()),
		HopStart:        int(doc.Get("hop_start").Int()),
		HopLimit:        int(doc.Get("hop_limit").Int()),
		SNR:             doc.Get("snr").Float(),
		RSSI:            int(doc.Get("rssi").Int()),
		Text:            doc.Get("text").String(),
		Encrypted:       doc.Get("encrypted").Bool(),
		IsDirectMessage: doc.Get("is_dm").Bool(),
		IsRxLog:         doc.Get("rx_log").Bool(),
		SenderName:      doc.Get("sender_name").String(),
		SenderKey:       doc.Get("sender_key").String(),
		LocalNodeID:     uint32(doc.Get("local_node_id").Uint()),
	}
	for _, hop := range doc.Get("path").Array() {
		f.Path = append(f.Path, uint32(hop.Uint()))
	}
	for _, e := range doc.Get("errors").Array() {
		f.Errors = append(f.Errors, e.String())
	}
	return f, nil
}

func payloadKind(s string) mesh.PayloadKind {
	switch s {
	case "text":
		return mesh.KindText
	case "telemetry":
		return mesh.KindTelemetry
	case "position":
		return mesh.KindPosition
	case "nodeinfo":
		return mesh.KindNodeInfo
	case "trace":
		return mesh.KindTrace
	default:
		return mesh.KindOther
	}
}

// TextEncoder frames outbound text as the proxy client's send command.
type TextEncoder struct{}

// EncodeText implements the bridge's Encoder.
func (TextEncoder) EncodeText(destination uint32, text string) ([]byte, error) {
	return json.Marshal(map[string]any{
		"type":  "send_text",
		"to_id": destination,
		"text":  text,
	})
}
