// Copyright 2025-2026 Tigro14

package meshcore

import "github.com/tidwall/gjson"

// The companion network's client library has renamed event payload fields
// several times across firmware versions. Each logical field maps to an
// ordered candidate list tried in priority order; adding a new spelling is
// a one-line change here and nowhere else.
var fieldCandidates = map[string][]string{
	"event_type":  {"type", "event", "event_type"},
	"sender_key":  {"pubkey_prefix", "public_key", "pubkey", "origin_key"},
	"sender_name": {"adv_name", "sender_name", "name", "contact_name"},
	"text":        {"text", "msg", "message"},
	"channel":     {"channel_idx", "channel", "chan"},
	"snr":         {"snr", "rx_snr"},
	"rssi":        {"rssi", "rx_rssi"},
	"path_len":    {"path_len", "hops", "hop_count"},
	"dest_key":    {"dest_prefix", "destination_key", "dst_key"},
	"hardware":    {"hw_model", "hardware", "board"},
}

// field returns the first present candidate for a logical field name.
// The zero gjson.Result (Exists() == false) means no spelling matched.
func field(payload []byte, logical string) gjson.Result {
	for _, key := range fieldCandidates[logical] {
		if r := gjson.GetBytes(payload, key); r.Exists() {
			return r
		}
	}
	return gjson.Result{}
}
