// Copyright 2025-2026 Tigro14

package mesh

import "time"

// RFFreshness is how long an RF-activity observation may be used to
// backfill signal metadata on the next logical event.
const RFFreshness = 2 * time.Second

// RFObservation is the most recent RF-activity log entry seen by an
// adapter. Channel events that arrive without their own signal metadata
// are correlated with it while it is fresh. This is deliberately a small
// owned value with an explicit timestamp, not ambient global state.
type RFObservation struct {
	SNR  float64
	RSSI int
	Path []uint32
	At   time.Time
}

// FreshAt reports whether the observation is recent enough to correlate
// with an event received at now.
func (o *RFObservation) FreshAt(now time.Time) bool {
	if o == nil || o.At.IsZero() {
		return false
	}
	return now.Sub(o.At) <= RFFreshness && !now.Before(o.At.Add(-RFFreshness))
}
