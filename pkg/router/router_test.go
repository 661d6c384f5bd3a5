// Copyright 2025-2026 Tigro14

package router

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Tigro14/meshbot-sub004/pkg/mesh"
)

type mockHandler struct {
	reply   string
	err     error
	handled []*mesh.Packet
}

func (m *mockHandler) Handle(_ context.Context, p *mesh.Packet) (string, error) {
	m.handled = append(m.handled, p)
	return m.reply, m.err
}

type sentText struct {
	network     mesh.Network
	destination uint32
	text        string
}

type mockSender struct {
	sent []sentText
	err  error
}

func (m *mockSender) SendText(network mesh.Network, destination uint32, text string) error {
	m.sent = append(m.sent, sentText{network, destination, text})
	return m.err
}

type mockRecorder struct {
	recorded []*mesh.Packet
}

func (m *mockRecorder) RecordPacket(_ context.Context, p *mesh.Packet) error {
	m.recorded = append(m.recorded, p)
	return nil
}

func textPacket(origin mesh.Network, text string) *mesh.Packet {
	return &mesh.Packet{
		FromID:         0x11223344,
		ToID:           mesh.Broadcast,
		Kind:           mesh.KindText,
		Text:           text,
		Origin:         origin,
		Classification: mesh.ClassBroadcast,
	}
}

func TestMatchesCommand(t *testing.T) {
	t.Parallel()
	tests := []struct {
		text    string
		command string
		want    bool
	}{
		{"/nodes", "/nodes", true},
		{"/nodes all", "/nodes", true},
		{"/nodes\targ", "/nodes", true},
		{"/nodesall", "/nodes", false},
		{"/m", "/map", false},
		{"/map", "/m", false},
		{"/m zoom", "/m", true},
		{"say /nodes", "/nodes", false},
	}
	for _, tt := range tests {
		if got := matchesCommand(tt.text, tt.command); got != tt.want {
			t.Errorf("matchesCommand(%q, %q) = %v, want %v", tt.text, tt.command, got, tt.want)
		}
	}
}

func TestIsolationRedirect(t *testing.T) {
	t.Parallel()
	handler := &mockHandler{reply: "should not be used"}
	sender := &mockSender{}
	r := New(handler, sender, nil, zerolog.Nop())

	// A companion-network-only command arriving from the packet network.
	r.Route(context.Background(), textPacket(mesh.NetMeshtastic, "/contacts"))

	if len(handler.handled) != 0 {
		t.Error("isolated command must not reach the handler")
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected one redirect reply, got %d", len(sender.sent))
	}
	reply := sender.sent[0].text
	if !strings.Contains(reply, "/nodes") {
		t.Errorf("redirect should name the equivalent command, got %q", reply)
	}
}

func TestIsolationRedirectOtherDirection(t *testing.T) {
	t.Parallel()
	handler := &mockHandler{}
	sender := &mockSender{}
	r := New(handler, sender, nil, zerolog.Nop())

	r.Route(context.Background(), textPacket(mesh.NetMeshCore, "/trace 0x1234"))

	if len(handler.handled) != 0 {
		t.Error("isolated command must not reach the handler")
	}
	if len(sender.sent) != 1 || !strings.Contains(sender.sent[0].text, "/path") {
		t.Errorf("expected redirect naming /path, got %+v", sender.sent)
	}
}

func TestIsolationWordBoundary(t *testing.T) {
	t.Parallel()
	handler := &mockHandler{}
	sender := &mockSender{}
	r := New(handler, sender, nil, zerolog.Nop())

	// "/contactsheet" must not be confused with the restricted "/contacts".
	r.Route(context.Background(), textPacket(mesh.NetMeshtastic, "/contactsheet"))

	if len(handler.handled) != 1 {
		t.Error("longer command sharing a prefix should pass isolation")
	}
}

func TestUnrestrictedCommandAllowedEverywhere(t *testing.T) {
	t.Parallel()
	for _, origin := range []mesh.Network{mesh.NetMeshtastic, mesh.NetMeshCore} {
		handler := &mockHandler{}
		r := New(handler, &mockSender{}, nil, zerolog.Nop())
		r.Route(context.Background(), textPacket(origin, "/weather"))
		if len(handler.handled) != 1 {
			t.Errorf("origin %v: unrestricted command should dispatch", origin)
		}
	}
}

func TestBroadcastReplyGoesPublic(t *testing.T) {
	t.Parallel()
	sender := &mockSender{}
	r := New(&mockHandler{reply: "sunny, 21C"}, sender, nil, zerolog.Nop())

	r.Route(context.Background(), textPacket(mesh.NetMeshtastic, "/weather"))

	if len(sender.sent) != 1 {
		t.Fatalf("expected one reply, got %d", len(sender.sent))
	}
	if sender.sent[0].destination != mesh.Broadcast {
		t.Errorf("broadcast command reply destination: %#x", sender.sent[0].destination)
	}
	if sender.sent[0].network != mesh.NetMeshtastic {
		t.Errorf("reply must go to the origin network, got %v", sender.sent[0].network)
	}
}

func TestDirectReplyGoesPrivate(t *testing.T) {
	t.Parallel()
	sender := &mockSender{}
	r := New(&mockHandler{reply: "pong"}, sender, nil, zerolog.Nop())

	p := textPacket(mesh.NetMeshCore, "/ping")
	p.ToID = mesh.LocalUnknown
	p.IsDirectMessage = true
	p.Classification = mesh.ClassDirectMessage
	r.Route(context.Background(), p)

	if len(sender.sent) != 1 {
		t.Fatalf("expected one reply, got %d", len(sender.sent))
	}
	if sender.sent[0].destination != p.FromID {
		t.Errorf("private reply destination: got %#x, want sender %#x", sender.sent[0].destination, p.FromID)
	}
}

func TestEmptyReplyNotSent(t *testing.T) {
	t.Parallel()
	sender := &mockSender{}
	r := New(&mockHandler{reply: ""}, sender, nil, zerolog.Nop())
	r.Route(context.Background(), textPacket(mesh.NetMeshtastic, "/quiet"))
	if len(sender.sent) != 0 {
		t.Error("empty handler reply must not transmit")
	}
}

func TestHandlerErrorAbsorbed(t *testing.T) {
	t.Parallel()
	sender := &mockSender{}
	r := New(&mockHandler{err: errors.New("boom")}, sender, nil, zerolog.Nop())
	r.Route(context.Background(), textPacket(mesh.NetMeshtastic, "/weather"))
	if len(sender.sent) != 0 {
		t.Error("failed handler must not produce a reply")
	}
}

func TestForeignTrafficRecordedNotDispatched(t *testing.T) {
	t.Parallel()
	handler := &mockHandler{}
	rec := &mockRecorder{}
	r := New(handler, &mockSender{}, rec, zerolog.Nop())

	for _, class := range []mesh.Classification{
		mesh.ClassForeignDM,
		mesh.ClassUnknownChannelNoise,
		mesh.ClassRxLog,
	} {
		p := textPacket(mesh.NetMeshtastic, "/nodes")
		p.Classification = class
		r.Route(context.Background(), p)
	}

	if len(handler.handled) != 0 {
		t.Error("recorded-only classes must not dispatch")
	}
	if len(rec.recorded) != 3 {
		t.Errorf("expected 3 recorded packets, got %d", len(rec.recorded))
	}
}

func TestNonTextPacketRecorded(t *testing.T) {
	t.Parallel()
	handler := &mockHandler{}
	rec := &mockRecorder{}
	r := New(handler, &mockSender{}, rec, zerolog.Nop())

	p := textPacket(mesh.NetMeshtastic, "")
	p.Kind = mesh.KindTelemetry
	r.Route(context.Background(), p)

	if len(handler.handled) != 0 {
		t.Error("telemetry must not dispatch")
	}
	if len(rec.recorded) != 1 {
		t.Errorf("telemetry should be recorded, got %d", len(rec.recorded))
	}
}
