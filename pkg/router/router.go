// Copyright 2025-2026 Tigro14

// Package router classifies normalized packets and dispatches command
// traffic to the bot's handlers. It enforces network isolation: commands
// bound to one network are answered with a redirect instead of being
// executed when they arrive from the other.
package router

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Tigro14/meshbot-sub004/pkg/mesh"
)

// CommandHandler executes a classified packet and returns optional reply
// text. An empty reply means the packet produced no response.
type CommandHandler interface {
	Handle(ctx context.Context, p *mesh.Packet) (string, error)
}

// Sender transmits reply text back onto a network. Implementations are
// expected to apply their own duplicate-send suppression.
type Sender interface {
	SendText(network mesh.Network, destination uint32, text string) error
}

// Recorder receives packets that are observed but never dispatched, such
// as foreign encrypted traffic and RF-activity logs.
type Recorder interface {
	RecordPacket(ctx context.Context, p *mesh.Packet) error
}

// Router is the final pipeline stage. It is not safe for concurrent use;
// the pipeline feeds it from a single goroutine to keep ordering
// deterministic.
type Router struct {
	handler  CommandHandler
	sender   Sender
	recorder Recorder
	log      zerolog.Logger
}

// New creates a Router. recorder may be nil when packet history is
// disabled.
func New(handler CommandHandler, sender Sender, recorder Recorder, log zerolog.Logger) *Router {
	return &Router{
		handler:  handler,
		sender:   sender,
		recorder: recorder,
		log:      log.With().Str("component", "router").Logger(),
	}
}

// Route classifies p and dispatches it. Non-command traffic (foreign
// encrypted packets, RF logs, telemetry) is recorded and never reaches
// the handler.
func (r *Router) Route(ctx context.Context, p *mesh.Packet) {
	switch p.Classification {
	case mesh.ClassForeignDM, mesh.ClassUnknownChannelNoise, mesh.ClassRxLog:
		r.record(ctx, p)
		return
	}

	if p.Kind != mesh.KindText || strings.TrimSpace(p.Text) == "" {
		r.record(ctx, p)
		return
	}

	text := strings.TrimSpace(p.Text)
	if redirect := checkIsolation(p.Origin, text); redirect != "" {
		r.log.Info().
			Stringer("origin", p.Origin).
			Uint32("from", p.FromID).
			Str("text", text).
			Msg("Command rejected by network isolation")
		r.reply(p, redirect)
		return
	}

	reply, err := r.handler.Handle(ctx, p)
	if err != nil {
		r.log.Error().Err(err).
			Uint32("from", p.FromID).
			Str("text", text).
			Msg("Command handler failed")
		return
	}
	if reply == "" {
		return
	}
	r.reply(p, reply)
}

// reply sends text back along the path the command arrived on: a single
// public transmit for broadcasts, a private transmit to the resolved
// sender for direct messages.
func (r *Router) reply(p *mesh.Packet, text string) {
	destination := mesh.Broadcast
	if p.IsDirectMessage {
		destination = p.FromID
	}
	if err := r.sender.SendText(p.Origin, destination, text); err != nil {
		r.log.Warn().Err(err).
			Stringer("origin", p.Origin).
			Uint32("destination", destination).
			Msg("Failed to send reply")
	}
}

func (r *Router) record(ctx context.Context, p *mesh.Packet) {
	if r.recorder == nil {
		return
	}
	if err := r.recorder.RecordPacket(ctx, p); err != nil {
		r.log.Warn().Err(err).Msg("Failed to record packet")
	}
}
